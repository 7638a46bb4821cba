package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sambitcodes/articulate-v2/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLLM 记录最近一次调用的参数，返回固定回复或注入的错误。
type fakeLLM struct {
	reply        string
	err          error
	lastModel    string
	lastMessages []llm.Message
	lastGen      *llm.GenerationParams
	calls        int
}

func (f *fakeLLM) Complete(_ context.Context, model string, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	f.calls++
	f.lastModel = model
	f.lastMessages = messages
	f.lastGen = gen
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func newToolEnv(t *testing.T) (*testEnv, *fakeLLM, ToolService) {
	t.Helper()
	env := newTestEnv(t)
	fake := &fakeLLM{reply: "canned reply"}
	tools := NewToolService(env.sessions, env.stateRepo, fake, env.conf)
	return env, fake, tools
}

func TestChatPersistsBothTurns(t *testing.T) {
	env, fake, tools := newToolEnv(t)
	tool := env.tool(t, "study-plan")
	ctx := context.Background()

	result, err := tools.Chat(ctx, 1, tool, ChatRequest{Message: "Help me learn Linear Algebra"})
	require.NoError(t, err)
	assert.Equal(t, "canned reply", result.Reply)
	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, tool.DefaultModel, fake.lastModel)

	messages, err := env.sessionRepo.MessagesBySession(result.SessionID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, RoleUser, messages[0].Role)
	assert.Equal(t, "Help me learn Linear Algebra", messages[0].Content)
	assert.Equal(t, RoleAssistant, messages[1].Role)
	assert.Equal(t, "canned reply", messages[1].Content)

	// 首条消息改写了占位标题
	session, err := env.sessionRepo.FindByID(result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "Help me learn Linear Algebra", session.SessionTitle)
}

func TestChatSendsSystemContextAndWindow(t *testing.T) {
	env, fake, tools := newToolEnv(t)
	tool := env.tool(t, "study-plan")
	ctx := context.Background()

	require.NoError(t, env.stateRepo.SetArtifact(ctx, 1, tool.Key, "Week 1: vectors"))

	session, _, err := env.sessions.ResolveActiveSession(ctx, 1, tool)
	require.NoError(t, err)
	// 预置 12 条历史，超出 10 条的窗口
	for i := 0; i < 12; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		_, err := env.sessions.AppendMessage(ctx, 1, tool, session.ID, role, strings.Repeat("x", i+1))
		require.NoError(t, err)
	}

	_, err = tools.Chat(ctx, 1, tool, ChatRequest{Message: "what about week 2?"})
	require.NoError(t, err)

	// 系统消息 + 最近 10 条（包含本次用户输入）
	require.Len(t, fake.lastMessages, 11)
	system := fake.lastMessages[0]
	assert.Equal(t, RoleSystem, system.Role)
	assert.Contains(t, system.Content, tool.SystemPrompt)
	assert.Contains(t, system.Content, "Week 1: vectors")
	assert.Equal(t, "what about week 2?", fake.lastMessages[10].Content)
}

func TestChatKeepsUserTurnWhenModelFails(t *testing.T) {
	env, fake, tools := newToolEnv(t)
	tool := env.tool(t, "study-plan")
	ctx := context.Background()

	fake.err = errors.New("upstream timeout")
	_, err := tools.Chat(ctx, 1, tool, ChatRequest{Message: "plan my exam week"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm completion failed")

	// 用户消息在调用模型前已落库，失败不回滚，标题改写也保留
	session, err := env.sessionRepo.FindLatest(1, tool.TabName)
	require.NoError(t, err)
	assert.Equal(t, "plan my exam week", session.SessionTitle)

	messages, err := env.sessionRepo.MessagesBySession(session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, RoleUser, messages[0].Role)
	assert.Equal(t, "plan my exam week", messages[0].Content)

	// 故障消退后重试继续落在同一个会话上
	fake.err = nil
	result, err := tools.Chat(ctx, 1, tool, ChatRequest{Message: "try again"})
	require.NoError(t, err)
	assert.Equal(t, session.ID, result.SessionID)

	messages, err = env.sessionRepo.MessagesBySession(session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, RoleAssistant, messages[2].Role)
}

func TestChatRejectsBadInput(t *testing.T) {
	env, _, tools := newToolEnv(t)
	tool := env.tool(t, "study-plan")
	ctx := context.Background()

	_, err := tools.Chat(ctx, 1, tool, ChatRequest{Message: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = tools.Chat(ctx, 1, tool, ChatRequest{Message: strings.Repeat("a", 4001)})
	assert.ErrorIs(t, err, ErrMessageTooLong)

	_, err = tools.Chat(ctx, 1, tool, ChatRequest{Message: "hi", Model: "not-a-real-model"})
	assert.ErrorIs(t, err, ErrModelNotAllowed)
}

func TestChatUsesRequestedTemperature(t *testing.T) {
	env, fake, tools := newToolEnv(t)
	tool := env.tool(t, "study-plan")
	ctx := context.Background()

	temp := 0.7
	_, err := tools.Chat(ctx, 1, tool, ChatRequest{Message: "hi", Temperature: &temp})
	require.NoError(t, err)
	require.NotNil(t, fake.lastGen)
	require.NotNil(t, fake.lastGen.Temperature)
	assert.InDelta(t, 0.7, *fake.lastGen.Temperature, 1e-9)

	// 未指定时回落到工具默认温度
	_, err = tools.Chat(ctx, 1, tool, ChatRequest{Message: "hi again"})
	require.NoError(t, err)
	assert.InDelta(t, tool.DefaultTemperature, *fake.lastGen.Temperature, 1e-9)
}

func TestGenerateStudyPlanStartsSeededSession(t *testing.T) {
	env, fake, tools := newToolEnv(t)
	tool := env.tool(t, "study-plan")
	ctx := context.Background()

	// 已有一个活跃会话，生成动作应另开新会话
	old, _, err := env.sessions.ResolveActiveSession(ctx, 1, tool)
	require.NoError(t, err)

	fake.reply = "1. **Program Overview** ..."
	result, err := tools.Generate(ctx, 1, tool, GenerateRequest{
		Subject:        "Linear Algebra",
		DurationWeeks:  4,
		KnowledgeLevel: "Beginner",
		LearningGoal:   "Pass the exam",
		DailyHours:     2,
	})
	require.NoError(t, err)
	assert.True(t, result.NewSession)
	assert.NotEqual(t, old.ID, result.SessionID)
	assert.Equal(t, "1. **Program Overview** ...", result.Content)

	// 新会话带种子标题，包含学习主题
	session, err := env.sessionRepo.FindByID(result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "Study Plan for Linear Algebra", session.SessionTitle)
	assert.Contains(t, session.FirstMessage, "Linear Algebra")

	// 计划全文成为该标签页的产物
	artifact, err := env.stateRepo.GetArtifact(ctx, 1, tool.Key)
	require.NoError(t, err)
	assert.Equal(t, "1. **Program Overview** ...", artifact)

	// 会话里只有一条带标题头的助手消息
	messages, err := env.sessionRepo.MessagesBySession(result.SessionID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, RoleAssistant, messages[0].Role)
	assert.Contains(t, messages[0].Content, "**Study Plan for Linear Algebra**")

	// 提示词携带了全部输入参数
	prompt := fake.lastMessages[0].Content
	assert.Contains(t, prompt, "Subject: Linear Algebra")
	assert.Contains(t, prompt, "Duration: 4 weeks")
	assert.Contains(t, prompt, "Beginner")
}

func TestGenerateCodeKeepsCurrentSession(t *testing.T) {
	env, fake, tools := newToolEnv(t)
	tool := env.tool(t, "code-explainer")
	ctx := context.Background()

	active, _, err := env.sessions.ResolveActiveSession(ctx, 1, tool)
	require.NoError(t, err)

	fake.reply = "this code prints hello"
	result, err := tools.Generate(ctx, 1, tool, GenerateRequest{
		Action: GenerateActionExplain,
		Code:   `print("hello")`,
	})
	require.NoError(t, err)
	assert.False(t, result.NewSession)
	assert.Equal(t, active.ID, result.SessionID)
	assert.Contains(t, result.Content, "**Code Explanation:**")

	// 代码存为产物，供后续聊天引用
	artifact, err := env.stateRepo.GetArtifact(ctx, 1, tool.Key)
	require.NoError(t, err)
	assert.Equal(t, `print("hello")`, artifact)

	messages, err := env.sessionRepo.MessagesBySession(active.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0].Content, "this code prints hello")
}

func TestGenerateCodeActions(t *testing.T) {
	env, fake, tools := newToolEnv(t)
	tool := env.tool(t, "code-explainer")
	ctx := context.Background()

	_, err := tools.Generate(ctx, 1, tool, GenerateRequest{Action: GenerateActionDebug, Code: "x = 1"})
	require.NoError(t, err)
	assert.Contains(t, fake.lastMessages[0].Content, "Find errors and issues")

	_, err = tools.Generate(ctx, 1, tool, GenerateRequest{Action: GenerateActionOptimize, Code: "x = 1"})
	require.NoError(t, err)
	assert.Contains(t, fake.lastMessages[0].Content, "optimization suggestions")

	_, err = tools.Generate(ctx, 1, tool, GenerateRequest{Action: "translate", Code: "x = 1"})
	assert.ErrorIs(t, err, ErrUnknownAction)

	_, err = tools.Generate(ctx, 1, tool, GenerateRequest{Action: GenerateActionExplain})
	assert.ErrorIs(t, err, ErrMissingInput)
}

func TestGenerateCvRequiresResume(t *testing.T) {
	env, fake, tools := newToolEnv(t)
	tool := env.tool(t, "cv-interview")
	ctx := context.Background()

	_, err := tools.Generate(ctx, 1, tool, GenerateRequest{Action: GenerateActionQuestions})
	assert.ErrorIs(t, err, ErrMissingInput)

	require.NoError(t, env.stateRepo.SetContextText(ctx, 1, tool.Key, "Senior Go developer, 5 years"))
	result, err := tools.Generate(ctx, 1, tool, GenerateRequest{
		Action:         GenerateActionQuestions,
		JobDescription: "Backend engineer",
	})
	require.NoError(t, err)
	assert.True(t, result.NewSession)

	session, err := env.sessionRepo.FindByID(result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "Interview Questions for CV", session.SessionTitle)

	prompt := fake.lastMessages[0].Content
	assert.Contains(t, prompt, "Senior Go developer, 5 years")
	assert.Contains(t, prompt, "Backend engineer")
}

func TestGenerateArticleStoresArtifactAndInvite(t *testing.T) {
	env, fake, tools := newToolEnv(t)
	tool := env.tool(t, "article-generator")
	ctx := context.Background()

	fake.reply = "# The Rise of Go\n..."
	result, err := tools.Generate(ctx, 1, tool, GenerateRequest{
		Topic:          "The Rise of Go",
		WordCount:      800,
		Style:          "Technical",
		IncludeSources: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "# The Rise of Go\n...", result.Content)

	artifact, err := env.stateRepo.GetArtifact(ctx, 1, tool.Key)
	require.NoError(t, err)
	assert.Equal(t, "# The Rise of Go\n...", artifact)

	// 会话里存的是编辑邀请，而不是文章全文
	messages, err := env.sessionRepo.MessagesBySession(result.SessionID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0].Content, "refine, expand, or ask")

	_, err = tools.Generate(ctx, 1, tool, GenerateRequest{Topic: "  "})
	assert.ErrorIs(t, err, ErrMissingInput)
}

func TestChatWindowHydratesAcrossRestart(t *testing.T) {
	env, fake, tools := newToolEnv(t)
	tool := env.tool(t, "study-plan")
	ctx := context.Background()

	first, err := tools.Chat(ctx, 1, tool, ChatRequest{Message: "remember the number 42"})
	require.NoError(t, err)

	// 清空状态指针，模拟重新登录后的解析
	require.NoError(t, env.stateRepo.ClearActiveSession(ctx, 1, tool.Key))

	second, err := tools.Chat(ctx, 1, tool, ChatRequest{Message: "what number did I mention?"})
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)

	// 上一轮的完整对话出现在送给模型的窗口中
	var contents []string
	for _, m := range fake.lastMessages[1:] {
		contents = append(contents, m.Content)
	}
	assert.Contains(t, contents, "remember the number 42")
	assert.Contains(t, contents, "canned reply")
	assert.Contains(t, contents, "what number did I mention?")
}
