package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sambitcodes/articulate-v2/internal/config"
	"github.com/sambitcodes/articulate-v2/internal/model"
	"github.com/sambitcodes/articulate-v2/internal/repository"
	"github.com/sambitcodes/articulate-v2/pkg/llm"
	"github.com/sambitcodes/articulate-v2/pkg/log"
)

// 四个工具标签页的 key，与配置文件中的 tools[].key 一一对应。
const (
	ToolKeyCvInterview      = "cv-interview"
	ToolKeyCodeExplainer    = "code-explainer"
	ToolKeyArticleGenerator = "article-generator"
	ToolKeyStudyPlan        = "study-plan"
)

// 生成动作的类型。
const (
	GenerateActionQuestions = "questions" // CV 面试题
	GenerateActionSkills    = "skills"    // CV 技能分析
	GenerateActionExplain   = "explain"   // 代码讲解
	GenerateActionDebug     = "debug"     // 代码查错
	GenerateActionOptimize  = "optimize"  // 代码优化
	GenerateActionArticle   = "article"   // 文章生成
	GenerateActionStudyPlan = "plan"      // 学习计划生成
)

// 消息角色。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

var (
	// ErrEmptyMessage 表示聊天消息为空。
	ErrEmptyMessage = errors.New("message is empty")
	// ErrMessageTooLong 表示聊天消息超出长度上限。
	ErrMessageTooLong = errors.New("message exceeds maximum length")
	// ErrModelNotAllowed 表示请求的模型不在该工具的允许列表中。
	ErrModelNotAllowed = errors.New("model is not allowed for this tool")
	// ErrMissingInput 表示生成动作缺少必需的输入（简历、代码、主题等）。
	ErrMissingInput = errors.New("required input is missing")
	// ErrUnknownAction 表示生成动作不被该工具支持。
	ErrUnknownAction = errors.New("unknown generate action")
)

// defaultHistoryWindow 是发送给模型的最近消息条数的兜底值。
const defaultHistoryWindow = 10

// ChatRequest 是一次聊天交互的输入。
type ChatRequest struct {
	Message     string   `json:"message" binding:"required"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature"`
	// JobDescription 仅 CV 工具使用，随请求传递、不落库。
	JobDescription string `json:"jobDescription"`
}

// ChatResult 是一次聊天交互的输出。
type ChatResult struct {
	SessionID uint   `json:"sessionId"`
	Reply     string `json:"reply"`
}

// GenerateRequest 是一次生成动作的输入。不同工具只使用其中的一部分字段。
type GenerateRequest struct {
	Action      string   `json:"action"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature"`

	// CV 面试工具
	JobDescription string `json:"jobDescription"`

	// 代码讲解工具
	Code string `json:"code"`

	// 文章生成工具
	Topic          string `json:"topic"`
	WordCount      int    `json:"wordCount"`
	Style          string `json:"style"`
	IncludeSources bool   `json:"includeSources"`
	IncludeTOC     bool   `json:"includeToc"`

	// 学习计划工具
	Subject         string   `json:"subject"`
	DurationWeeks   int      `json:"durationWeeks"`
	KnowledgeLevel  string   `json:"knowledgeLevel"`
	LearningGoal    string   `json:"learningGoal"`
	DailyHours      float64  `json:"dailyHours"`
	LearningMethods []string `json:"learningMethods"`
}

// GenerateResult 是一次生成动作的输出。
type GenerateResult struct {
	SessionID uint   `json:"sessionId"`
	Content   string `json:"content"`
	// NewSession 表示本次生成是否开启了新会话。
	NewSession bool `json:"newSession"`
}

// ToolService 是工具调用适配层：把聊天与生成动作翻译成
// 会话操作加上一次模型调用。
type ToolService interface {
	// Chat 在活跃会话上完成一轮对话：持久化用户消息、调用模型、持久化回复。
	Chat(ctx context.Context, userID uint, tool *config.ToolConfig, req ChatRequest) (*ChatResult, error)
	// Generate 执行工具的一次性生成动作（面试题、文章、学习计划、代码分析）。
	Generate(ctx context.Context, userID uint, tool *config.ToolConfig, req GenerateRequest) (*GenerateResult, error)
}

type toolService struct {
	sessions  SessionService
	stateRepo repository.StateRepository
	llmClient llm.Client
	conf      *config.Config
}

// NewToolService 创建一个新的 ToolService 实例。
func NewToolService(sessions SessionService, stateRepo repository.StateRepository, llmClient llm.Client, conf *config.Config) ToolService {
	return &toolService{
		sessions:  sessions,
		stateRepo: stateRepo,
		llmClient: llmClient,
		conf:      conf,
	}
}

// resolveModel 校验请求的模型是否在工具允许列表内，未指定时回落到默认模型。
func resolveModel(tool *config.ToolConfig, requested string) (string, error) {
	if requested == "" {
		return tool.DefaultModel, nil
	}
	for _, m := range tool.Models {
		if m == requested {
			return requested, nil
		}
	}
	return "", ErrModelNotAllowed
}

// genParams 构造生成参数，温度优先取请求值，其次取工具默认值。
func genParams(tool *config.ToolConfig, requested *float64) *llm.GenerationParams {
	t := tool.DefaultTemperature
	if requested != nil {
		t = *requested
	}
	return &llm.GenerationParams{Temperature: &t}
}

// Chat 在活跃会话上完成一轮对话。
func (s *toolService) Chat(ctx context.Context, userID uint, tool *config.ToolConfig, req ChatRequest) (*ChatResult, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if max := s.conf.Chat.MessageMaxLength; max > 0 && len([]rune(message)) > max {
		return nil, ErrMessageTooLong
	}

	modelName, err := resolveModel(tool, req.Model)
	if err != nil {
		return nil, err
	}

	session, history, err := s.sessions.ResolveActiveSession(ctx, userID, tool)
	if err != nil {
		return nil, err
	}

	// 首条真实消息把占位标题改写成消息文本，之后保持不变
	if err := s.sessions.PromoteTitleIfNew(ctx, userID, tool, session.ID, message); err != nil {
		return nil, err
	}

	if _, err := s.sessions.AppendMessage(ctx, userID, tool, session.ID, RoleUser, message); err != nil {
		return nil, err
	}

	contextText, err := s.stateRepo.GetContextText(ctx, userID, tool.Key)
	if err != nil {
		log.Errorf("读取上下文文本失败: %v", err)
	}
	artifact, err := s.stateRepo.GetArtifact(ctx, userID, tool.Key)
	if err != nil {
		log.Errorf("读取生成产物失败: %v", err)
	}

	messages := s.composeMessages(tool, contextText, artifact, req.JobDescription, history, message)

	reply, err := s.llmClient.Complete(ctx, modelName, messages, genParams(tool, req.Temperature))
	if err != nil {
		return nil, fmt.Errorf("llm completion failed: %w", err)
	}

	if _, err := s.sessions.AppendMessage(ctx, userID, tool, session.ID, RoleAssistant, reply); err != nil {
		return nil, err
	}

	return &ChatResult{SessionID: session.ID, Reply: reply}, nil
}

// composeMessages 组装发送给模型的消息：系统上下文加上最近的历史窗口。
// 完整历史仍然落库，窗口只限制送给模型的 token 量。
func (s *toolService) composeMessages(tool *config.ToolConfig, contextText, artifact, jobDescription string, history []model.ChatTurn, userMessage string) []llm.Message {
	window := s.conf.Chat.HistoryWindow
	if window <= 0 {
		window = defaultHistoryWindow
	}

	turns := append(history, model.ChatTurn{Role: RoleUser, Content: userMessage})
	if len(turns) > window {
		turns = turns[len(turns)-window:]
	}

	messages := make([]llm.Message, 0, len(turns)+1)
	messages = append(messages, llm.Message{
		Role:    RoleSystem,
		Content: buildSystemContext(tool.Key, tool.SystemPrompt, contextText, artifact, jobDescription),
	})
	for _, turn := range turns {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	return messages
}

// Generate 执行工具的一次性生成动作。
func (s *toolService) Generate(ctx context.Context, userID uint, tool *config.ToolConfig, req GenerateRequest) (*GenerateResult, error) {
	modelName, err := resolveModel(tool, req.Model)
	if err != nil {
		return nil, err
	}

	switch tool.Key {
	case ToolKeyCvInterview:
		return s.generateForCv(ctx, userID, tool, modelName, req)
	case ToolKeyCodeExplainer:
		return s.generateForCode(ctx, userID, tool, modelName, req)
	case ToolKeyArticleGenerator:
		return s.generateArticle(ctx, userID, tool, modelName, req)
	case ToolKeyStudyPlan:
		return s.generateStudyPlan(ctx, userID, tool, modelName, req)
	}
	return nil, ErrUnknownAction
}

// generateForCv 生成面试题或技能分析。需要已上传并提取的简历文本。
func (s *toolService) generateForCv(ctx context.Context, userID uint, tool *config.ToolConfig, modelName string, req GenerateRequest) (*GenerateResult, error) {
	resumeText, err := s.stateRepo.GetContextText(ctx, userID, tool.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to read resume text: %w", err)
	}
	if resumeText == "" {
		return nil, fmt.Errorf("%w: resume", ErrMissingInput)
	}

	var prompt, seed, header string
	switch req.Action {
	case GenerateActionQuestions:
		prompt = buildCvQuestionsPrompt(resumeText, req.JobDescription)
		seed = "Interview Questions for CV"
		header = "Generated Interview Questions:"
	case GenerateActionSkills:
		prompt = buildCvSkillsPrompt(resumeText)
		seed = "Skill Analysis for CV"
		header = "Skill Highlights Analysis:"
	default:
		return nil, ErrUnknownAction
	}

	return s.runSeededGeneration(ctx, userID, tool, modelName, req.Temperature, prompt, seed, header)
}

// generateForCode 对贴入的代码做讲解、查错或优化。
// 代码工具不开新会话：分析结果追加到当前会话，代码本身存为产物供后续聊天引用。
func (s *toolService) generateForCode(ctx context.Context, userID uint, tool *config.ToolConfig, modelName string, req GenerateRequest) (*GenerateResult, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, fmt.Errorf("%w: code", ErrMissingInput)
	}

	prompt, ok := buildCodePrompt(req.Action, code)
	if !ok {
		return nil, ErrUnknownAction
	}

	var header string
	switch req.Action {
	case GenerateActionExplain:
		header = "Code Explanation:"
	case GenerateActionDebug:
		header = "Error Analysis:"
	case GenerateActionOptimize:
		header = "Optimizations:"
	}

	session, _, err := s.sessions.ResolveActiveSession(ctx, userID, tool)
	if err != nil {
		return nil, err
	}

	if err := s.stateRepo.SetArtifact(ctx, userID, tool.Key, code); err != nil {
		log.Errorf("保存当前代码失败: %v", err)
	}

	content, err := s.llmClient.Complete(ctx, modelName, []llm.Message{{Role: RoleUser, Content: prompt}}, genParams(tool, req.Temperature))
	if err != nil {
		return nil, fmt.Errorf("llm completion failed: %w", err)
	}

	full := fmt.Sprintf("**%s**\n\n%s", header, content)
	if _, err := s.sessions.AppendMessage(ctx, userID, tool, session.ID, RoleAssistant, full); err != nil {
		return nil, err
	}

	return &GenerateResult{SessionID: session.ID, Content: full, NewSession: false}, nil
}

// generateArticle 生成一篇文章。文章全文存为产物，会话里追加一条编辑邀请，
// 后续聊天以产物为上下文做改写和扩写。
func (s *toolService) generateArticle(ctx context.Context, userID uint, tool *config.ToolConfig, modelName string, req GenerateRequest) (*GenerateResult, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, fmt.Errorf("%w: topic", ErrMissingInput)
	}

	wordCount := req.WordCount
	if wordCount <= 0 {
		wordCount = 1500
	}
	temperature := tool.DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	prompt := buildArticlePrompt(topic, wordCount, req.Style, temperature, req.IncludeSources, req.IncludeTOC)

	session, newSession, err := s.sessionForGeneration(ctx, userID, tool, "Article on "+topic)
	if err != nil {
		return nil, err
	}

	article, err := s.llmClient.Complete(ctx, modelName, []llm.Message{{Role: RoleUser, Content: prompt}}, genParams(tool, req.Temperature))
	if err != nil {
		return nil, fmt.Errorf("llm completion failed: %w", err)
	}

	if err := s.stateRepo.SetArtifact(ctx, userID, tool.Key, article); err != nil {
		log.Errorf("保存生成文章失败: %v", err)
	}

	invite := "Let's discuss more on the above article. What would you like to refine, expand, or ask about?"
	if _, err := s.sessions.AppendMessage(ctx, userID, tool, session.ID, RoleAssistant, invite); err != nil {
		return nil, err
	}

	return &GenerateResult{SessionID: session.ID, Content: article, NewSession: newSession}, nil
}

// generateStudyPlan 生成学习计划。计划全文既存为产物也追加进会话。
func (s *toolService) generateStudyPlan(ctx context.Context, userID uint, tool *config.ToolConfig, modelName string, req GenerateRequest) (*GenerateResult, error) {
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		return nil, fmt.Errorf("%w: subject", ErrMissingInput)
	}

	durationWeeks := req.DurationWeeks
	if durationWeeks <= 0 {
		durationWeeks = 4
	}
	prompt := buildStudyPlanPrompt(subject, durationWeeks, req.KnowledgeLevel, req.LearningGoal, req.DailyHours, req.LearningMethods)

	session, newSession, err := s.sessionForGeneration(ctx, userID, tool, "Study Plan for "+subject)
	if err != nil {
		return nil, err
	}

	plan, err := s.llmClient.Complete(ctx, modelName, []llm.Message{{Role: RoleUser, Content: prompt}}, genParams(tool, req.Temperature))
	if err != nil {
		return nil, fmt.Errorf("llm completion failed: %w", err)
	}

	if err := s.stateRepo.SetArtifact(ctx, userID, tool.Key, plan); err != nil {
		log.Errorf("保存学习计划失败: %v", err)
	}

	full := fmt.Sprintf("**Study Plan for %s**\n\n%s", subject, plan)
	if _, err := s.sessions.AppendMessage(ctx, userID, tool, session.ID, RoleAssistant, full); err != nil {
		return nil, err
	}

	return &GenerateResult{SessionID: session.ID, Content: plan, NewSession: newSession}, nil
}

// runSeededGeneration 走"强制新会话"路径：开一个带真实标题的新会话，
// 调用模型并把带标题头的结果作为首条消息写入。
func (s *toolService) runSeededGeneration(ctx context.Context, userID uint, tool *config.ToolConfig, modelName string, temperature *float64, prompt, seed, header string) (*GenerateResult, error) {
	session, newSession, err := s.sessionForGeneration(ctx, userID, tool, seed)
	if err != nil {
		return nil, err
	}

	content, err := s.llmClient.Complete(ctx, modelName, []llm.Message{{Role: RoleUser, Content: prompt}}, genParams(tool, temperature))
	if err != nil {
		return nil, fmt.Errorf("llm completion failed: %w", err)
	}

	full := fmt.Sprintf("**%s**\n\n%s", header, content)
	if _, err := s.sessions.AppendMessage(ctx, userID, tool, session.ID, RoleAssistant, full); err != nil {
		return nil, err
	}

	return &GenerateResult{SessionID: session.ID, Content: full, NewSession: newSession}, nil
}

// sessionForGeneration 按工具策略决定生成动作落在哪个会话：
// 开新会话（带种子标题）或沿用当前活跃会话。
func (s *toolService) sessionForGeneration(ctx context.Context, userID uint, tool *config.ToolConfig, seed string) (*model.ChatSession, bool, error) {
	if tool.NewSessionOnGenerate {
		session, err := s.sessions.StartSeededSession(ctx, userID, tool, seed)
		if err != nil {
			return nil, false, err
		}
		return session, true, nil
	}
	session, _, err := s.sessions.ResolveActiveSession(ctx, userID, tool)
	if err != nil {
		return nil, false, err
	}
	return session, false, nil
}
