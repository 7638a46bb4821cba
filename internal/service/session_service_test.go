package service

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/sambitcodes/articulate-v2/internal/config"
	"github.com/sambitcodes/articulate-v2/internal/model"
	"github.com/sambitcodes/articulate-v2/internal/repository"
	"github.com/sambitcodes/articulate-v2/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	os.Exit(m.Run())
}

// testEnv 汇集了服务层测试需要的全部依赖。
type testEnv struct {
	db          *gorm.DB
	sessionRepo repository.SessionRepository
	stateRepo   repository.StateRepository
	cache       *ListingCache
	conf        *config.Config
	sessions    SessionService
	library     LibraryService
}

func testConfig() *config.Config {
	return &config.Config{
		Chat: config.ChatConfig{HistoryWindow: 10, MessageMaxLength: 4000},
		Tools: []config.ToolConfig{
			{
				Key:                  "study-plan",
				TabName:              "Study Plan",
				SystemPrompt:         "You are an experienced educator and learning specialist.",
				DefaultModel:         "llama-3.3-70b-versatile",
				Models:               []string{"llama-3.3-70b-versatile", "groq/compound-mini"},
				DefaultTemperature:   0.2,
				NewSessionOnGenerate: true,
			},
			{
				Key:                  "code-explainer",
				TabName:              "Code Explainer",
				SystemPrompt:         "You are an expert software developer and code mentor.",
				DefaultModel:         "llama-3.3-70b-versatile",
				Models:               []string{"llama-3.3-70b-versatile", "groq/compound"},
				DefaultTemperature:   0.2,
				NewSessionOnGenerate: false,
			},
			{
				Key:                  "cv-interview",
				TabName:              "CV Interview",
				SystemPrompt:         "You are an expert career coach and interview preparation specialist.",
				DefaultModel:         "llama-3.3-70b-versatile",
				Models:               []string{"llama-3.3-70b-versatile"},
				DefaultTemperature:   0.3,
				NewSessionOnGenerate: true,
			},
			{
				Key:                  "article-generator",
				TabName:              "Article Generator",
				SystemPrompt:         "You are a professional writer and researcher.",
				DefaultModel:         "groq/compound",
				Models:               []string{"groq/compound", "llama-3.3-70b-versatile"},
				DefaultTemperature:   0.3,
				NewSessionOnGenerate: true,
			},
		},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.ChatSession{}, &model.ChatHistory{}))

	conf := testConfig()
	sessionRepo := repository.NewSessionRepository(db)
	stateRepo := repository.NewMemoryStateRepository()
	cache := NewListingCache()

	return &testEnv{
		db:          db,
		sessionRepo: sessionRepo,
		stateRepo:   stateRepo,
		cache:       cache,
		conf:        conf,
		sessions:    NewSessionService(sessionRepo, stateRepo, cache, nil, conf),
		library:     NewLibraryService(sessionRepo, cache, nil, conf),
	}
}

func (e *testEnv) tool(t *testing.T, key string) *config.ToolConfig {
	t.Helper()
	tool, ok := e.conf.ToolByKey(key)
	require.True(t, ok)
	return tool
}

// failingTouchRepo 包装真实仓储，让 updated_at 刷新总是失败。
type failingTouchRepo struct {
	repository.SessionRepository
}

func (r *failingTouchRepo) Touch(sessionID uint, at time.Time) error {
	return errors.New("touch failed")
}

func TestAppendMessageSurvivesTouchFailure(t *testing.T) {
	env := newTestEnv(t)
	tool := env.tool(t, "study-plan")
	ctx := context.Background()

	session, _, err := env.sessions.ResolveActiveSession(ctx, 1, tool)
	require.NoError(t, err)

	// 时间戳刷新失败只影响排序新鲜度，消息本身必须落库
	flaky := NewSessionService(&failingTouchRepo{env.sessionRepo}, env.stateRepo, env.cache, nil, env.conf)
	msg, err := flaky.AppendMessage(ctx, 1, tool, session.ID, RoleUser, "still persisted")
	require.NoError(t, err)
	require.NotNil(t, msg)

	messages, err := env.sessionRepo.MessagesBySession(session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "still persisted", messages[0].Content)
}

func TestResolveCreatesFreshSessionWhenNoneExists(t *testing.T) {
	env := newTestEnv(t)
	tool := env.tool(t, "study-plan")
	ctx := context.Background()

	session, messages, err := env.sessions.ResolveActiveSession(ctx, 1, tool)
	require.NoError(t, err)
	assert.Equal(t, model.PlaceholderTitle, session.SessionTitle)
	assert.Equal(t, "Study Plan", session.TabName)
	assert.Empty(t, messages)

	// 活跃指针已写入状态
	activeID, err := env.stateRepo.GetActiveSession(ctx, 1, tool.Key)
	require.NoError(t, err)
	assert.Equal(t, session.ID, activeID)
}

func TestResolveIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	tool := env.tool(t, "study-plan")
	ctx := context.Background()

	first, _, err := env.sessions.ResolveActiveSession(ctx, 1, tool)
	require.NoError(t, err)
	second, _, err := env.sessions.ResolveActiveSession(ctx, 1, tool)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, env.db.Model(&model.ChatSession{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestResolveResumesLatestWhenPointerMissing(t *testing.T) {
	env := newTestEnv(t)
	tool := env.tool(t, "study-plan")
	ctx := context.Background()

	older := &model.ChatSession{UserID: 1, TabName: tool.TabName, SessionTitle: "Calculus basics"}
	require.NoError(t, env.sessionRepo.CreateSession(older))
	newer := &model.ChatSession{UserID: 1, TabName: tool.TabName, SessionTitle: "Linear Algebra"}
	require.NoError(t, env.sessionRepo.CreateSession(newer))
	require.NoError(t, env.sessionRepo.Touch(newer.ID, time.Now().Add(time.Minute)))
	require.NoError(t, env.sessionRepo.AppendMessage(&model.ChatHistory{
		UserID: 1, SessionID: newer.ID, TabName: tool.TabName, Role: RoleUser, Content: "hello", Timestamp: time.Now(),
	}))

	// 状态为空（模拟重新登录），应回落到最近更新的会话并水合消息
	session, messages, err := env.sessions.ResolveActiveSession(ctx, 1, tool)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, session.ID)
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0].Content)
}

func TestResolveRecoversFromStalePointer(t *testing.T) {
	env := newTestEnv(t)
	tool := env.tool(t, "study-plan")
	ctx := context.Background()

	session, _, err := env.sessions.ResolveActiveSession(ctx, 1, tool)
	require.NoError(t, err)

	// 直接删掉底层行，指针变成悬空引用
	require.NoError(t, env.db.Delete(&model.ChatSession{}, session.ID).Error)

	recovered, _, err := env.sessions.ResolveActiveSession(ctx, 1, tool)
	require.NoError(t, err)
	assert.NotEqual(t, session.ID, recovered.ID)
	assert.Equal(t, model.PlaceholderTitle, recovered.SessionTitle)
}

func TestResolveIsolatedPerTab(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	study, _, err := env.sessions.ResolveActiveSession(ctx, 1, env.tool(t, "study-plan"))
	require.NoError(t, err)
	code, _, err := env.sessions.ResolveActiveSession(ctx, 1, env.tool(t, "code-explainer"))
	require.NoError(t, err)

	assert.NotEqual(t, study.ID, code.ID)
	assert.Equal(t, "Study Plan", study.TabName)
	assert.Equal(t, "Code Explainer", code.TabName)
}

func TestAppendMessageBumpsRecency(t *testing.T) {
	env := newTestEnv(t)
	tool := env.tool(t, "study-plan")
	ctx := context.Background()

	first := &model.ChatSession{UserID: 1, TabName: tool.TabName, SessionTitle: "first"}
	require.NoError(t, env.sessionRepo.CreateSession(first))
	second := &model.ChatSession{UserID: 1, TabName: tool.TabName, SessionTitle: "second"}
	require.NoError(t, env.sessionRepo.CreateSession(second))
	require.NoError(t, env.sessionRepo.Touch(first.ID, time.Now().Add(-2*time.Hour)))
	require.NoError(t, env.sessionRepo.Touch(second.ID, time.Now().Add(-time.Hour)))

	// 向较旧的会话追加消息后，它应成为最近会话
	_, err := env.sessions.AppendMessage(ctx, 1, tool, first.ID, RoleUser, "bump")
	require.NoError(t, err)

	latest, err := env.sessionRepo.FindLatest(1, tool.TabName)
	require.NoError(t, err)
	assert.Equal(t, first.ID, latest.ID)
}

func TestSwitchActiveChecksOwnership(t *testing.T) {
	env := newTestEnv(t)
	tool := env.tool(t, "study-plan")
	ctx := context.Background()

	other := &model.ChatSession{UserID: 2, TabName: tool.TabName, SessionTitle: "not yours"}
	require.NoError(t, env.sessionRepo.CreateSession(other))

	_, _, err := env.sessions.SwitchActive(ctx, 1, tool, other.ID)
	assert.ErrorIs(t, err, ErrNotSessionOwner)

	_, _, err = env.sessions.SwitchActive(ctx, 1, tool, 9999)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSwitchActiveHydratesMessages(t *testing.T) {
	env := newTestEnv(t)
	tool := env.tool(t, "study-plan")
	ctx := context.Background()

	session := &model.ChatSession{UserID: 1, TabName: tool.TabName, SessionTitle: "old chat"}
	require.NoError(t, env.sessionRepo.CreateSession(session))
	base := time.Now()
	require.NoError(t, env.sessionRepo.AppendMessage(&model.ChatHistory{
		UserID: 1, SessionID: session.ID, TabName: tool.TabName, Role: RoleUser, Content: "q", Timestamp: base,
	}))
	require.NoError(t, env.sessionRepo.AppendMessage(&model.ChatHistory{
		UserID: 1, SessionID: session.ID, TabName: tool.TabName, Role: RoleAssistant, Content: "a", Timestamp: base.Add(time.Second),
	}))

	switched, messages, err := env.sessions.SwitchActive(ctx, 1, tool, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, switched.ID)
	require.Len(t, messages, 2)
	assert.Equal(t, []model.ChatTurn{{Role: RoleUser, Content: "q"}, {Role: RoleAssistant, Content: "a"}}, messages)

	activeID, err := env.stateRepo.GetActiveSession(ctx, 1, tool.Key)
	require.NoError(t, err)
	assert.Equal(t, session.ID, activeID)
}

func TestDeleteActiveSessionCreatesReplacement(t *testing.T) {
	env := newTestEnv(t)
	tool := env.tool(t, "study-plan")
	ctx := context.Background()

	session, _, err := env.sessions.ResolveActiveSession(ctx, 1, tool)
	require.NoError(t, err)
	_, err = env.sessions.AppendMessage(ctx, 1, tool, session.ID, RoleUser, "to be deleted")
	require.NoError(t, err)

	replacement, err := env.sessions.Delete(ctx, 1, session.ID)
	require.NoError(t, err)
	require.NotNil(t, replacement)
	assert.NotEqual(t, session.ID, replacement.ID)
	assert.Equal(t, model.PlaceholderTitle, replacement.SessionTitle)

	// 指针指向替代会话，标签页不会悬空
	activeID, err := env.stateRepo.GetActiveSession(ctx, 1, tool.Key)
	require.NoError(t, err)
	assert.Equal(t, replacement.ID, activeID)

	// 原会话与其消息都已删除
	_, err = env.sessionRepo.FindByID(session.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	var count int64
	require.NoError(t, env.db.Model(&model.ChatHistory{}).Where("session_id = ?", session.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDeleteInactiveSessionKeepsActive(t *testing.T) {
	env := newTestEnv(t)
	tool := env.tool(t, "study-plan")
	ctx := context.Background()

	active, _, err := env.sessions.ResolveActiveSession(ctx, 1, tool)
	require.NoError(t, err)

	inactive := &model.ChatSession{UserID: 1, TabName: tool.TabName, SessionTitle: "archived"}
	require.NoError(t, env.sessionRepo.CreateSession(inactive))

	replacement, err := env.sessions.Delete(ctx, 1, inactive.ID)
	require.NoError(t, err)
	assert.Nil(t, replacement)

	activeID, err := env.stateRepo.GetActiveSession(ctx, 1, tool.Key)
	require.NoError(t, err)
	assert.Equal(t, active.ID, activeID)
}

func TestDeleteChecksOwnership(t *testing.T) {
	env := newTestEnv(t)
	tool := env.tool(t, "study-plan")
	ctx := context.Background()

	other := &model.ChatSession{UserID: 2, TabName: tool.TabName, SessionTitle: "not yours"}
	require.NoError(t, env.sessionRepo.CreateSession(other))

	_, err := env.sessions.Delete(ctx, 1, other.ID)
	assert.ErrorIs(t, err, ErrNotSessionOwner)
}

func TestStartSeededSessionSkipsPlaceholder(t *testing.T) {
	env := newTestEnv(t)
	tool := env.tool(t, "study-plan")
	ctx := context.Background()

	session, err := env.sessions.StartSeededSession(ctx, 1, tool, "Study Plan for Linear Algebra")
	require.NoError(t, err)
	assert.Equal(t, "Study Plan for Linear Algebra", session.SessionTitle)
	assert.Equal(t, "Study Plan for Linear Algebra", session.FirstMessage)

	// 种子标题不是占位值，后续消息不会再改写它
	require.NoError(t, env.sessions.PromoteTitleIfNew(ctx, 1, tool, session.ID, "follow-up question"))
	found, err := env.sessionRepo.FindByID(session.ID)
	require.NoError(t, err)
	assert.Equal(t, "Study Plan for Linear Algebra", found.SessionTitle)
}
