package repository

import (
	"testing"
	"time"

	"github.com/sambitcodes/articulate-v2/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB 创建一个内存 SQLite 数据库并完成表迁移。
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	// 内存库对每个连接独立，限制连接池为单连接
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.ChatSession{}, &model.ChatHistory{}, &model.SourceFile{}))
	return db
}

func TestCreateAndFindLatest(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))

	first := &model.ChatSession{UserID: 1, TabName: "Study Plan", SessionTitle: model.PlaceholderTitle}
	require.NoError(t, repo.CreateSession(first))

	second := &model.ChatSession{UserID: 1, TabName: "Study Plan", SessionTitle: model.PlaceholderTitle}
	require.NoError(t, repo.CreateSession(second))
	require.NoError(t, repo.Touch(second.ID, time.Now().Add(time.Minute)))

	latest, err := repo.FindLatest(1, "Study Plan")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
}

func TestFindLatestTieBreaksByID(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))

	at := time.Now().Truncate(time.Second)
	older := &model.ChatSession{UserID: 1, TabName: "CV Interview", SessionTitle: model.PlaceholderTitle, UpdatedAt: at}
	require.NoError(t, repo.CreateSession(older))
	newer := &model.ChatSession{UserID: 1, TabName: "CV Interview", SessionTitle: model.PlaceholderTitle, UpdatedAt: at}
	require.NoError(t, repo.CreateSession(newer))

	latest, err := repo.FindLatest(1, "CV Interview")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)
}

func TestFindLatestScopedToUserAndTab(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))

	mine := &model.ChatSession{UserID: 1, TabName: "Study Plan", SessionTitle: model.PlaceholderTitle}
	require.NoError(t, repo.CreateSession(mine))
	otherTab := &model.ChatSession{UserID: 1, TabName: "CV Interview", SessionTitle: model.PlaceholderTitle}
	require.NoError(t, repo.CreateSession(otherTab))
	otherUser := &model.ChatSession{UserID: 2, TabName: "Study Plan", SessionTitle: model.PlaceholderTitle}
	require.NoError(t, repo.CreateSession(otherUser))
	require.NoError(t, repo.Touch(otherTab.ID, time.Now().Add(time.Hour)))
	require.NoError(t, repo.Touch(otherUser.ID, time.Now().Add(time.Hour)))

	latest, err := repo.FindLatest(1, "Study Plan")
	require.NoError(t, err)
	assert.Equal(t, mine.ID, latest.ID)

	_, err = repo.FindLatest(3, "Study Plan")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestPromoteTitleIfNewOnlyOnce(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))

	session := &model.ChatSession{UserID: 1, TabName: "Study Plan", SessionTitle: model.PlaceholderTitle}
	require.NoError(t, repo.CreateSession(session))

	promoted, err := repo.PromoteTitleIfNew(session.ID, "Help me learn Linear Algebra")
	require.NoError(t, err)
	assert.True(t, promoted)

	found, err := repo.FindByID(session.ID)
	require.NoError(t, err)
	assert.Equal(t, "Help me learn Linear Algebra", found.SessionTitle)

	// 第二条消息不再改写标题
	promoted, err = repo.PromoteTitleIfNew(session.ID, "Another message")
	require.NoError(t, err)
	assert.False(t, promoted)

	found, err = repo.FindByID(session.ID)
	require.NoError(t, err)
	assert.Equal(t, "Help me learn Linear Algebra", found.SessionTitle)
}

func TestPromoteTitleTruncatesLongCandidate(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))

	session := &model.ChatSession{UserID: 1, TabName: "Study Plan", SessionTitle: model.PlaceholderTitle}
	require.NoError(t, repo.CreateSession(session))

	long := "This is a very long first message that definitely exceeds the fifty character limit for titles"
	promoted, err := repo.PromoteTitleIfNew(session.ID, long)
	require.NoError(t, err)
	assert.True(t, promoted)

	found, err := repo.FindByID(session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TruncateTitle(long), found.SessionTitle)
	assert.Len(t, []rune(found.SessionTitle), model.TitleMaxLen+3)
}

func TestMessagesBySessionOrdering(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))

	session := &model.ChatSession{UserID: 1, TabName: "Code Explainer", SessionTitle: model.PlaceholderTitle}
	require.NoError(t, repo.CreateSession(session))

	base := time.Now().Truncate(time.Second)
	require.NoError(t, repo.AppendMessage(&model.ChatHistory{
		UserID: 1, SessionID: session.ID, TabName: "Code Explainer", Role: "user", Content: "first", Timestamp: base,
	}))
	// 同一时间戳的两条消息按插入顺序（id 升序）返回
	require.NoError(t, repo.AppendMessage(&model.ChatHistory{
		UserID: 1, SessionID: session.ID, TabName: "Code Explainer", Role: "assistant", Content: "second", Timestamp: base,
	}))
	require.NoError(t, repo.AppendMessage(&model.ChatHistory{
		UserID: 1, SessionID: session.ID, TabName: "Code Explainer", Role: "user", Content: "third", Timestamp: base.Add(time.Second),
	}))

	messages, err := repo.MessagesBySession(session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "first", messages[0].Content)
	assert.Equal(t, "second", messages[1].Content)
	assert.Equal(t, "third", messages[2].Content)
}

func TestDeleteSessionRemovesMessages(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)

	session := &model.ChatSession{UserID: 1, TabName: "Study Plan", SessionTitle: model.PlaceholderTitle}
	require.NoError(t, repo.CreateSession(session))
	require.NoError(t, repo.AppendMessage(&model.ChatHistory{
		UserID: 1, SessionID: session.ID, TabName: "Study Plan", Role: "user", Content: "hello", Timestamp: time.Now(),
	}))

	require.NoError(t, repo.DeleteSession(session.ID))

	_, err := repo.FindByID(session.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var count int64
	require.NoError(t, db.Model(&model.ChatHistory{}).Where("session_id = ?", session.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestListByUserAndTabLimit(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))

	base := time.Now()
	for i := 0; i < 12; i++ {
		s := &model.ChatSession{
			UserID:       1,
			TabName:      "Article Generator",
			SessionTitle: model.PlaceholderTitle,
			UpdatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, repo.CreateSession(s))
	}

	sessions, err := repo.ListByUserAndTab(1, "Article Generator", 10)
	require.NoError(t, err)
	require.Len(t, sessions, 10)
	// 最近更新的排在最前
	assert.True(t, sessions[0].UpdatedAt.After(sessions[9].UpdatedAt))
}
