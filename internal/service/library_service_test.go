package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sambitcodes/articulate-v2/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListSessionsServesFromCache(t *testing.T) {
	env := newTestEnv(t)
	tool := env.tool(t, "study-plan")
	ctx := context.Background()

	session, _, err := env.sessions.ResolveActiveSession(ctx, 1, tool)
	require.NoError(t, err)

	first, err := env.library.ListSessions(ctx, 1, tool)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, session.ID, first[0].ID)

	// 绕开服务层直接改库：缓存命中时列表看不到这次变化
	require.NoError(t, env.db.Model(&model.ChatSession{}).
		Where("id = ?", session.ID).
		Update("session_title", "changed behind the cache").Error)

	cached, err := env.library.ListSessions(ctx, 1, tool)
	require.NoError(t, err)
	assert.Equal(t, first[0].SessionTitle, cached[0].SessionTitle)
}

func TestAppendMessageInvalidatesListing(t *testing.T) {
	env := newTestEnv(t)
	tool := env.tool(t, "study-plan")
	ctx := context.Background()

	session, _, err := env.sessions.ResolveActiveSession(ctx, 1, tool)
	require.NoError(t, err)

	listed, err := env.library.ListSessions(ctx, 1, tool)
	require.NoError(t, err)
	assert.Equal(t, model.PlaceholderTitle, listed[0].SessionTitle)

	// 写路径使缓存失效，改写后的标题立即可见
	require.NoError(t, env.sessions.PromoteTitleIfNew(ctx, 1, tool, session.ID, "Plan my week"))
	_, err = env.sessions.AppendMessage(ctx, 1, tool, session.ID, RoleUser, "Plan my week")
	require.NoError(t, err)

	listed, err = env.library.ListSessions(ctx, 1, tool)
	require.NoError(t, err)
	assert.Equal(t, "Plan my week", listed[0].SessionTitle)
}

func TestRenameSessionUpdatesListing(t *testing.T) {
	env := newTestEnv(t)
	tool := env.tool(t, "study-plan")
	ctx := context.Background()

	session, _, err := env.sessions.ResolveActiveSession(ctx, 1, tool)
	require.NoError(t, err)

	_, err = env.library.ListSessions(ctx, 1, tool)
	require.NoError(t, err)

	require.NoError(t, env.library.RenameSession(ctx, 1, session.ID, "My Algebra Plan"))

	listed, err := env.library.ListSessions(ctx, 1, tool)
	require.NoError(t, err)
	assert.Equal(t, "My Algebra Plan", listed[0].SessionTitle)
}

func TestRenameSessionTruncatesLongTitle(t *testing.T) {
	env := newTestEnv(t)
	tool := env.tool(t, "study-plan")
	ctx := context.Background()

	session, _, err := env.sessions.ResolveActiveSession(ctx, 1, tool)
	require.NoError(t, err)

	long := strings.Repeat("t", model.TitleMaxLen+20)
	require.NoError(t, env.library.RenameSession(ctx, 1, session.ID, long))

	found, err := env.sessionRepo.FindByID(session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TruncateTitle(long), found.SessionTitle)
	assert.Len(t, []rune(found.SessionTitle), model.TitleMaxLen+3)
}

func TestRenameSessionChecksOwnership(t *testing.T) {
	env := newTestEnv(t)
	tool := env.tool(t, "study-plan")
	ctx := context.Background()

	other := &model.ChatSession{UserID: 2, TabName: tool.TabName, SessionTitle: model.PlaceholderTitle}
	require.NoError(t, env.sessionRepo.CreateSession(other))

	err := env.library.RenameSession(ctx, 1, other.ID, "stolen")
	assert.ErrorIs(t, err, ErrNotSessionOwner)

	err = env.library.RenameSession(ctx, 1, 9999, "ghost")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestListAllSessionsSpansTabs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	study, _, err := env.sessions.ResolveActiveSession(ctx, 1, env.tool(t, "study-plan"))
	require.NoError(t, err)
	code, _, err := env.sessions.ResolveActiveSession(ctx, 1, env.tool(t, "code-explainer"))
	require.NoError(t, err)
	require.NoError(t, env.sessionRepo.Touch(code.ID, time.Now().Add(time.Minute)))

	// 其他用户的会话不出现在列表里
	foreign := &model.ChatSession{UserID: 2, TabName: "Study Plan", SessionTitle: model.PlaceholderTitle}
	require.NoError(t, env.sessionRepo.CreateSession(foreign))

	all, err := env.library.ListAllSessions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, code.ID, all[0].ID)
	assert.Equal(t, study.ID, all[1].ID)
}

func TestDeleteSessionInvalidatesListing(t *testing.T) {
	env := newTestEnv(t)
	tool := env.tool(t, "study-plan")
	ctx := context.Background()

	session, _, err := env.sessions.ResolveActiveSession(ctx, 1, tool)
	require.NoError(t, err)

	listed, err := env.library.ListSessions(ctx, 1, tool)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	replacement, err := env.sessions.Delete(ctx, 1, session.ID)
	require.NoError(t, err)
	require.NotNil(t, replacement)

	listed, err = env.library.ListSessions(ctx, 1, tool)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, replacement.ID, listed[0].ID)
}

func TestSearchWithoutIndexerFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.library.Search(ctx, 1, nil, "algebra")
	assert.Error(t, err)
}
