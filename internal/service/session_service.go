// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sambitcodes/articulate-v2/internal/config"
	"github.com/sambitcodes/articulate-v2/internal/model"
	"github.com/sambitcodes/articulate-v2/internal/repository"
	"github.com/sambitcodes/articulate-v2/pkg/log"
	"gorm.io/gorm"
)

// ErrSessionNotFound 表示目标会话不存在。
var ErrSessionNotFound = errors.New("session not found")

// ErrNotSessionOwner 表示调用者不是会话的属主。
var ErrNotSessionOwner = errors.New("session does not belong to user")

// ChatIndexer 将消息同步到搜索索引。实现为空值时表示索引被禁用。
type ChatIndexer interface {
	IndexMessage(ctx context.Context, msg *model.ChatHistory) error
	DeleteSession(ctx context.Context, sessionID uint) error
	Search(ctx context.Context, userID uint, tabName, query string, size int) ([]model.EsChatDocument, []float64, error)
}

// SessionService 定义了会话解析与消息追加的业务接口。
// 它维护的不变量是：任何一个 (user, tab) 随时都有一个有效的活跃会话。
type SessionService interface {
	// ResolveActiveSession 保证 (user, tab) 存在活跃会话并返回其水合后的消息列表。
	// 优先读取状态指针；无指针时回落到最近更新的持久会话；完全没有则新建。
	ResolveActiveSession(ctx context.Context, userID uint, tool *config.ToolConfig) (*model.ChatSession, []model.ChatTurn, error)
	// NewChat 显式创建一个占位标题的新会话并置为活跃。
	NewChat(ctx context.Context, userID uint, tool *config.ToolConfig) (*model.ChatSession, error)
	// StartSeededSession 为生成动作强制开启新会话，创建时即写入真实标题与种子文本，
	// 不经过占位标题阶段。
	StartSeededSession(ctx context.Context, userID uint, tool *config.ToolConfig, firstMessage string) (*model.ChatSession, error)
	// AppendMessage 持久化一条消息并刷新会话的 updated_at。
	// updated_at 刷新失败只影响排序新鲜度，按非致命处理。
	AppendMessage(ctx context.Context, userID uint, tool *config.ToolConfig, sessionID uint, role, content string) (*model.ChatHistory, error)
	// PromoteTitleIfNew 在标题仍为占位值时用首条真实输入改写它，至多生效一次。
	PromoteTitleIfNew(ctx context.Context, userID uint, tool *config.ToolConfig, sessionID uint, candidate string) error
	// SwitchActive 切换活跃会话并返回水合后的消息。
	SwitchActive(ctx context.Context, userID uint, tool *config.ToolConfig, sessionID uint) (*model.ChatSession, []model.ChatTurn, error)
	// Delete 删除会话及其消息。若删除的是活跃会话，立即创建替代的新会话，
	// 保证标签页不会指向不存在的会话。返回替代会话（未删除活跃会话时为 nil）。
	Delete(ctx context.Context, userID uint, sessionID uint) (*model.ChatSession, error)
	// HydrateMessages 从持久层重建 {role, content} 消息列表。
	HydrateMessages(sessionID uint) ([]model.ChatTurn, error)
}

type sessionService struct {
	sessionRepo repository.SessionRepository
	stateRepo   repository.StateRepository
	cache       *ListingCache
	indexer     ChatIndexer
	conf        *config.Config
}

// NewSessionService 创建一个新的 SessionService 实例。
// indexer 传 nil 时不做搜索索引。
func NewSessionService(sessionRepo repository.SessionRepository, stateRepo repository.StateRepository, cache *ListingCache, indexer ChatIndexer, conf *config.Config) SessionService {
	return &sessionService{
		sessionRepo: sessionRepo,
		stateRepo:   stateRepo,
		cache:       cache,
		indexer:     indexer,
		conf:        conf,
	}
}

// ResolveActiveSession 解析 (user, tab) 的活跃会话。
func (s *sessionService) ResolveActiveSession(ctx context.Context, userID uint, tool *config.ToolConfig) (*model.ChatSession, []model.ChatTurn, error) {
	// 1. 状态中已有指针则直接使用，避免每次交互都查库
	activeID, err := s.stateRepo.GetActiveSession(ctx, userID, tool.Key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read active session pointer: %w", err)
	}
	if activeID != 0 {
		session, findErr := s.sessionRepo.FindByID(activeID)
		if findErr == nil && session.UserID == userID && session.TabName == tool.TabName {
			messages, hydrateErr := s.HydrateMessages(session.ID)
			if hydrateErr != nil {
				return nil, nil, hydrateErr
			}
			return session, messages, nil
		}
		// 指针指向已消失的会话（例如行被删除而指针清理失败），清掉后重新解析
		_ = s.stateRepo.ClearActiveSession(ctx, userID, tool.Key)
	}

	// 2. 回落到最近更新的持久会话
	session, err := s.sessionRepo.FindLatest(userID, tool.TabName)
	if err == nil {
		if setErr := s.stateRepo.SetActiveSession(ctx, userID, tool.Key, session.ID); setErr != nil {
			log.Errorf("设置活跃会话指针失败: %v", setErr)
		}
		messages, hydrateErr := s.HydrateMessages(session.ID)
		if hydrateErr != nil {
			return nil, nil, hydrateErr
		}
		return session, messages, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, fmt.Errorf("failed to query latest session: %w", err)
	}

	// 3. 完全没有历史会话时新建一个空会话
	fresh, err := s.NewChat(ctx, userID, tool)
	if err != nil {
		return nil, nil, err
	}
	return fresh, []model.ChatTurn{}, nil
}

// NewChat 创建占位标题的新会话并置为活跃。
func (s *sessionService) NewChat(ctx context.Context, userID uint, tool *config.ToolConfig) (*model.ChatSession, error) {
	session := &model.ChatSession{
		UserID:       userID,
		TabName:      tool.TabName,
		SessionTitle: model.PlaceholderTitle,
	}
	if err := s.sessionRepo.CreateSession(session); err != nil {
		// 创建失败必须向上抛出：后续的消息追加不允许落在不存在的会话上
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}
	if err := s.stateRepo.SetActiveSession(ctx, userID, tool.Key, session.ID); err != nil {
		log.Errorf("设置活跃会话指针失败: %v", err)
	}
	s.cache.Invalidate(listingKeys(userID, tool.Key)...)
	return session, nil
}

// StartSeededSession 为生成动作创建带真实标题的新会话。
func (s *sessionService) StartSeededSession(ctx context.Context, userID uint, tool *config.ToolConfig, firstMessage string) (*model.ChatSession, error) {
	title := model.PlaceholderTitle
	if firstMessage != "" {
		title = model.TruncateTitle(firstMessage)
	}
	session := &model.ChatSession{
		UserID:       userID,
		TabName:      tool.TabName,
		SessionTitle: title,
		FirstMessage: firstMessage,
	}
	if err := s.sessionRepo.CreateSession(session); err != nil {
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}
	if err := s.stateRepo.SetActiveSession(ctx, userID, tool.Key, session.ID); err != nil {
		log.Errorf("设置活跃会话指针失败: %v", err)
	}
	s.cache.Invalidate(listingKeys(userID, tool.Key)...)
	return session, nil
}

// AppendMessage 持久化一条消息并刷新会话的排序时间戳。
func (s *sessionService) AppendMessage(ctx context.Context, userID uint, tool *config.ToolConfig, sessionID uint, role, content string) (*model.ChatHistory, error) {
	msg := &model.ChatHistory{
		UserID:    userID,
		SessionID: sessionID,
		TabName:   tool.TabName,
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
	if err := s.sessionRepo.AppendMessage(msg); err != nil {
		return nil, fmt.Errorf("failed to persist chat message: %w", err)
	}

	// 消息已落库；时间戳刷新失败只会让列表排序暂时变旧，不构成数据丢失
	if err := s.sessionRepo.Touch(sessionID, msg.Timestamp); err != nil {
		log.Errorf("刷新会话 updated_at 失败: sessionID=%d, err=%v", sessionID, err)
	}

	if s.indexer != nil {
		if err := s.indexer.IndexMessage(ctx, msg); err != nil {
			log.Errorf("索引聊天消息失败: messageID=%d, err=%v", msg.ID, err)
		}
	}

	s.cache.Invalidate(listingKeys(userID, tool.Key)...)
	return msg, nil
}

// PromoteTitleIfNew 用首条真实输入改写占位标题。
func (s *sessionService) PromoteTitleIfNew(ctx context.Context, userID uint, tool *config.ToolConfig, sessionID uint, candidate string) error {
	promoted, err := s.sessionRepo.PromoteTitleIfNew(sessionID, candidate)
	if err != nil {
		return fmt.Errorf("failed to promote session title: %w", err)
	}
	if promoted {
		s.cache.Invalidate(listingKeys(userID, tool.Key)...)
	}
	return nil
}

// SwitchActive 切换活跃会话，复用解析路径的水合逻辑。
func (s *sessionService) SwitchActive(ctx context.Context, userID uint, tool *config.ToolConfig, sessionID uint) (*model.ChatSession, []model.ChatTurn, error) {
	session, err := s.sessionRepo.FindByID(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, err
	}
	if session.UserID != userID {
		return nil, nil, ErrNotSessionOwner
	}
	if err := s.stateRepo.SetActiveSession(ctx, userID, tool.Key, session.ID); err != nil {
		log.Errorf("设置活跃会话指针失败: %v", err)
	}
	messages, err := s.HydrateMessages(session.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, messages, nil
}

// Delete 删除会话；活跃会话被删除时立即创建替代会话。
func (s *sessionService) Delete(ctx context.Context, userID uint, sessionID uint) (*model.ChatSession, error) {
	session, err := s.sessionRepo.FindByID(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if session.UserID != userID {
		return nil, ErrNotSessionOwner
	}

	tool, ok := s.conf.ToolByTabName(session.TabName)
	if !ok {
		return nil, fmt.Errorf("unknown tab name: %s", session.TabName)
	}

	if err := s.sessionRepo.DeleteSession(sessionID); err != nil {
		return nil, fmt.Errorf("failed to delete session: %w", err)
	}

	if s.indexer != nil {
		if err := s.indexer.DeleteSession(ctx, sessionID); err != nil {
			log.Errorf("删除会话索引文档失败: sessionID=%d, err=%v", sessionID, err)
		}
	}

	s.cache.Invalidate(listingKeys(userID, tool.Key)...)

	// 删除的不是活跃会话时，活跃状态保持不变
	activeID, err := s.stateRepo.GetActiveSession(ctx, userID, tool.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to read active session pointer: %w", err)
	}
	if activeID != sessionID {
		return nil, nil
	}

	// 活跃会话被删除：清空指针并立即补一个空会话，标签页永远不会悬空
	if err := s.stateRepo.ClearActiveSession(ctx, userID, tool.Key); err != nil {
		log.Errorf("清理活跃会话指针失败: %v", err)
	}
	replacement, err := s.NewChat(ctx, userID, tool)
	if err != nil {
		return nil, err
	}
	return replacement, nil
}

// HydrateMessages 从持久层重建消息列表。重复调用结果一致。
func (s *sessionService) HydrateMessages(sessionID uint) ([]model.ChatTurn, error) {
	rows, err := s.sessionRepo.MessagesBySession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session messages: %w", err)
	}
	turns := make([]model.ChatTurn, 0, len(rows))
	for _, row := range rows {
		turns = append(turns, model.ChatTurn{Role: row.Role, Content: row.Content})
	}
	return turns, nil
}
