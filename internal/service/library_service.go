package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sambitcodes/articulate-v2/internal/config"
	"github.com/sambitcodes/articulate-v2/internal/model"
	"github.com/sambitcodes/articulate-v2/internal/repository"
	"gorm.io/gorm"
)

// DefaultSessionListLimit 是会话列表的默认返回条数。
const DefaultSessionListLimit = 10

// searchResultSize 是聊天记录检索返回的最大条数。
const searchResultSize = 20

// ListingCache 缓存会话列表的查询结果。
// 任何改变列表内容或顺序的写操作都必须调用 Invalidate。
type ListingCache struct {
	c *gocache.Cache
}

// NewListingCache 创建一个会话列表缓存，条目 5 分钟过期。
func NewListingCache() *ListingCache {
	return &ListingCache{c: gocache.New(5*time.Minute, 10*time.Minute)}
}

// Get 返回缓存的会话列表，未命中时第二个返回值为 false。
func (lc *ListingCache) Get(key string) ([]model.SessionSummary, bool) {
	if lc == nil {
		return nil, false
	}
	v, ok := lc.c.Get(key)
	if !ok {
		return nil, false
	}
	summaries, ok := v.([]model.SessionSummary)
	return summaries, ok
}

// Set 写入一个会话列表条目。
func (lc *ListingCache) Set(key string, summaries []model.SessionSummary) {
	if lc == nil {
		return
	}
	lc.c.Set(key, summaries, gocache.DefaultExpiration)
}

// Invalidate 删除给定的缓存键。
func (lc *ListingCache) Invalidate(keys ...string) {
	if lc == nil {
		return
	}
	for _, key := range keys {
		lc.c.Delete(key)
	}
}

// listingKeys 返回某次写操作需要失效的全部缓存键：
// 该标签页的列表，以及跨标签页的汇总列表。
func listingKeys(userID uint, toolKey string) []string {
	return []string{
		fmt.Sprintf("sessions:%d:%s", userID, toolKey),
		fmt.Sprintf("sessions:%d:all", userID),
	}
}

// LibraryService 提供历史会话的列表、改名与检索能力。
type LibraryService interface {
	// ListSessions 返回某标签页下最近的会话摘要，带缓存。
	ListSessions(ctx context.Context, userID uint, tool *config.ToolConfig) ([]model.SessionSummary, error)
	// ListAllSessions 返回用户全部标签页的最近会话摘要，带缓存。
	ListAllSessions(ctx context.Context, userID uint) ([]model.SessionSummary, error)
	// RenameSession 改写会话标题。
	RenameSession(ctx context.Context, userID uint, sessionID uint, title string) error
	// Search 在用户的聊天记录中做全文检索，tool 为 nil 时跨标签页搜索。
	Search(ctx context.Context, userID uint, tool *config.ToolConfig, query string) ([]model.SearchHitDTO, error)
}

type libraryService struct {
	sessionRepo repository.SessionRepository
	cache       *ListingCache
	indexer     ChatIndexer
	conf        *config.Config
}

// NewLibraryService 创建一个新的 LibraryService 实例。
func NewLibraryService(sessionRepo repository.SessionRepository, cache *ListingCache, indexer ChatIndexer, conf *config.Config) LibraryService {
	return &libraryService{
		sessionRepo: sessionRepo,
		cache:       cache,
		indexer:     indexer,
		conf:        conf,
	}
}

// ListSessions 返回某标签页下最近的会话摘要。
func (s *libraryService) ListSessions(ctx context.Context, userID uint, tool *config.ToolConfig) ([]model.SessionSummary, error) {
	key := fmt.Sprintf("sessions:%d:%s", userID, tool.Key)
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	sessions, err := s.sessionRepo.ListByUserAndTab(userID, tool.TabName, DefaultSessionListLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	summaries := toSummaries(sessions)
	s.cache.Set(key, summaries)
	return summaries, nil
}

// ListAllSessions 返回用户全部标签页的最近会话摘要。
func (s *libraryService) ListAllSessions(ctx context.Context, userID uint) ([]model.SessionSummary, error) {
	key := fmt.Sprintf("sessions:%d:all", userID)
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	sessions, err := s.sessionRepo.ListByUser(userID, DefaultSessionListLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	summaries := toSummaries(sessions)
	s.cache.Set(key, summaries)
	return summaries, nil
}

// RenameSession 改写会话标题并使列表缓存失效。
func (s *libraryService) RenameSession(ctx context.Context, userID uint, sessionID uint, title string) error {
	session, err := s.sessionRepo.FindByID(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	if session.UserID != userID {
		return ErrNotSessionOwner
	}

	tool, ok := s.conf.ToolByTabName(session.TabName)
	if !ok {
		return fmt.Errorf("unknown tab name: %s", session.TabName)
	}

	if err := s.sessionRepo.UpdateTitle(sessionID, model.TruncateTitle(title)); err != nil {
		return fmt.Errorf("failed to rename session: %w", err)
	}
	s.cache.Invalidate(listingKeys(userID, tool.Key)...)
	return nil
}

// Search 在 Elasticsearch 中检索聊天记录，命中后回表补会话标题。
func (s *libraryService) Search(ctx context.Context, userID uint, tool *config.ToolConfig, query string) ([]model.SearchHitDTO, error) {
	if s.indexer == nil {
		return nil, errors.New("search is not enabled")
	}

	tabName := ""
	if tool != nil {
		tabName = tool.TabName
	}
	docs, scores, err := s.indexer.Search(ctx, userID, tabName, query, searchResultSize)
	if err != nil {
		return nil, fmt.Errorf("failed to search chat history: %w", err)
	}

	// 会话标题不入索引，命中后按会话回表一次
	titles := make(map[uint]string, len(docs))
	hits := make([]model.SearchHitDTO, 0, len(docs))
	for i, doc := range docs {
		title, ok := titles[doc.SessionID]
		if !ok {
			session, findErr := s.sessionRepo.FindByID(doc.SessionID)
			if findErr != nil {
				// 会话已删除但索引清理滞后，跳过这条命中
				continue
			}
			title = session.SessionTitle
			titles[doc.SessionID] = title
		}
		hits = append(hits, model.SearchHitDTO{
			SessionID:    doc.SessionID,
			SessionTitle: title,
			TabName:      doc.TabName,
			Role:         doc.Role,
			Snippet:      doc.Content,
			Score:        scores[i],
		})
	}
	return hits, nil
}

// toSummaries 将会话行转换为列表展示用的摘要。
func toSummaries(sessions []model.ChatSession) []model.SessionSummary {
	summaries := make([]model.SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		summaries = append(summaries, model.SessionSummary{
			ID:           s.ID,
			TabName:      s.TabName,
			SessionTitle: s.SessionTitle,
			CreatedAt:    model.LocalTime(s.CreatedAt),
			UpdatedAt:    model.LocalTime(s.UpdatedAt),
		})
	}
	return summaries
}
