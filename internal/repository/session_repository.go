// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"time"

	"github.com/sambitcodes/articulate-v2/internal/model"
	"gorm.io/gorm"
)

// SessionRepository 接口定义了会话与消息日志的持久化操作。
type SessionRepository interface {
	CreateSession(session *model.ChatSession) error
	FindByID(sessionID uint) (*model.ChatSession, error)
	// FindLatest 返回 (user, tab) 下 updated_at 最新的会话；同刻以 id 较大者优先。
	// 不存在时返回 gorm.ErrRecordNotFound。
	FindLatest(userID uint, tabName string) (*model.ChatSession, error)
	// ListByUserAndTab 按 updated_at 倒序返回某标签页下最近的会话。
	ListByUserAndTab(userID uint, tabName string, limit int) ([]model.ChatSession, error)
	// ListByUser 按 updated_at 倒序返回用户所有标签页的最近会话。
	ListByUser(userID uint, limit int) ([]model.ChatSession, error)
	// UpdateTitle 无条件改写标题并刷新 updated_at。
	UpdateTitle(sessionID uint, title string) error
	// PromoteTitleIfNew 仅当标题仍为占位值时改写为候选文本的截断形式。
	// 返回是否发生了改写。
	PromoteTitleIfNew(sessionID uint, candidate string) (bool, error)
	// Touch 将会话的 updated_at 刷新为给定时间。
	Touch(sessionID uint, at time.Time) error
	// AppendMessage 追加一条消息行。updated_at 的刷新由调用方负责。
	AppendMessage(msg *model.ChatHistory) error
	// MessagesBySession 按时间升序返回会话的全部消息。
	MessagesBySession(sessionID uint) ([]model.ChatHistory, error)
	// DeleteSession 删除会话及其全部消息。
	DeleteSession(sessionID uint) error
}

// sessionRepository 是 SessionRepository 接口的 GORM 实现。
type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository 创建一个新的 SessionRepository 实例。
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

// CreateSession 在数据库中创建一个新的会话记录。
func (r *sessionRepository) CreateSession(session *model.ChatSession) error {
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = time.Now()
	}
	return r.db.Create(session).Error
}

// FindByID 根据会话 ID 查找一个会话。
func (r *sessionRepository) FindByID(sessionID uint) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.First(&session, sessionID).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// FindLatest 返回 (user, tab) 下最近活跃的会话。
func (r *sessionRepository) FindLatest(userID uint, tabName string) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.Where("user_id = ? AND tab_name = ?", userID, tabName).
		Order("updated_at DESC, id DESC").
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ListByUserAndTab 按最近活跃顺序返回某标签页下的会话。
func (r *sessionRepository) ListByUserAndTab(userID uint, tabName string, limit int) ([]model.ChatSession, error) {
	var sessions []model.ChatSession
	err := r.db.Where("user_id = ? AND tab_name = ?", userID, tabName).
		Order("updated_at DESC, id DESC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

// ListByUser 按最近活跃顺序返回用户的全部会话。
func (r *sessionRepository) ListByUser(userID uint, limit int) ([]model.ChatSession, error) {
	var sessions []model.ChatSession
	err := r.db.Where("user_id = ?", userID).
		Order("updated_at DESC, id DESC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

// UpdateTitle 改写会话标题并刷新 updated_at。
func (r *sessionRepository) UpdateTitle(sessionID uint, title string) error {
	return r.db.Model(&model.ChatSession{}).
		Where("id = ?", sessionID).
		Updates(map[string]interface{}{
			"session_title": title,
			"updated_at":    time.Now(),
		}).Error
}

// PromoteTitleIfNew 只在标题仍为占位值时改写一次。
// 条件写在 WHERE 中，重复调用自然成为空操作。
func (r *sessionRepository) PromoteTitleIfNew(sessionID uint, candidate string) (bool, error) {
	result := r.db.Model(&model.ChatSession{}).
		Where("id = ? AND session_title = ?", sessionID, model.PlaceholderTitle).
		Updates(map[string]interface{}{
			"session_title": model.TruncateTitle(candidate),
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Touch 将会话的 updated_at 刷新为给定时间。
func (r *sessionRepository) Touch(sessionID uint, at time.Time) error {
	return r.db.Model(&model.ChatSession{}).
		Where("id = ?", sessionID).
		Update("updated_at", at).Error
}

// AppendMessage 追加一条消息行。
func (r *sessionRepository) AppendMessage(msg *model.ChatHistory) error {
	return r.db.Create(msg).Error
}

// MessagesBySession 按时间升序返回会话的全部消息，时间相同按 id 升序。
func (r *sessionRepository) MessagesBySession(sessionID uint) ([]model.ChatHistory, error) {
	var messages []model.ChatHistory
	err := r.db.Where("session_id = ?", sessionID).
		Order("timestamp ASC, id ASC").
		Find(&messages).Error
	return messages, err
}

// DeleteSession 先删除消息再删除会话，与原有两条语句的级联语义一致。
func (r *sessionRepository) DeleteSession(sessionID uint) error {
	if err := r.db.Where("session_id = ?", sessionID).Delete(&model.ChatHistory{}).Error; err != nil {
		return err
	}
	return r.db.Delete(&model.ChatSession{}, sessionID).Error
}
