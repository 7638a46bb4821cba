// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// PlaceholderTitle 是新会话的占位标题，首条真实用户消息会将其改写一次。
const PlaceholderTitle = "New Chat"

// TitleMaxLen 是会话标题的截断长度，超出部分以省略号结尾。
const TitleMaxLen = 50

// ChatSession 对应于数据库中的 'chat_sessions' 表。
// 每一行是一个用户在某个工具标签页下的一条会话线程。
type ChatSession struct {
	ID     uint `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID uint `gorm:"index;not null" json:"userId"`
	// TabName 是会话所属的工具标签页，例如 "Code Explainer"。
	TabName      string `gorm:"type:varchar(100);index;not null" json:"tabName"`
	SessionTitle string `gorm:"type:varchar(255);not null" json:"sessionTitle"`
	// FirstMessage 是会话的种子文本，创建后不再变化。
	FirstMessage string    `gorm:"type:text" json:"firstMessage"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	// UpdatedAt 在每次追加消息时被刷新，驱动会话列表的最近排序。
	UpdatedAt time.Time `gorm:"index" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ChatSession) TableName() string {
	return "chat_sessions"
}

// ChatHistory 对应于数据库中的 'chat_history' 表，是会话的追加式消息日志。
// tab_name 为冗余字段，保留用于按标签页的历史查询。
type ChatHistory struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"userId"`
	SessionID uint      `gorm:"index;not null" json:"sessionId"`
	TabName   string    `gorm:"type:varchar(100);not null" json:"tabName"`
	Role      string    `gorm:"type:varchar(20);not null" json:"role"` // "user" 或 "assistant"
	Content   string    `gorm:"type:text;not null" json:"content"`
	Timestamp time.Time `gorm:"autoCreateTime;index" json:"timestamp"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ChatHistory) TableName() string {
	return "chat_history"
}

// ChatTurn 是内存中的 {role, content} 消息对，由持久化行水合而来。
// 发送给模型时不携带时间戳。
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SessionSummary 是会话列表接口的展示结构，时间按本地格式输出。
type SessionSummary struct {
	ID           uint      `json:"id"`
	TabName      string    `json:"tabName"`
	SessionTitle string    `json:"sessionTitle"`
	CreatedAt    LocalTime `json:"createdAt"`
	UpdatedAt    LocalTime `json:"updatedAt"`
}

// TruncateTitle 按标题上限截断文本，超长时追加省略号。
func TruncateTitle(text string) string {
	runes := []rune(text)
	if len(runes) > TitleMaxLen {
		return string(runes[:TitleMaxLen]) + "..."
	}
	return text
}
