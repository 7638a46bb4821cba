// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// SearchHitDTO 定义了聊天记录搜索返回给前端的结果结构。
type SearchHitDTO struct {
	SessionID    uint    `json:"sessionId"`
	SessionTitle string  `json:"sessionTitle"`
	TabName      string  `json:"tabName"`
	Role         string  `json:"role"`
	Snippet      string  `json:"snippet"`
	Score        float64 `json:"score"`
}

// EsChatDocument 代表存储在 Elasticsearch 聊天索引中的文档结构。
// 文档 ID 使用消息行的自增 ID，便于按会话删除。
type EsChatDocument struct {
	MessageID uint      `json:"message_id"`
	UserID    uint      `json:"user_id"`
	SessionID uint      `json:"session_id"`
	TabName   string    `json:"tab_name"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
