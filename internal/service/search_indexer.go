package service

import (
	"context"

	"github.com/sambitcodes/articulate-v2/internal/model"
	"github.com/sambitcodes/articulate-v2/pkg/es"
)

// esChatIndexer 是 ChatIndexer 的 Elasticsearch 实现。
type esChatIndexer struct {
	indexName string
}

// NewEsChatIndexer 创建一个基于 Elasticsearch 的聊天消息索引器。
func NewEsChatIndexer(indexName string) ChatIndexer {
	return &esChatIndexer{indexName: indexName}
}

func (e *esChatIndexer) IndexMessage(ctx context.Context, msg *model.ChatHistory) error {
	doc := model.EsChatDocument{
		MessageID: msg.ID,
		UserID:    msg.UserID,
		SessionID: msg.SessionID,
		TabName:   msg.TabName,
		Role:      msg.Role,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
	}
	return es.IndexChatMessage(ctx, e.indexName, doc)
}

func (e *esChatIndexer) DeleteSession(ctx context.Context, sessionID uint) error {
	return es.DeleteBySession(ctx, e.indexName, sessionID)
}

func (e *esChatIndexer) Search(ctx context.Context, userID uint, tabName, query string, size int) ([]model.EsChatDocument, []float64, error) {
	return es.SearchChatHistory(ctx, e.indexName, userID, tabName, query, size)
}
