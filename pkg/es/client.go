// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/sambitcodes/articulate-v2/internal/config"
	"github.com/sambitcodes/articulate-v2/internal/model"
	"github.com/sambitcodes/articulate-v2/pkg/log"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端
func InitES(esCfg config.ElasticsearchConfig) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(esCfg.IndexName)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(indexName string) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	// 如果 res.StatusCode 是 200，说明索引已存在
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	// 如果 res.StatusCode 是 404，说明索引不存在，需要创建
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	// 聊天记录索引：按消息一行一文档，content 做全文检索
	mapping := `{
		"mappings": {
			"properties": {
				"message_id": { "type": "long" },
				"user_id": { "type": "long" },
				"session_id": { "type": "long" },
				"tab_name": { "type": "keyword" },
				"role": { "type": "keyword" },
				"content": { "type": "text" },
				"timestamp": { "type": "date" }
			}
		}
	}`

	res, err = ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(mapping)),
	)

	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// IndexChatMessage 将单条聊天消息索引到 Elasticsearch。
func IndexChatMessage(ctx context.Context, indexName string, doc model.EsChatDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: strconv.FormatUint(uint64(doc.MessageID), 10),
		Body:       bytes.NewReader(docBytes),
	}

	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引聊天消息到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index chat message")
	}

	return nil
}

// SearchChatHistory 在用户的聊天记录中做全文检索，可按标签页过滤。
func SearchChatHistory(ctx context.Context, indexName string, userID uint, tabName, query string, size int) ([]model.EsChatDocument, []float64, error) {
	filters := []map[string]interface{}{
		{"term": map[string]interface{}{"user_id": userID}},
	}
	if tabName != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"tab_name": tabName},
		})
	}

	body := map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"match": map[string]interface{}{"content": query},
				},
				"filter": filters,
			},
		},
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, nil, err
	}

	res, err := ESClient.Search(
		ESClient.Search.WithContext(ctx),
		ESClient.Search.WithIndex(indexName),
		ESClient.Search.WithBody(bytes.NewReader(bodyBytes)),
	)
	if err != nil {
		return nil, nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("Elasticsearch 搜索出错: %s", res.String())
		return nil, nil, errors.New("failed to search chat history")
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Score  float64              `json:"_score"`
				Source model.EsChatDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, nil, err
	}

	docs := make([]model.EsChatDocument, 0, len(parsed.Hits.Hits))
	scores := make([]float64, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		docs = append(docs, h.Source)
		scores = append(scores, h.Score)
	}
	return docs, scores, nil
}

// DeleteBySession 删除某个会话下的全部索引文档，用于会话级联删除。
func DeleteBySession(ctx context.Context, indexName string, sessionID uint) error {
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"session_id": sessionID},
		},
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return err
	}

	res, err := ESClient.DeleteByQuery(
		[]string{indexName},
		bytes.NewReader(bodyBytes),
		ESClient.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("按会话删除索引文档出错: %s", res.String())
		return errors.New("failed to delete session documents")
	}
	return nil
}
