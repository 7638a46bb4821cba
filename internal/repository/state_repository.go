// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// stateTTL 是每个 (user, tab) 瞬态状态键的过期时间。
// 状态永远可以从 Session Store 重建，过期只意味着下次重新水合。
const stateTTL = 7 * 24 * time.Hour

// StateRepository 定义了每个 (user, tab) 的瞬态 UI 状态操作：
// 活跃会话指针、提取出的上下文文本、最近一次生成的产物。
// 这些状态全部可由持久层重建，因此存放在 Redis 而非 MySQL。
type StateRepository interface {
	// GetActiveSession 返回活跃会话 ID；无指针时返回 0 且无错误。
	GetActiveSession(ctx context.Context, userID uint, tabKey string) (uint, error)
	SetActiveSession(ctx context.Context, userID uint, tabKey string, sessionID uint) error
	ClearActiveSession(ctx context.Context, userID uint, tabKey string) error

	// GetContextText 返回该标签页当前的上下文文本（如简历全文）；无内容时返回空串。
	GetContextText(ctx context.Context, userID uint, tabKey string) (string, error)
	SetContextText(ctx context.Context, userID uint, tabKey string, text string) error

	// GetArtifact 返回该标签页最近一次生成的产物文本（如学习计划）；无内容时返回空串。
	GetArtifact(ctx context.Context, userID uint, tabKey string) (string, error)
	SetArtifact(ctx context.Context, userID uint, tabKey string, text string) error
}

type redisStateRepository struct {
	redisClient *redis.Client
}

// NewStateRepository 创建一个新的 StateRepository 实例。
func NewStateRepository(redisClient *redis.Client) StateRepository {
	return &redisStateRepository{redisClient: redisClient}
}

func activeSessionKey(userID uint, tabKey string) string {
	return fmt.Sprintf("user:%d:tab:%s:active_session", userID, tabKey)
}

func contextTextKey(userID uint, tabKey string) string {
	return fmt.Sprintf("user:%d:tab:%s:context_text", userID, tabKey)
}

func artifactKey(userID uint, tabKey string) string {
	return fmt.Sprintf("user:%d:tab:%s:artifact", userID, tabKey)
}

// GetActiveSession 读取活跃会话指针。
func (r *redisStateRepository) GetActiveSession(ctx context.Context, userID uint, tabKey string) (uint, error) {
	val, err := r.redisClient.Get(ctx, activeSessionKey(userID, tabKey)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get active session: %w", err)
	}
	id, convErr := strconv.ParseUint(val, 10, 64)
	if convErr != nil {
		// 指针损坏按不存在处理，由上层重新解析。
		return 0, nil
	}
	return uint(id), nil
}

// SetActiveSession 写入活跃会话指针。
func (r *redisStateRepository) SetActiveSession(ctx context.Context, userID uint, tabKey string, sessionID uint) error {
	err := r.redisClient.Set(ctx, activeSessionKey(userID, tabKey), strconv.FormatUint(uint64(sessionID), 10), stateTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set active session: %w", err)
	}
	return nil
}

// ClearActiveSession 删除活跃会话指针。
func (r *redisStateRepository) ClearActiveSession(ctx context.Context, userID uint, tabKey string) error {
	return r.redisClient.Del(ctx, activeSessionKey(userID, tabKey)).Err()
}

// GetContextText 读取该标签页的上下文文本。
func (r *redisStateRepository) GetContextText(ctx context.Context, userID uint, tabKey string) (string, error) {
	val, err := r.redisClient.Get(ctx, contextTextKey(userID, tabKey)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get context text: %w", err)
	}
	return val, nil
}

// SetContextText 写入该标签页的上下文文本。
func (r *redisStateRepository) SetContextText(ctx context.Context, userID uint, tabKey string, text string) error {
	err := r.redisClient.Set(ctx, contextTextKey(userID, tabKey), text, stateTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set context text: %w", err)
	}
	return nil
}

// GetArtifact 读取该标签页最近一次生成的产物。
func (r *redisStateRepository) GetArtifact(ctx context.Context, userID uint, tabKey string) (string, error) {
	val, err := r.redisClient.Get(ctx, artifactKey(userID, tabKey)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get artifact: %w", err)
	}
	return val, nil
}

// SetArtifact 写入该标签页最近一次生成的产物。
func (r *redisStateRepository) SetArtifact(ctx context.Context, userID uint, tabKey string, text string) error {
	err := r.redisClient.Set(ctx, artifactKey(userID, tabKey), text, stateTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set artifact: %w", err)
	}
	return nil
}
