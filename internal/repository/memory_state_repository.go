// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"fmt"
	"sync"
)

// memoryStateRepository 是 StateRepository 的进程内实现，
// 供测试和无 Redis 的本地运行使用。
type memoryStateRepository struct {
	mu       sync.RWMutex
	active   map[string]uint
	contexts map[string]string
	artifact map[string]string
}

// NewMemoryStateRepository 创建一个基于内存的 StateRepository。
func NewMemoryStateRepository() StateRepository {
	return &memoryStateRepository{
		active:   make(map[string]uint),
		contexts: make(map[string]string),
		artifact: make(map[string]string),
	}
}

func memKey(userID uint, tabKey string) string {
	return fmt.Sprintf("%d:%s", userID, tabKey)
}

func (r *memoryStateRepository) GetActiveSession(_ context.Context, userID uint, tabKey string) (uint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active[memKey(userID, tabKey)], nil
}

func (r *memoryStateRepository) SetActiveSession(_ context.Context, userID uint, tabKey string, sessionID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[memKey(userID, tabKey)] = sessionID
	return nil
}

func (r *memoryStateRepository) ClearActiveSession(_ context.Context, userID uint, tabKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, memKey(userID, tabKey))
	return nil
}

func (r *memoryStateRepository) GetContextText(_ context.Context, userID uint, tabKey string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.contexts[memKey(userID, tabKey)], nil
}

func (r *memoryStateRepository) SetContextText(_ context.Context, userID uint, tabKey string, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contexts[memKey(userID, tabKey)] = text
	return nil
}

func (r *memoryStateRepository) GetArtifact(_ context.Context, userID uint, tabKey string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.artifact[memKey(userID, tabKey)], nil
}

func (r *memoryStateRepository) SetArtifact(_ context.Context, userID uint, tabKey string, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifact[memKey(userID, tabKey)] = text
	return nil
}
