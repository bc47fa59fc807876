/*
 * @Description: 内存缓存服务实现（用于 Redis 不可用时的降级方案）
 * @Author: 安知鱼
 * @Date: 2025-10-05 00:00:00
 * @LastEditTime: 2026-08-25 14:25:31
 * @LastEditors: 安知鱼
 */
package utility

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

type cacheItem struct {
	value     string
	expiresAt time.Time
}

func (item cacheItem) expired(now time.Time) bool {
	return !item.expiresAt.IsZero() && now.After(item.expiresAt)
}

// memoryCacheService 是基于内存的缓存服务实现，过期键在读取时惰性清理
type memoryCacheService struct {
	mu   sync.RWMutex
	data map[string]cacheItem
	now  func() time.Time
}

// NewMemoryCacheService 创建内存缓存服务实例
func NewMemoryCacheService() CacheService {
	return &memoryCacheService{
		data: make(map[string]cacheItem),
		now:  time.Now,
	}
}

func (s *memoryCacheService) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	item := cacheItem{value: toString(value)}
	if expiration > 0 {
		item.expiresAt = s.now().Add(expiration)
	}
	s.mu.Lock()
	s.data[key] = item
	s.mu.Unlock()
	return nil
}

func (s *memoryCacheService) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	item, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return "", nil
	}
	if item.expired(s.now()) {
		s.mu.Lock()
		delete(s.data, key)
		s.mu.Unlock()
		return "", nil
	}
	return item.value, nil
}

func (s *memoryCacheService) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	for _, key := range keys {
		delete(s.data, key)
	}
	s.mu.Unlock()
	return nil
}

func (s *memoryCacheService) DeletePrefix(ctx context.Context, prefix string) error {
	s.mu.Lock()
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			delete(s.data, key)
		}
	}
	s.mu.Unlock()
	return nil
}

func toString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprintf("%v", v)
	}
}
