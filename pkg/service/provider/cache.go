/*
 * @Description: 服务商配置缓存（显式注入，支持失效与重载）
 * @Author: 安知鱼
 * @Date: 2026-08-22 16:30:14
 * @LastEditTime: 2026-09-05 17:58:51
 * @LastEditors: 安知鱼
 */
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redink-ai/redink/pkg/domain/model"
	"github.com/redink-ai/redink/pkg/domain/repository"
	"github.com/redink-ai/redink/pkg/service/utility"
)

const (
	cacheKeyPrefix  = "redink:provider_config:"
	defaultCacheTTL = 10 * time.Minute
)

// Snapshot 某个类别在某一时刻的全部服务商配置
type Snapshot struct {
	Category  model.ProviderCategory  `json:"category"`
	Active    string                  `json:"active"`
	Providers []*model.ProviderConfig `json:"providers"`
}

// Find 按名称查找配置
func (s *Snapshot) Find(name string) *model.ProviderConfig {
	for _, p := range s.Providers {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Names 返回所有服务商名称
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.Providers))
	for _, p := range s.Providers {
		names = append(names, p.Name)
	}
	return names
}

// snapshotEntry 是写入共享缓存时的结构，model.ProviderConfig 不序列化 api_key
type snapshotEntry struct {
	Category  model.ProviderCategory `json:"category"`
	Active    string                 `json:"active"`
	Providers []providerEntry        `json:"providers"`
}

type providerEntry struct {
	*model.ProviderConfig
	APIKey string `json:"api_key"`
}

// ConfigCache 按类别缓存服务商配置。
// 有共享缓存（Redis 或内存）时每次都读共享缓存，任一实例 Invalidate 后其它实例立即可见；
// 没有共享缓存时退化为进程内缓存，条目超过 TTL 后重新加载。
type ConfigCache struct {
	repo  repository.ProviderConfigRepository
	cache utility.CacheService
	ttl   time.Duration
	now   func() time.Time

	mu    sync.RWMutex
	local map[model.ProviderCategory]localEntry
}

type localEntry struct {
	snap     *Snapshot
	loadedAt time.Time
}

// NewConfigCache 创建配置缓存，cache 可以为 nil（仅使用进程内缓存）
func NewConfigCache(repo repository.ProviderConfigRepository, cache utility.CacheService) *ConfigCache {
	return &ConfigCache{
		repo:  repo,
		cache: cache,
		ttl:   defaultCacheTTL,
		now:   time.Now,
		local: make(map[model.ProviderCategory]localEntry),
	}
}

// Get 返回类别的配置快照，未命中时从数据库加载
func (c *ConfigCache) Get(ctx context.Context, category model.ProviderCategory) (*Snapshot, error) {
	if c.cache != nil {
		if snap := c.readShared(ctx, category); snap != nil {
			return snap, nil
		}
		snap, err := c.load(ctx, category)
		if err != nil {
			return nil, err
		}
		c.writeShared(ctx, snap)
		return snap, nil
	}

	c.mu.RLock()
	entry, ok := c.local[category]
	c.mu.RUnlock()
	if ok && c.now().Sub(entry.loadedAt) < c.ttl {
		return entry.snap, nil
	}

	snap, err := c.load(ctx, category)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.local[category] = localEntry{snap: snap, loadedAt: c.now()}
	c.mu.Unlock()
	return snap, nil
}

// Invalidate 清空本地和共享缓存
func (c *ConfigCache) Invalidate(ctx context.Context) {
	c.mu.Lock()
	c.local = make(map[model.ProviderCategory]localEntry)
	c.mu.Unlock()

	if c.cache != nil {
		if err := c.cache.DeletePrefix(ctx, cacheKeyPrefix); err != nil {
			log.Printf("[配置] 清除共享缓存失败: %v", err)
		}
	}
	log.Println("[配置] 服务商配置缓存已失效")
}

// Reload 失效后立即重新加载所有类别
func (c *ConfigCache) Reload(ctx context.Context) error {
	c.Invalidate(ctx)
	for _, category := range []model.ProviderCategory{model.CategoryText, model.CategoryImage} {
		if _, err := c.Get(ctx, category); err != nil {
			return err
		}
	}
	return nil
}

func (c *ConfigCache) load(ctx context.Context, category model.ProviderCategory) (*Snapshot, error) {
	list, err := c.repo.ListByCategory(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("加载 %s 服务商配置失败: %w", category, err)
	}
	snap := &Snapshot{Category: category, Providers: list}
	for _, p := range list {
		if p.IsActive {
			snap.Active = p.Name
			break
		}
	}
	return snap, nil
}

func (c *ConfigCache) readShared(ctx context.Context, category model.ProviderCategory) *Snapshot {
	if c.cache == nil {
		return nil
	}
	raw, err := c.cache.Get(ctx, cacheKeyPrefix+string(category))
	if err != nil || raw == "" {
		return nil
	}
	var entry snapshotEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		log.Printf("[配置] 共享缓存内容损坏，忽略: %v", err)
		return nil
	}
	snap := &Snapshot{Category: entry.Category, Active: entry.Active}
	for _, p := range entry.Providers {
		if p.ProviderConfig == nil {
			continue
		}
		p.ProviderConfig.APIKey = p.APIKey
		snap.Providers = append(snap.Providers, p.ProviderConfig)
	}
	return snap
}

func (c *ConfigCache) writeShared(ctx context.Context, snap *Snapshot) {
	if c.cache == nil {
		return
	}
	entry := snapshotEntry{Category: snap.Category, Active: snap.Active}
	for _, p := range snap.Providers {
		entry.Providers = append(entry.Providers, providerEntry{ProviderConfig: p, APIKey: p.APIKey})
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, cacheKeyPrefix+string(snap.Category), string(data), c.ttl); err != nil {
		log.Printf("[配置] 写入共享缓存失败: %v", err)
	}
}
