/*
 * @Description: 缓存工厂，自动选择 Redis 或内存缓存
 * @Author: 安知鱼
 * @Date: 2025-10-05 00:00:00
 * @LastEditTime: 2026-08-25 14:30:02
 * @LastEditors: 安知鱼
 */
package utility

import (
	"log"

	"github.com/redis/go-redis/v9"
)

// NewCacheServiceWithFallback 创建带有自动降级功能的缓存服务，redisClient 为 nil 时使用内存缓存
func NewCacheServiceWithFallback(redisClient *redis.Client) CacheService {
	if redisClient == nil {
		log.Println("🔄 使用内存缓存服务（Memory Cache）")
		return NewMemoryCacheService()
	}
	log.Println("✅ 使用 Redis 缓存服务")
	return NewCacheService(redisClient)
}

// CacheServiceType 缓存服务类型
type CacheServiceType string

const (
	CacheTypeRedis  CacheServiceType = "redis"
	CacheTypeMemory CacheServiceType = "memory"
)

// GetCacheServiceType 获取当前使用的缓存类型，用于健康检查输出
func GetCacheServiceType(svc CacheService) CacheServiceType {
	if _, ok := svc.(*redisCacheService); ok {
		return CacheTypeRedis
	}
	return CacheTypeMemory
}
