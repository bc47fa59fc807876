/*
 * @Description: 频率限制中间件
 * @Author: 安知鱼
 * @Date: 2025-11-08 00:00:00
 * @LastEditTime: 2026-09-12 15:59:28
 * @LastEditors: 安知鱼
 */
package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/redink-ai/redink/pkg/response"
)

// ipRateLimiter 为每个IP维护一个令牌桶
type ipRateLimiter struct {
	limiters          map[string]*limiterInfo
	mu                sync.Mutex
	requestsPerMinute int
	burst             int
	idleTTL           time.Duration
	lastSweep         time.Time
}

type limiterInfo struct {
	limiter      *rate.Limiter
	lastAccessed time.Time
}

func newIPRateLimiter(requestsPerMinute, burst int) *ipRateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &ipRateLimiter{
		limiters:          make(map[string]*limiterInfo),
		requestsPerMinute: requestsPerMinute,
		burst:             burst,
		idleTTL:           10 * time.Minute,
		lastSweep:         time.Now(),
	}
}

// getLimiter 获取指定IP的限流器，顺带清理长时间未访问的条目
func (i *ipRateLimiter) getLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := time.Now()
	if now.Sub(i.lastSweep) > i.idleTTL {
		for key, info := range i.limiters {
			if now.Sub(info.lastAccessed) > i.idleTTL {
				delete(i.limiters, key)
			}
		}
		i.lastSweep = now
	}

	info, exists := i.limiters[ip]
	if !exists {
		info = &limiterInfo{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(i.requestsPerMinute)), i.burst),
		}
		i.limiters[ip] = info
	}
	info.lastAccessed = now
	return info.limiter
}

// getClientIP 获取客户端真实IP地址
func getClientIP(c *gin.Context) string {
	if ip := c.GetHeader("X-Real-IP"); ip != "" {
		return ip
	}
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip, _, err := net.SplitHostPort(c.Request.RemoteAddr); err == nil {
		return ip
	}
	return c.Request.RemoteAddr
}

// RateLimit 按客户端IP限流，requestsPerMinute 为稳定速率，burst 为突发上限
func RateLimit(requestsPerMinute, burst int) gin.HandlerFunc {
	limiter := newIPRateLimiter(requestsPerMinute, burst)

	return func(c *gin.Context) {
		if !limiter.getLimiter(getClientIP(c)).Allow() {
			response.Fail(c, http.StatusTooManyRequests, "请求过于频繁，请稍后再试")
			c.Abort()
			return
		}
		c.Next()
	}
}
