package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader 请求ID头
const RequestIDHeader = "X-Request-ID"

// slowRequestThreshold 超过该耗时的请求会被记录
const slowRequestThreshold = 5 * time.Second

// RequestID 为每个请求分配ID（沿用客户端传入的值），并记录慢请求
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(RequestIDHeader, id)
		c.Header(RequestIDHeader, id)

		start := time.Now()
		c.Next()

		if elapsed := time.Since(start); elapsed > slowRequestThreshold {
			log.Printf("[请求] %s %s %s 耗时 %v (状态: %d)", id, c.Request.Method, c.Request.URL.Path, elapsed, c.Writer.Status())
		}
	}
}
