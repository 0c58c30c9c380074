package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderRequestID 请求追踪头。
const HeaderRequestID = "X-Request-ID"

// ContextRequestID gin 上下文中请求 ID 的键。
const ContextRequestID = "request_id"

// RequestID 透传或生成请求 ID，写回响应头并放入上下文，便于日志串联。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(ContextRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestIDFrom 读取 RequestID 写入的请求 ID，未经过该中间件时返回 "-"。
func RequestIDFrom(c *gin.Context) string {
	if id := c.GetString(ContextRequestID); id != "" {
		return id
	}
	return "-"
}
