package middleware

import (
	"net/http"
	"strings"

	"online_store/internal/errs"

	"github.com/gin-gonic/gin"
)

// ContextUserID gin.Context 中保存当前用户 ID 的键。
const ContextUserID = "user_id"

// Authenticator 把令牌映射为用户 ID。
type Authenticator interface {
	Authenticate(token string) (uint, error)
}

// AuthRequired 校验 Bearer 令牌，成功后把用户 ID 放进上下文。
func AuthRequired(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			abortUnauthorized(c, "缺少 Bearer 令牌")
			return
		}
		userID, err := a.Authenticate(strings.TrimSpace(token))
		if err != nil {
			abortUnauthorized(c, "令牌无效或已过期")
			return
		}
		c.Set(ContextUserID, userID)
		c.Next()
	}
}

// UserID 读取 AuthRequired 写入的用户 ID；未认证返回 0。
func UserID(c *gin.Context) uint {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return 0
	}
	id, _ := v.(uint)
	return id
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":   http.StatusUnauthorized,
		"reason": errs.CodeUnauthorized,
		"msg":    msg,
	})
}
