package middleware

import (
	"crypto/subtle"
	"visual_experiment/internal/config"
	"visual_experiment/internal/util"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// DebugAuthMiddleware /debug 的 Basic 认证，密码与 bcrypt 哈希比对。
// 未配置哈希时直接放行。
func DebugAuthMiddleware(cfg *config.DebugConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.PasswordHash == "" {
			c.Next()
			return
		}

		user, password, ok := c.Request.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(cfg.Username)) != 1 ||
			bcrypt.CompareHashAndPassword([]byte(cfg.PasswordHash), []byte(password)) != nil {
			c.Header("WWW-Authenticate", `Basic realm="debug"`)
			util.Unauthorized(c)
			c.Abort()
			return
		}

		c.Next()
	}
}
