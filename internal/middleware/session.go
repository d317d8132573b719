package middleware

import (
	"errors"
	"visual_experiment/internal/session"
	"visual_experiment/internal/util"
	"visual_experiment/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionMiddleware 在处理请求前加载会话。加载失败时使用空会话继续，不中断请求。
func SessionMiddleware(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := store.Load(c)
		if err != nil {
			if errors.Is(err, util.ErrSessionNotFound) {
				logger.Log.Debug("session expired or unknown", zap.String("path", c.Request.URL.Path))
			} else {
				logger.Log.Warn("failed to load session", zap.String("path", c.Request.URL.Path), zap.Error(err))
			}
		}
		if sess == nil {
			sess = &session.Session{}
		}

		session.Attach(c, sess)
		c.Next()
	}
}
