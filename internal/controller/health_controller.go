package controller

import (
	"context"
	"net/http"
	"time"
	"visual_experiment/internal/repository"
	"visual_experiment/internal/util"
	"visual_experiment/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type HealthController struct {
	store repository.ExperimentStore
}

func NewHealthController(store repository.ExperimentStore) *HealthController {
	return &HealthController{store: store}
}

// @Summary 健康检查
// @Description 检查服务与存储状态
// @Tags 系统
// @Produce json
// @Success 200 {object} util.Response
// @Failure 503 {object} util.Response
// @Router /api/health [get]
func (ctl *HealthController) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := ctl.store.Ping(ctx); err != nil {
		logger.Log.Warn("store unavailable", zap.Error(err))
		util.Error(c, http.StatusServiceUnavailable, "Store unavailable")
		return
	}

	util.Success(c, gin.H{
		"status": "ok",
		"components": gin.H{
			"store": "up",
		},
	})
}
