package controller

import (
	"encoding/json"
	"net/http"
	"visual_experiment/internal/service"
	"visual_experiment/internal/util"

	"github.com/gin-gonic/gin"
)

type DebugController struct {
	service *service.ExperimentService
	hub     *service.ProgressHub
}

func NewDebugController(s *service.ExperimentService, hub *service.ProgressHub) *DebugController {
	return &DebugController{service: s, hub: hub}
}

// Dump godoc
// @Summary 调试信息
// @Description 以可读文本输出全部已保存的参与者数据和试验组指令，仅用于诊断
// @Tags 系统
// @Produce html
// @Security BasicAuth
// @Success 200 {string} string "调试页面"
// @Failure 401 {object} util.Response
// @Router /debug [get]
func (ctl *DebugController) Dump(c *gin.Context) {
	data := ctl.service.Dataset(c.Request.Context())

	pretty, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		util.LogInternalError(c, err)
		return
	}

	c.HTML(http.StatusOK, "debug.html", gin.H{
		"participants":     len(data.Participants),
		"experiment_group": len(data.ExperimentGroupData),
		"dump":             string(pretty),
	})
}

// Live 实时进度推送（WebSocket），调试页面连接后接收每轮提交和完成事件
func (ctl *DebugController) Live(c *gin.Context) {
	ctl.hub.ServeWs(c.Writer, c.Request)
}
