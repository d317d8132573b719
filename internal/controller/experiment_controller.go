package controller

import (
	"net/http"
	"strconv"
	"visual_experiment/internal/model"
	"visual_experiment/internal/service"
	"visual_experiment/internal/session"
	"visual_experiment/internal/util"
	"visual_experiment/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ExperimentController 参与者页面流程：同意书 → 基本信息 → 分组 → 各轮试验 → 感谢页
type ExperimentController struct {
	service  *service.ExperimentService
	sessions session.Store
}

func NewExperimentController(s *service.ExperimentService, sessions session.Store) *ExperimentController {
	return &ExperimentController{service: s, sessions: sessions}
}

// save 在写响应前保存会话，失败只记日志
func (ctl *ExperimentController) save(c *gin.Context, sess *session.Session) {
	if err := ctl.sessions.Save(c, sess); err != nil {
		logger.Log.Error("failed to save session",
			zap.String("participant_id", sess.ParticipantID),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}
}

func experimentURL(trial int) string { return "/experiment/" + strconv.Itoa(trial) }
func evaluationURL(trial int) string { return "/evaluation/" + strconv.Itoa(trial) }
func controlURL(trial int) string    { return "/control/" + strconv.Itoa(trial) }

const thankYouURL = "/thank_you"

// trialParam 路径中的 trial 必须是整数，否则 404
func trialParam(c *gin.Context) (int, bool) {
	trial, err := strconv.Atoi(c.Param("trial"))
	if err != nil {
		util.NotFound(c)
		return 0, false
	}
	return trial, true
}

// formAnswers 表单字段存在即视为已提交（包括空字符串）
func formAnswers(c *gin.Context) service.AnswerSource {
	return func(key string) (string, bool) {
		return c.GetPostForm(key)
	}
}

// Index 知情同意书页面，每次访问都重新开始
func (ctl *ExperimentController) Index(c *gin.Context) {
	sess := session.FromContext(c)
	ctl.service.Begin(sess)
	ctl.save(c, sess)

	c.HTML(http.StatusOK, "index.html", gin.H{})
}

func (ctl *ExperimentController) Demographic(c *gin.Context) {
	c.HTML(http.StatusOK, "demographic.html", gin.H{})
}

// StartExperiment 保存基本信息并显示分组选择
func (ctl *ExperimentController) StartExperiment(c *gin.Context) {
	sess := session.FromContext(c)
	ctl.service.RecordDemographic(sess, model.Demographic{
		Gender: c.PostForm("gender"),
		Age:    c.PostForm("age"),
		Major:  c.PostForm("major"),
	})
	ctl.save(c, sess)

	c.HTML(http.StatusOK, "group_selection.html", gin.H{})
}

func (ctl *ExperimentController) AssignGroup(c *gin.Context) {
	sess := session.FromContext(c)
	experimental := ctl.service.AssignGroup(sess, c.PostForm("group"))
	ctl.save(c, sess)

	if experimental {
		c.Redirect(http.StatusFound, experimentURL(0))
		return
	}
	c.Redirect(http.StatusFound, "/control_group")
}

// ExperimentPhase 试验组第 trial 轮：展示图片并填写指令
func (ctl *ExperimentController) ExperimentPhase(c *gin.Context) {
	trial, ok := trialParam(c)
	if !ok {
		return
	}

	sess := session.FromContext(c)
	cfg, ok := ctl.service.EnterTrial(sess, trial)
	if !ok {
		c.Redirect(http.StatusFound, thankYouURL)
		return
	}
	ctl.save(c, sess)

	c.HTML(http.StatusOK, "experiment.html", gin.H{
		"trial":        trial,
		"display":      trial + 1,
		"total_trials": len(ctl.service.Trials(util.GroupExperiment)),
		"config":       cfg,
	})
}

// SubmitInstruction 记录指令后进入加载页，加载页再跳到同一轮的评估
func (ctl *ExperimentController) SubmitInstruction(c *gin.Context) {
	trial := util.ParseTrial(c.PostForm("trial"))
	sess := session.FromContext(c)

	if !ctl.service.RecordInstruction(sess, trial, c.PostForm("instruction")) {
		c.Redirect(http.StatusFound, thankYouURL)
		return
	}
	ctl.save(c, sess)

	c.HTML(http.StatusOK, "loading.html", gin.H{
		"trial":    trial,
		"next_url": evaluationURL(trial),
	})
}

func (ctl *ExperimentController) EvaluationPhase(c *gin.Context) {
	trial, ok := trialParam(c)
	if !ok {
		return
	}

	cfg, ok := ctl.service.Trial(util.GroupExperiment, trial)
	if !ok {
		c.Redirect(http.StatusFound, thankYouURL)
		return
	}

	c.HTML(http.StatusOK, "evaluation.html", gin.H{
		"trial":        trial,
		"display":      trial + 1,
		"total_trials": len(ctl.service.Trials(util.GroupExperiment)),
		"config":       cfg,
		"action":       "/submit_evaluation",
	})
}

func (ctl *ExperimentController) SubmitEvaluation(c *gin.Context) {
	ctl.submit(c, util.GroupExperiment, experimentURL)
}

// ControlGroup 控制组入口：载入之前试验组的指令
func (ctl *ExperimentController) ControlGroup(c *gin.Context) {
	sess := session.FromContext(c)
	ctl.service.SeedControl(c.Request.Context(), sess)
	ctl.save(c, sess)

	c.Redirect(http.StatusFound, controlURL(0))
}

func (ctl *ExperimentController) ControlPhase(c *gin.Context) {
	trial, ok := trialParam(c)
	if !ok {
		return
	}

	cfg, ok := ctl.service.Trial(util.GroupControl, trial)
	if !ok {
		c.Redirect(http.StatusFound, thankYouURL)
		return
	}

	sess := session.FromContext(c)
	c.HTML(http.StatusOK, "control.html", gin.H{
		"trial":        trial,
		"display":      trial + 1,
		"total_trials": len(ctl.service.Trials(util.GroupControl)),
		"config":       cfg,
		"instruction":  ctl.service.ControlInstruction(sess, trial),
		"action":       "/submit_control_evaluation",
	})
}

func (ctl *ExperimentController) SubmitControlEvaluation(c *gin.Context) {
	ctl.submit(c, util.GroupControl, controlURL)
}

func (ctl *ExperimentController) submit(c *gin.Context, arm string, nextURL func(int) string) {
	trial := util.ParseTrial(c.PostForm("trial"))
	sess := session.FromContext(c)

	next, done := ctl.service.SubmitEvaluation(c.Request.Context(), sess, arm, trial, formAnswers(c))
	ctl.save(c, sess)

	if done {
		c.Redirect(http.StatusFound, thankYouURL)
		return
	}
	c.Redirect(http.StatusFound, nextURL(next))
}

func (ctl *ExperimentController) ThankYou(c *gin.Context) {
	c.HTML(http.StatusOK, "thank_you.html", gin.H{})
}
