package service

import (
	"context"
	"errors"
	"time"
	"visual_experiment/internal/config"
	"visual_experiment/internal/model"
	"visual_experiment/internal/repository"
	"visual_experiment/internal/session"
	"visual_experiment/internal/util"
	"visual_experiment/pkg/logger"
	"visual_experiment/pkg/monitoring"
	"visual_experiment/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// AnswerSource 按字段名取表单值，第二个返回值表示字段是否提交
type AnswerSource func(key string) (string, bool)

// ExperimentService 实验流程：分组、逐轮记录指令与评估、最后一轮落库
type ExperimentService struct {
	store    repository.ExperimentStore
	archive  *ArchiveService
	trials   *config.TrialConfig
	notifier ProgressNotifier
	now      func() time.Time
}

func NewExperimentService(store repository.ExperimentStore, archive *ArchiveService, trials *config.TrialConfig) *ExperimentService {
	return &ExperimentService{
		store:   store,
		archive: archive,
		trials:  trials,
		now:     time.Now,
	}
}

// SetNotifier 设置进度推送，nil 表示不推送
func (s *ExperimentService) SetNotifier(n ProgressNotifier) {
	s.notifier = n
}

func (s *ExperimentService) notify(ctx context.Context, eventType string, sess *session.Session, trial int) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(ctx, ProgressEvent{
		Type:          eventType,
		ParticipantID: sess.ParticipantID,
		Group:         sess.Group,
		Trial:         trial,
		Timestamp:     s.now(),
	})
}

// Trials 某一组的试验序列
func (s *ExperimentService) Trials(group string) []config.Trial {
	return s.trials.Arm(group)
}

// Trial 取第 trial 轮配置，越界（含负数）时 ok 为 false
func (s *ExperimentService) Trial(group string, trial int) (config.Trial, bool) {
	arm := s.trials.Arm(group)
	if !util.InRange(trial, len(arm)) {
		return config.Trial{}, false
	}
	return arm[trial], true
}

// Begin 落地页：清空会话并分配新的参与者编号
func (s *ExperimentService) Begin(sess *session.Session) {
	sess.Reset()
	logger.Log.Info("participant started", zap.String("participant_id", sess.ParticipantID))
}

func (s *ExperimentService) RecordDemographic(sess *session.Session, d model.Demographic) {
	sess.Demographic = &d
}

// AssignGroup 记录所选分组，返回是否进入试验组
func (s *ExperimentService) AssignGroup(sess *session.Session, group string) bool {
	sess.Group = group
	return group == util.GroupExperiment
}

// EnterTrial 进入试验组第 trial 轮并记录当前进度
func (s *ExperimentService) EnterTrial(sess *session.Session, trial int) (config.Trial, bool) {
	t, ok := s.Trial(util.GroupExperiment, trial)
	if !ok {
		return t, false
	}
	sess.CurrentTrial = trial
	return t, true
}

// RecordInstruction 追加参与者写的指令；trial 越界时不记录
func (s *ExperimentService) RecordInstruction(sess *session.Session, trial int, instruction string) bool {
	if _, ok := s.Trial(util.GroupExperiment, trial); !ok {
		return false
	}
	sess.Instructions = append(sess.Instructions, instruction)
	return true
}

// BuildEvaluation 只取本轮配置的题目，未提交的题目记为 nil
func (s *ExperimentService) BuildEvaluation(trial config.Trial, answers AnswerSource) model.Evaluation {
	eval := make(model.Evaluation, len(trial.Questions))
	for _, q := range trial.Questions {
		key := util.QuestionKey(q)
		if v, ok := answers(key); ok {
			value := v
			eval[key] = &value
		} else {
			eval[key] = nil
		}
	}
	return eval
}

// SubmitEvaluation 记录 arm 组第 trial 轮的评估。
// 最后一轮时保存参与者数据。返回下一轮序号，done 为 true 表示应跳转到感谢页。
func (s *ExperimentService) SubmitEvaluation(ctx context.Context, sess *session.Session, arm string, trial int, answers AnswerSource) (next int, done bool) {
	t, ok := s.Trial(arm, trial)
	if !ok {
		return trial, true
	}

	sess.Evaluations = append(sess.Evaluations, s.BuildEvaluation(t, answers))
	s.notify(ctx, EventTrialSubmitted, sess, trial)

	total := len(s.trials.Arm(arm))
	if trial == total-1 {
		s.persist(ctx, sess)
	}

	next = trial + 1
	return next, next >= total
}

// SeedControl 控制组入口：取最近一条试验组指令，没有时用示例指令
func (s *ExperimentService) SeedControl(ctx context.Context, sess *session.Session) {
	sess.Group = util.GroupControl

	entry, err := s.store.LatestInstructions(ctx)
	if err != nil {
		if !errors.Is(err, util.ErrNoInstructionLog) {
			logger.Log.Error("读取试验组指令失败，使用示例指令", zap.Error(err))
			monitoring.StoreErrors.WithLabelValues("latest_instructions").Inc()
		}
		sess.PreviousInstructions = append([]string(nil), util.FallbackInstructions...)
		return
	}

	sess.PreviousInstructions = append([]string{}, entry.Instructions...)
}

// ControlInstruction 控制组第 trial 轮展示的指令
func (s *ExperimentService) ControlInstruction(sess *session.Session, trial int) string {
	if util.InRange(trial, len(sess.PreviousInstructions)) {
		return sess.PreviousInstructions[trial]
	}
	return util.FallbackControlInstruction
}

// Dataset 全部持久化数据，供 /debug 使用
func (s *ExperimentService) Dataset(ctx context.Context) *model.Dataset {
	return s.store.Load(ctx)
}

// persist 保存参与者记录；失败只记录日志，不影响用户流程
func (s *ExperimentService) persist(ctx context.Context, sess *session.Session) {
	if sess.ParticipantID == "" {
		sess.ParticipantID = session.NewParticipantID()
		logger.Log.Warn("session has no participant id, minted one at save time", zap.String("participant_id", sess.ParticipantID))
	}

	ctx, span := tracing.StartSpan(ctx, "experiment.persist",
		attribute.String("participant.id", sess.ParticipantID),
		attribute.String("participant.group", sess.Group),
	)
	defer span.End()

	ts := s.now()
	p := &model.Participant{
		ID:           sess.ParticipantID,
		Group:        sess.Group,
		Timestamp:    ts,
		Instructions: append([]string{}, sess.Instructions...),
		Evaluations:  append([]model.Evaluation{}, sess.Evaluations...),
	}
	if sess.Demographic != nil {
		p.Demographic = *sess.Demographic
	}

	log := logger.Log.With(zap.String("participant_id", p.ID), zap.String("group", p.Group))

	if err := s.store.UpsertParticipant(ctx, p); err != nil {
		tracing.RecordError(span, err)
		monitoring.StoreErrors.WithLabelValues("upsert_participant").Inc()
		log.Error("保存参与者数据时出错", zap.Error(err))
		return
	}

	if p.Group == util.GroupExperiment && len(p.Instructions) > 0 {
		if err := s.store.AppendInstructions(ctx, p.ID, p.Instructions, ts); err != nil {
			tracing.RecordError(span, err)
			monitoring.StoreErrors.WithLabelValues("append_instructions").Inc()
			log.Error("保存试验组指令时出错", zap.Error(err))
		}
	}

	group := util.GroupControl
	if p.Group == util.GroupExperiment {
		group = util.GroupExperiment
	}
	monitoring.ParticipantsCompleted.WithLabelValues(group).Inc()
	log.Info("参与者数据保存成功")
	s.notify(ctx, EventParticipantCompleted, sess, len(p.Evaluations)-1)

	if s.archive.Enabled() {
		if err := s.archive.ArchiveParticipant(ctx, p); err != nil {
			monitoring.StoreErrors.WithLabelValues("archive").Inc()
			log.Error("归档参与者数据失败", zap.String("provider", s.archive.Provider.Name()), zap.Error(err))
		}
	}
}
