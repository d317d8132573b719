package repository

import (
	"context"
	"errors"
	"time"
	"visual_experiment/internal/model"
	"visual_experiment/internal/util"
	"visual_experiment/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore 关系型实现，participants 与 experiment_instructions 两张表
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (r *GormStore) Init(ctx context.Context) error {
	return r.DB.WithContext(ctx).AutoMigrate(&model.Participant{}, &model.InstructionLog{})
}

func (r *GormStore) Load(ctx context.Context) *model.Dataset {
	data := model.EmptyDataset()
	db := r.DB.WithContext(ctx)

	var participants []model.Participant
	if err := db.Order("timestamp ASC").Find(&participants).Error; err != nil {
		logger.Log.Warn("加载参与者数据失败，按空数据处理", zap.Error(err))
		return data
	}

	var logs []model.InstructionLog
	if err := db.Order("id ASC").Find(&logs).Error; err != nil {
		logger.Log.Warn("加载试验组指令失败，按空数据处理", zap.Error(err))
		return data
	}

	data.Participants = participants
	data.ExperimentGroupData = logs
	data.CurrentParticipantID = len(participants)
	return data
}

func (r *GormStore) UpsertParticipant(ctx context.Context, p *model.Participant) error {
	if p.ID == "" {
		return util.ErrMissingParticipant
	}
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(p).Error
}

func (r *GormStore) AppendInstructions(ctx context.Context, participantID string, instructions []string, ts time.Time) error {
	entry := &model.InstructionLog{
		ParticipantID: participantID,
		Instructions:  instructions,
		Timestamp:     ts,
	}
	return r.DB.WithContext(ctx).Create(entry).Error
}

func (r *GormStore) LatestInstructions(ctx context.Context) (*model.InstructionLog, error) {
	var entry model.InstructionLog
	err := r.DB.WithContext(ctx).Order("id DESC").First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrNoInstructionLog
		}
		return nil, err
	}
	return &entry, nil
}

func (r *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *GormStore) Close() error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
