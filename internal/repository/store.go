package repository

import (
	"context"
	"time"
	"visual_experiment/internal/model"
)

// ExperimentStore 参与者记录与试验组指令日志的持久化接口。
// JSON 文件与关系型数据库两种实现语义一致，由配置决定使用哪一种。
type ExperimentStore interface {
	// Init 建表或创建空数据文件，重复调用不会丢失数据
	Init(ctx context.Context) error
	// Load 返回全部参与者（按时间排序）和指令日志（按写入顺序）。
	// 存储不存在或已损坏时返回空数据集，不返回错误。
	Load(ctx context.Context) *model.Dataset
	// UpsertParticipant 按 ID 插入或整体覆盖
	UpsertParticipant(ctx context.Context, p *model.Participant) error
	// AppendInstructions 追加一条指令日志，从不覆盖已有记录
	AppendInstructions(ctx context.Context, participantID string, instructions []string, ts time.Time) error
	// LatestInstructions 最近一条指令日志，没有时返回 util.ErrNoInstructionLog
	LatestInstructions(ctx context.Context) (*model.InstructionLog, error)
	Ping(ctx context.Context) error
	Close() error
}
