package model

import "time"

// InstructionLog 试验组参与者写下的一组指令，供后续控制组使用
// swagger:model
type InstructionLog struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	ParticipantID string    `gorm:"type:varchar(36);index" json:"participant_id"`
	Instructions  []string  `gorm:"type:text;serializer:json" json:"instructions"`
	Timestamp     time.Time `json:"timestamp"`
}

func (InstructionLog) TableName() string {
	return "experiment_instructions"
}

// Dataset 存储中的全部数据，/debug 与 JSON 文件存储共用此结构
type Dataset struct {
	Participants         []Participant    `json:"participants"`
	ExperimentGroupData  []InstructionLog `json:"experiment_group_data"`
	CurrentParticipantID int              `json:"current_participant_id"`
}

// EmptyDataset 返回各集合均非 nil 的空数据集
func EmptyDataset() *Dataset {
	return &Dataset{
		Participants:        []Participant{},
		ExperimentGroupData: []InstructionLog{},
	}
}
