package model

import "time"

// Demographic 基本信息，表单缺失的字段保持为空字符串
type Demographic struct {
	Gender string `json:"gender"`
	Age    string `json:"age"`
	Major  string `json:"major"`
}

// Evaluation 单轮评估结果，键为 q<题号>，未提交的题目值为 nil
type Evaluation map[string]*string

// Participant 完成实验的参与者记录
// swagger:model
type Participant struct {
	ID           string       `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Group        string       `gorm:"column:group_type;type:varchar(32)" json:"group"`
	Demographic  Demographic  `gorm:"type:text;serializer:json" json:"demographic"`
	Timestamp    time.Time    `gorm:"index" json:"timestamp"`
	Instructions []string     `gorm:"type:text;serializer:json" json:"instructions"`
	Evaluations  []Evaluation `gorm:"type:text;serializer:json" json:"evaluations"`
}

func (Participant) TableName() string {
	return "participants"
}
