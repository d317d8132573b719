package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
	"visual_experiment/internal/model"
	"visual_experiment/internal/util"
	"visual_experiment/pkg/logger"

	"go.uber.org/zap"
)

// JSONStore 单个 JSON 文档实现，顶层三个键：
// participants / experiment_group_data / current_participant_id。
// 只支持单进程写入。
type JSONStore struct {
	path string
	mu   sync.RWMutex
}

func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

func (r *JSONStore) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if dir := filepath.Dir(r.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}

	if _, err := os.Stat(r.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	return r.write(model.EmptyDataset())
}

func (r *JSONStore) Load(ctx context.Context) *model.Dataset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data := r.read()
	sort.SliceStable(data.Participants, func(i, j int) bool {
		return data.Participants[i].Timestamp.Before(data.Participants[j].Timestamp)
	})
	return data
}

func (r *JSONStore) UpsertParticipant(ctx context.Context, p *model.Participant) error {
	if p.ID == "" {
		return util.ErrMissingParticipant
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	data := r.read()
	replaced := false
	for i := range data.Participants {
		if data.Participants[i].ID == p.ID {
			data.Participants[i] = *p
			replaced = true
			break
		}
	}
	if !replaced {
		data.Participants = append(data.Participants, *p)
	}
	data.CurrentParticipantID = len(data.Participants)

	return r.write(data)
}

func (r *JSONStore) AppendInstructions(ctx context.Context, participantID string, instructions []string, ts time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := r.read()
	data.ExperimentGroupData = append(data.ExperimentGroupData, model.InstructionLog{
		ParticipantID: participantID,
		Instructions:  instructions,
		Timestamp:     ts,
	})

	return r.write(data)
}

func (r *JSONStore) LatestInstructions(ctx context.Context) (*model.InstructionLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data := r.read()
	if len(data.ExperimentGroupData) == 0 {
		return nil, util.ErrNoInstructionLog
	}
	latest := data.ExperimentGroupData[len(data.ExperimentGroupData)-1]
	return &latest, nil
}

func (r *JSONStore) Ping(ctx context.Context) error {
	_, err := os.Stat(filepath.Dir(r.path))
	return err
}

func (r *JSONStore) Close() error {
	return nil
}

// read 读取整个文档；文件缺失或内容损坏时记录日志并返回空数据集
func (r *JSONStore) read() *model.Dataset {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Log.Warn("读取数据文件失败，按空数据处理", zap.String("path", r.path), zap.Error(err))
		}
		return model.EmptyDataset()
	}

	data := model.EmptyDataset()
	if err := json.Unmarshal(raw, data); err != nil {
		logger.Log.Warn("数据文件已损坏，按空数据处理", zap.String("path", r.path), zap.Error(err))
		return model.EmptyDataset()
	}
	if data.Participants == nil {
		data.Participants = []model.Participant{}
	}
	if data.ExperimentGroupData == nil {
		data.ExperimentGroupData = []model.InstructionLog{}
	}
	return data
}

// write 先写临时文件再 rename，读方不会看到写了一半的文档
func (r *JSONStore) write(data *model.Dataset) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, r.path)
}
