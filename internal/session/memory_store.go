package session

import (
	"encoding/json"
	"sync"
	"time"
	"visual_experiment/internal/util"

	"github.com/gin-gonic/gin"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore 进程内会话，cookie 中只保存会话 ID。重启后会话丢失。
type MemoryStore struct {
	opts      Options
	mu        sync.Mutex
	entries   map[string]memoryEntry
	lastSweep time.Time
	now       func() time.Time
}

func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		opts:    opts,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryStore) Load(c *gin.Context) (*Session, error) {
	id, err := c.Cookie(m.opts.CookieName)
	if err != nil || id == "" {
		return &Session{ID: newSessionID()}, nil
	}

	m.mu.Lock()
	entry, ok := m.entries[id]
	if ok && m.now().After(entry.expiresAt) {
		delete(m.entries, id)
		ok = false
	}
	m.mu.Unlock()

	// 未知或过期的 ID 不沿用，重新分配
	if !ok {
		return &Session{ID: newSessionID()}, util.ErrSessionNotFound
	}

	s := &Session{}
	if err := json.Unmarshal(entry.data, s); err != nil {
		return &Session{ID: newSessionID()}, err
	}
	s.ID = id
	return s, nil
}

func (m *MemoryStore) Save(c *gin.Context, s *Session) error {
	if s.ID == "" {
		s.ID = newSessionID()
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}

	now := m.now()
	m.mu.Lock()
	m.entries[s.ID] = memoryEntry{data: data, expiresAt: now.Add(m.opts.MaxAge)}
	if now.Sub(m.lastSweep) > time.Minute {
		for id, e := range m.entries {
			if now.After(e.expiresAt) {
				delete(m.entries, id)
			}
		}
		m.lastSweep = now
	}
	m.mu.Unlock()

	m.opts.setCookie(c, s.ID)
	return nil
}

// Len 当前保存的会话数
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
