package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
	"visual_experiment/pkg/logger"
	"visual_experiment/pkg/monitoring"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	// 多实例部署时通过 Redis 频道转发
	progressChannel = "experiment_progress"
)

const (
	EventTrialSubmitted       = "TRIAL_SUBMITTED"
	EventParticipantCompleted = "PARTICIPANT_COMPLETED"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ProgressEvent 推送给调试页面的实验进度
type ProgressEvent struct {
	Type          string    `json:"type"`
	ParticipantID string    `json:"participant_id"`
	Group         string    `json:"group"`
	Trial         int       `json:"trial"`
	Timestamp     time.Time `json:"timestamp"`
}

type ProgressNotifier interface {
	Publish(ctx context.Context, ev ProgressEvent)
}

type viewer struct {
	hub  *ProgressHub
	conn *websocket.Conn
	send chan []byte
}

// readPump 只处理 pong 和关闭，浏览器发来的内容直接丢弃
func (v *viewer) readPump() {
	defer func() {
		v.hub.leave(v)
		v.conn.Close()
	}()
	v.conn.SetReadLimit(maxMessageSize)
	v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error { v.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Warn("live feed unexpected close", zap.Error(err))
			}
			return
		}
	}
}

func (v *viewer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		v.conn.Close()
	}()
	for {
		select {
		case message, ok := <-v.send:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				v.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := v.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ProgressHub 管理 /debug/live 的 websocket 连接并广播进度事件。
// 配置了 Redis 时事件先发布到频道，由各实例订阅后推送给本地连接。
type ProgressHub struct {
	mu         sync.RWMutex
	viewers    map[*viewer]struct{}
	register   chan *viewer
	unregister chan *viewer
	done       chan struct{}
	redis      *redis.Client
}

func NewProgressHub(rdb *redis.Client) *ProgressHub {
	return &ProgressHub{
		viewers:    make(map[*viewer]struct{}),
		register:   make(chan *viewer),
		unregister: make(chan *viewer),
		done:       make(chan struct{}),
		redis:      rdb,
	}
}

// Run 阻塞直到 ctx 结束，结束时关闭所有连接
func (h *ProgressHub) Run(ctx context.Context) {
	defer close(h.done)

	if h.redis != nil {
		pubsub := h.redis.Subscribe(ctx, progressChannel)
		defer pubsub.Close()
		go func() {
			for msg := range pubsub.Channel() {
				h.broadcastLocal([]byte(msg.Payload))
			}
		}()
	}

	for {
		select {
		case v := <-h.register:
			h.mu.Lock()
			h.viewers[v] = struct{}{}
			h.mu.Unlock()
			monitoring.LiveViewers.Inc()

		case v := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.viewers[v]; ok {
				delete(h.viewers, v)
				close(v.send)
				monitoring.LiveViewers.Dec()
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for v := range h.viewers {
				close(v.send)
				delete(h.viewers, v)
			}
			h.mu.Unlock()
			monitoring.LiveViewers.Set(0)
			return
		}
	}
}

func (h *ProgressHub) leave(v *viewer) {
	select {
	case h.unregister <- v:
	case <-h.done:
	}
}

// Publish 发送失败只记日志
func (h *ProgressHub) Publish(ctx context.Context, ev ProgressEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Log.Error("marshal progress event", zap.Error(err))
		return
	}
	monitoring.ProgressEvents.WithLabelValues(ev.Type).Inc()

	if h.redis != nil {
		err := h.redis.Publish(ctx, progressChannel, payload).Err()
		if err == nil {
			return
		}
		logger.Log.Warn("redis publish failed, delivering locally", zap.Error(err))
	}
	h.broadcastLocal(payload)
}

func (h *ProgressHub) broadcastLocal(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for v := range h.viewers {
		select {
		case v.send <- payload:
		default:
		}
	}
}

// Len 当前连接数
func (h *ProgressHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

func (h *ProgressHub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	v := &viewer{hub: h, conn: conn, send: make(chan []byte, 64)}
	select {
	case h.register <- v:
	case <-h.done:
		conn.Close()
		return
	}

	go v.writePump()
	go v.readPump()
}
