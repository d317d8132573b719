package session

import (
	"net/http"
	"time"
	"visual_experiment/internal/config"
	"visual_experiment/internal/model"
	"visual_experiment/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const contextKey = "experiment_session"

// Session 一次浏览器访问期间的实验状态
type Session struct {
	ID                   string             `json:"-"`
	ParticipantID        string             `json:"participant_id"`
	Group                string             `json:"group,omitempty"`
	Demographic          *model.Demographic `json:"demographic,omitempty"`
	Instructions         []string           `json:"instructions,omitempty"`
	Evaluations          []model.Evaluation `json:"evaluations,omitempty"`
	CurrentTrial         int                `json:"current_trial"`
	PreviousInstructions []string           `json:"previous_instructions,omitempty"`
}

// Reset 清空全部状态，会话 ID 与参与者编号都重新分配
func (s *Session) Reset() {
	*s = Session{ID: newSessionID(), ParticipantID: NewParticipantID()}
}

// NewParticipantID 8 位随机参与者编号
func NewParticipantID() string {
	return uuid.New().String()[:util.ParticipantIDLength]
}

func newSessionID() string {
	return uuid.New().String()
}

// Store 会话存储后端：内存、Redis 或签名 Cookie。
// Load 在处理请求前调用；Save 必须在写响应之前调用。
type Store interface {
	Load(c *gin.Context) (*Session, error)
	Save(c *gin.Context, s *Session) error
}

// Options cookie 相关设置，所有后端共用
type Options struct {
	CookieName string
	MaxAge     time.Duration
	Secure     bool
}

func OptionsFromConfig(cfg *config.SessionConfig, mode string) Options {
	return Options{
		CookieName: cfg.CookieName,
		MaxAge:     cfg.MaxAge,
		Secure:     mode == "release",
	}
}

func (o Options) setCookie(c *gin.Context, value string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(o.CookieName, value, int(o.MaxAge.Seconds()), "/", "", o.Secure, true)
}

// FromContext 取出中间件放入的会话；不存在时返回一个未持久化的空会话
func FromContext(c *gin.Context) *Session {
	if v, ok := c.Get(contextKey); ok {
		if s, ok := v.(*Session); ok {
			return s
		}
	}
	s := &Session{}
	c.Set(contextKey, s)
	return s
}

// Attach 中间件使用
func Attach(c *gin.Context, s *Session) {
	c.Set(contextKey, s)
}
