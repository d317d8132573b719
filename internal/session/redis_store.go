package session

import (
	"encoding/json"
	"errors"
	"visual_experiment/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "session:"

// RedisStore 会话内容以 JSON 存在 Redis，过期时间与 cookie 一致
type RedisStore struct {
	opts  Options
	Redis *redis.Client
}

func NewRedisStore(rdb *redis.Client, opts Options) *RedisStore {
	return &RedisStore{opts: opts, Redis: rdb}
}

func (r *RedisStore) Load(c *gin.Context) (*Session, error) {
	id, err := c.Cookie(r.opts.CookieName)
	if err != nil || id == "" {
		return &Session{ID: newSessionID()}, nil
	}

	raw, err := r.Redis.Get(c.Request.Context(), redisKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &Session{ID: newSessionID()}, util.ErrSessionNotFound
		}
		return &Session{ID: newSessionID()}, err
	}

	s := &Session{}
	if err := json.Unmarshal(raw, s); err != nil {
		return &Session{ID: newSessionID()}, err
	}
	s.ID = id
	return s, nil
}

func (r *RedisStore) Save(c *gin.Context, s *Session) error {
	if s.ID == "" {
		s.ID = newSessionID()
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}

	if err := r.Redis.Set(c.Request.Context(), redisKeyPrefix+s.ID, raw, r.opts.MaxAge).Err(); err != nil {
		return err
	}

	r.opts.setCookie(c, s.ID)
	return nil
}
