package session

import (
	"fmt"
	"time"
	"visual_experiment/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type claims struct {
	Session *Session `json:"session"`
	jwt.RegisteredClaims
}

// CookieStore 整个会话以 HS256 签名的 JWT 放在 cookie 中，服务端不保存状态。
// 浏览器对单个 cookie 有 4KB 限制，指令很长时可能被截断，此时请改用 memory 或 redis。
type CookieStore struct {
	opts   Options
	secret []byte
}

func NewCookieStore(secret string, opts Options) *CookieStore {
	return &CookieStore{opts: opts, secret: []byte(secret)}
}

func (cs *CookieStore) Load(c *gin.Context) (*Session, error) {
	token, err := c.Cookie(cs.opts.CookieName)
	if err != nil || token == "" {
		return &Session{}, nil
	}

	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return cs.secret, nil
	})
	if err != nil {
		return &Session{}, fmt.Errorf("%w: %v", util.ErrInvalidSession, err)
	}

	cl, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || cl.Session == nil {
		return &Session{}, util.ErrInvalidSession
	}
	return cl.Session, nil
}

func (cs *CookieStore) Save(c *gin.Context, s *Session) error {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims{
		Session: s,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cs.opts.MaxAge)),
		},
	})

	signed, err := token.SignedString(cs.secret)
	if err != nil {
		return err
	}

	cs.opts.setCookie(c, signed)
	return nil
}
