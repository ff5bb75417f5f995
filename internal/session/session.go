// Package session は署名付きCookieによるセッション (フラッシュメッセージとCSRFトークン) を扱います。
package session

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

const (
	CookieName    = "session"
	CSRFFieldName = "csrf_token"
	contextKey    = "session"
)

// ErrInvalidSession はCookieの署名や有効期限が不正な場合のエラーです。
var ErrInvalidSession = errors.New("invalid session")

// Flash は次の画面で一度だけ表示するメッセージです。
type Flash struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Session はリクエストごとのセッション状態です。
type Session struct {
	CSRF    string
	Flashes []Flash
}

// AddFlash はフラッシュメッセージを追加します。
func (s *Session) AddFlash(category, message string) {
	s.Flashes = append(s.Flashes, Flash{Category: category, Message: message})
}

// PopFlashes はフラッシュメッセージを取り出して空にします。
func (s *Session) PopFlashes() []Flash {
	flashes := s.Flashes
	s.Flashes = nil
	return flashes
}

type claims struct {
	jwt.RegisteredClaims
	CSRF    string  `json:"csrf"`
	Flashes []Flash `json:"flashes,omitempty"`
}

// Manager はセッションCookieの署名と検証を行います。
type Manager struct {
	key      []byte
	lifetime time.Duration
	secure   bool
}

// NewManager は新しいManagerを作成します。署名鍵はsecretKeyからHKDFで導出します。
func NewManager(secretKey string, lifetime time.Duration, secure bool) (*Manager, error) {
	if secretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secretKey), nil, []byte("session-cookie")), key); err != nil {
		return nil, fmt.Errorf("failed to derive session key: %w", err)
	}
	return &Manager{key: key, lifetime: lifetime, secure: secure}, nil
}

// Encode はセッションを署名付きトークンにします。
func (m *Manager) Encode(s *Session) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.lifetime)),
		},
		CSRF:    s.CSRF,
		Flashes: s.Flashes,
	})
	signed, err := token.SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, nil
}

// Decode はトークンを検証してセッションを復元します。
func (m *Manager) Decode(tokenString string) (*Session, error) {
	var c claims
	_, err := jwt.ParseWithClaims(tokenString, &c, func(token *jwt.Token) (interface{}, error) {
		return m.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if c.CSRF == "" {
		return nil, fmt.Errorf("%w: missing csrf token", ErrInvalidSession)
	}
	return &Session{CSRF: c.CSRF, Flashes: c.Flashes}, nil
}

// New はCSRFトークンだけを持つ新しいセッションを返します。
func New() *Session {
	return &Session{CSRF: uuid.NewString()}
}

// Middleware はCookieからセッションを読み込み、コンテキストに設定します。
// Cookieが無いか不正な場合は新しいセッションを発行します。
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var sess *Session
		if raw, err := c.Cookie(CookieName); err == nil {
			sess, err = m.Decode(raw)
			if err != nil {
				sess = nil
			}
		}
		if sess == nil {
			sess = New()
			c.Set(contextKey, sess)
			if err := m.Save(c); err != nil {
				c.AbortWithError(http.StatusInternalServerError, err)
				return
			}
		} else {
			c.Set(contextKey, sess)
		}
		c.Next()
	}
}

// Get はコンテキストのセッションを返します。
func Get(c *gin.Context) *Session {
	if v, ok := c.Get(contextKey); ok {
		if sess, ok := v.(*Session); ok {
			return sess
		}
	}
	return New()
}

// Save はセッションCookieを書き込みます。レスポンス本体を書く前に呼び出してください。
func (m *Manager) Save(c *gin.Context) error {
	value, err := m.Encode(Get(c))
	if err != nil {
		return err
	}
	dropQueuedCookie(c.Writer.Header())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, value, int(m.lifetime.Seconds()), "/", "", m.secure, true)
	return nil
}

// dropQueuedCookie はこのリクエストで既に追加したセッションCookieを取り除きます。
// 1つのレスポンスに同名のSet-Cookieが複数並ばないようにします。
func dropQueuedCookie(h http.Header) {
	queued := h.Values("Set-Cookie")
	if len(queued) == 0 {
		return
	}
	kept := make([]string, 0, len(queued))
	for _, v := range queued {
		if !strings.HasPrefix(v, CookieName+"=") {
			kept = append(kept, v)
		}
	}
	h.Del("Set-Cookie")
	for _, v := range kept {
		h.Add("Set-Cookie", v)
	}
}

// CSRFProtect は安全でないメソッドのフォーム送信でCSRFトークンを検証します。
func (m *Manager) CSRFProtect(onFailure gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		sent := c.PostForm(CSRFFieldName)
		if sent == "" {
			sent = c.GetHeader("X-CSRF-Token")
		}
		expected := Get(c).CSRF
		if sent == "" || subtle.ConstantTimeCompare([]byte(sent), []byte(expected)) != 1 {
			onFailure(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
