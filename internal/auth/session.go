package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-contrib/sessions/memstore"
	"github.com/gin-gonic/gin"
)

const (
	SessionCookieName = "blog_session"
	sessionKeyUser    = "user"
)

// Identity はセッションに保存される本人情報です。
// 作成後は変更せず、更新する場合は丸ごと置き換えます。ExpiresAt を過ぎたものは無効です。
type Identity struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NewIdentity は now から ttl の間有効な Identity を作成します。
func NewIdentity(user UserSnapshot, now time.Time, ttl time.Duration) Identity {
	return Identity{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: now.UTC(),
		ExpiresAt: now.Add(ttl).UTC(),
	}
}

// Expired は now の時点で期限切れかどうかを返します。
func (i Identity) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// SessionOptions はセッションストアの設定です。
type SessionOptions struct {
	Kind   string // "memory" または "cookie"
	Secret []byte
	TTL    time.Duration
	Secure bool
}

// NewSessionStore はセッションストアを作成します。
// memory はサーバー側に保持し Cookie には ID のみを載せ、cookie は署名付き Cookie に内容を保持します。
func NewSessionStore(opts SessionOptions) (sessions.Store, error) {
	if len(opts.Secret) == 0 {
		return nil, fmt.Errorf("session secret is empty")
	}

	var store sessions.Store
	switch opts.Kind {
	case "", "memory":
		store = memstore.NewStore(opts.Secret)
	case "cookie":
		store = cookie.NewStore(opts.Secret)
	default:
		return nil, fmt.Errorf("unknown session store %q", opts.Kind)
	}

	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(opts.TTL.Seconds()),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return store, nil
}

// SessionMiddleware は SessionCookieName でセッションを扱うミドルウェアを返します。
func SessionMiddleware(store sessions.Store) gin.HandlerFunc {
	return sessions.Sessions(SessionCookieName, store)
}

// loadIdentity はセッションから Identity を読み出します。
// 壊れている・期限切れの Identity はセッションから取り除き、nil を返します。
// 取り除いた結果の保存に失敗した場合はそのエラーも返しますが、Identity は常に nil です。
func loadIdentity(s sessions.Session, now time.Time) (*Identity, error) {
	raw, ok := s.Get(sessionKeyUser).(string)
	if !ok || raw == "" {
		return nil, nil
	}

	var identity Identity
	if err := json.Unmarshal([]byte(raw), &identity); err != nil || identity.ID <= 0 || identity.Expired(now) {
		s.Delete(sessionKeyUser)
		if err := s.Save(); err != nil {
			return nil, fmt.Errorf("clear stale session identity: %w", err)
		}
		return nil, nil
	}
	return &identity, nil
}

func saveIdentity(s sessions.Session, identity Identity) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return err
	}
	s.Set(sessionKeyUser, string(data))
	return s.Save()
}

func clearIdentity(s sessions.Session) error {
	s.Clear()
	s.Options(sessions.Options{Path: "/", MaxAge: -1})
	return s.Save()
}

// ClearSession は現在のリクエストのセッションを破棄します。
func ClearSession(c *gin.Context) error {
	return clearIdentity(sessions.Default(c))
}
