package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/UrielCuriel/prueba-backend/internal/models"
)

// CredentialStore はユーザーの参照を提供します。
// FindByEmail は withPassword が true のときのみパスワードハッシュを読み込みます。
// どちらのメソッドも、該当ユーザーがいない場合は (nil, nil) を返します。
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string, withPassword bool) (*models.User, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
}

// LoginResult はログイン成功時の結果です。User はセッションに保存するためのスナップショットです。
type LoginResult struct {
	Token string       `json:"token"`
	User  UserSnapshot `json:"-"`
}

// lookupTimeout はストア参照 1 回あたりの上限時間です。
const lookupTimeout = 5 * time.Second

// Authenticator はメールアドレスとパスワードによるログインと、トークンからのユーザー解決を行います。
type Authenticator struct {
	users  CredentialStore
	codec  *TokenCodec
	logger *slog.Logger
}

// NewAuthenticator は Authenticator を作成します。
func NewAuthenticator(users CredentialStore, codec *TokenCodec, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		users:  users,
		codec:  codec,
		logger: logger,
	}
}

// Login はメールアドレスとパスワードを検証し、成功したらトークンを発行します。
// ユーザーが存在しない場合もパスワードが違う場合も ErrInvalidCredentials を返します。
// ストアの障害は ErrInvalidCredentials には変換されません。
func (a *Authenticator) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
	user, err := a.users.FindByEmail(lookupCtx, email, true)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if user == nil {
		burnCompare(password)
		return nil, ErrInvalidCredentials
	}
	if !ComparePassword(user.Password, password) {
		a.logger.Debug("login password mismatch", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	snapshot := snapshotOf(user)
	token, err := a.codec.Issue(snapshot)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return &LoginResult{Token: token, User: snapshot}, nil
}

// ValidateUser はトークンを検証した上でユーザーを再取得します。
// 検証失敗は ErrInvalidToken、ユーザーが削除済みなら ErrUserNotFound を返します。
// 戻り値のユーザーにパスワードは含まれません。
func (a *Authenticator) ValidateUser(ctx context.Context, token string) (*models.User, error) {
	claims, err := a.codec.Verify(token)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return nil, err
		}
		return nil, fmt.Errorf("validate user: %w", err)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	user, err := a.users.FindByID(lookupCtx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("validate user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	user.Password = ""
	return user, nil
}

func snapshotOf(user *models.User) UserSnapshot {
	return UserSnapshot{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
	}
}
