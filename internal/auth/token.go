package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// UserSnapshot はトークンとセッションに埋め込むユーザー情報です（パスワードは含みません）。
type UserSnapshot struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// Claims はトークンに含まれる本人性の主張です。発行後は変更されません。
type Claims struct {
	UserID int64         `json:"id"`
	User   *UserSnapshot `json:"user,omitempty"`
	jwt.RegisteredClaims
}

// Snapshot はクレームが表すユーザーを返します。埋め込みユーザーがなければ ID のみを返します。
func (c *Claims) Snapshot() UserSnapshot {
	if c.User != nil {
		s := *c.User
		if s.ID == 0 {
			s.ID = c.UserID
		}
		return s
	}
	return UserSnapshot{ID: c.UserID}
}

// TokenVerifier はトークンの検証を行います。
type TokenVerifier interface {
	Verify(token string) (*Claims, error)
}

// TokenCodec は共有鍵で署名された期限付きトークンを発行・検証します。
// 状態を持たないため並行して呼び出せます。
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewTokenCodec は TokenCodec を作成します。ttl は Issue で使う既定の有効期間です。
func NewTokenCodec(secret []byte, ttl time.Duration, issuer string) *TokenCodec {
	return &TokenCodec{
		secret: secret,
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
	}
}

// Issue は既定の有効期間でトークンを発行します。
func (c *TokenCodec) Issue(user UserSnapshot) (string, error) {
	return c.IssueWithTTL(user, c.ttl)
}

// IssueWithTTL は有効期間を指定してトークンを発行します。負の値を渡すと発行時点で期限切れになります。
func (c *TokenCodec) IssueWithTTL(user UserSnapshot, ttl time.Duration) (string, error) {
	return issueToken(user, c.secret, ttl, c.issuer, c.now())
}

// Verify はトークンの署名と有効期限を検証し、クレームを返します。
// 失敗時は ErrInvalidToken を（原因をラップして）返します。
func (c *TokenCodec) Verify(token string) (*Claims, error) {
	var opts []jwt.ParserOption
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	opts = append(opts, jwt.WithTimeFunc(c.now))
	return verifyToken(token, c.secret, opts...)
}

// IssueToken は user を埋め込んだトークンを secret で署名して返します。
func IssueToken(user UserSnapshot, secret []byte, ttl time.Duration) (string, error) {
	return issueToken(user, secret, ttl, "", time.Now())
}

// VerifyToken はトークンを secret で検証します。ユーザーストアは参照しません。
func VerifyToken(token string, secret []byte) (*Claims, error) {
	return verifyToken(token, secret)
}

func issueToken(user UserSnapshot, secret []byte, ttl time.Duration, issuer string, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", ErrMissingSecret
	}
	if user.ID <= 0 {
		return "", fmt.Errorf("issue token: invalid user id %d", user.ID)
	}

	snapshot := user
	claims := &Claims{
		UserID: user.ID,
		User:   &snapshot,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func verifyToken(tokenString string, secret []byte, opts ...jwt.ParserOption) (*Claims, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}

	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: expired", ErrInvalidToken)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == 0 && claims.User != nil {
		claims.UserID = claims.User.ID
	}
	if claims.UserID <= 0 {
		return nil, fmt.Errorf("%w: missing id claim", ErrInvalidToken)
	}
	return claims, nil
}
