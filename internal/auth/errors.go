package auth

import "errors"

var (
	// ErrInvalidCredentials はメールアドレスが存在しない場合とパスワード不一致の両方で返されます。
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidToken は署名不一致・形式不正・期限切れのトークンを表します。
	ErrInvalidToken = errors.New("invalid token")
	// ErrUserNotFound はトークンは有効だが参照先ユーザーが存在しないことを表します。
	ErrUserNotFound = errors.New("user not found")
	// ErrMissingSecret は署名鍵が設定されていないことを表します。
	ErrMissingSecret = errors.New("token signing secret is empty")
)

// ゲートが返す 401 のメッセージ
const (
	MessageMissingAuthorization = "Missing Authorization Header"
	MessageInvalidToken         = "Invalid Token"

	MessageInvalidCredentials = "Invalid email or password"

	unauthorizedName = "UnauthorizedError"
)
