// Package auth は認証・認可機能を提供します。
//
// トークンの発行と検証（TokenCodec）、メールアドレスとパスワードによるログイン（Authenticator）、
// 保護ルートの前段で動くセッションまたは Bearer トークンのゲート（Gate）で構成されます。
package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/UrielCuriel/prueba-backend/internal/httpx"
)

// Handler は /auth 配下のハンドラーです。
type Handler struct {
	authn      *Authenticator
	limiter    Limiter
	sessionTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewHandler は Handler を作成します。limiter が nil の場合は試行制限を行いません。
func NewHandler(authn *Authenticator, limiter Limiter, sessionTTL time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		authn:      authn,
		limiter:    limiter,
		sessionTTL: sessionTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// RegisterRoutes は /auth 配下のルートを登録します。
func (h *Handler) RegisterRoutes(r gin.IRouter, gate *Gate) {
	group := r.Group("/auth")
	group.POST("/login", h.Login)
	group.POST("/logout", h.Logout)
	group.GET("/validate", h.Validate)
	group.GET("/me", gate.RequireAuth(), h.Me)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// Login は POST /auth/login のハンドラーです。
// 成功するとトークンを返し、同時にセッションへ本人情報を保存します。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Error(c, http.StatusBadRequest, httpx.CodeInvalidInput, "Send email and password as JSON")
		return
	}
	if err := req.Validate(); err != nil {
		httpx.InvalidInput(c, err)
		return
	}

	ctx := c.Request.Context()
	ip := c.ClientIP()

	if h.limiter != nil {
		retryAfter, err := h.limiter.Locked(ctx, ip)
		if err != nil {
			// 制限ストアの障害でログインそのものは止めない
			h.logger.Warn("login limiter unavailable", "error", err)
		}
		if retryAfter > 0 {
			// Retry-After は秒数で返す
			c.Header("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()+0.5), 10))
			httpx.Error(c, http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS", "Too many failed attempts, try again later")
			return
		}
	}

	result, err := h.authn.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			body := gin.H{
				"code":    "INVALID_CREDENTIALS",
				"message": MessageInvalidCredentials,
			}
			if h.limiter != nil {
				remaining, lerr := h.limiter.RecordFailure(ctx, ip)
				if lerr != nil {
					h.logger.Warn("failed to record login failure", "error", lerr)
				} else {
					body["remainingAttempts"] = remaining
				}
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, body)
			return
		}
		httpx.Internal(c, h.logger, err)
		return
	}

	if h.limiter != nil {
		if err := h.limiter.Reset(ctx, ip); err != nil {
			h.logger.Warn("failed to reset login attempts", "error", err)
		}
	}

	identity := NewIdentity(result.User, h.now(), h.sessionTTL)
	if err := saveIdentity(sessions.Default(c), identity); err != nil {
		httpx.Internal(c, h.logger, err)
		return
	}

	h.logger.Info("user logged in", "user_id", identity.ID)
	c.JSON(http.StatusOK, gin.H{"token": result.Token})
}

// Logout は POST /auth/logout のハンドラーです。セッションを破棄します（発行済みトークンは失効しません）。
func (h *Handler) Logout(c *gin.Context) {
	if err := ClearSession(c); err != nil {
		httpx.Internal(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Validate は GET /auth/validate のハンドラーです。
// Bearer トークンを検証してユーザーを再取得し、最新のユーザー情報を返します。
func (h *Handler) Validate(c *gin.Context) {
	token, ok := BearerToken(c.GetHeader("Authorization"))
	if !ok {
		httpx.Error(c, http.StatusUnauthorized, "INVALID_TOKEN", MessageInvalidToken)
		return
	}

	user, err := h.authn.ValidateUser(c.Request.Context(), token)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, user)
	case errors.Is(err, ErrInvalidToken):
		httpx.Error(c, http.StatusUnauthorized, "INVALID_TOKEN", MessageInvalidToken)
	case errors.Is(err, ErrUserNotFound):
		httpx.Error(c, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
	default:
		httpx.Internal(c, h.logger, err)
	}
}

// Me は GET /auth/me のハンドラーです。ゲートが解決した本人情報を返します。
func (h *Handler) Me(c *gin.Context) {
	identity, ok := IdentityFromContext(c)
	if !ok {
		abortUnauthorized(c, MessageMissingAuthorization)
		return
	}
	c.JSON(http.StatusOK, identity)
}
