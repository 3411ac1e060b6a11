package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// UnauthorizedBody はゲートが返す 401 のレスポンスボディです。
type UnauthorizedBody struct {
	Error UnauthorizedError `json:"error"`
}

// UnauthorizedError は UnauthorizedBody の中身です。
type UnauthorizedError struct {
	StatusCode int    `json:"statusCode"`
	Name       string `json:"name"`
	Message    string `json:"message"`
}

// Gate はセッションまたは Bearer トークンで保護ルートを守ります。
// SessionMiddleware より後に登録する必要があります。
type Gate struct {
	verifier   TokenVerifier
	sessionTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewGate は Gate を作成します。sessionTTL はトークンから作るセッションの寿命です。
func NewGate(verifier TokenVerifier, sessionTTL time.Duration, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		verifier:   verifier,
		sessionTTL: sessionTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// RequireAuth はゲートのミドルウェアを返します。
func (g *Gate) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		now := g.now()

		current, err := loadIdentity(session, now)
		if err != nil {
			// 古い Identity は読み捨てているので判定はそのまま続ける
			g.logger.Warn("failed to clear expired session", "error", err, "path", c.Request.URL.Path)
		}
		decision := Evaluate(current, c.GetHeader("Authorization"), g.verifier)

		switch decision.Outcome {
		case OutcomeSession:
			setContextIdentity(c, current)
			c.Next()

		case OutcomeAuthorized:
			identity := NewIdentity(decision.Claims.Snapshot(), now, g.sessionTTL)
			if err := saveIdentity(session, identity); err != nil {
				g.logger.Error("failed to save session", "error", err, "user_id", identity.ID)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"code":    "SESSION_SAVE_FAILED",
					"message": "Failed to save session",
				})
				return
			}
			setContextIdentity(c, &identity)
			c.Next()

		default:
			g.logger.Debug("request rejected by gate",
				"outcome", decision.Outcome.String(),
				"path", c.Request.URL.Path,
				"error", decision.Err,
			)
			abortUnauthorized(c, decision.Outcome.Message())
		}
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, UnauthorizedBody{
		Error: UnauthorizedError{
			StatusCode: http.StatusUnauthorized,
			Name:       unauthorizedName,
			Message:    message,
		},
	})
}
