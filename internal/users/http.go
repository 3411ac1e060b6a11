package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/UrielCuriel/prueba-backend/internal/auth"
	"github.com/UrielCuriel/prueba-backend/internal/httpx"
	"github.com/UrielCuriel/prueba-backend/internal/models"
	"github.com/UrielCuriel/prueba-backend/internal/store"
)

// UserService はハンドラーが利用するユーザー操作です。*Service が実装します。
type UserService interface {
	Create(ctx context.Context, in CreateInput) (*models.User, error)
	Get(ctx context.Context, id int64) (*models.User, error)
	Find(ctx context.Context, criteria store.UserCriteria) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	Update(ctx context.Context, id int64, in UpdateInput) (*models.User, error)
	Delete(ctx context.Context, id int64) error
}

// RegisterRoutes は /users 配下のルートを登録します。登録以外はゲートで保護されます。
func RegisterRoutes(r gin.IRouter, svc UserService, gate *auth.Gate, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	group := r.Group("/users")
	group.POST("", CreateHandler(svc, logger))

	protected := group.Group("", gate.RequireAuth())
	protected.GET("", ListHandler(svc, logger))
	protected.POST("/find", FindHandler(svc, logger))
	protected.GET("/:id", GetHandler(svc, logger))
	protected.PATCH("/:id", UpdateHandler(svc, logger))
	protected.DELETE("/:id", DeleteHandler(svc, logger))
}

// CreateHandler は POST /users のハンドラーを返します。
func CreateHandler(svc UserService, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in CreateInput
		if err := c.ShouldBindJSON(&in); err != nil {
			httpx.Error(c, http.StatusBadRequest, httpx.CodeInvalidInput, "Send username, email and password as JSON")
			return
		}

		user, err := svc.Create(c.Request.Context(), in)
		if err != nil {
			respondWithError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, user)
	}
}

// ListHandler は GET /users のハンドラーを返します。
func ListHandler(svc UserService, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := svc.List(c.Request.Context())
		if err != nil {
			respondWithError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, users)
	}
}

// GetHandler は GET /users/:id のハンドラーを返します。
func GetHandler(svc UserService, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}
		user, err := svc.Get(c.Request.Context(), id)
		if err != nil {
			respondWithError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

type findRequest struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// FindHandler は POST /users/find のハンドラーを返します。
func FindHandler(svc UserService, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req findRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.Error(c, http.StatusBadRequest, httpx.CodeInvalidInput, "Send id, email or username as JSON")
			return
		}

		user, err := svc.Find(c.Request.Context(), store.UserCriteria{
			ID:       req.ID,
			Email:    req.Email,
			Username: req.Username,
		})
		if err != nil {
			respondWithError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// UpdateHandler は PATCH /users/:id のハンドラーを返します。本人のみ更新できます。
func UpdateHandler(svc UserService, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := selfOnly(c)
		if !ok {
			return
		}

		var in UpdateInput
		if err := c.ShouldBindJSON(&in); err != nil {
			httpx.Error(c, http.StatusBadRequest, httpx.CodeInvalidInput, "Send the fields to update as JSON")
			return
		}

		user, err := svc.Update(c.Request.Context(), id, in)
		if err != nil {
			respondWithError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// DeleteHandler は DELETE /users/:id のハンドラーを返します。本人のみ削除でき、削除後はセッションも破棄します。
func DeleteHandler(svc UserService, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := selfOnly(c)
		if !ok {
			return
		}

		if err := svc.Delete(c.Request.Context(), id); err != nil {
			respondWithError(c, logger, err)
			return
		}
		if err := auth.ClearSession(c); err != nil {
			logger.Warn("failed to clear session after delete", "user_id", id, "error", err)
		}
		c.Status(http.StatusNoContent)
	}
}

// selfOnly はパスの :id がゲートで解決した本人と一致するかを確認します。
func selfOnly(c *gin.Context) (int64, bool) {
	id, ok := httpx.ParamID(c, "id")
	if !ok {
		return 0, false
	}
	identity, ok := auth.IdentityFromContext(c)
	if !ok || identity.ID != id {
		httpx.Error(c, http.StatusForbidden, httpx.CodeForbidden, "You can only modify your own account")
		return 0, false
	}
	return id, true
}

func respondWithError(c *gin.Context, logger *slog.Logger, err error) {
	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		httpx.InvalidInput(c, err)
	case errors.Is(err, ErrEmptyCriteria):
		httpx.Error(c, http.StatusBadRequest, httpx.CodeInvalidInput, err.Error())
	case errors.Is(err, ErrUserExists):
		httpx.Error(c, http.StatusConflict, httpx.CodeConflict, "Username or email is already taken")
	case errors.Is(err, ErrNotFound):
		httpx.Error(c, http.StatusNotFound, httpx.CodeNotFound, "User not found")
	default:
		httpx.Internal(c, logger, err)
	}
}
