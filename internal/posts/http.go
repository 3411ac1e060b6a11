package posts

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
)

// PostService はハンドラーが利用する記事操作です。*Service が実装します。
type PostService interface {
	List(ctx context.Context) ([]*models.Post, error)
	GetBySlug(ctx context.Context, slug string) (*models.Post, error)
	Create(ctx context.Context, authorID int64, in CreateInput) (*models.Post, error)
	ListComments(ctx context.Context, slug string) ([]*models.Comment, error)
	AddComment(ctx context.Context, slug string, authorID int64, in CommentInput) (*models.Comment, error)
}

// RegisterRoutes は /posts 配下のルートを登録します。閲覧は公開、投稿はゲートで保護されます。
func RegisterRoutes(r gin.IRouter, svc PostService, gate *auth.Gate, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	group := r.Group("/posts")
	group.GET("", ListHandler(svc, logger))
	group.GET("/:slug", GetHandler(svc, logger))
	group.GET("/:slug/comments", ListCommentsHandler(svc, logger))
	group.POST("", gate.RequireAuth(), CreateHandler(svc, logger))
	group.POST("/:slug/comments", gate.RequireAuth(), AddCommentHandler(svc, logger))
}

// ListHandler は GET /posts のハンドラーを返します。
func ListHandler(svc PostService, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		posts, err := svc.List(c.Request.Context())
		if err != nil {
			respondWithError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, posts)
	}
}

// GetHandler は GET /posts/:slug のハンドラーを返します。
func GetHandler(svc PostService, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		post, err := svc.GetBySlug(c.Request.Context(), c.Param("slug"))
		if err != nil {
			respondWithError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, post)
	}
}

// CreateHandler は POST /posts のハンドラーを返します。著者はゲートで解決した本人です。
func CreateHandler(svc PostService, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := auth.IdentityFromContext(c)
		if !ok {
			httpx.Error(c, http.StatusForbidden, httpx.CodeForbidden, "Sign in to write posts")
			return
		}

		var in CreateInput
		if err := c.ShouldBindJSON(&in); err != nil {
			httpx.Error(c, http.StatusBadRequest, httpx.CodeInvalidInput, "Send title and content as JSON")
			return
		}

		post, err := svc.Create(c.Request.Context(), identity.ID, in)
		if err != nil {
			respondWithError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, post)
	}
}

// ListCommentsHandler は GET /posts/:slug/comments のハンドラーを返します。
func ListCommentsHandler(svc PostService, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		comments, err := svc.ListComments(c.Request.Context(), c.Param("slug"))
		if err != nil {
			respondWithError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, comments)
	}
}

// AddCommentHandler は POST /posts/:slug/comments のハンドラーを返します。
func AddCommentHandler(svc PostService, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := auth.IdentityFromContext(c)
		if !ok {
			httpx.Error(c, http.StatusForbidden, httpx.CodeForbidden, "Sign in to comment")
			return
		}

		var in CommentInput
		if err := c.ShouldBindJSON(&in); err != nil {
			httpx.Error(c, http.StatusBadRequest, httpx.CodeInvalidInput, "Send content as JSON")
			return
		}

		comment, err := svc.AddComment(c.Request.Context(), c.Param("slug"), identity.ID, in)
		if err != nil {
			respondWithError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, comment)
	}
}

func respondWithError(c *gin.Context, logger *slog.Logger, err error) {
	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		httpx.InvalidInput(c, err)
	case errors.Is(err, ErrNotFound):
		httpx.Error(c, http.StatusNotFound, httpx.CodeNotFound, "Post not found")
	case errors.Is(err, ErrAuthorNotFound):
		httpx.Error(c, http.StatusForbidden, httpx.CodeForbidden, "Your account no longer exists")
	default:
		httpx.Internal(c, logger, err)
	}
}
