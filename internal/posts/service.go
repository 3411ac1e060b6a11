// Package posts は記事とコメントの公開・投稿を提供します。
package posts

import (
	"context"
	"errors"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/UrielCuriel/prueba-backend/internal/models"
	"github.com/UrielCuriel/prueba-backend/internal/store"
)

var (
	// ErrNotFound は記事が存在しない場合に返されます。
	ErrNotFound = errors.New("post not found")
	// ErrAuthorNotFound は投稿者のアカウントが既に削除されている場合に返されます。
	// 削除前に発行されたトークンはゲートを通過するため、書き込み時にここで検出します。
	ErrAuthorNotFound = errors.New("author does not exist")
)

// Repository は記事とコメントの永続化を担います。store.PostRepository が実装します。
type Repository interface {
	List(ctx context.Context) ([]*models.Post, error)
	FindBySlug(ctx context.Context, slug string) (*models.Post, error)
	Create(ctx context.Context, post *models.Post) error
	ListComments(ctx context.Context, postID int64) ([]*models.Comment, error)
	CreateComment(ctx context.Context, comment *models.Comment) error
}

// CreateInput は記事投稿の入力です。
type CreateInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Validate は入力を検証します。タイトルは Slug を生成できる文字を含む必要があります。
func (in CreateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title,
			validation.Required,
			validation.Length(1, 200),
			validation.By(func(value any) error {
				title, _ := value.(string)
				if models.Slugify(title) == "" {
					return errors.New("must contain at least one letter or digit")
				}
				return nil
			}),
		),
		validation.Field(&in.Content, validation.Required),
	)
}

// CommentInput はコメント投稿の入力です。
type CommentInput struct {
	Content string `json:"content"`
}

// Validate は入力を検証します。
func (in CommentInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Content, validation.Required, validation.Length(1, 2000)),
	)
}

// Service は記事とコメントに関する処理を提供します。
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService は Service を作成します。
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// List は記事を新しい順に返します。
func (s *Service) List(ctx context.Context) ([]*models.Post, error) {
	posts, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []*models.Post{}
	}
	return posts, nil
}

// GetBySlug は Slug で記事を取得します。
func (s *Service) GetBySlug(ctx context.Context, slug string) (*models.Post, error) {
	post, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, ErrNotFound
	}
	return post, nil
}

// Create は authorID を著者として記事を投稿します。
func (s *Service) Create(ctx context.Context, authorID int64, in CreateInput) (*models.Post, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	post := &models.Post{
		Title:   in.Title,
		Content: in.Content,
		UserID:  authorID,
	}
	if err := s.repo.Create(ctx, post); err != nil {
		if errors.Is(err, store.ErrForeignKey) {
			return nil, ErrAuthorNotFound
		}
		return nil, err
	}

	s.logger.Info("post created", "post_id", post.ID, "slug", post.Slug, "user_id", authorID)
	return post, nil
}

// ListComments は記事のコメントを古い順に返します。
func (s *Service) ListComments(ctx context.Context, slug string) ([]*models.Comment, error) {
	post, err := s.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return s.repo.ListComments(ctx, post.ID)
}

// AddComment は authorID を投稿者として記事にコメントします。
func (s *Service) AddComment(ctx context.Context, slug string, authorID int64, in CommentInput) (*models.Comment, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	post, err := s.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	comment := &models.Comment{
		Content: in.Content,
		UserID:  authorID,
		PostID:  post.ID,
	}
	if err := s.repo.CreateComment(ctx, comment); err != nil {
		if errors.Is(err, store.ErrForeignKey) {
			return nil, ErrAuthorNotFound
		}
		return nil, err
	}
	return comment, nil
}
