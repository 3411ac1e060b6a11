package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/uptrace/bun"

	"github.com/UrielCuriel/prueba-backend/internal/models"
)

// PostRepository は記事とコメントの永続化を担います。
type PostRepository struct {
	db bun.IDB
}

// NewPostRepository は PostRepository を作成します。
func NewPostRepository(db bun.IDB) *PostRepository {
	return &PostRepository{db: db}
}

func withAuthor(q *bun.SelectQuery) *bun.SelectQuery {
	return q.ExcludeColumn("password")
}

// List は記事を新しい順に返します。著者情報を含みます。
func (r *PostRepository) List(ctx context.Context) ([]*models.Post, error) {
	var posts []*models.Post
	err := r.db.NewSelect().
		Model(&posts).
		Relation("User", withAuthor).
		OrderExpr("?TableAlias.id DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// FindBySlug は Slug が一致する記事を返します。存在しない場合は (nil, nil) を返します。
func (r *PostRepository) FindBySlug(ctx context.Context, slug string) (*models.Post, error) {
	post := new(models.Post)
	err := r.db.NewSelect().
		Model(post).
		Relation("User", withAuthor).
		Where("?TableAlias.slug = ?", slug).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find post by slug: %w", err)
	}
	return post, nil
}

// maxSlugAttempts は同時投稿で Slug が衝突した場合に採番をやり直す回数です。
const maxSlugAttempts = 5

// Create は記事を保存します。Slug はタイトルから生成し、既に使われていれば
// "-2", "-3" と番号を付けて一意にします。著者が存在しない場合は ErrForeignKey を返します。
func (r *PostRepository) Create(ctx context.Context, post *models.Post) error {
	base := models.Slugify(post.Title)
	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		slug, err := r.nextFreeSlug(ctx, base)
		if err != nil {
			return err
		}
		post.Slug = slug

		_, err = r.db.NewInsert().Model(post).Exec(ctx)
		switch {
		case err == nil:
			return nil
		case isForeignKeyViolation(err):
			return ErrForeignKey
		case isUniqueViolation(err):
			// 採番と INSERT の間に同じ Slug が使われた
			continue
		default:
			return fmt.Errorf("insert post: %w", err)
		}
	}
	return fmt.Errorf("insert post %q: %w", base, ErrDuplicate)
}

// nextFreeSlug は base, base-2, base-3 ... のうち未使用の最初の Slug を返します。
func (r *PostRepository) nextFreeSlug(ctx context.Context, base string) (string, error) {
	candidate := base
	for n := 2; ; n++ {
		exists, err := r.db.NewSelect().
			Model((*models.Post)(nil)).
			Where("slug = ?", candidate).
			Exists(ctx)
		if err != nil {
			return "", fmt.Errorf("check post slug: %w", err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(n)
	}
}

// ListComments は記事のコメントを古い順に返します。
func (r *PostRepository) ListComments(ctx context.Context, postID int64) ([]*models.Comment, error) {
	comments := make([]*models.Comment, 0)
	err := r.db.NewSelect().
		Model(&comments).
		Relation("User", withAuthor).
		Where("?TableAlias.post_id = ?", postID).
		OrderExpr("?TableAlias.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

// CreateComment はコメントを保存します。投稿者か記事が存在しない場合は ErrForeignKey を返します。
func (r *PostRepository) CreateComment(ctx context.Context, comment *models.Comment) error {
	if _, err := r.db.NewInsert().Model(comment).Exec(ctx); err != nil {
		if isForeignKeyViolation(err) {
			return ErrForeignKey
		}
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}
