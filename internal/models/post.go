package models

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// Post はブログ記事です。Slug は作成時にタイトルから生成され、記事間で一意です。
type Post struct {
	bun.BaseModel `bun:"table:posts,alias:p"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	Title     string    `bun:"title,notnull" json:"title"`
	Slug      string    `bun:"slug,notnull" json:"slug"`
	Content   string    `bun:"content,notnull" json:"content"`
	UserID    int64     `bun:"user_id,notnull" json:"userId"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`

	User     *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Comments []*Comment `bun:"rel:has-many,join:id=post_id" json:"comments,omitempty"`
}

var _ bun.BeforeAppendModelHook = (*Post)(nil)

// BeforeAppendModel は INSERT 時に Slug（未設定の場合）とタイムスタンプを設定します。
func (p *Post) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if p.Slug == "" {
			p.Slug = Slugify(p.Title)
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = now
	case *bun.UpdateQuery:
		p.UpdatedAt = now
	}
	return nil
}

var nonSlugChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Slugify はタイトルを URL 用の文字列に変換します。
// 小文字化して空白を "-" に置き換え、英数字・"_"・"-" 以外を取り除きます。
func Slugify(title string) string {
	s := strings.ToLower(title)
	s = strings.ReplaceAll(s, " ", "-")
	return nonSlugChars.ReplaceAllString(s, "")
}
