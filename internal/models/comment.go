package models

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// Comment は記事へのコメントです。
type Comment struct {
	bun.BaseModel `bun:"table:comments,alias:c"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	Content   string    `bun:"content,notnull" json:"content"`
	UserID    int64     `bun:"user_id,notnull" json:"userId"`
	PostID    int64     `bun:"post_id,notnull" json:"postId"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`

	User *User `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Post *Post `bun:"rel:belongs-to,join:post_id=id" json:"-"`
}

var _ bun.BeforeAppendModelHook = (*Comment)(nil)

func (c *Comment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok && c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return nil
}
