// Package models はブログのデータモデル（bun のエンティティ）を定義します。
package models

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// User はユーザーを表します。Password には bcrypt ハッシュが入り、JSON には出力されません。
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	Username  string    `bun:"username,notnull,unique" json:"username"`
	Email     string    `bun:"email,notnull,unique" json:"email"`
	Password  string    `bun:"password,notnull" json:"-"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`

	Posts    []*Post    `bun:"rel:has-many,join:id=user_id" json:"posts,omitempty"`
	Comments []*Comment `bun:"rel:has-many,join:id=user_id" json:"comments,omitempty"`
}

var _ bun.BeforeAppendModelHook = (*User)(nil)

// BeforeAppendModel は INSERT/UPDATE 時にタイムスタンプを設定します。
func (u *User) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if u.CreatedAt.IsZero() {
			u.CreatedAt = now
		}
		u.UpdatedAt = now
	case *bun.UpdateQuery:
		u.UpdatedAt = now
	}
	return nil
}
