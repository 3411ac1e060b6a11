package store

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/UrielCuriel/prueba-backend/internal/models"
)

// UserCriteria は POST /users/find で使う検索条件です。ゼロ値のフィールドは無視されます。
type UserCriteria struct {
	ID       int64
	Email    string
	Username string
}

// IsEmpty は条件が一つも指定されていないかを返します。
func (c UserCriteria) IsEmpty() bool {
	return c.ID == 0 && c.Email == "" && c.Username == ""
}

// UserRepository はユーザーの永続化を担います。
//
// メールアドレスの比較は完全一致で、SQLite の BINARY 照合順序に従い大文字小文字を区別します。
// パスワードハッシュは既定で取得対象から除外され、FindByEmail の withPassword でのみ読み込まれます。
type UserRepository struct {
	db bun.IDB
}

// NewUserRepository は UserRepository を作成します。
func NewUserRepository(db bun.IDB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail はメールアドレスでユーザーを検索します。存在しない場合は (nil, nil) を返します。
func (r *UserRepository) FindByEmail(ctx context.Context, email string, withPassword bool) (*models.User, error) {
	user := new(models.User)
	q := r.db.NewSelect().Model(user).Where("?TableAlias.email = ?", email).Limit(1)
	if !withPassword {
		q = q.ExcludeColumn("password")
	}
	if err := q.Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return user, nil
}

// FindByID は ID でユーザーを検索します。存在しない場合は (nil, nil) を返します。
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		ExcludeColumn("password").
		Where("?TableAlias.id = ?", id).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return user, nil
}

// Find は条件に一致する最初のユーザーを返します。存在しない場合は (nil, nil) を返します。
func (r *UserRepository) Find(ctx context.Context, criteria UserCriteria) (*models.User, error) {
	user := new(models.User)
	q := r.db.NewSelect().Model(user).ExcludeColumn("password").OrderExpr("?TableAlias.id ASC").Limit(1)
	if criteria.ID != 0 {
		q = q.Where("?TableAlias.id = ?", criteria.ID)
	}
	if criteria.Email != "" {
		q = q.Where("?TableAlias.email = ?", criteria.Email)
	}
	if criteria.Username != "" {
		q = q.Where("?TableAlias.username = ?", criteria.Username)
	}
	if err := q.Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

// List は全ユーザーを ID 順で返します。
func (r *UserRepository) List(ctx context.Context) ([]*models.User, error) {
	var users []*models.User
	err := r.db.NewSelect().
		Model(&users).
		ExcludeColumn("password").
		OrderExpr("?TableAlias.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Create はユーザーを保存します。ユーザー名かメールアドレスが重複する場合は ErrDuplicate を返します。
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if _, err := r.db.NewInsert().Model(user).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Update は指定されたカラムを更新します。updated_at は常に更新対象に含まれます。
func (r *UserRepository) Update(ctx context.Context, user *models.User, columns ...string) error {
	columns = append(columns, "updated_at")
	res, err := r.db.NewUpdate().Model(user).Column(columns...).WherePK().Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update user %d: %w", user.ID, ErrNotFound)
	}
	return nil
}

// Delete はユーザーと、そのユーザーの記事・コメントをまとめて削除します。
// 削除した場合は true、存在しなかった場合は false を返します。
func (r *UserRepository) Delete(ctx context.Context, id int64) (bool, error) {
	deleted := false
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		postIDs := tx.NewSelect().Model((*models.Post)(nil)).Column("id").Where("user_id = ?", id)

		if _, err := tx.NewDelete().Model((*models.Comment)(nil)).
			Where("user_id = ? OR post_id IN (?)", id, postIDs).
			Exec(ctx); err != nil {
			return fmt.Errorf("delete comments: %w", err)
		}
		if _, err := tx.NewDelete().Model((*models.Post)(nil)).
			Where("user_id = ?", id).
			Exec(ctx); err != nil {
			return fmt.Errorf("delete posts: %w", err)
		}
		res, err := tx.NewDelete().Model((*models.User)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = n > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}
