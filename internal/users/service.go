// Package users はユーザー登録とユーザー情報の参照・更新・削除を提供します。
package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/UrielCuriel/prueba-backend/internal/auth"
	"github.com/UrielCuriel/prueba-backend/internal/models"
	"github.com/UrielCuriel/prueba-backend/internal/store"
)

var (
	// ErrUserExists はユーザー名またはメールアドレスが既に使われている場合に返されます。
	ErrUserExists = errors.New("user already exists")
	// ErrNotFound はユーザーが存在しない場合に返されます。
	ErrNotFound = errors.New("user not found")
	// ErrEmptyCriteria は検索条件が一つも指定されていない場合に返されます。
	ErrEmptyCriteria = errors.New("at least one of id, email or username is required")
)

// Repository はユーザーの永続化を担います。store.UserRepository が実装します。
type Repository interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
	Find(ctx context.Context, criteria store.UserCriteria) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User, columns ...string) error
	Delete(ctx context.Context, id int64) (bool, error)
}

// CreateInput は登録時の入力です。
type CreateInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate は入力を検証します。
func (in CreateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Username, validation.Required, validation.Length(1, 50)),
		validation.Field(&in.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&in.Password, validation.Required, validation.Length(6, 72)),
	)
}

// UpdateInput は部分更新の入力です。nil のフィールドは変更しません。
type UpdateInput struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

// Validate は指定されたフィールドだけを検証します。
func (in UpdateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Username, validation.NilOrNotEmpty, validation.Length(1, 50)),
		validation.Field(&in.Email, validation.NilOrNotEmpty, is.Email),
		validation.Field(&in.Password, validation.NilOrNotEmpty, validation.Length(6, 72)),
	)
}

// IsEmpty は更新対象が一つもないかを返します。
func (in UpdateInput) IsEmpty() bool {
	return in.Username == nil && in.Email == nil && in.Password == nil
}

// Service はユーザーに関する処理を提供します。
// 返すユーザーにパスワードハッシュは含まれません。
type Service struct {
	repo       Repository
	bcryptCost int
	logger     *slog.Logger
}

// NewService は Service を作成します。
func NewService(repo Repository, bcryptCost int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

// Create はユーザーを登録します。
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Username: in.Username,
		Email:    in.Email,
		Password: hash,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID)
	user.Password = ""
	return user, nil
}

// Get は ID でユーザーを取得します。
func (s *Service) Get(ctx context.Context, id int64) (*models.User, error) {
	return found(s.repo.FindByID(ctx, id))
}

// Find は条件に一致するユーザーを取得します。
func (s *Service) Find(ctx context.Context, criteria store.UserCriteria) (*models.User, error) {
	if criteria.IsEmpty() {
		return nil, ErrEmptyCriteria
	}
	return found(s.repo.Find(ctx, criteria))
}

// List は全ユーザーを返します。
func (s *Service) List(ctx context.Context) ([]*models.User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*models.User{}
	}
	return users, nil
}

// Update はユーザーを部分更新します。パスワードが指定された場合はハッシュし直します。
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (*models.User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.IsEmpty() {
		return user, nil
	}

	var columns []string
	if in.Username != nil {
		user.Username = *in.Username
		columns = append(columns, "username")
	}
	if in.Email != nil {
		user.Email = *in.Email
		columns = append(columns, "email")
	}
	if in.Password != nil {
		hash, err := auth.HashPassword(*in.Password, s.bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.Password = hash
		columns = append(columns, "password")
	}

	if err := s.repo.Update(ctx, user, columns...); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			return nil, ErrUserExists
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrNotFound
		}
		return nil, err
	}

	user.Password = ""
	return user, nil
}

// Delete はユーザーと、そのユーザーの記事・コメントを削除します。
func (s *Service) Delete(ctx context.Context, id int64) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	s.logger.Info("user deleted", "user_id", id)
	return nil
}

func found(user *models.User, err error) (*models.User, error) {
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	user.Password = ""
	return user, nil
}
