// Package store は bun を使った永続化層（データベース接続とリポジトリ）を提供します。
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/UrielCuriel/prueba-backend/internal/models"
)

var (
	// ErrDuplicate は一意制約に違反したことを表します。
	ErrDuplicate = errors.New("store: duplicate entry")
	// ErrNotFound は更新対象の行が存在しないことを表します。
	ErrNotFound = errors.New("store: not found")
	// ErrForeignKey は参照先の行（著者や記事）が存在しないことを表します。
	ErrForeignKey = errors.New("store: referenced row does not exist")
)

// Open は SQLite データベースを開き、bun.DB を返します。
// 外部キー制約は DSN で指定するため、コネクションが作り直されても有効です。
func Open(ctx context.Context, dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, withForeignKeys(dsn))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	var enabled int
	if err := db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&enabled); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("check foreign keys: %w", err)
	}
	if enabled != 1 {
		_ = db.Close()
		return nil, errors.New("open database: foreign keys are disabled")
	}
	return db, nil
}

// withForeignKeys は DSN に外部キー制約を有効にするパラメータを追加します。
// sqliteshim がどちらのドライバーを選んでも効くよう、modernc (_pragma) と
// mattn (_foreign_keys) の両方の書式を付けます。指定済みのものは変更しません。
func withForeignKeys(dsn string) string {
	var params []string
	if !strings.Contains(dsn, "foreign_keys(") {
		params = append(params, "_pragma=foreign_keys(1)")
	}
	if !strings.Contains(dsn, "_foreign_keys=") && !strings.Contains(dsn, "_fk=") {
		params = append(params, "_foreign_keys=1")
	}
	if len(params) == 0 {
		return dsn
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// EnsureSchema はテーブルが存在しなければ作成します。
func EnsureSchema(ctx context.Context, db *bun.DB) error {
	tables := []any{
		(*models.User)(nil),
		(*models.Post)(nil),
		(*models.Comment)(nil),
	}
	for _, model := range tables {
		if _, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			WithForeignKeys().
			Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}

	if _, err := db.NewCreateIndex().
		Model((*models.Post)(nil)).
		Index("posts_slug_key").
		Column("slug").
		Unique().
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create posts slug index: %w", err)
	}
	if _, err := db.NewCreateIndex().
		Model((*models.Comment)(nil)).
		Index("comments_post_id_idx").
		Column("post_id").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create comments post index: %w", err)
	}
	return nil
}

// isUniqueViolation は SQLite ドライバ（cgo / modernc どちらでも）の一意制約違反を判定します。
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
