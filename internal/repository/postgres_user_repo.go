package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/readerbridge/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByUsername は指定ユーザーの設定を取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (*model.UserConfig, error) {
	user := &model.UserConfig{}

	err := r.db.QueryRowContext(ctx,
		`SELECT username, api_password_hash, created_at, updated_at
		 FROM users WHERE username = $1`,
		username,
	).Scan(&user.Username, &user.APIPasswordHash, &user.CreatedAt, &user.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by username: %w", err)
	}

	return user, nil
}

// Upsert はユーザーを作成し、既存の場合はAPIパスワードハッシュを更新する。
func (r *PostgresUserRepo) Upsert(ctx context.Context, user *model.UserConfig) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, api_password_hash, created_at, updated_at)
		 VALUES ($1, $2, now(), now())
		 ON CONFLICT (username) DO UPDATE
		 SET api_password_hash = EXCLUDED.api_password_hash, updated_at = now()`,
		user.Username, user.APIPasswordHash,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

var _ UserRepository = (*PostgresUserRepo)(nil)
