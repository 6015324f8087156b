package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/readerbridge/internal/model"
)

// PostgresFeedRepo はPostgreSQLを使用したフィードリポジトリ。
type PostgresFeedRepo struct {
	db *sql.DB
}

// NewPostgresFeedRepo はPostgresFeedRepoを生成する。
func NewPostgresFeedRepo(db *sql.DB) *PostgresFeedRepo {
	return &PostgresFeedRepo{db: db}
}

// CreateIfNotExists はフィードを作成する。
// 同一ユーザー・同一URLのフィードが既に存在する場合は何もせずfalseを返す。
// 作成した場合はfeed.IDに採番されたIDを設定する。
func (r *PostgresFeedRepo) CreateIfNotExists(ctx context.Context, feed *model.Feed) (bool, error) {
	status := feed.FetchStatus
	if status == "" {
		status = model.FetchStatusActive
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO feeds (username, category_id, name, url, website, fetch_status, next_fetch_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (username, url) DO NOTHING
		 RETURNING id`,
		feed.Username, nullInt64(feed.CategoryID), feed.Name, feed.URL, feed.Website, status,
	).Scan(&feed.ID)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create feed: %w", err)
	}
	return true, nil
}

// ListDueForFetch はフェッチ期限を過ぎたアクティブなフィードを古い順に取得する。
func (r *PostgresFeedRepo) ListDueForFetch(ctx context.Context, limit int) ([]*model.Feed, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, category_id, name, url, website, last_update,
		        etag, last_modified, fetch_status, consecutive_errors,
		        error_message, next_fetch_at, created_at, updated_at
		 FROM feeds
		 WHERE next_fetch_at <= now() AND fetch_status = 'active'
		 ORDER BY next_fetch_at ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due feeds: %w", err)
	}
	defer rows.Close()

	var feeds []*model.Feed
	for rows.Next() {
		feed := &model.Feed{}
		var categoryID sql.NullInt64
		var etag, lastModified, errorMessage sql.NullString

		if err := rows.Scan(
			&feed.ID, &feed.Username, &categoryID, &feed.Name, &feed.URL, &feed.Website,
			&feed.LastUpdate, &etag, &lastModified, &feed.FetchStatus,
			&feed.ConsecutiveErrors, &errorMessage, &feed.NextFetchAt,
			&feed.CreatedAt, &feed.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan due feed: %w", err)
		}

		feed.CategoryID = categoryID.Int64
		feed.ETag = nullStringValue(etag)
		feed.LastModified = nullStringValue(lastModified)
		feed.ErrorMessage = nullStringValue(errorMessage)
		feeds = append(feeds, feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate due feeds: %w", err)
	}

	return feeds, nil
}

// UpdateFetchState はフィードのフェッチ状態を更新する。
func (r *PostgresFeedRepo) UpdateFetchState(ctx context.Context, feed *model.Feed) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE feeds SET
		    name = $2, website = $3, last_update = $4,
		    etag = $5, last_modified = $6, fetch_status = $7,
		    consecutive_errors = $8, error_message = $9,
		    next_fetch_at = $10, updated_at = now()
		 WHERE id = $1`,
		feed.ID, feed.Name, feed.Website, feed.LastUpdate,
		nullString(feed.ETag), nullString(feed.LastModified), feed.FetchStatus,
		feed.ConsecutiveErrors, nullString(feed.ErrorMessage), feed.NextFetchAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update feed fetch state: %w", err)
	}
	return nil
}

var _ FeedRepository = (*PostgresFeedRepo)(nil)
