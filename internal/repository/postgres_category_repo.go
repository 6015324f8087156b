package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/readerbridge/internal/model"
)

// PostgresCategoryRepo はPostgreSQLを使用したカテゴリリポジトリ。
type PostgresCategoryRepo struct {
	db *sql.DB
}

// NewPostgresCategoryRepo はPostgresCategoryRepoを生成する。
func NewPostgresCategoryRepo(db *sql.DB) *PostgresCategoryRepo {
	return &PostgresCategoryRepo{db: db}
}

// List はユーザーの全カテゴリを所属フィード付きで名前順に取得する。
// 未読数はフィードごとの集計を1回のクエリで取得する。
func (r *PostgresCategoryRepo) List(ctx context.Context, username string, withCounts bool) ([]*model.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, name FROM categories
		 WHERE username = $1
		 ORDER BY name ASC, id ASC`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []*model.Category
	byID := make(map[int64]*model.Category)
	for rows.Next() {
		c := &model.Category{}
		if err := rows.Scan(&c.ID, &c.Username, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}

	if len(categories) == 0 {
		return categories, nil
	}
	if err := r.attachFeeds(ctx, username, withCounts, byID); err != nil {
		return nil, err
	}
	return categories, nil
}

// attachFeeds はカテゴリ所属のフィードを読み込み、byIDの各カテゴリに追加する。
func (r *PostgresCategoryRepo) attachFeeds(ctx context.Context, username string, withCounts bool, byID map[int64]*model.Category) error {
	query := `SELECT f.id, f.category_id, f.name, f.url, f.website, f.last_update, 0
		 FROM feeds f
		 WHERE f.username = $1 AND f.category_id IS NOT NULL
		 ORDER BY f.name ASC, f.id ASC`
	if withCounts {
		query = `SELECT f.id, f.category_id, f.name, f.url, f.website, f.last_update,
		        COALESCE(u.unread, 0)
		 FROM feeds f
		 LEFT JOIN (
		     SELECT feed_id, COUNT(*) AS unread
		     FROM entries
		     WHERE is_read = false
		     GROUP BY feed_id
		 ) u ON u.feed_id = f.id
		 WHERE f.username = $1 AND f.category_id IS NOT NULL
		 ORDER BY f.name ASC, f.id ASC`
	}

	rows, err := r.db.QueryContext(ctx, query, username)
	if err != nil {
		return fmt.Errorf("failed to list category feeds: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		f := &model.Feed{Username: username}
		if err := rows.Scan(
			&f.ID, &f.CategoryID, &f.Name, &f.URL, &f.Website, &f.LastUpdate, &f.UnreadCount,
		); err != nil {
			return fmt.Errorf("failed to scan category feed: %w", err)
		}
		if c, ok := byID[f.CategoryID]; ok {
			c.Feeds = append(c.Feeds, f)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate category feeds: %w", err)
	}
	return nil
}

// FindByName は名前が完全一致するカテゴリを取得する。見つからない場合はnilを返す。
func (r *PostgresCategoryRepo) FindByName(ctx context.Context, username, name string) (*model.Category, error) {
	c := &model.Category{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, name FROM categories WHERE username = $1 AND name = $2`,
		username, name,
	).Scan(&c.ID, &c.Username, &c.Name)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find category by name: %w", err)
	}
	return c, nil
}

// FeedCategoryIndex はフィードIDからカテゴリ名とフィード名を引く索引を返す。
func (r *PostgresCategoryRepo) FeedCategoryIndex(ctx context.Context, username string) (map[int64]model.FeedCategory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT f.id, c.id, c.name, f.name
		 FROM feeds f
		 INNER JOIN categories c ON c.id = f.category_id
		 WHERE f.username = $1`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load feed category index: %w", err)
	}
	defer rows.Close()

	index := make(map[int64]model.FeedCategory)
	for rows.Next() {
		var feedID int64
		var fc model.FeedCategory
		if err := rows.Scan(&feedID, &fc.CategoryID, &fc.CategoryName, &fc.FeedName); err != nil {
			return nil, fmt.Errorf("failed to scan feed category: %w", err)
		}
		index[feedID] = fc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feed categories: %w", err)
	}
	return index, nil
}

// GetOrCreate は名前でカテゴリを取得し、存在しなければ作成する。
func (r *PostgresCategoryRepo) GetOrCreate(ctx context.Context, username, name string) (*model.Category, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (username, name) VALUES ($1, $2)
		 ON CONFLICT (username, name) DO NOTHING`,
		username, name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}

	c, err := r.FindByName(ctx, username, name)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("category %q disappeared after insert", name)
	}
	return c, nil
}

var _ CategoryRepository = (*PostgresCategoryRepo)(nil)
