package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/readerbridge/internal/model"
)

// PostgresEntryRepo はPostgreSQLを使用した記事リポジトリ。
// 記事はフィード経由でユーザーに紐づくため、すべてのクエリはfeedsと結合して
// ユーザー名で絞り込む。
type PostgresEntryRepo struct {
	db *sql.DB
}

// NewPostgresEntryRepo はPostgresEntryRepoを生成する。
func NewPostgresEntryRepo(db *sql.DB) *PostgresEntryRepo {
	return &PostgresEntryRepo{db: db}
}

// entryFilter はEntryQueryからWHERE句とバインド引数を組み立てる。
type entryFilter struct {
	conds []string
	args  []interface{}
}

func (f *entryFilter) add(cond string, arg interface{}) {
	f.args = append(f.args, arg)
	f.conds = append(f.conds, fmt.Sprintf(cond, len(f.args)))
}

func (f *entryFilter) where() string {
	return strings.Join(f.conds, " AND ")
}

// maxSinceTime はマイクロ秒に換算してもint64に収まる最大の秒数。
const maxSinceTime = math.MaxInt64 / 1000000

// clampID はuint64のIDをBIGINTの範囲に収める。
func clampID(id uint64) int64 {
	if id > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(id)
}

// buildEntryFilter はストリーム種別、既読状態、時刻、継続位置の条件を組み立てる。
func buildEntryFilter(username string, q model.EntryQuery) *entryFilter {
	f := &entryFilter{}
	f.add("f.username = $%d", username)

	switch q.Stream.Kind {
	case model.StreamStarred:
		f.conds = append(f.conds, "e.is_favorite = true")
	case model.StreamSingleFeed:
		f.add("e.feed_id = $%d", q.Stream.ScopeID)
	case model.StreamCategory:
		f.add("f.category_id = $%d", q.Stream.ScopeID)
	case model.StreamAllItems:
	}

	if q.Stream.Filter == model.FilterUnreadOnly {
		f.conds = append(f.conds, "e.is_read = false")
	}
	if q.SinceTime > 0 {
		f.add("e.id >= $%d", min(q.SinceTime, maxSinceTime)*1000000)
	}
	if q.ContinuationID != 0 {
		if q.Order == model.OrderOldestFirst {
			f.add("e.id >= $%d", clampID(q.ContinuationID))
		} else {
			f.add("e.id <= $%d", clampID(q.ContinuationID))
		}
	}
	return f
}

// orderAndLimit はORDER BY句とLIMIT句を追加したクエリを返す。
func orderAndLimit(query string, f *entryFilter, q model.EntryQuery) string {
	direction := "DESC"
	if q.Order == model.OrderOldestFirst {
		direction = "ASC"
	}
	f.args = append(f.args, q.Limit)
	return fmt.Sprintf("%s ORDER BY e.id %s LIMIT $%d", query, direction, len(f.args))
}

// List はクエリに一致する記事をID順に取得する。
func (r *PostgresEntryRepo) List(ctx context.Context, username string, q model.EntryQuery) ([]*model.Entry, error) {
	f := buildEntryFilter(username, q)
	query := orderAndLimit(
		`SELECT e.id, e.feed_id, e.guid, e.title, e.author, e.content, e.link,
		        e.date, e.is_read, e.is_favorite, e.content_hash
		 FROM entries e
		 INNER JOIN feeds f ON f.id = e.feed_id
		 WHERE `+f.where(), f, q)

	rows, err := r.db.QueryContext(ctx, query, f.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.Entry
	for rows.Next() {
		e := &model.Entry{}
		var id int64
		if err := rows.Scan(
			&id, &e.FeedID, &e.GUID, &e.Title, &e.Author, &e.Content, &e.Link,
			&e.Date, &e.IsRead, &e.IsFavorite, &e.ContentHash,
		); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.ID = uint64(id)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}
	return entries, nil
}

// ListIDs はListと同じ条件で記事IDのみを取得する。
func (r *PostgresEntryRepo) ListIDs(ctx context.Context, username string, q model.EntryQuery) ([]uint64, error) {
	f := buildEntryFilter(username, q)
	query := orderAndLimit(
		`SELECT e.id
		 FROM entries e
		 INNER JOIN feeds f ON f.id = e.feed_id
		 WHERE `+f.where(), f, q)

	rows, err := r.db.QueryContext(ctx, query, f.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entry ids: %w", err)
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan entry id: %w", err)
		}
		ids = append(ids, uint64(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entry ids: %w", err)
	}
	return ids, nil
}

// MarkRead は指定記事の既読フラグを設定し、変更件数を返す。
func (r *PostgresEntryRepo) MarkRead(ctx context.Context, username string, ids []uint64, read bool) (int64, error) {
	return r.setFlag(ctx, "is_read", username, ids, read)
}

// MarkFavorite は指定記事のお気に入りフラグを設定し、変更件数を返す。
func (r *PostgresEntryRepo) MarkFavorite(ctx context.Context, username string, ids []uint64, favorite bool) (int64, error) {
	return r.setFlag(ctx, "is_favorite", username, ids, favorite)
}

// setFlag はcolumnの値を一括更新する。すでに同じ値の記事は件数に含めない。
func (r *PostgresEntryRepo) setFlag(ctx context.Context, column, username string, ids []uint64, value bool) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(
		`UPDATE entries e SET %[1]s = $3
		 FROM feeds f
		 WHERE f.id = e.feed_id AND f.username = $1
		   AND e.id = ANY($2) AND e.%[1]s <> $3`,
		column,
	)
	result, err := r.db.ExecContext(ctx, query, username, pq.Array(toInt64s(ids)), value)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", column, err)
	}
	return rowsAffected(result)
}

// MarkFeedRead はフィードの未読記事のうちID <= olderThanのものを既読にする。
func (r *PostgresEntryRepo) MarkFeedRead(ctx context.Context, username string, feedID int64, olderThan uint64) (int64, error) {
	return r.markRead(ctx,
		`UPDATE entries e SET is_read = true
		 FROM feeds f
		 WHERE f.id = e.feed_id AND f.username = $1 AND e.is_read = false
		   AND e.feed_id = $2`,
		olderThan, username, feedID)
}

// MarkCategoryRead はカテゴリ名に一致するカテゴリの未読記事を既読にする。
func (r *PostgresEntryRepo) MarkCategoryRead(ctx context.Context, username, categoryName string, olderThan uint64) (int64, error) {
	return r.markRead(ctx,
		`UPDATE entries e SET is_read = true
		 FROM feeds f
		 INNER JOIN categories c ON c.id = f.category_id
		 WHERE f.id = e.feed_id AND f.username = $1 AND e.is_read = false
		   AND c.name = $2`,
		olderThan, username, categoryName)
}

// MarkAllRead はユーザーの全未読記事を既読にする。
func (r *PostgresEntryRepo) MarkAllRead(ctx context.Context, username string, olderThan uint64) (int64, error) {
	return r.markRead(ctx,
		`UPDATE entries e SET is_read = true
		 FROM feeds f
		 WHERE f.id = e.feed_id AND f.username = $1 AND e.is_read = false`,
		olderThan, username)
}

// markRead はolderThanが0でなければID上限の条件を加えて一括既読を実行する。
func (r *PostgresEntryRepo) markRead(ctx context.Context, query string, olderThan uint64, args ...interface{}) (int64, error) {
	if olderThan != 0 {
		args = append(args, int64(olderThan))
		query = fmt.Sprintf("%s AND e.id <= $%d", query, len(args))
	}
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark entries as read: %w", err)
	}
	return rowsAffected(result)
}

// FindByFeedAndGUID はフィード内のGUIDで記事を検索する。見つからない場合はnilを返す。
func (r *PostgresEntryRepo) FindByFeedAndGUID(ctx context.Context, feedID int64, guid string) (*model.Entry, error) {
	e := &model.Entry{}
	var id int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id, feed_id, guid, title, author, content, link,
		        date, is_read, is_favorite, content_hash
		 FROM entries WHERE feed_id = $1 AND guid = $2`,
		feedID, guid,
	).Scan(
		&id, &e.FeedID, &e.GUID, &e.Title, &e.Author, &e.Content, &e.Link,
		&e.Date, &e.IsRead, &e.IsFavorite, &e.ContentHash,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find entry by guid: %w", err)
	}
	e.ID = uint64(id)
	return e, nil
}

// MaxID は全ユーザーを通じた最大の記事IDを返す。記事がない場合は0。
func (r *PostgresEntryRepo) MaxID(ctx context.Context) (uint64, error) {
	var id int64
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM entries`).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read max entry id: %w", err)
	}
	return uint64(id), nil
}

// Create は記事を作成する。
func (r *PostgresEntryRepo) Create(ctx context.Context, e *model.Entry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO entries (id, feed_id, guid, title, author, content, link,
		                      date, is_read, is_favorite, content_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		int64(e.ID), e.FeedID, e.GUID, e.Title, e.Author, e.Content, e.Link,
		e.Date, e.IsRead, e.IsFavorite, e.ContentHash,
	)
	if err != nil {
		return fmt.Errorf("failed to create entry: %w", err)
	}
	return nil
}

// Update は記事の内容を更新する。既読・お気に入りフラグは変更しない。
func (r *PostgresEntryRepo) Update(ctx context.Context, e *model.Entry) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE entries SET
		    title = $2, author = $3, content = $4, link = $5,
		    date = $6, content_hash = $7
		 WHERE id = $1`,
		int64(e.ID), e.Title, e.Author, e.Content, e.Link, e.Date, e.ContentHash,
	)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}
	return nil
}

func rowsAffected(result sql.Result) (int64, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

var _ EntryRepository = (*PostgresEntryRepo)(nil)
