// Package repository はデータ永続化のインターフェースを定義する。
// すべての読み書きは認証済みユーザー名でスコープされる。
package repository

import (
	"context"

	"github.com/hitoshi/readerbridge/internal/model"
)

// UserRepository はAPIユーザー設定の永続化インターフェース。
type UserRepository interface {
	// FindByUsername は指定ユーザーの設定を取得する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.UserConfig, error)

	// Upsert はユーザーを作成し、既存の場合はAPIパスワードハッシュを更新する。
	Upsert(ctx context.Context, user *model.UserConfig) error
}

// CategoryRepository はカテゴリの永続化インターフェース。
type CategoryRepository interface {
	// List はユーザーの全カテゴリを所属フィード付きで名前順に取得する。
	// withCountsがtrueの場合、各フィードのUnreadCountを集計して設定する。
	List(ctx context.Context, username string, withCounts bool) ([]*model.Category, error)

	// FindByName は名前が完全一致するカテゴリを取得する。見つからない場合はnilを返す。
	FindByName(ctx context.Context, username, name string) (*model.Category, error)

	// FeedCategoryIndex はフィードIDからカテゴリ名とフィード名を引く索引を返す。
	// カテゴリ未所属のフィードは含まれない。
	FeedCategoryIndex(ctx context.Context, username string) (map[int64]model.FeedCategory, error)

	// GetOrCreate は名前でカテゴリを取得し、存在しなければ作成する。
	GetOrCreate(ctx context.Context, username, name string) (*model.Category, error)
}

// FeedRepository はフィードの永続化インターフェース。
type FeedRepository interface {
	// CreateIfNotExists はフィードを作成する。同一ユーザー・同一URLのフィードが
	// 既に存在する場合は何もせずfalseを返す。
	CreateIfNotExists(ctx context.Context, feed *model.Feed) (bool, error)

	// ListDueForFetch はnext_fetch_at <= now() かつ fetch_status = 'active' のフィードを
	// next_fetch_atの古い順に最大limit件取得する。
	ListDueForFetch(ctx context.Context, limit int) ([]*model.Feed, error)

	// UpdateFetchState はフィードのフェッチ状態を更新する。
	// name、website、last_update、etag、last_modified、fetch_status、
	// consecutive_errors、error_message、next_fetch_atを更新する。
	UpdateFetchState(ctx context.Context, feed *model.Feed) error
}

// EntryRepository は記事の永続化インターフェース。
type EntryRepository interface {
	// List はクエリに一致する記事をID順に取得する。
	List(ctx context.Context, username string, q model.EntryQuery) ([]*model.Entry, error)

	// ListIDs はListと同じ条件で記事IDのみを取得する。
	ListIDs(ctx context.Context, username string, q model.EntryQuery) ([]uint64, error)

	// MarkRead は指定記事の既読フラグを設定し、変更件数を返す。
	MarkRead(ctx context.Context, username string, ids []uint64, read bool) (int64, error)

	// MarkFavorite は指定記事のお気に入りフラグを設定し、変更件数を返す。
	MarkFavorite(ctx context.Context, username string, ids []uint64, favorite bool) (int64, error)

	// MarkFeedRead はフィードの記事のうちID <= olderThanのものを既読にする。
	// olderThanが0の場合は全件が対象。
	MarkFeedRead(ctx context.Context, username string, feedID int64, olderThan uint64) (int64, error)

	// MarkCategoryRead はカテゴリ名に一致するカテゴリの記事を既読にする。
	MarkCategoryRead(ctx context.Context, username, categoryName string, olderThan uint64) (int64, error)

	// MarkAllRead はユーザーの全記事を既読にする。
	MarkAllRead(ctx context.Context, username string, olderThan uint64) (int64, error)

	// FindByFeedAndGUID はフィード内のGUIDで記事を検索する。見つからない場合はnilを返す。
	FindByFeedAndGUID(ctx context.Context, feedID int64, guid string) (*model.Entry, error)

	// Create は記事を作成する。
	Create(ctx context.Context, entry *model.Entry) error

	// Update は記事の内容を更新する。既読・お気に入りフラグは変更しない。
	Update(ctx context.Context, entry *model.Entry) error

	// MaxID は全ユーザーを通じた最大の記事IDを返す。記事がない場合は0。
	MaxID(ctx context.Context) (uint64, error)
}
