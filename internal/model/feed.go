// Package model はドメインモデルを定義する。
package model

import "time"

// Feed はユーザーが購読しているRSS/Atomフィードを表す。
type Feed struct {
	ID                int64
	Username          string
	CategoryID        int64 // 0 はカテゴリ未所属
	Name              string
	URL               string
	Website           string
	LastUpdate        int64 // 最終更新時刻（UNIX秒）
	ETag              string
	LastModified      string
	FetchStatus       FetchStatus
	ConsecutiveErrors int
	ErrorMessage      string
	NextFetchAt       time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time

	// UnreadCount は集計付きで取得した場合のみ設定される。
	UnreadCount int
}

// FetchStatus はフィードのフェッチ状態を表す。
type FetchStatus string

const (
	// FetchStatusActive はアクティブなフェッチ状態。
	FetchStatusActive FetchStatus = "active"
	// FetchStatusStopped は停止されたフェッチ状態。
	FetchStatusStopped FetchStatus = "stopped"
)

// Category はフィードをまとめるカテゴリを表す。
// プロトコル上では label または tag と呼ばれる。
type Category struct {
	ID       int64
	Username string
	Name     string
	Feeds    []*Feed
}

// UnreadCount は所属フィードの未読数の合計を返す。
func (c *Category) UnreadCount() int {
	total := 0
	for _, f := range c.Feeds {
		total += f.UnreadCount
	}
	return total
}

// LastUpdate は所属フィードの最終更新時刻の最大値を返す。
func (c *Category) LastUpdate() int64 {
	var latest int64
	for _, f := range c.Feeds {
		if f.LastUpdate > latest {
			latest = f.LastUpdate
		}
	}
	return latest
}

// FeedCategory はフィードIDから引くカテゴリ名とフィード名の組。
type FeedCategory struct {
	CategoryID   int64
	CategoryName string
	FeedName     string
}
