// Package model はドメインモデルを定義する。
package model

import "time"

// Entry はフィードから取得した記事を表す。
// IDは作成時刻のマイクロ秒値を上位桁に持つ単調増加の整数で、
// プロトコル上のアイテムIDとしてそのまま公開される。
type Entry struct {
	ID          uint64
	FeedID      int64
	GUID        string
	Title       string
	Author      string
	Content     string // サニタイズ済みHTML
	Link        string
	Date        int64 // 公開日時（UNIX秒）
	IsRead      bool
	IsFavorite  bool
	ContentHash string
}

// ParsedEntry はフィードパーサーから取得した未保存の記事データを表す。
// ワーカーがフィードをパースした後、UpsertServiceに渡される。
type ParsedEntry struct {
	GUID        string
	Title       string
	Link        string
	Content     string // 未サニタイズのHTML
	Author      string
	PublishedAt *time.Time
}
