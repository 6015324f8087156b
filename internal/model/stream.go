package model

// StreamKind はストリームが指す記事集合の種類を表す。
type StreamKind int

const (
	// StreamAllItems は全記事（reading-list）。
	StreamAllItems StreamKind = iota
	// StreamStarred はお気に入り記事。
	StreamStarred
	// StreamSingleFeed は単一フィードの記事。
	StreamSingleFeed
	// StreamCategory はカテゴリに属するフィードの記事。
	StreamCategory
)

// String はログ出力用の名前を返す。
func (k StreamKind) String() string {
	switch k {
	case StreamStarred:
		return "starred"
	case StreamSingleFeed:
		return "feed"
	case StreamCategory:
		return "category"
	default:
		return "reading-list"
	}
}

// StateFilter は既読状態による絞り込みを表す。
type StateFilter int

const (
	// FilterAll は既読・未読を問わない。
	FilterAll StateFilter = iota
	// FilterUnreadOnly は未読のみ。
	FilterUnreadOnly
)

// SortOrder は記事IDによる並び順を表す。
type SortOrder int

const (
	// OrderNewestFirst はID降順。
	OrderNewestFirst SortOrder = iota
	// OrderOldestFirst はID昇順。
	OrderOldestFirst
)

// NoMatchScopeID はどの行にも一致しないスコープID。
// 存在しないカテゴリ名や不正なフィードIDはこの値に解決される。
const NoMatchScopeID int64 = -1

// StreamDescriptor はリクエストごとに組み立てられる記事クエリの対象。
type StreamDescriptor struct {
	Kind    StreamKind
	ScopeID int64
	Filter  StateFilter
}

// EntryQuery はバックエンドに渡す記事一覧クエリ。
// ContinuationID が0以外の場合、その記事自身を含む位置から取得する。
// SinceTime が0以外の場合、その時刻（UNIX秒）以降に作成された記事に限定する。
type EntryQuery struct {
	Stream         StreamDescriptor
	Order          SortOrder
	Limit          int
	ContinuationID uint64
	SinceTime      int64
}
