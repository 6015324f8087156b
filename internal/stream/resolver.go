// Package stream はGoogle Reader APIのストリームIDを解釈し、
// 継続トークン付きで記事一覧を取得する。
package stream

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hitoshi/readerbridge/internal/model"
)

// プロトコルで固定されたストリームID。
const (
	ReadingList = "user/-/state/com.google/reading-list"
	Starred     = "user/-/state/com.google/starred"
	ReadState   = "user/-/state/com.google/read"
	StatePrefix = "user/-/state/com.google/"
	LabelPrefix = "user/-/label/"
	FeedPrefix  = "feed/"
)

// CategoryFinder はカテゴリ名からカテゴリを引くインターフェース。
type CategoryFinder interface {
	FindByName(ctx context.Context, username, name string) (*model.Category, error)
}

// Resolver はストリームIDをStreamDescriptorに変換する。
type Resolver struct {
	categories CategoryFinder
}

// NewResolver はResolverを生成する。
func NewResolver(categories CategoryFinder) *Resolver {
	return &Resolver{categories: categories}
}

// Resolve はストリームIDを解釈する。
//
//	user/-/state/com.google/reading-list → 全記事
//	user/-/state/com.google/starred      → お気に入り
//	feed/<id>                             → 単一フィード（最後のパス要素をIDとして使う）
//	user/-/label/<name>                   → カテゴリ（名前の完全一致、不在時はどの記事にも一致しない）
//	その他                                 → 全記事
//
// エラーを返すのはカテゴリ検索でバックエンドが失敗した場合のみ。
func (r *Resolver) Resolve(ctx context.Context, username, streamID string) (model.StreamDescriptor, error) {
	switch {
	case streamID == ReadingList:
		return model.StreamDescriptor{Kind: model.StreamAllItems}, nil
	case streamID == Starred:
		return model.StreamDescriptor{Kind: model.StreamStarred}, nil
	case strings.HasPrefix(streamID, FeedPrefix):
		return model.StreamDescriptor{
			Kind:    model.StreamSingleFeed,
			ScopeID: parseFeedID(lastSegment(streamID)),
		}, nil
	case strings.HasPrefix(streamID, LabelPrefix):
		name := strings.TrimPrefix(streamID, LabelPrefix)
		scope, err := r.categoryScope(ctx, username, name)
		if err != nil {
			return model.StreamDescriptor{}, err
		}
		return model.StreamDescriptor{Kind: model.StreamCategory, ScopeID: scope}, nil
	default:
		return model.StreamDescriptor{Kind: model.StreamAllItems}, nil
	}
}

func (r *Resolver) categoryScope(ctx context.Context, username, name string) (int64, error) {
	if name == "" {
		return model.NoMatchScopeID, nil
	}
	cat, err := r.categories.FindByName(ctx, username, name)
	if err != nil {
		return 0, fmt.Errorf("failed to find category %q: %w", name, err)
	}
	if cat == nil {
		return model.NoMatchScopeID, nil
	}
	return cat.ID, nil
}

// ExcludeTargetFilter は xt パラメータを既読フィルタに変換する。
func ExcludeTargetFilter(xt string) model.StateFilter {
	if xt == ReadState {
		return model.FilterUnreadOnly
	}
	return model.FilterAll
}

// ParseOrder は r パラメータを並び順に変換する。"o" のみ昇順。
func ParseOrder(r string) model.SortOrder {
	if r == "o" {
		return model.OrderOldestFirst
	}
	return model.OrderNewestFirst
}

// LabelStreamID はカテゴリ名のストリームIDを返す。
func LabelStreamID(name string) string {
	return LabelPrefix + name
}

// FeedStreamID はフィードIDのストリームIDを返す。
func FeedStreamID(feedID int64) string {
	return FeedPrefix + strconv.FormatInt(feedID, 10)
}

func lastSegment(s string) string {
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}
	return s
}

func parseFeedID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return model.NoMatchScopeID
	}
	return id
}
