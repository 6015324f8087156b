package stream

import (
	"context"
	"fmt"

	"github.com/hitoshi/readerbridge/internal/itemid"
	"github.com/hitoshi/readerbridge/internal/model"
)

// EntryLister は記事一覧を取得するバックエンドのインターフェース。
type EntryLister interface {
	List(ctx context.Context, username string, q model.EntryQuery) ([]*model.Entry, error)
	ListIDs(ctx context.Context, username string, q model.EntryQuery) ([]uint64, error)
}

// Page はstream/contentsの1ページ分の結果。
// Continuation は次ページが存在しうる場合のみ空でない。
type Page struct {
	Entries      []*model.Entry
	Continuation string
}

// Service は継続トークン付きの記事一覧取得を提供する。
type Service struct {
	entries EntryLister
}

// NewService はServiceを生成する。
func NewService(entries EntryLister) *Service {
	return &Service{entries: entries}
}

// ListEntries は記事一覧を1ページ取得する。
//
// continuationが指定された場合（空文字列と"0"は指定なし）、その記事自身から取得が始まるため、
// 取得件数を1件増やしたうえで先頭の1件を捨てる。
// 次の継続トークンは、取得件数（破棄前）が増加後の件数以上で、かつ
// 破棄後の結果が空でない場合にのみ、最後に取得した記事のIDで発行する。
func (s *Service) ListEntries(ctx context.Context, username string, q model.EntryQuery, continuation string) (*Page, error) {
	if q.Limit < 0 {
		q.Limit = 0
	}

	hasContinuation := continuation != "" && continuation != "0"
	if hasContinuation {
		id, err := itemid.ParseDecimal(continuation)
		if err != nil {
			return nil, model.NewBadRequestError("invalid continuation")
		}
		q.ContinuationID = id
		q.Limit++
	}

	fetched, err := s.entries.List(ctx, username, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}

	rendered := fetched
	if hasContinuation && len(rendered) > 0 {
		rendered = rendered[1:]
	}

	page := &Page{Entries: rendered}
	if len(fetched) >= q.Limit && len(rendered) > 0 {
		page.Continuation = itemid.FormatDecimal(fetched[len(fetched)-1].ID)
	}
	return page, nil
}

// ListEntryIDs は記事IDのみを取得する。継続トークンは扱わない。
func (s *Service) ListEntryIDs(ctx context.Context, username string, q model.EntryQuery) ([]uint64, error) {
	if q.Limit < 0 {
		q.Limit = 0
	}
	q.ContinuationID = 0

	ids, err := s.entries.ListIDs(ctx, username, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list entry ids: %w", err)
	}
	return ids, nil
}
