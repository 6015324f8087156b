package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/readerbridge/internal/stream"
)

// route はパス形状の判定関数とエンドポイント処理の組。
// matchはパスのみを見る純粋関数で、パラメータの検証はhandleが行う。
type route struct {
	name         string
	match        func(p segments) bool
	requiresUser bool
	handle       func(ctx context.Context, w http.ResponseWriter, req *apiRequest) error
}

// routes は先頭から順に評価されるルート表を返す。
// /reader/api/0/ 配下は、どのエンドポイントにも一致しない場合でも認証を要求する。
func (h *GReaderHandler) routes() []route {
	return []route{
		{
			name:   "client_login",
			match:  func(p segments) bool { return p.is(1, "accounts") && p.is(2, "ClientLogin") },
			handle: h.clientLogin,
		},
		{
			name:   "check_compatibility",
			match:  func(p segments) bool { return p.is(1, "check") && p.is(2, "compatibility") },
			handle: h.checkCompatibility,
		},
		{
			name: "stream_contents_feed",
			match: func(p segments) bool {
				return streamContentsWithTarget(p) && p.is(6, "feed")
			},
			requiresUser: true,
			handle: func(ctx context.Context, w http.ResponseWriter, req *apiRequest) error {
				return h.streamContents(ctx, w, req, stream.FeedPrefix+req.path.at(7))
			},
		},
		{
			name: "stream_contents_state",
			match: func(p segments) bool {
				return streamContentsWithTarget(p) && p.is(6, "user") && p.has(9) &&
					p.is(8, "state") && p.is(9, "com.google") &&
					(p.is(10, "reading-list") || p.is(10, "starred"))
			},
			requiresUser: true,
			handle: func(ctx context.Context, w http.ResponseWriter, req *apiRequest) error {
				return h.streamContents(ctx, w, req, stream.StatePrefix+req.path.at(10))
			},
		},
		{
			name: "stream_contents_label",
			match: func(p segments) bool {
				return streamContentsWithTarget(p) && p.is(6, "user") && p.has(9) && p.is(8, "label")
			},
			requiresUser: true,
			handle: func(ctx context.Context, w http.ResponseWriter, req *apiRequest) error {
				return h.streamContents(ctx, w, req, stream.LabelPrefix+req.path.from(9))
			},
		},
		{
			// EasyRSS は /stream/contents/ のように対象を付けずに全記事を要求する
			name: "stream_contents_reading_list",
			match: func(p segments) bool {
				return p.readerAPI() && p.is(4, "stream") && p.is(5, "contents") && p.has(6) && !p.has(7)
			},
			requiresUser: true,
			handle: func(ctx context.Context, w http.ResponseWriter, req *apiRequest) error {
				return h.streamContents(ctx, w, req, stream.ReadingList)
			},
		},
		{
			name: "stream_items_ids",
			match: func(p segments) bool {
				return p.readerAPI() && p.is(4, "stream") && p.is(5, "items") && p.is(6, "ids")
			},
			requiresUser: true,
			handle:       h.streamItemIDs,
		},
		{
			name: "tag_list",
			match: func(p segments) bool {
				return p.readerAPI() && p.is(4, "tag") && p.is(5, "list")
			},
			requiresUser: true,
			handle:       h.tagList,
		},
		{
			name: "subscription_list",
			match: func(p segments) bool {
				return p.readerAPI() && p.is(4, "subscription") && p.is(5, "list")
			},
			requiresUser: true,
			handle:       h.subscriptionList,
		},
		{
			name:         "unread_count",
			match:        func(p segments) bool { return p.readerAPI() && p.is(4, "unread-count") },
			requiresUser: true,
			handle:       h.unreadCount,
		},
		{
			name:         "edit_tag",
			match:        func(p segments) bool { return p.readerAPI() && p.is(4, "edit-tag") },
			requiresUser: true,
			handle:       h.editTag,
		},
		{
			name:         "mark_all_as_read",
			match:        func(p segments) bool { return p.readerAPI() && p.is(4, "mark-all-as-read") },
			requiresUser: true,
			handle:       h.markAllAsRead,
		},
		{
			name:         "token",
			match:        func(p segments) bool { return p.readerAPI() && p.is(4, "token") },
			requiresUser: true,
			handle:       h.token,
		},
		{
			name:         "reader_unknown",
			match:        segments.readerAPI,
			requiresUser: true,
			handle: func(ctx context.Context, w http.ResponseWriter, req *apiRequest) error {
				return errBadRequest("unknown reader endpoint")
			},
		},
	}
}

// streamContentsWithTarget は /stream/contents/<type>/<id>... 形式かを返す。
func streamContentsWithTarget(p segments) bool {
	return p.readerAPI() && p.is(4, "stream") && p.is(5, "contents") && p.has(6) && p.has(7)
}

// matchRoute はパスに最初に一致したルートを返す。一致しない場合はnil。
func matchRoute(table []route, p segments) *route {
	for i := range table {
		if table[i].match(p) {
			return &table[i]
		}
	}
	return nil
}
