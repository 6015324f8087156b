package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/readerbridge/internal/itemid"
	"github.com/hitoshi/readerbridge/internal/model"
	"github.com/hitoshi/readerbridge/internal/stream"
)

// unknownName はインデックスに存在しないフィードのカテゴリ名・フィード名の代わりに使う。
const unknownName = "_"

// responseBody はJSONで返すレスポンスの種類を閉じた集合として表す。
type responseBody interface {
	responseKind() string
}

type tagRef struct {
	ID string `json:"id"`
}

type tagListResponse struct {
	Tags []tagRef `json:"tags"`
}

type subscriptionCategory struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type subscription struct {
	ID         string                 `json:"id"`
	Title      string                 `json:"title"`
	Categories []subscriptionCategory `json:"categories"`
	URL        string                 `json:"url"`
	HTMLURL    string                 `json:"htmlUrl"`
}

type subscriptionListResponse struct {
	Subscriptions []subscription `json:"subscriptions"`
}

type unreadCountEntry struct {
	ID                      string `json:"id"`
	Count                   int    `json:"count"`
	NewestItemTimestampUsec string `json:"newestItemTimestampUsec"`
}

type unreadCountResponse struct {
	Max          int                `json:"max"`
	UnreadCounts []unreadCountEntry `json:"unreadcounts"`
}

type itemContent struct {
	Content string `json:"content"`
}

type itemLink struct {
	Href string `json:"href"`
}

type itemOrigin struct {
	StreamID string `json:"streamId"`
	Title    string `json:"title"`
}

type streamItem struct {
	ID            string      `json:"id"`
	CrawlTimeMsec string      `json:"crawlTimeMsec"`
	TimestampUsec string      `json:"timestampUsec"`
	Published     int64       `json:"published"`
	Title         string      `json:"title"`
	Summary       itemContent `json:"summary"`
	Alternate     []itemLink  `json:"alternate"`
	Categories    []string    `json:"categories"`
	Origin        itemOrigin  `json:"origin"`
	Author        string      `json:"author,omitempty"`
}

type streamContentsResponse struct {
	ID           string       `json:"id"`
	Updated      int64        `json:"updated"`
	Items        []streamItem `json:"items"`
	Continuation string       `json:"continuation,omitempty"`
}

type itemRef struct {
	ID string `json:"id"`
}

type itemRefsResponse struct {
	ItemRefs []itemRef `json:"itemRefs"`
}

func (tagListResponse) responseKind() string          { return "tag_list" }
func (subscriptionListResponse) responseKind() string { return "subscription_list" }
func (unreadCountResponse) responseKind() string      { return "unread_count" }
func (streamContentsResponse) responseKind() string   { return "stream_contents" }
func (itemRefsResponse) responseKind() string         { return "item_refs" }

// buildTagList はお気に入りを先頭に、カテゴリごとのラベルを続けたタグ一覧を組み立てる。
func buildTagList(categories []*model.Category) tagListResponse {
	tags := make([]tagRef, 0, len(categories)+1)
	tags = append(tags, tagRef{ID: stream.Starred})
	for _, c := range categories {
		tags = append(tags, tagRef{ID: stream.LabelStreamID(c.Name)})
	}
	return tagListResponse{Tags: tags}
}

// buildSubscriptionList はカテゴリに属するフィードを購読として列挙する。
func buildSubscriptionList(categories []*model.Category) subscriptionListResponse {
	subs := make([]subscription, 0)
	for _, c := range categories {
		for _, f := range c.Feeds {
			subs = append(subs, subscription{
				ID:    stream.FeedStreamID(f.ID),
				Title: f.Name,
				Categories: []subscriptionCategory{{
					ID:    stream.LabelStreamID(c.Name),
					Label: c.Name,
				}},
				URL:     f.URL,
				HTMLURL: f.Website,
			})
		}
	}
	return subscriptionListResponse{Subscriptions: subs}
}

// buildUnreadCounts はカテゴリごとに配下フィードの未読数、カテゴリの未読数の順で並べ、
// 最後に全体の未読数を加える。maxは全体の未読数。
func buildUnreadCounts(categories []*model.Category) unreadCountResponse {
	counts := make([]unreadCountEntry, 0)
	total := 0
	var newest int64
	for _, c := range categories {
		for _, f := range c.Feeds {
			counts = append(counts, unreadCountEntry{
				ID:                      stream.FeedStreamID(f.ID),
				Count:                   f.UnreadCount,
				NewestItemTimestampUsec: secondsToUsec(f.LastUpdate),
			})
		}
		catLastUpdate := c.LastUpdate()
		counts = append(counts, unreadCountEntry{
			ID:                      stream.LabelStreamID(c.Name),
			Count:                   c.UnreadCount(),
			NewestItemTimestampUsec: secondsToUsec(catLastUpdate),
		})
		total += c.UnreadCount()
		if catLastUpdate > newest {
			newest = catLastUpdate
		}
	}
	counts = append(counts, unreadCountEntry{
		ID:                      stream.ReadingList,
		Count:                   total,
		NewestItemTimestampUsec: secondsToUsec(newest),
	})
	return unreadCountResponse{Max: total, UnreadCounts: counts}
}

// buildStreamContents は記事ページをstreamContentsレスポンスに変換する。
func buildStreamContents(page *stream.Page, index map[int64]model.FeedCategory, now time.Time) streamContentsResponse {
	items := make([]streamItem, 0, len(page.Entries))
	for _, e := range page.Entries {
		items = append(items, buildStreamItem(e, index))
	}
	return streamContentsResponse{
		ID:           stream.ReadingList,
		Updated:      now.Unix(),
		Items:        items,
		Continuation: page.Continuation,
	}
}

func buildStreamItem(e *model.Entry, index map[int64]model.FeedCategory) streamItem {
	categoryName, feedName := unknownName, unknownName
	if fc, ok := index[e.FeedID]; ok {
		categoryName, feedName = fc.CategoryName, fc.FeedName
	}

	categories := []string{stream.ReadingList, stream.LabelStreamID(categoryName)}
	if e.IsRead {
		categories = append(categories, stream.ReadState)
	}
	if e.IsFavorite {
		categories = append(categories, stream.Starred)
	}

	return streamItem{
		ID:            itemid.EncodeHex(e.ID),
		CrawlTimeMsec: itemid.CrawlTimeMsec(e.ID),
		TimestampUsec: itemid.FormatDecimal(e.ID),
		Published:     e.Date,
		Title:         e.Title,
		Summary:       itemContent{Content: e.Content},
		Alternate:     []itemLink{{Href: e.Link}},
		Categories:    categories,
		Origin: itemOrigin{
			StreamID: stream.FeedStreamID(e.FeedID),
			Title:    feedName,
		},
		Author: e.Author,
	}
}

// buildItemRefs は記事IDを10進数文字列の参照一覧にする。
func buildItemRefs(ids []uint64) itemRefsResponse {
	refs := make([]itemRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, itemRef{ID: itemid.FormatDecimal(id)})
	}
	return itemRefsResponse{ItemRefs: refs}
}

// secondsToUsec は秒単位のUNIX時刻をマイクロ秒表記の文字列にする。
func secondsToUsec(sec int64) string {
	return strconv.FormatInt(sec, 10) + "000000"
}

// writeJSON はレスポンスをJSONで書き込む。末尾に改行が付く。
func writeJSON(w http.ResponseWriter, body responseBody) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(body)
}

// writeText はプレーンテキストのレスポンスを書き込む。
func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

// writeProtocolError はエラー種別に応じたステータスと固定ボディを書き込む。
// Unauthorizedの場合はクライアントに再ログインを促すヘッダーを付ける。
func writeProtocolError(w http.ResponseWriter, pe *model.ProtocolError) {
	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	if pe.Kind == model.KindUnauthorized {
		w.Header().Set("Google-Bad-Token", "true")
	}
	w.WriteHeader(pe.StatusCode())
	w.Write([]byte(pe.Body()))
}
