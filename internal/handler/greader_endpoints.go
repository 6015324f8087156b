package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/hitoshi/readerbridge/internal/model"
	"github.com/hitoshi/readerbridge/internal/stream"
)

// defaultPageSize は n パラメータ省略時の取得件数。
const defaultPageSize = 20

// clientLogin はEmailとPasswdを検証し、資格情報トークンを返す。
// パラメータはクエリ文字列とPOSTボディのどちらでも受け付ける。
func (h *GReaderHandler) clientLogin(ctx context.Context, w http.ResponseWriter, req *apiRequest) error {
	email, okEmail := req.anyParam("Email")
	passwd, okPasswd := req.anyParam("Passwd")
	if !okEmail || !okPasswd {
		return errBadRequest("missing Email or Passwd")
	}

	credential, err := h.auth.Login(ctx, email, passwd)
	if err != nil {
		return err
	}

	writeText(w, "SID="+credential+"\nAuth="+credential+"\n")
	return nil
}

// checkCompatibility はバックエンドに到達できればPASS、できなければFAILを返す。
func (h *GReaderHandler) checkCompatibility(ctx context.Context, w http.ResponseWriter, req *apiRequest) error {
	result := "PASS"
	if h.health == nil || h.health.PingContext(ctx) != nil {
		result = "FAIL"
	}
	writeText(w, result)
	return nil
}

// streamContents は記事本文を含むストリームの1ページを返す。
func (h *GReaderHandler) streamContents(ctx context.Context, w http.ResponseWriter, req *apiRequest, streamID string) error {
	q, err := h.entryQuery(ctx, req, streamID)
	if err != nil {
		return err
	}
	continuation, _ := req.queryParam("c")

	page, err := h.entries.ListEntries(ctx, req.username(), q, continuation)
	if err != nil {
		return err
	}

	index, err := h.categories.FeedCategoryIndex(ctx, req.username())
	if err != nil {
		return err
	}

	writeJSON(w, buildStreamContents(page, index, h.now()))
	return nil
}

// streamItemIDs は s パラメータのストリームに含まれる記事IDを10進数で返す。
func (h *GReaderHandler) streamItemIDs(ctx context.Context, w http.ResponseWriter, req *apiRequest) error {
	streamID, ok := req.queryParam("s")
	if !ok {
		return errBadRequest("missing s")
	}

	q, err := h.entryQuery(ctx, req, streamID)
	if err != nil {
		return err
	}

	ids, err := h.entries.ListEntryIDs(ctx, req.username(), q)
	if err != nil {
		return err
	}

	writeJSON(w, buildItemRefs(ids))
	return nil
}

// entryQuery はストリームIDとクエリパラメータ n, r, ot, xt から検索条件を組み立てる。
func (h *GReaderHandler) entryQuery(ctx context.Context, req *apiRequest, streamID string) (model.EntryQuery, error) {
	desc, err := h.resolver.Resolve(ctx, req.username(), streamID)
	if err != nil {
		return model.EntryQuery{}, err
	}

	xt, _ := req.queryParam("xt")
	desc.Filter = stream.ExcludeTargetFilter(xt)

	limit := defaultPageSize
	if n, ok := req.queryParam("n"); ok {
		limit = intval(n)
	}
	order, _ := req.queryParam("r")
	ot, _ := req.queryParam("ot")

	return model.EntryQuery{
		Stream:    desc,
		Order:     stream.ParseOrder(order),
		Limit:     limit,
		SinceTime: int64(intval(ot)),
	}, nil
}

// tagList はお気に入りと全カテゴリのタグ一覧を返す。
func (h *GReaderHandler) tagList(ctx context.Context, w http.ResponseWriter, req *apiRequest) error {
	if err := requireJSONOutput(req); err != nil {
		return err
	}

	categories, err := h.categories.List(ctx, req.username(), false)
	if err != nil {
		return err
	}

	writeJSON(w, buildTagList(categories))
	return nil
}

// subscriptionList はカテゴリに属するフィードの購読一覧を返す。
func (h *GReaderHandler) subscriptionList(ctx context.Context, w http.ResponseWriter, req *apiRequest) error {
	if err := requireJSONOutput(req); err != nil {
		return err
	}

	categories, err := h.categories.List(ctx, req.username(), false)
	if err != nil {
		return err
	}

	writeJSON(w, buildSubscriptionList(categories))
	return nil
}

// unreadCount はフィード・カテゴリ・全体の未読数を返す。
func (h *GReaderHandler) unreadCount(ctx context.Context, w http.ResponseWriter, req *apiRequest) error {
	if err := requireJSONOutput(req); err != nil {
		return err
	}

	categories, err := h.categories.List(ctx, req.username(), true)
	if err != nil {
		return err
	}

	writeJSON(w, buildUnreadCounts(categories))
	return nil
}

// editTag は編集トークンを検証し、i で指定した記事に a/r のタグを付け外しする。
func (h *GReaderHandler) editTag(ctx context.Context, w http.ResponseWriter, req *apiRequest) error {
	if err := h.checkEditToken(req); err != nil {
		return err
	}

	add, _ := req.postParam("a")
	remove, _ := req.postParam("r")

	if err := h.states.EditTag(ctx, req.username(), req.postForm["i"], add, remove); err != nil {
		return err
	}

	writeText(w, "OK")
	return nil
}

// markAllAsRead は編集トークンを検証し、s のストリームを ts 以前まで既読にする。
// ts が10進数字のみで構成されていない場合は上限なし（0）として扱う。
func (h *GReaderHandler) markAllAsRead(ctx context.Context, w http.ResponseWriter, req *apiRequest) error {
	if err := h.checkEditToken(req); err != nil {
		return err
	}

	streamID, _ := req.postParam("s")
	var olderThan uint64
	if ts, ok := req.postParam("ts"); ok && isDigits(ts) {
		if v, err := strconv.ParseUint(ts, 10, 64); err == nil {
			olderThan = v
		}
	}

	if err := h.states.MarkAllAsRead(ctx, req.username(), streamID, olderThan); err != nil {
		return err
	}

	writeText(w, "OK")
	return nil
}

// token は編集トークンを返す。
func (h *GReaderHandler) token(ctx context.Context, w http.ResponseWriter, req *apiRequest) error {
	writeText(w, h.auth.IssueEditToken(req.user)+"\n")
	return nil
}

func (h *GReaderHandler) checkEditToken(req *apiRequest) error {
	t, _ := req.postParam("T")
	return h.auth.VerifyEditToken(req.user, strings.TrimSpace(t))
}

// requireJSONOutput は output=json 以外の要求をNotImplementedにする。
func requireJSONOutput(req *apiRequest) error {
	if output, _ := req.queryParam("output"); output != "json" {
		return model.NewNotImplementedError("unsupported output format")
	}
	return nil
}

// intval は先頭の符号付き10進数字列を整数として読む。数字がなければ0。
// "15abc" は15、"abc" は0、"-3" は-3になる。
func intval(s string) int {
	s = strings.TrimLeft(s, " \t\n\r\v\f")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digitsStart := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digitsStart {
		return 0
	}
	v, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return v
}

// isDigits は空でなく10進数字のみで構成されているかを返す。
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
