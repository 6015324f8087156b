package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/readerbridge/internal/middleware"
	"github.com/hitoshi/readerbridge/internal/model"
	"github.com/hitoshi/readerbridge/internal/stream"
)

// maxFormBytes はPOSTボディの上限。edit-tag で大量の記事IDを送るクライアントを考慮する。
const maxFormBytes = 1 << 20

// Authenticator は資格情報と編集トークンの発行・検証を行うインターフェース。
type Authenticator interface {
	VerifyCredential(ctx context.Context, header string) (*model.UserConfig, error)
	Login(ctx context.Context, username, password string) (string, error)
	IssueEditToken(conf *model.UserConfig) string
	VerifyEditToken(conf *model.UserConfig, token string) error
}

// StreamResolver はストリームIDをStreamDescriptorに変換するインターフェース。
type StreamResolver interface {
	Resolve(ctx context.Context, username, streamID string) (model.StreamDescriptor, error)
}

// EntryPager は記事一覧を取得するインターフェース。
type EntryPager interface {
	ListEntries(ctx context.Context, username string, q model.EntryQuery, continuation string) (*stream.Page, error)
	ListEntryIDs(ctx context.Context, username string, q model.EntryQuery) ([]uint64, error)
}

// CategoryReader はカテゴリとフィードの一覧を取得するインターフェース。
type CategoryReader interface {
	List(ctx context.Context, username string, withCounts bool) ([]*model.Category, error)
	FeedCategoryIndex(ctx context.Context, username string) (map[int64]model.FeedCategory, error)
}

// StateEditor は記事の既読・お気に入り状態を変更するインターフェース。
type StateEditor interface {
	EditTag(ctx context.Context, username string, refs []string, add, remove string) error
	MarkAllAsRead(ctx context.Context, username, streamID string, olderThan uint64) error
}

// HealthChecker はバックエンドへの疎通確認を行うインターフェース。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// GReaderDeps はGReaderHandlerの依存関係。
type GReaderDeps struct {
	Enabled    bool
	Auth       Authenticator
	Resolver   StreamResolver
	Entries    EntryPager
	Categories CategoryReader
	States     StateEditor
	Health     HealthChecker
	Logger     *slog.Logger
}

// GReaderHandler はGoogle Reader互換APIのリクエストを処理するHTTPハンドラー。
// r.URL.Path はPATH_INFO相当（マウント先のプレフィックスを除いたパス）である必要がある。
type GReaderHandler struct {
	enabled    bool
	auth       Authenticator
	resolver   StreamResolver
	entries    EntryPager
	categories CategoryReader
	states     StateEditor
	health     HealthChecker
	logger     *slog.Logger
	now        func() time.Time
	table      []route
}

// NewGReaderHandler はGReaderHandlerを生成する。
func NewGReaderHandler(deps GReaderDeps) *GReaderHandler {
	h := &GReaderHandler{
		enabled:    deps.Enabled,
		auth:       deps.Auth,
		resolver:   deps.Resolver,
		entries:    deps.Entries,
		categories: deps.Categories,
		states:     deps.States,
		health:     deps.Health,
		logger:     deps.Logger,
		now:        time.Now,
	}
	h.table = h.routes()
	return h
}

// ServeHTTP はAPI有効判定、資格情報の検証、ルーティングの順に処理する。
// 資格情報が不正な場合はどのエンドポイントでもエラーになる。
func (h *GReaderHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	info := middleware.RequestInfoFromContext(ctx)

	if !h.enabled {
		h.writeError(w, r, model.NewServiceUnavailableError("api disabled", nil))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		h.writeError(w, r, &model.ProtocolError{Kind: model.KindBadRequest, Reason: "malformed form", Err: err})
		return
	}

	user, err := h.auth.VerifyCredential(ctx, r.Header.Get("Authorization"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if user != nil {
		info.SetUsername(user.Username)
	}

	req := &apiRequest{
		path:     splitPathInfo(r.URL.Path),
		query:    r.URL.Query(),
		postForm: r.PostForm,
		user:     user,
	}

	if len(req.path) < 3 {
		h.writeError(w, r, errBadRequest("path too short"))
		return
	}

	rt := matchRoute(h.table, req.path)
	if rt == nil {
		h.writeError(w, r, errBadRequest("no matching route"))
		return
	}
	info.SetEndpoint(rt.name)

	if rt.requiresUser && user == nil {
		h.writeError(w, r, model.NewUnauthorizedError("credential required"))
		return
	}

	if err := rt.handle(ctx, w, req); err != nil {
		h.writeError(w, r, err)
	}
}

// writeError はエラーをプロトコルのエラーレスポンスに変換して書き込む。
// バックエンド由来のエラーは原因をログに残す。
func (h *GReaderHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	pe := model.AsProtocolError(err)
	if pe.Err != nil {
		level := slog.LevelWarn
		if pe.Kind == model.KindServiceUnavailable {
			level = slog.LevelError
		}
		h.logger.Log(r.Context(), level, "リクエスト処理中にエラーが発生しました",
			slog.String("request_id", middleware.RequestInfoFromContext(r.Context()).ID()),
			slog.String("path", r.URL.Path),
			slog.String("reason", pe.Reason),
			slog.String("error", pe.Err.Error()),
		)
	}
	writeProtocolError(w, pe)
}

func errBadRequest(reason string) error {
	return model.NewBadRequestError(reason)
}
