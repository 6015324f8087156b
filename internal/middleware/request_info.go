package middleware

import (
	"context"
	"sync"
)

type requestInfoKey struct{}

// RequestInfo はリクエスト処理中に判明した情報をミドルウェアへ受け渡すためのホルダー。
// ハンドラーが認証ユーザーやエンドポイント名を書き込み、ログ・メトリクスミドルウェアが読み出す。
// nilレシーバーに対する呼び出しは何もしない。
type RequestInfo struct {
	mu       sync.Mutex
	id       string
	username string
	endpoint string
}

// NewRequestInfo は指定したリクエストIDを持つRequestInfoを生成する。
func NewRequestInfo(requestID string) *RequestInfo {
	return &RequestInfo{id: requestID}
}

// ID はリクエストIDを返す。
func (ri *RequestInfo) ID() string {
	if ri == nil {
		return ""
	}
	return ri.id
}

// SetUsername は認証済みユーザー名を記録する。
func (ri *RequestInfo) SetUsername(username string) {
	if ri == nil {
		return
	}
	ri.mu.Lock()
	ri.username = username
	ri.mu.Unlock()
}

// Username は記録されたユーザー名を返す。
func (ri *RequestInfo) Username() string {
	if ri == nil {
		return ""
	}
	ri.mu.Lock()
	defer ri.mu.Unlock()
	return ri.username
}

// SetEndpoint はディスパッチ先のエンドポイント名を記録する。
func (ri *RequestInfo) SetEndpoint(endpoint string) {
	if ri == nil {
		return
	}
	ri.mu.Lock()
	ri.endpoint = endpoint
	ri.mu.Unlock()
}

// Endpoint は記録されたエンドポイント名を返す。
func (ri *RequestInfo) Endpoint() string {
	if ri == nil {
		return ""
	}
	ri.mu.Lock()
	defer ri.mu.Unlock()
	return ri.endpoint
}

// WithRequestInfo はRequestInfoを格納したコンテキストを返す。
func WithRequestInfo(ctx context.Context, ri *RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, ri)
}

// RequestInfoFromContext はコンテキストからRequestInfoを取り出す。未設定の場合はnil。
func RequestInfoFromContext(ctx context.Context) *RequestInfo {
	ri, _ := ctx.Value(requestInfoKey{}).(*RequestInfo)
	return ri
}
