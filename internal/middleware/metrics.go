package middleware

import (
	"net/http"
	"time"
)

// unknownEndpoint はエンドポイントが確定しなかったリクエストのラベル。
const unknownEndpoint = "unknown"

// APIRequestRecorder はプロトコルリクエストの結果を記録するインターフェース。
type APIRequestRecorder interface {
	RecordAPIRequest(endpoint string, statusCode int, duration time.Duration)
}

// NewMetricsMiddleware はエンドポイント・ステータス別にリクエストを記録するミドルウェアを返す。
// エンドポイント名はRequestInfo経由でハンドラーから受け取るため、LoggingMiddlewareの内側に配置する。
func NewMetricsMiddleware(recorder APIRequestRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r)

			endpoint := RequestInfoFromContext(r.Context()).Endpoint()
			if endpoint == "" {
				endpoint = unknownEndpoint
			}
			recorder.RecordAPIRequest(endpoint, rec.statusCode, time.Since(start))
		})
	}
}
