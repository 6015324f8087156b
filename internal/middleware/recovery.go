package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// NewRecoveryMiddleware はpanic発生時にプロセスクラッシュを防ぎ、
// プレーンテキストの500レスポンスを返すミドルウェアを生成する。
func NewRecoveryMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						slog.Any("panic", rec),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("request_id", RequestInfoFromContext(r.Context()).ID()),
						slog.String("stack", string(debug.Stack())),
					)
					w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte("Internal Server Error!"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
