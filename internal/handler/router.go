package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/readerbridge/internal/middleware"
)

// healthCheckTimeout は/healthでのDB疎通確認のタイムアウト。
const healthCheckTimeout = 3 * time.Second

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// APIPathPrefix はGoogle Reader互換APIのマウント先（例: /api/greader.php）。
	APIPathPrefix string
	GReader       http.Handler

	LoginLimiter   *middleware.LoginLimiter
	APIMetrics     middleware.APIRequestRecorder
	MetricsHandler http.Handler
	HealthChecker  HealthChecker
}

// NewRouter はAPIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Logging → Recovery → SecurityHeaders → (APIのみ) Metrics → (ClientLoginのみ) LoginLimiter
//
// APIPathPrefix 配下のパスはプレフィックスを取り除いてGReaderに渡す。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	prefix := "/" + strings.Trim(deps.APIPathPrefix, "/")
	api := http.StripPrefix(prefix, deps.GReader)

	r.Group(func(r chi.Router) {
		if deps.APIMetrics != nil {
			r.Use(middleware.NewMetricsMiddleware(deps.APIMetrics))
		}

		login := r.With()
		if deps.LoginLimiter != nil {
			login = r.With(deps.LoginLimiter.Middleware())
		}
		login.Handle(prefix+"/accounts/ClientLogin", api)

		r.Handle(prefix, api)
		r.Handle(prefix+"/*", api)
	})

	return r
}

// healthHandler はDBへの疎通を確認し、結果をJSONで返すハンドラーを生成する。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
