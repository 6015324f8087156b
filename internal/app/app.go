package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/readerbridge/internal/auth"
	"github.com/hitoshi/readerbridge/internal/config"
	"github.com/hitoshi/readerbridge/internal/database"
	"github.com/hitoshi/readerbridge/internal/entry"
	"github.com/hitoshi/readerbridge/internal/handler"
	"github.com/hitoshi/readerbridge/internal/logger"
	"github.com/hitoshi/readerbridge/internal/metrics"
	"github.com/hitoshi/readerbridge/internal/middleware"
	"github.com/hitoshi/readerbridge/internal/repository"
	"github.com/hitoshi/readerbridge/internal/security"
	"github.com/hitoshi/readerbridge/internal/stream"
	"github.com/hitoshi/readerbridge/internal/worker/cleanup"
	fetchpkg "github.com/hitoshi/readerbridge/internal/worker/fetch"
)

// cleanupInterval は保持期間切れ記事の削除間隔。
const cleanupInterval = 24 * time.Hour

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ったJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込みのエラーを出力できるよう、先にInfoレベルで初期化する
	logger.SetupDefault(w, slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	return run(os.Stdin, w, args)
}

func run(stdin io.Reader, w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("api_path_prefix", cfg.APIPathPrefix),
	)

	var rest []string
	if len(args) > 1 {
		rest = args[1:]
	}

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandSetPassword:
		return runSetPassword(cfg, stdin, w, rest)
	case CommandImportOPML:
		return runImportOPML(cfg, stdin, w, rest)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newRegistry はGoランタイムとプロセスのコレクターを登録したレジストリを返す。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDatabase(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	userRepo := repository.NewPostgresUserRepo(db)
	categoryRepo := repository.NewPostgresCategoryRepo(db)
	entryRepo := repository.NewPostgresEntryRepo(db)

	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	loginLimiter := middleware.NewLoginLimiter(
		middleware.LoginLimiterConfigPerMinute(cfg.LoginRateLimit), slog.Default(),
	)
	defer loginLimiter.Stop()

	greader := handler.NewGReaderHandler(handler.GReaderDeps{
		Enabled:    cfg.APIEnabled,
		Auth:       auth.NewService(userRepo, cfg.APISalt, slog.Default()),
		Resolver:   stream.NewResolver(categoryRepo),
		Entries:    stream.NewService(entryRepo),
		Categories: categoryRepo,
		States:     entry.NewStateService(entryRepo, slog.Default()),
		Health:     db,
		Logger:     slog.Default(),
	})

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:         slog.Default(),
		APIPathPrefix:  cfg.APIPathPrefix,
		GReader:        greader,
		LoginLimiter:   loginLimiter,
		APIMetrics:     collector,
		MetricsHandler: metrics.Handler(reg),
		HealthChecker:  db,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.Bool("api_enabled", cfg.APIEnabled),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// フェッチスケジューラと記事クリーンアップジョブを起動し、
// METRICS_PORTが空でなければ/metricsと/healthを公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	feedRepo := repository.NewPostgresFeedRepo(db)
	entryRepo := repository.NewPostgresEntryRepo(db)

	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	// 時計が巻き戻った後の再起動でも既存の記事IDを下回らないようにする
	maxID, err := entryRepo.MaxID(ctx)
	if err != nil {
		return err
	}
	ids := entry.NewIDGenerator()
	ids.Advance(maxID)

	upsertSvc := entry.NewUpsertService(entryRepo, sanitizer, ids)
	fetcher := fetchpkg.NewFetcher(
		feedRepo, upsertSvc, ssrfGuard, sanitizer, collector, slog.Default(),
		fetchpkg.FetcherConfig{
			Timeout:         cfg.FetchTimeout,
			MaxBodySize:     cfg.FetchMaxSize,
			RefreshInterval: cfg.FeedRefreshInterval,
		},
	)
	scheduler := fetchpkg.NewScheduler(feedRepo, fetcher, slog.Default(), cfg.FetchMaxConcurrent)
	cleanupJob := cleanup.NewCleanupJob(db, collector, slog.Default(), cfg.EntryRetentionDays)

	var metricsServer *http.Server
	if cfg.MetricsPort != "" {
		metricsServer = &http.Server{
			Addr:        ":" + cfg.MetricsPort,
			Handler:     workerRouter(reg, db),
			ReadTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("worker metrics server starting", slog.String("addr", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server listen error", slog.String("error", err.Error()))
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("fetch_interval", cfg.FetchInterval),
		slog.Int("max_concurrent", cfg.FetchMaxConcurrent),
		slog.Int("retention_days", cfg.EntryRetentionDays),
	)

	go cleanupJob.Start(ctx, cleanupInterval)

	// フェッチスケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.FetchInterval)

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.String("error", err.Error()))
		}
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// workerRouter はワーカー用の/metricsと/healthを持つルーターを返す。
func workerRouter(gatherer prometheus.Gatherer, checker handler.HealthChecker) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", metrics.Handler(gatherer))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := checker.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return r
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用し、適用後のバージョンをログに残す。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
