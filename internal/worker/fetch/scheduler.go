// Package fetch はフィードのバックグラウンドフェッチを提供する。
// スケジューラが期限の来たフィードを選び、フェッチャーが取得・パース・保存を行う。
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/readerbridge/internal/model"
)

// DueFeedLister はフェッチ期限の来たフィードを返すインターフェース。
type DueFeedLister interface {
	ListDueForFetch(ctx context.Context, limit int) ([]*model.Feed, error)
}

// FeedFetcher は1件のフィードをフェッチするインターフェース。
type FeedFetcher interface {
	Fetch(ctx context.Context, feed *model.Feed) error
}

const (
	defaultMaxConcurrency = 10
	// batchSize は1サイクルで処理するフィード数の上限。
	batchSize = 500
)

// Scheduler は一定間隔でフェッチ対象を選び、並列数を制限してフェッチする。
type Scheduler struct {
	feeds          DueFeedLister
	fetcher        FeedFetcher
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerを生成する。maxConcurrencyが0以下の場合は10になる。
func NewScheduler(feeds DueFeedLister, fetcher FeedFetcher, logger *slog.Logger, maxConcurrency int) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}
	return &Scheduler{
		feeds:          feeds,
		fetcher:        fetcher,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は起動直後とinterval毎にRunOnceを実行する。ctxがキャンセルされると戻る。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("fetch scheduler started",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.logger.Error("fetch cycle failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			s.logger.Info("fetch scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce は期限の来たフィードを取得し、すべてのフェッチが終わるまで待つ。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	feeds, err := s.feeds.ListDueForFetch(ctx, batchSize)
	if err != nil {
		return fmt.Errorf("failed to list due feeds: %w", err)
	}
	if len(feeds) == 0 {
		return nil
	}

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, feed := range feeds {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(feed *model.Feed) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.fetcher.Fetch(ctx, feed); err != nil {
				s.logger.Error("feed fetch failed",
					slog.Int64("feed_id", feed.ID),
					slog.String("feed_url", feed.URL),
					slog.String("error", err.Error()),
				)
			}
		}(feed)
	}
	wg.Wait()

	s.logger.Info("fetch cycle completed",
		slog.Int("feed_count", len(feeds)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return nil
}
