package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/readerbridge/internal/metrics"
	"github.com/hitoshi/readerbridge/internal/model"
)

const userAgent = "readerbridge/1.0 (+feed fetcher)"

// EntryUpserter はパース済み記事を保存するインターフェース。
type EntryUpserter interface {
	UpsertEntries(ctx context.Context, feedID int64, parsed []model.ParsedEntry) (int, int, error)
}

// FeedStateWriter はフィードのフェッチ状態を保存するインターフェース。
type FeedStateWriter interface {
	UpdateFetchState(ctx context.Context, feed *model.Feed) error
}

// URLGuard はフェッチ先URLの検証とSSRF対策済みクライアントを提供する。
type URLGuard interface {
	ValidateURL(rawURL string) error
	Client(timeout time.Duration) *http.Client
}

// TextSanitizer はタイトルや著者名からタグを除去する。
type TextSanitizer interface {
	StripTags(raw string) string
}

// FetcherConfig はFetcherの動作設定。
type FetcherConfig struct {
	Timeout         time.Duration
	MaxBodySize     int64
	RefreshInterval time.Duration
}

// errBodyTooLarge はレスポンスボディがMaxBodySizeを超えたことを表す。
var errBodyTooLarge = errors.New("response body exceeds size limit")

// Fetcher は1件のフィードを条件付きGETで取得し、記事を保存してフィード状態を更新する。
type Fetcher struct {
	feeds    FeedStateWriter
	upserter EntryUpserter
	guard    URLGuard
	text     TextSanitizer
	recorder metrics.FetchRecorder
	logger   *slog.Logger
	cfg      FetcherConfig
	now      func() time.Time
}

// NewFetcher はFetcherを生成する。
func NewFetcher(
	feeds FeedStateWriter,
	upserter EntryUpserter,
	guard URLGuard,
	text TextSanitizer,
	recorder metrics.FetchRecorder,
	logger *slog.Logger,
	cfg FetcherConfig,
) *Fetcher {
	return &Fetcher{
		feeds:    feeds,
		upserter: upserter,
		guard:    guard,
		text:     text,
		recorder: recorder,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Fetch はフィードを取得して結果に応じた状態を保存する。
// HTTPやパースの失敗はフィード状態に記録し、状態の保存自体に失敗した場合のみエラーを返す。
func (f *Fetcher) Fetch(ctx context.Context, feed *model.Feed) error {
	start := f.now()
	log := f.logger.With(slog.Int64("feed_id", feed.ID), slog.String("feed_url", feed.URL))

	if err := f.guard.ValidateURL(feed.URL); err != nil {
		log.Warn("feed URL rejected", slog.String("error", err.Error()))
		f.recorder.RecordFetchFailure(feed.ID, "ssrf")
		markStopped(feed, fmt.Sprintf("URL検証失敗: %s", err))
		return f.save(ctx, feed)
	}

	resp, err := f.get(ctx, feed)
	if err != nil {
		log.Warn("feed request failed", slog.String("error", err.Error()))
		f.recorder.RecordFetchFailure(feed.ID, "network")
		markBackoff(feed, fmt.Sprintf("HTTPリクエスト失敗: %s", err), f.now())
		return f.save(ctx, feed)
	}
	defer resp.Body.Close()

	f.recorder.RecordHTTPStatus(resp.StatusCode)
	f.recorder.RecordFetchLatency(f.now().Sub(start))

	switch Classify(resp.StatusCode) {
	case OutcomeNotModified:
		log.Info("feed not modified")
		f.recorder.RecordFetchSuccess(feed.ID)
		markFetched(feed, f.cfg.RefreshInterval, f.now())
		return f.save(ctx, feed)

	case OutcomeStop:
		log.Warn("feed fetching stopped", slog.Int("http_status", resp.StatusCode))
		f.recorder.RecordFetchFailure(feed.ID, "http_stop")
		markStopped(feed, fmt.Sprintf("HTTPステータス %d によりフェッチを停止しました", resp.StatusCode))
		return f.save(ctx, feed)

	case OutcomeBackoff:
		log.Warn("feed fetch backed off",
			slog.Int("http_status", resp.StatusCode),
			slog.Int("consecutive_errors", feed.ConsecutiveErrors+1),
		)
		f.recorder.RecordFetchFailure(feed.ID, "http_backoff")
		markBackoff(feed, fmt.Sprintf("HTTPステータス %d によりバックオフを適用しました", resp.StatusCode), f.now())
		return f.save(ctx, feed)
	}

	body, err := f.readBody(resp.Body)
	if err != nil {
		log.Warn("failed to read feed body", slog.String("error", err.Error()))
		f.recorder.RecordFetchFailure(feed.ID, "body")
		markBackoff(feed, fmt.Sprintf("レスポンス読み取り失敗: %s", err), f.now())
		return f.save(ctx, feed)
	}

	// gofeed.Parserは内部状態を持つため、フェッチごとに生成する。
	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		log.Warn("failed to parse feed", slog.String("error", err.Error()))
		f.recorder.RecordParseFailure(feed.ID)
		markParseFailure(feed, err.Error(), f.now())
		return f.save(ctx, feed)
	}

	entries := f.convertItems(parsed.Items)
	inserted, updated, err := f.upserter.UpsertEntries(ctx, feed.ID, entries)
	if err != nil {
		log.Error("failed to store entries", slog.String("error", err.Error()))
		f.recorder.RecordFetchFailure(feed.ID, "store")
		markBackoff(feed, fmt.Sprintf("記事の保存に失敗: %s", err), f.now())
		return f.save(ctx, feed)
	}
	f.recorder.RecordEntriesUpserted(inserted, updated)

	if etag := resp.Header.Get("ETag"); etag != "" {
		feed.ETag = etag
	}
	if lastModified := resp.Header.Get("Last-Modified"); lastModified != "" {
		feed.LastModified = lastModified
	}
	if title := f.text.StripTags(strings.TrimSpace(parsed.Title)); title != "" {
		feed.Name = title
	}
	if parsed.Link != "" {
		feed.Website = parsed.Link
	}
	feed.LastUpdate = f.now().Unix()
	markFetched(feed, f.cfg.RefreshInterval, f.now())
	f.recorder.RecordFetchSuccess(feed.ID)

	if err := f.save(ctx, feed); err != nil {
		return err
	}

	log.Info("feed fetched",
		slog.Int("http_status", resp.StatusCode),
		slog.Int("entries_total", len(entries)),
		slog.Int("entries_inserted", inserted),
		slog.Int("entries_updated", updated),
		slog.Int64("duration_ms", f.now().Sub(start).Milliseconds()),
	)
	return nil
}

// get は条件付きGETを発行する。
func (f *Fetcher) get(ctx context.Context, feed *model.Feed) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")
	if feed.ETag != "" {
		req.Header.Set("If-None-Match", feed.ETag)
	}
	if feed.LastModified != "" {
		req.Header.Set("If-Modified-Since", feed.LastModified)
	}
	return f.guard.Client(f.cfg.Timeout).Do(req)
}

// readBody はMaxBodySizeまで読み込む。上限を超えた場合はerrBodyTooLargeを返す。
func (f *Fetcher) readBody(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, f.cfg.MaxBodySize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > f.cfg.MaxBodySize {
		return nil, errBodyTooLarge
	}
	return body, nil
}

func (f *Fetcher) save(ctx context.Context, feed *model.Feed) error {
	if err := f.feeds.UpdateFetchState(ctx, feed); err != nil {
		f.logger.Error("failed to update feed state",
			slog.Int64("feed_id", feed.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to update feed state: %w", err)
	}
	return nil
}

// convertItems はgofeedの記事をParsedEntryに変換する。
// 本文が無い記事は概要を本文として使う。
func (f *Fetcher) convertItems(items []*gofeed.Item) []model.ParsedEntry {
	out := make([]model.ParsedEntry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}

		p := model.ParsedEntry{
			GUID:    strings.TrimSpace(item.GUID),
			Title:   f.text.StripTags(strings.TrimSpace(item.Title)),
			Link:    strings.TrimSpace(item.Link),
			Content: item.Content,
		}
		if p.Content == "" {
			p.Content = item.Description
		}

		switch {
		case item.Author != nil && item.Author.Name != "":
			p.Author = f.text.StripTags(item.Author.Name)
		case len(item.Authors) > 0 && item.Authors[0] != nil:
			p.Author = f.text.StripTags(item.Authors[0].Name)
		}

		switch {
		case item.PublishedParsed != nil:
			t := *item.PublishedParsed
			p.PublishedAt = &t
		case item.UpdatedParsed != nil:
			t := *item.UpdatedParsed
			p.PublishedAt = &t
		}

		if p.Link == "" && (strings.HasPrefix(p.GUID, "http://") || strings.HasPrefix(p.GUID, "https://")) {
			p.Link = p.GUID
		}

		out = append(out, p)
	}
	return out
}
