package fetch

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hitoshi/readerbridge/internal/model"
)

// mockFeedStore はDueFeedListerとFeedStateWriterのテスト用モック。
type mockFeedStore struct {
	mu                   sync.Mutex
	listDueForFetchFunc  func(ctx context.Context, limit int) ([]*model.Feed, error)
	updateFetchStateFunc func(ctx context.Context, feed *model.Feed) error
	saved                []model.Feed
}

func (m *mockFeedStore) ListDueForFetch(ctx context.Context, limit int) ([]*model.Feed, error) {
	if m.listDueForFetchFunc != nil {
		return m.listDueForFetchFunc(ctx, limit)
	}
	return nil, nil
}

func (m *mockFeedStore) UpdateFetchState(ctx context.Context, feed *model.Feed) error {
	m.mu.Lock()
	m.saved = append(m.saved, *feed)
	m.mu.Unlock()
	if m.updateFetchStateFunc != nil {
		return m.updateFetchStateFunc(ctx, feed)
	}
	return nil
}

// mockUpserter はEntryUpserterのテスト用モック。
type mockUpserter struct {
	inserted   int
	updated    int
	err        error
	called     bool
	calledWith []model.ParsedEntry
}

func (m *mockUpserter) UpsertEntries(_ context.Context, _ int64, parsed []model.ParsedEntry) (int, int, error) {
	m.called = true
	m.calledWith = parsed
	return m.inserted, m.updated, m.err
}

// mockGuard はURLGuardのテスト用モック。httptestのループバックへ接続できるよう素のクライアントを返す。
type mockGuard struct {
	validateErr error
}

func (m *mockGuard) ValidateURL(string) error { return m.validateErr }

func (m *mockGuard) Client(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

type plainText struct{}

func (plainText) StripTags(s string) string { return s }

// fakeRecorder はmetrics.FetchRecorderの呼び出しを記録する。
type fakeRecorder struct {
	mu        sync.Mutex
	successes int
	failures  []string
	parses    int
	statuses  []int
	inserted  int
	updated   int
}

func (r *fakeRecorder) RecordFetchSuccess(int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes++
}

func (r *fakeRecorder) RecordFetchFailure(_ int64, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, reason)
}

func (r *fakeRecorder) RecordParseFailure(int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parses++
}

func (r *fakeRecorder) RecordHTTPStatus(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, code)
}

func (r *fakeRecorder) RecordFetchLatency(time.Duration) {}

func (r *fakeRecorder) RecordEntriesUpserted(inserted, updated int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserted += inserted
	r.updated += updated
}

// mockFetcher はFeedFetcherのテスト用モック。
type mockFetcher struct {
	fetchFunc func(ctx context.Context, feed *model.Feed) error
}

func (m *mockFetcher) Fetch(ctx context.Context, feed *model.Feed) error {
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, feed)
	}
	return nil
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
