package handler

import (
	"context"
	"io"
	"log/slog"

	"github.com/hitoshi/readerbridge/internal/model"
	"github.com/hitoshi/readerbridge/internal/stream"
)

type mockAuthenticator struct {
	verifyCredentialFn func(ctx context.Context, header string) (*model.UserConfig, error)
	loginFn            func(ctx context.Context, username, password string) (string, error)
	issueEditTokenFn   func(conf *model.UserConfig) string
	verifyEditTokenFn  func(conf *model.UserConfig, token string) error
}

func (m *mockAuthenticator) VerifyCredential(ctx context.Context, header string) (*model.UserConfig, error) {
	if m.verifyCredentialFn != nil {
		return m.verifyCredentialFn(ctx, header)
	}
	return nil, nil
}

func (m *mockAuthenticator) Login(ctx context.Context, username, password string) (string, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password)
	}
	return "", model.NewUnauthorizedError("not configured")
}

func (m *mockAuthenticator) IssueEditToken(conf *model.UserConfig) string {
	if m.issueEditTokenFn != nil {
		return m.issueEditTokenFn(conf)
	}
	return "token"
}

func (m *mockAuthenticator) VerifyEditToken(conf *model.UserConfig, token string) error {
	if m.verifyEditTokenFn != nil {
		return m.verifyEditTokenFn(conf, token)
	}
	return nil
}

type mockStreamResolver struct {
	resolveFn func(ctx context.Context, username, streamID string) (model.StreamDescriptor, error)
}

func (m *mockStreamResolver) Resolve(ctx context.Context, username, streamID string) (model.StreamDescriptor, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, username, streamID)
	}
	return model.StreamDescriptor{Kind: model.StreamAllItems}, nil
}

type mockEntryPager struct {
	listEntriesFn  func(ctx context.Context, username string, q model.EntryQuery, continuation string) (*stream.Page, error)
	listEntryIDsFn func(ctx context.Context, username string, q model.EntryQuery) ([]uint64, error)
}

func (m *mockEntryPager) ListEntries(ctx context.Context, username string, q model.EntryQuery, continuation string) (*stream.Page, error) {
	if m.listEntriesFn != nil {
		return m.listEntriesFn(ctx, username, q, continuation)
	}
	return &stream.Page{}, nil
}

func (m *mockEntryPager) ListEntryIDs(ctx context.Context, username string, q model.EntryQuery) ([]uint64, error) {
	if m.listEntryIDsFn != nil {
		return m.listEntryIDsFn(ctx, username, q)
	}
	return nil, nil
}

type mockCategoryReader struct {
	listFn              func(ctx context.Context, username string, withCounts bool) ([]*model.Category, error)
	feedCategoryIndexFn func(ctx context.Context, username string) (map[int64]model.FeedCategory, error)
}

func (m *mockCategoryReader) List(ctx context.Context, username string, withCounts bool) ([]*model.Category, error) {
	if m.listFn != nil {
		return m.listFn(ctx, username, withCounts)
	}
	return nil, nil
}

func (m *mockCategoryReader) FeedCategoryIndex(ctx context.Context, username string) (map[int64]model.FeedCategory, error) {
	if m.feedCategoryIndexFn != nil {
		return m.feedCategoryIndexFn(ctx, username)
	}
	return map[int64]model.FeedCategory{}, nil
}

type mockStateEditor struct {
	editTagFn       func(ctx context.Context, username string, refs []string, add, remove string) error
	markAllAsReadFn func(ctx context.Context, username, streamID string, olderThan uint64) error
}

func (m *mockStateEditor) EditTag(ctx context.Context, username string, refs []string, add, remove string) error {
	if m.editTagFn != nil {
		return m.editTagFn(ctx, username, refs, add, remove)
	}
	return nil
}

func (m *mockStateEditor) MarkAllAsRead(ctx context.Context, username, streamID string, olderThan uint64) error {
	if m.markAllAsReadFn != nil {
		return m.markAllAsReadFn(ctx, username, streamID, olderThan)
	}
	return nil
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testUser は認証済みとして扱うユーザー。
var testUser = &model.UserConfig{Username: "alice", APIPasswordHash: "hash"}

// authAs は常に指定ユーザーとして認証するAuthenticatorを返す。
func authAs(user *model.UserConfig) *mockAuthenticator {
	return &mockAuthenticator{
		verifyCredentialFn: func(ctx context.Context, header string) (*model.UserConfig, error) {
			if header == "" {
				return nil, nil
			}
			return user, nil
		},
	}
}

// newTestGReaderHandler は未設定の依存をデフォルトのモックで埋めたハンドラーを返す。
func newTestGReaderHandler(deps GReaderDeps) *GReaderHandler {
	if deps.Auth == nil {
		deps.Auth = authAs(testUser)
	}
	if deps.Resolver == nil {
		deps.Resolver = &mockStreamResolver{}
	}
	if deps.Entries == nil {
		deps.Entries = &mockEntryPager{}
	}
	if deps.Categories == nil {
		deps.Categories = &mockCategoryReader{}
	}
	if deps.States == nil {
		deps.States = &mockStateEditor{}
	}
	if deps.Health == nil {
		deps.Health = &mockHealthChecker{}
	}
	if deps.Logger == nil {
		deps.Logger = discardLogger()
	}
	return NewGReaderHandler(deps)
}
