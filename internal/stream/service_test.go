package stream

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/hitoshi/readerbridge/internal/model"
)

// fakeEntryStore はID順の並び替え、継続位置（その記事自身を含む）、件数制限を
// PostgreSQL実装と同じ規則で適用するインメモリ実装。
type fakeEntryStore struct {
	entries []*model.Entry
	queries []model.EntryQuery
	err     error
}

func newFakeEntryStore(ids ...uint64) *fakeEntryStore {
	s := &fakeEntryStore{}
	for _, id := range ids {
		s.entries = append(s.entries, &model.Entry{ID: id})
	}
	return s
}

func (s *fakeEntryStore) List(_ context.Context, _ string, q model.EntryQuery) ([]*model.Entry, error) {
	s.queries = append(s.queries, q)
	if s.err != nil {
		return nil, s.err
	}

	sorted := make([]*model.Entry, len(s.entries))
	copy(sorted, s.entries)
	sort.Slice(sorted, func(i, j int) bool {
		if q.Order == model.OrderOldestFirst {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].ID > sorted[j].ID
	})

	var out []*model.Entry
	for _, e := range sorted {
		if q.ContinuationID != 0 {
			if q.Order == model.OrderOldestFirst && e.ID < q.ContinuationID {
				continue
			}
			if q.Order == model.OrderNewestFirst && e.ID > q.ContinuationID {
				continue
			}
		}
		if q.Stream.Filter == model.FilterUnreadOnly && e.IsRead {
			continue
		}
		if len(out) >= q.Limit {
			break
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *fakeEntryStore) ListIDs(ctx context.Context, username string, q model.EntryQuery) ([]uint64, error) {
	entries, err := s.List(ctx, username, q)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids, nil
}

func ids(entries []*model.Entry) []uint64 {
	out := make([]uint64, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func equalIDs(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestListEntries_EmptyBackend(t *testing.T) {
	svc := NewService(newFakeEntryStore())

	page, err := svc.ListEntries(context.Background(), "alice", model.EntryQuery{Limit: 20}, "")
	if err != nil {
		t.Fatalf("ListEntries returned error: %v", err)
	}
	if len(page.Entries) != 0 {
		t.Errorf("len(Entries) = %d, want 0", len(page.Entries))
	}
	if page.Continuation != "" {
		t.Errorf("Continuation = %q, want empty", page.Continuation)
	}
}

func TestListEntries_FirstPageEmitsContinuation(t *testing.T) {
	svc := NewService(newFakeEntryStore(1000, 2000, 3000, 4000, 5000))

	page, err := svc.ListEntries(context.Background(), "alice", model.EntryQuery{Limit: 2}, "")
	if err != nil {
		t.Fatalf("ListEntries returned error: %v", err)
	}
	if got := ids(page.Entries); !equalIDs(got, []uint64{5000, 4000}) {
		t.Errorf("ids = %v, want [5000 4000]", got)
	}
	if page.Continuation != "4000" {
		t.Errorf("Continuation = %q, want %q", page.Continuation, "4000")
	}
}

func TestListEntries_ShortPageHasNoContinuation(t *testing.T) {
	svc := NewService(newFakeEntryStore(1000, 2000))

	page, err := svc.ListEntries(context.Background(), "alice", model.EntryQuery{Limit: 5}, "")
	if err != nil {
		t.Fatalf("ListEntries returned error: %v", err)
	}
	if page.Continuation != "" {
		t.Errorf("Continuation = %q, want empty", page.Continuation)
	}
}

func TestListEntries_ZeroContinuationMeansFirstPage(t *testing.T) {
	store := newFakeEntryStore(1000, 2000, 3000)
	svc := NewService(store)

	page, err := svc.ListEntries(context.Background(), "alice", model.EntryQuery{Limit: 2}, "0")
	if err != nil {
		t.Fatalf("ListEntries returned error: %v", err)
	}
	if got := ids(page.Entries); !equalIDs(got, []uint64{3000, 2000}) {
		t.Errorf("ids = %v, want [3000 2000]", got)
	}
	if q := store.queries[0]; q.Limit != 2 || q.ContinuationID != 0 {
		t.Errorf("query = %+v, want Limit 2 without continuation", q)
	}
}

func TestListEntries_ContinuationFetchesOneMoreAndDiscardsFirst(t *testing.T) {
	store := newFakeEntryStore(1000, 2000, 3000, 4000, 5000)
	svc := NewService(store)

	page, err := svc.ListEntries(context.Background(), "alice", model.EntryQuery{Limit: 2}, "4000")
	if err != nil {
		t.Fatalf("ListEntries returned error: %v", err)
	}

	q := store.queries[len(store.queries)-1]
	if q.Limit != 3 {
		t.Errorf("backend limit = %d, want 3", q.Limit)
	}
	if q.ContinuationID != 4000 {
		t.Errorf("backend continuation = %d, want 4000", q.ContinuationID)
	}
	if got := ids(page.Entries); !equalIDs(got, []uint64{3000, 2000}) {
		t.Errorf("ids = %v, want [3000 2000]", got)
	}
	// 破棄前の最後の記事（=描画した最後の記事）のIDが次の継続トークンになる
	if page.Continuation != "2000" {
		t.Errorf("Continuation = %q, want %q", page.Continuation, "2000")
	}
}

func TestListEntries_ContinuationAtTailOmitsToken(t *testing.T) {
	svc := NewService(newFakeEntryStore(1000, 2000, 3000))

	page, err := svc.ListEntries(context.Background(), "alice", model.EntryQuery{Limit: 2}, "2000")
	if err != nil {
		t.Fatalf("ListEntries returned error: %v", err)
	}
	if got := ids(page.Entries); !equalIDs(got, []uint64{1000}) {
		t.Errorf("ids = %v, want [1000]", got)
	}
	if page.Continuation != "" {
		t.Errorf("Continuation = %q, want empty", page.Continuation)
	}
}

func TestListEntries_ContinuationOnlyOverlapRendersNothing(t *testing.T) {
	svc := NewService(newFakeEntryStore(1000, 2000))

	page, err := svc.ListEntries(context.Background(), "alice", model.EntryQuery{Limit: 0}, "1000")
	if err != nil {
		t.Fatalf("ListEntries returned error: %v", err)
	}
	if len(page.Entries) != 0 {
		t.Errorf("len(Entries) = %d, want 0", len(page.Entries))
	}
	if page.Continuation != "" {
		t.Errorf("Continuation = %q, want empty when nothing is rendered", page.Continuation)
	}
}

func TestListEntries_PagesNeverOverlap(t *testing.T) {
	for _, order := range []model.SortOrder{model.OrderNewestFirst, model.OrderOldestFirst} {
		var all []uint64
		for id := uint64(1); id <= 23; id++ {
			all = append(all, id*1000)
		}
		svc := NewService(newFakeEntryStore(all...))

		seen := map[uint64]bool{}
		var walked []uint64
		continuation := ""
		for pages := 0; pages < 20; pages++ {
			page, err := svc.ListEntries(context.Background(), "alice", model.EntryQuery{Limit: 5, Order: order}, continuation)
			if err != nil {
				t.Fatalf("ListEntries returned error: %v", err)
			}
			for _, e := range page.Entries {
				if seen[e.ID] {
					t.Fatalf("order %v: id %d delivered twice", order, e.ID)
				}
				seen[e.ID] = true
				if n := len(walked); n > 0 {
					prev := walked[n-1]
					if order == model.OrderNewestFirst && e.ID >= prev {
						t.Fatalf("order %v: %d after %d is not descending", order, e.ID, prev)
					}
					if order == model.OrderOldestFirst && e.ID <= prev {
						t.Fatalf("order %v: %d after %d is not ascending", order, e.ID, prev)
					}
				}
				walked = append(walked, e.ID)
			}
			if page.Continuation == "" {
				break
			}
			continuation = page.Continuation
		}

		if len(walked) != len(all) {
			t.Errorf("order %v: walked %d entries, want %d", order, len(walked), len(all))
		}
	}
}

func TestListEntries_DiscardIsUnconditional(t *testing.T) {
	// 継続位置の記事が削除されていても先頭は破棄される
	svc := NewService(newFakeEntryStore(1000, 2000, 3000))

	page, err := svc.ListEntries(context.Background(), "alice", model.EntryQuery{Limit: 5}, "3500")
	if err != nil {
		t.Fatalf("ListEntries returned error: %v", err)
	}
	if got := ids(page.Entries); !equalIDs(got, []uint64{2000, 1000}) {
		t.Errorf("ids = %v, want [2000 1000]", got)
	}
}

func TestListEntries_InvalidContinuation(t *testing.T) {
	store := newFakeEntryStore(1000)
	svc := NewService(store)

	_, err := svc.ListEntries(context.Background(), "alice", model.EntryQuery{Limit: 5}, "abc")
	var pe *model.ProtocolError
	if !errors.As(err, &pe) || pe.Kind != model.KindBadRequest {
		t.Errorf("error = %v, want BadRequest", err)
	}
	if len(store.queries) != 0 {
		t.Error("backend must not be queried with an invalid continuation")
	}
}

func TestListEntries_NegativeLimitClamped(t *testing.T) {
	store := newFakeEntryStore(1000)
	svc := NewService(store)

	page, err := svc.ListEntries(context.Background(), "alice", model.EntryQuery{Limit: -3}, "")
	if err != nil {
		t.Fatalf("ListEntries returned error: %v", err)
	}
	if store.queries[0].Limit != 0 {
		t.Errorf("backend limit = %d, want 0", store.queries[0].Limit)
	}
	if len(page.Entries) != 0 || page.Continuation != "" {
		t.Errorf("page = %+v, want empty without continuation", page)
	}
}

func TestListEntries_BackendError(t *testing.T) {
	store := newFakeEntryStore()
	store.err = errors.New("db down")
	svc := NewService(store)

	if _, err := svc.ListEntries(context.Background(), "alice", model.EntryQuery{Limit: 5}, ""); !errors.Is(err, store.err) {
		t.Errorf("error = %v, want wrapped backend error", err)
	}
}

func TestListEntryIDs_IgnoresContinuation(t *testing.T) {
	store := newFakeEntryStore(1000, 2000, 3000)
	svc := NewService(store)

	got, err := svc.ListEntryIDs(context.Background(), "alice", model.EntryQuery{Limit: 2, ContinuationID: 2000})
	if err != nil {
		t.Fatalf("ListEntryIDs returned error: %v", err)
	}
	if !equalIDs(got, []uint64{3000, 2000}) {
		t.Errorf("ids = %v, want [3000 2000]", got)
	}
	if store.queries[0].ContinuationID != 0 {
		t.Errorf("backend continuation = %d, want 0", store.queries[0].ContinuationID)
	}
}
