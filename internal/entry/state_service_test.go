package entry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/hitoshi/readerbridge/internal/model"
)

type markCall struct {
	op     string
	ids    []uint64
	value  bool
	scope  string
	feedID int64
	older  uint64
}

// mockStateWriter は呼び出しを記録するStateWriterのモック。
type mockStateWriter struct {
	calls []markCall
	err   error
}

func (m *mockStateWriter) MarkRead(_ context.Context, _ string, ids []uint64, read bool) (int64, error) {
	m.calls = append(m.calls, markCall{op: "read", ids: ids, value: read})
	return int64(len(ids)), m.err
}

func (m *mockStateWriter) MarkFavorite(_ context.Context, _ string, ids []uint64, favorite bool) (int64, error) {
	m.calls = append(m.calls, markCall{op: "favorite", ids: ids, value: favorite})
	return int64(len(ids)), m.err
}

func (m *mockStateWriter) MarkFeedRead(_ context.Context, _ string, feedID int64, olderThan uint64) (int64, error) {
	m.calls = append(m.calls, markCall{op: "feed", feedID: feedID, older: olderThan})
	return 0, m.err
}

func (m *mockStateWriter) MarkCategoryRead(_ context.Context, _ string, name string, olderThan uint64) (int64, error) {
	m.calls = append(m.calls, markCall{op: "category", scope: name, older: olderThan})
	return 0, m.err
}

func (m *mockStateWriter) MarkAllRead(_ context.Context, _ string, olderThan uint64) (int64, error) {
	m.calls = append(m.calls, markCall{op: "all", older: olderThan})
	return 0, m.err
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func TestEditTag_MarkReadLongForm(t *testing.T) {
	var buf bytes.Buffer
	w := &mockStateWriter{}
	svc := NewStateService(w, newTestLogger(&buf))

	err := svc.EditTag(context.Background(), "alice",
		[]string{"tag:google.com,2005:reader/item/00000000000003e8"},
		"user/-/state/com.google/read", "")
	if err != nil {
		t.Fatalf("EditTag returned error: %v", err)
	}

	if len(w.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(w.calls))
	}
	c := w.calls[0]
	if c.op != "read" || !c.value {
		t.Errorf("call = %+v, want read=true", c)
	}
	if len(c.ids) != 1 || c.ids[0] != 1000 {
		t.Errorf("ids = %v, want [1000]", c.ids)
	}
}

func TestEditTag_AddAndRemove(t *testing.T) {
	w := &mockStateWriter{}
	svc := NewStateService(w, nil)

	err := svc.EditTag(context.Background(), "alice",
		[]string{"00000000000003e8", "00000000000007d0"},
		"user/-/state/com.google/starred", "user/-/state/com.google/read")
	if err != nil {
		t.Fatalf("EditTag returned error: %v", err)
	}

	if len(w.calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(w.calls))
	}
	if w.calls[0].op != "favorite" || !w.calls[0].value {
		t.Errorf("first call = %+v, want favorite=true", w.calls[0])
	}
	if w.calls[1].op != "read" || w.calls[1].value {
		t.Errorf("second call = %+v, want read=false", w.calls[1])
	}
	if len(w.calls[0].ids) != 2 || w.calls[0].ids[1] != 2000 {
		t.Errorf("ids = %v, want [1000 2000]", w.calls[0].ids)
	}
}

func TestEditTag_UnknownActionIgnored(t *testing.T) {
	w := &mockStateWriter{}
	svc := NewStateService(w, nil)

	err := svc.EditTag(context.Background(), "alice",
		[]string{"00000000000003e8"},
		"user/-/label/Tech", "user/-/state/com.google/kept-unread")
	if err != nil {
		t.Fatalf("EditTag returned error: %v", err)
	}
	if len(w.calls) != 0 {
		t.Errorf("calls = %+v, want none", w.calls)
	}
}

func TestEditTag_InvalidIDIsBadRequest(t *testing.T) {
	w := &mockStateWriter{}
	svc := NewStateService(w, nil)

	err := svc.EditTag(context.Background(), "alice",
		[]string{"00000000000003e8", "tag:google.com,2005:reader/item/not-hex"},
		"user/-/state/com.google/read", "")

	var pe *model.ProtocolError
	if !errors.As(err, &pe) || pe.Kind != model.KindBadRequest {
		t.Fatalf("error = %v, want BadRequest", err)
	}
	if len(w.calls) != 0 {
		t.Error("no state must change when any id is invalid")
	}
}

func TestEditTag_NoIDs(t *testing.T) {
	w := &mockStateWriter{}
	svc := NewStateService(w, nil)

	if err := svc.EditTag(context.Background(), "alice", nil, "user/-/state/com.google/read", ""); err != nil {
		t.Fatalf("EditTag returned error: %v", err)
	}
	if len(w.calls) != 0 {
		t.Errorf("calls = %+v, want none", w.calls)
	}
}

func TestEditTag_BackendError(t *testing.T) {
	w := &mockStateWriter{err: errors.New("db down")}
	svc := NewStateService(w, nil)

	err := svc.EditTag(context.Background(), "alice", []string{"3e8"}, "user/-/state/com.google/read", "")
	if !errors.Is(err, w.err) {
		t.Errorf("error = %v, want wrapped backend error", err)
	}
}

func TestMarkAllAsRead_Dispatch(t *testing.T) {
	tests := []struct {
		streamID string
		want     markCall
	}{
		{"feed/12", markCall{op: "feed", feedID: 12, older: 1700000000000000}},
		{"feed/abc", markCall{op: "feed", feedID: model.NoMatchScopeID, older: 1700000000000000}},
		{"user/-/label/Tech", markCall{op: "category", scope: "Tech", older: 1700000000000000}},
		{"user/-/state/com.google/reading-list", markCall{op: "all", older: 1700000000000000}},
	}

	for _, tt := range tests {
		t.Run(tt.streamID, func(t *testing.T) {
			w := &mockStateWriter{}
			svc := NewStateService(w, nil)

			if err := svc.MarkAllAsRead(context.Background(), "alice", tt.streamID, 1700000000000000); err != nil {
				t.Fatalf("MarkAllAsRead returned error: %v", err)
			}
			if len(w.calls) != 1 {
				t.Fatalf("calls = %d, want 1", len(w.calls))
			}
			got := w.calls[0]
			if got.op != tt.want.op || got.feedID != tt.want.feedID || got.scope != tt.want.scope || got.older != tt.want.older {
				t.Errorf("call = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMarkAllAsRead_OtherStreamsIgnored(t *testing.T) {
	for _, streamID := range []string{"", "user/-/state/com.google/starred", "user/-/state/com.google/reading-list/extra"} {
		w := &mockStateWriter{}
		svc := NewStateService(w, nil)

		if err := svc.MarkAllAsRead(context.Background(), "alice", streamID, 0); err != nil {
			t.Fatalf("MarkAllAsRead(%q) returned error: %v", streamID, err)
		}
		if len(w.calls) != 0 {
			t.Errorf("MarkAllAsRead(%q) calls = %+v, want none", streamID, w.calls)
		}
	}
}
