package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/readerbridge/internal/middleware"
)

type recordedRequest struct {
	endpoint string
	status   int
}

type fakeAPIRecorder struct {
	mu       sync.Mutex
	recorded []recordedRequest
}

func (f *fakeAPIRecorder) RecordAPIRequest(endpoint string, statusCode int, duration time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, recordedRequest{endpoint: endpoint, status: statusCode})
}

func newTestRouter(t *testing.T, deps *RouterDeps) http.Handler {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = discardLogger()
	}
	if deps.APIPathPrefix == "" {
		deps.APIPathPrefix = "/api/greader.php"
	}
	if deps.GReader == nil {
		deps.GReader = newTestGReaderHandler(GReaderDeps{Enabled: true})
	}
	if deps.HealthChecker == nil {
		deps.HealthChecker = &mockHealthChecker{}
	}
	return NewRouter(deps)
}

func TestRouter_Health(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantBody   string
	}{
		{"DB到達可能", nil, http.StatusOK, "ok"},
		{"DB到達不可", errors.New("down"), http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t, &RouterDeps{HealthChecker: &mockHealthChecker{err: tt.pingErr}})

			w := doGet(r, "/health", "")

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if body["status"] != tt.wantBody {
				t.Errorf("status field = %q, want %q", body["status"], tt.wantBody)
			}
		})
	}
}

func TestRouter_MetricsMountedOnlyWhenConfigured(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics"))
	})

	with := newTestRouter(t, &RouterDeps{MetricsHandler: metrics})
	if w := doGet(with, "/metrics", ""); w.Code != http.StatusOK || w.Body.String() != "# metrics" {
		t.Errorf("with metrics: status=%d body=%q", w.Code, w.Body.String())
	}

	without := newTestRouter(t, &RouterDeps{})
	if w := doGet(without, "/metrics", ""); w.Code != http.StatusNotFound {
		t.Errorf("without metrics: status = %d, want 404", w.Code)
	}
}

func TestRouter_StripsAPIPrefix(t *testing.T) {
	for _, prefix := range []string{"/api/greader.php", "api/greader.php/", "/reader"} {
		t.Run(prefix, func(t *testing.T) {
			r := newTestRouter(t, &RouterDeps{APIPathPrefix: prefix})
			mount := "/" + strings.Trim(prefix, "/")

			w := doGet(r, mount+"/reader/api/0/token", testAuthHeader)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 (body=%q)", w.Code, w.Body.String())
			}
			if w.Body.String() != "token\n" {
				t.Errorf("body = %q, want %q", w.Body.String(), "token\n")
			}
		})
	}
}

func TestRouter_PrefixRootIsBadRequest(t *testing.T) {
	r := newTestRouter(t, &RouterDeps{})

	w := doGet(r, "/api/greader.php", "")

	assertProtocolError(t, w, http.StatusBadRequest, "Bad Request!")
}

func TestRouter_OutsidePrefixIsNotFound(t *testing.T) {
	r := newTestRouter(t, &RouterDeps{})

	if w := doGet(r, "/reader/api/0/token", testAuthHeader); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestRouter_SecurityHeaders(t *testing.T) {
	r := newTestRouter(t, &RouterDeps{})

	w := doGet(r, "/health", "")

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}

func TestRouter_LoginLimiterAppliesToClientLoginOnly(t *testing.T) {
	limiter := middleware.NewLoginLimiter(middleware.LoginLimiterConfig{
		Rate:            rate.Limit(1.0 / 60.0),
		Burst:           1,
		CleanupInterval: time.Minute,
	}, discardLogger())
	defer limiter.Stop()

	r := newTestRouter(t, &RouterDeps{LoginLimiter: limiter})
	form := url.Values{"Email": {"alice"}, "Passwd": {"wrong"}}

	first := doPost(r, "/api/greader.php/accounts/ClientLogin", "", form)
	if first.Code != http.StatusUnauthorized {
		t.Fatalf("first login status = %d, want 401", first.Code)
	}

	second := doPost(r, "/api/greader.php/accounts/ClientLogin", "", form)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second login status = %d, want 429", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header should be set")
	}

	for i := 0; i < 3; i++ {
		if w := doGet(r, "/api/greader.php/reader/api/0/token", testAuthHeader); w.Code != http.StatusOK {
			t.Fatalf("token request %d status = %d, want 200", i, w.Code)
		}
	}
}

func TestRouter_RecordsAPIMetricsByEndpoint(t *testing.T) {
	recorder := &fakeAPIRecorder{}
	r := newTestRouter(t, &RouterDeps{APIMetrics: recorder})

	doGet(r, "/api/greader.php/reader/api/0/token", testAuthHeader)
	doGet(r, "/api/greader.php/x", "")
	doGet(r, "/health", "")

	want := []recordedRequest{
		{endpoint: "token", status: http.StatusOK},
		{endpoint: "unknown", status: http.StatusBadRequest},
	}
	if len(recorder.recorded) != len(want) {
		t.Fatalf("recorded = %+v, want %+v", recorder.recorded, want)
	}
	for i := range want {
		if recorder.recorded[i] != want[i] {
			t.Errorf("recorded[%d] = %+v, want %+v", i, recorder.recorded[i], want[i])
		}
	}
}
