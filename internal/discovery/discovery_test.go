package discovery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type testGuard struct {
	validateFn func(rawURL string) error
}

func (g testGuard) ValidateURL(rawURL string) error {
	if g.validateFn != nil {
		return g.validateFn(rawURL)
	}
	return nil
}

func (g testGuard) Client(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func TestIsFeed(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        bool
	}{
		{"rss型", "application/rss+xml", "", true},
		{"atom型 charset付き", "application/atom+xml; charset=utf-8", "", true},
		{"text/xml + RSS", "text/xml", `<?xml version="1.0"?><rss version="2.0"></rss>`, true},
		{"application/xml + RDF", "application/xml", `<rdf:RDF xmlns:rdf="x"></rdf:RDF>`, true},
		{"text/xml + Atom", "text/xml", `<feed xmlns="http://www.w3.org/2005/Atom"></feed>`, true},
		{"text/xml + 他のXML", "text/xml", `<sitemap></sitemap>`, false},
		{"HTML", "text/html", `<rss>`, false},
		{"空", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFeed(tt.contentType, []byte(tt.body)); got != tt.want {
				t.Errorf("IsFeed(%q) = %v, want %v", tt.contentType, got, tt.want)
			}
		})
	}
}

func TestLinks(t *testing.T) {
	page := `<!doctype html><html><head>
<title>blog</title>
<link rel="stylesheet" href="/style.css">
<link rel="alternate" type="application/rss+xml" title="RSS" href="/rss.xml">
<link rel="alternate home" type="application/atom+xml" href="https://blog.example/atom.xml"/>
<link rel="alternate" type="text/html" href="/en">
</head><body>
<link rel="alternate" type="application/rss+xml" href="/ignored.xml">
</body></html>`

	got := Links([]byte(page), "https://blog.example/posts/")
	want := []Candidate{
		{URL: "https://blog.example/rss.xml", Kind: KindRSS, Title: "RSS"},
		{URL: "https://blog.example/atom.xml", Kind: KindAtom},
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestLinks_InvalidBase(t *testing.T) {
	if got := Links([]byte("<head></head>"), "://bad"); got != nil {
		t.Errorf("Links with invalid base = %+v, want nil", got)
	}
}

func TestSelect(t *testing.T) {
	page := "https://blog.example/"
	tests := []struct {
		name       string
		candidates []Candidate
		wantURL    string
	}{
		{"候補なし", nil, ""},
		{"同一ホストを優先", []Candidate{
			{URL: "https://feeds.other/atom", Kind: KindAtom},
			{URL: "https://blog.example/rss", Kind: KindRSS},
		}, "https://blog.example/rss"},
		{"同一ホスト内ではAtomを優先", []Candidate{
			{URL: "https://blog.example/rss", Kind: KindRSS},
			{URL: "https://blog.example/atom", Kind: KindAtom},
		}, "https://blog.example/atom"},
		{"同点は先頭", []Candidate{
			{URL: "https://blog.example/a", Kind: KindRSS},
			{URL: "https://blog.example/b", Kind: KindRSS},
		}, "https://blog.example/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Select(tt.candidates, page)
			if tt.wantURL == "" {
				if got != nil {
					t.Errorf("Select() = %+v, want nil", got)
				}
				return
			}
			if got == nil || got.URL != tt.wantURL {
				t.Errorf("Select() = %+v, want %s", got, tt.wantURL)
			}
		})
	}
}

func TestLocator_Locate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/site", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><link rel="alternate" type="application/atom+xml" href="/feed.atom"></head></html>`))
	})
	mux.HandleFunc("/feed.atom", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(`<feed xmlns="http://www.w3.org/2005/Atom"></feed>`))
	})
	mux.HandleFunc("/nofeed", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>x</title></head></html>`))
	})
	mux.HandleFunc("/image", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	l := NewLocator(testGuard{}, time.Second)
	ctx := context.Background()

	t.Run("HTMLからフィードを解決", func(t *testing.T) {
		got, err := l.Locate(ctx, srv.URL+"/site")
		if err != nil {
			t.Fatalf("Locate() error = %v", err)
		}
		if want := srv.URL + "/feed.atom"; got != want {
			t.Errorf("Locate() = %q, want %q", got, want)
		}
	})

	t.Run("フィードURLはそのまま返す", func(t *testing.T) {
		got, err := l.Locate(ctx, srv.URL+"/feed.atom")
		if err != nil {
			t.Fatalf("Locate() error = %v", err)
		}
		if got != srv.URL+"/feed.atom" {
			t.Errorf("Locate() = %q", got)
		}
	})

	t.Run("リンクなし", func(t *testing.T) {
		if _, err := l.Locate(ctx, srv.URL+"/nofeed"); !errors.Is(err, ErrNoFeed) {
			t.Errorf("err = %v, want ErrNoFeed", err)
		}
	})

	t.Run("HTML以外", func(t *testing.T) {
		if _, err := l.Locate(ctx, srv.URL+"/image"); !errors.Is(err, ErrNoFeed) {
			t.Errorf("err = %v, want ErrNoFeed", err)
		}
	})

	t.Run("404", func(t *testing.T) {
		if _, err := l.Locate(ctx, srv.URL+"/missing"); err == nil {
			t.Error("expected error for 404")
		}
	})

	t.Run("URL拒否", func(t *testing.T) {
		blocked := NewLocator(testGuard{validateFn: func(string) error { return errors.New("private") }}, 0)
		if _, err := blocked.Locate(ctx, srv.URL+"/site"); err == nil {
			t.Error("expected rejection error")
		}
	})
}
