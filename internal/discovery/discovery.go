// Package discovery はWebページのlink要素からRSS/Atomフィードを見つける。
package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	userAgent      = "readerbridge/1.0 (+feed discovery)"
	defaultTimeout = 10 * time.Second
	maxPageSize    = 2 << 20
	// sniffSize はXMLボディからフィード種別を判定する際に検査する先頭バイト数。
	sniffSize = 4096
)

// ErrNoFeed はページからフィードが見つからなかったことを表す。
var ErrNoFeed = errors.New("no feed found")

// Kind はフィードの種類。
type Kind string

const (
	KindRSS  Kind = "rss"
	KindAtom Kind = "atom"
)

// Candidate はページ内で見つかったフィードのリンク。
type Candidate struct {
	URL   string
	Kind  Kind
	Title string
}

// URLGuard はURL検証とSSRF対策済みクライアントを提供する。
type URLGuard interface {
	ValidateURL(rawURL string) error
	Client(timeout time.Duration) *http.Client
}

// Locator はページURLからフィードURLを解決する。
type Locator struct {
	guard   URLGuard
	timeout time.Duration
}

// NewLocator はLocatorを生成する。timeoutが0以下の場合は10秒を使う。
func NewLocator(guard URLGuard, timeout time.Duration) *Locator {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Locator{guard: guard, timeout: timeout}
}

// Locate はpageURLを取得し、フィードそのものであればpageURLを、
// HTMLであればhead内のalternateリンクから選んだフィードURLを返す。
func (l *Locator) Locate(ctx context.Context, pageURL string) (string, error) {
	if err := l.guard.ValidateURL(pageURL); err != nil {
		return "", fmt.Errorf("page url rejected: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html, application/xhtml+xml, application/atom+xml, application/rss+xml, */*;q=0.5")

	resp, err := l.guard.Client(l.timeout).Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, pageURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return "", fmt.Errorf("failed to read page: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if IsFeed(contentType, body) {
		return pageURL, nil
	}
	if !strings.Contains(mediaType(contentType), "html") {
		return "", ErrNoFeed
	}

	best := Select(Links(body, pageURL), pageURL)
	if best == nil {
		return "", ErrNoFeed
	}
	return best.URL, nil
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	return strings.ToLower(mt)
}

// IsFeed はContent-Typeとボディの先頭からRSS/Atom文書かを判定する。
// text/xmlなど汎用のXML型はルート要素を見て判定する。
func IsFeed(contentType string, body []byte) bool {
	switch mediaType(contentType) {
	case "application/rss+xml", "application/atom+xml":
		return true
	case "text/xml", "application/xml":
	default:
		return false
	}

	head := body
	if len(head) > sniffSize {
		head = head[:sniffSize]
	}
	prefix := strings.ToLower(string(head))

	switch {
	case strings.Contains(prefix, "<rss"), strings.Contains(prefix, "<rdf:rdf"):
		return true
	case strings.Contains(prefix, "<feed") && strings.Contains(prefix, "http://www.w3.org/2005/atom"):
		return true
	}
	return false
}

// Links はHTMLのhead要素にあるrel="alternate"のRSS/Atomリンクを出現順に返す。
// 相対URLはbaseURLで解決する。
func Links(page []byte, baseURL string) []Candidate {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var found []Candidate
	z := html.NewTokenizer(bytes.NewReader(page))
	inHead := false

	for {
		switch z.Next() {
		case html.ErrorToken:
			return found

		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "head" {
				return found
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "head":
				inHead = true
				continue
			case "body":
				return found
			case "link":
			default:
				continue
			}
			if !inHead || !hasAttr {
				continue
			}

			if c, ok := linkCandidate(z, base); ok {
				found = append(found, c)
			}
		}
	}
}

// linkCandidate はトークナイザが指すlink要素の属性からCandidateを組み立てる。
func linkCandidate(z *html.Tokenizer, base *url.URL) (Candidate, bool) {
	var rel, typ, href, title string
	for {
		key, val, more := z.TagAttr()
		switch strings.ToLower(string(key)) {
		case "rel":
			rel = strings.ToLower(string(val))
		case "type":
			typ = strings.ToLower(string(val))
		case "href":
			href = string(val)
		case "title":
			title = string(val)
		}
		if !more {
			break
		}
	}

	if !containsToken(rel, "alternate") || href == "" {
		return Candidate{}, false
	}

	var kind Kind
	switch typ {
	case "application/rss+xml":
		kind = KindRSS
	case "application/atom+xml":
		kind = KindAtom
	default:
		return Candidate{}, false
	}

	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return Candidate{}, false
	}
	return Candidate{URL: base.ResolveReference(ref).String(), Kind: kind, Title: title}, true
}

func containsToken(list, token string) bool {
	for _, f := range strings.Fields(list) {
		if f == token {
			return true
		}
	}
	return false
}

// Select は候補から1件を選ぶ。ページと同じホストのものを優先し、
// 次にAtomを優先する。同点の場合は先に現れたものを返す。
func Select(candidates []Candidate, pageURL string) *Candidate {
	if len(candidates) == 0 {
		return nil
	}

	pageHost := hostOf(pageURL)
	best, bestScore := 0, -1
	for i, c := range candidates {
		score := 0
		if hostOf(c.URL) == pageHost {
			score += 2
		}
		if c.Kind == KindAtom {
			score++
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return &candidates[best]
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
