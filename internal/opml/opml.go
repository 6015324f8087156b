// Package opml はOPMLファイルからカテゴリとフィードを取り込む。
package opml

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/hitoshi/readerbridge/internal/model"
)

// DefaultCategory はフォルダ外に置かれたフィードの所属カテゴリ名。
const DefaultCategory = "Uncategorized"

type document struct {
	XMLName xml.Name  `xml:"opml"`
	Body    []outline `xml:"body>outline"`
}

type outline struct {
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr"`
	XMLURL   string    `xml:"xmlUrl,attr"`
	HTMLURL  string    `xml:"htmlUrl,attr"`
	Outlines []outline `xml:"outline"`
}

func (o outline) label() string {
	if s := strings.TrimSpace(o.Title); s != "" {
		return s
	}
	return strings.TrimSpace(o.Text)
}

// Subscription はOPMLから取り出したフィード1件。
type Subscription struct {
	Category string
	Title    string
	FeedURL  string
	SiteURL  string
}

// Parse はOPML文書を読み、フィードを出現順に返す。
// xmlUrlを持たずhtmlUrlだけを持つ葉はFeedURLが空のSubscriptionになる。
// カテゴリは最上位のフォルダ名で、入れ子のフォルダは最上位に平坦化される。
// 文書のエンコーディング宣言がUTF-8以外の場合も変換して読む。
func Parse(r io.Reader) ([]Subscription, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode OPML: %w", err)
	}

	var subs []Subscription
	var walk func(outlines []outline, category string)
	walk = func(outlines []outline, category string) {
		for _, o := range outlines {
			if url := strings.TrimSpace(o.XMLURL); url != "" {
				cat := category
				if cat == "" {
					cat = DefaultCategory
				}
				subs = append(subs, Subscription{
					Category: cat,
					Title:    o.label(),
					FeedURL:  url,
					SiteURL:  strings.TrimSpace(o.HTMLURL),
				})
				continue
			}
			if site := strings.TrimSpace(o.HTMLURL); site != "" && len(o.Outlines) == 0 {
				cat := category
				if cat == "" {
					cat = DefaultCategory
				}
				subs = append(subs, Subscription{Category: cat, Title: o.label(), SiteURL: site})
				continue
			}
			next := category
			if next == "" {
				next = o.label()
			}
			walk(o.Outlines, next)
		}
	}
	walk(doc.Body, "")

	return subs, nil
}

// CategoryStore はカテゴリの取得・作成を行うインターフェース。
type CategoryStore interface {
	GetOrCreate(ctx context.Context, username, name string) (*model.Category, error)
}

// FeedStore はフィードを作成するインターフェース。
type FeedStore interface {
	CreateIfNotExists(ctx context.Context, feed *model.Feed) (bool, error)
}

// URLValidator はフィードURLを検証するインターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// FeedLocator はサイトURLからフィードURLを探す。
type FeedLocator interface {
	Locate(ctx context.Context, pageURL string) (string, error)
}

// Result は取り込み結果の件数。
type Result struct {
	Created  int
	Existing int
	Rejected int
}

// Importer はOPMLのフィードをユーザーのカテゴリとフィードとして登録する。
type Importer struct {
	categories CategoryStore
	feeds      FeedStore
	validator  URLValidator
	locator    FeedLocator
	logger     *slog.Logger
}

// NewImporter はImporterを生成する。locatorがnilの場合、
// htmlUrlしか持たないアウトラインは拒否として数える。
func NewImporter(categories CategoryStore, feeds FeedStore, validator URLValidator, locator FeedLocator, logger *slog.Logger) *Importer {
	return &Importer{categories: categories, feeds: feeds, validator: validator, locator: locator, logger: logger}
}

// Import はrのOPMLを読み、usernameのフィードとして登録する。
// 登録済みのURLはそのまま残し、検証に失敗したURLは登録しない。
func (im *Importer) Import(ctx context.Context, username string, r io.Reader) (*Result, error) {
	subs, err := Parse(r)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	categoryIDs := make(map[string]int64)

	for _, sub := range subs {
		if sub.FeedURL == "" {
			feedURL, err := im.locate(ctx, sub.SiteURL)
			if err != nil {
				im.logger.Warn("skipping outline without discoverable feed",
					slog.String("site_url", sub.SiteURL),
					slog.String("error", err.Error()),
				)
				result.Rejected++
				continue
			}
			sub.FeedURL = feedURL
		}

		if err := im.validator.ValidateURL(sub.FeedURL); err != nil {
			im.logger.Warn("skipping feed with rejected URL",
				slog.String("feed_url", sub.FeedURL),
				slog.String("error", err.Error()),
			)
			result.Rejected++
			continue
		}

		categoryID, ok := categoryIDs[sub.Category]
		if !ok {
			c, err := im.categories.GetOrCreate(ctx, username, sub.Category)
			if err != nil {
				return result, fmt.Errorf("failed to prepare category %q: %w", sub.Category, err)
			}
			categoryID = c.ID
			categoryIDs[sub.Category] = categoryID
		}

		created, err := im.feeds.CreateIfNotExists(ctx, &model.Feed{
			Username:    username,
			CategoryID:  categoryID,
			Name:        sub.Title,
			URL:         sub.FeedURL,
			Website:     sub.SiteURL,
			FetchStatus: model.FetchStatusActive,
		})
		if err != nil {
			return result, fmt.Errorf("failed to create feed %q: %w", sub.FeedURL, err)
		}
		if created {
			result.Created++
		} else {
			result.Existing++
		}
	}

	im.logger.Info("OPML import completed",
		slog.String("user", username),
		slog.Int("created", result.Created),
		slog.Int("existing", result.Existing),
		slog.Int("rejected", result.Rejected),
	)
	return result, nil
}

func (im *Importer) locate(ctx context.Context, siteURL string) (string, error) {
	if im.locator == nil {
		return "", fmt.Errorf("feed discovery disabled")
	}
	return im.locator.Locate(ctx, siteURL)
}
