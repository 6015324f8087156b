package entry

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/readerbridge/internal/model"
	"github.com/hitoshi/readerbridge/internal/security"
)

// Store は記事の取り込みに使うバックエンドのインターフェース。
type Store interface {
	FindByFeedAndGUID(ctx context.Context, feedID int64, guid string) (*model.Entry, error)
	Create(ctx context.Context, entry *model.Entry) error
	Update(ctx context.Context, entry *model.Entry) error
}

// UpsertService はフィードから取得した記事を保存する。
// 記事の同一性は (feed_id, guid) で判定し、GUIDが無い記事はリンク、
// それも無ければ内容のハッシュをGUIDの代わりに使う。
type UpsertService struct {
	store     Store
	sanitizer security.ContentSanitizerService
	ids       *IDGenerator
	now       func() time.Time
}

// NewUpsertService はUpsertServiceを生成する。
func NewUpsertService(store Store, sanitizer security.ContentSanitizerService, ids *IDGenerator) *UpsertService {
	return &UpsertService{
		store:     store,
		sanitizer: sanitizer,
		ids:       ids,
		now:       time.Now,
	}
}

// UpsertEntries は記事を保存し、挿入数と更新数を返す。
// 既存記事は本文等を上書きし、既読・お気に入りフラグは維持する。
func (s *UpsertService) UpsertEntries(
	ctx context.Context,
	feedID int64,
	parsed []model.ParsedEntry,
) (inserted int, updated int, err error) {
	for _, p := range parsed {
		content := s.sanitizer.Sanitize(p.Content)
		hash := computeContentHash(p.Title, p.PublishedAt, content)
		guid := identityKey(p, hash)

		existing, findErr := s.store.FindByFeedAndGUID(ctx, feedID, guid)
		if findErr != nil {
			return inserted, updated, fmt.Errorf("記事の同一性判定に失敗: %w", findErr)
		}

		if existing != nil {
			if existing.ContentHash == hash && existing.Title == p.Title && existing.Link == p.Link {
				continue
			}
			existing.Title = p.Title
			existing.Link = p.Link
			existing.Author = p.Author
			existing.Content = content
			existing.ContentHash = hash
			if p.PublishedAt != nil {
				existing.Date = p.PublishedAt.Unix()
			}
			if err := s.store.Update(ctx, existing); err != nil {
				return inserted, updated, fmt.Errorf("記事の更新に失敗: %w", err)
			}
			updated++
			continue
		}

		e := &model.Entry{
			ID:          s.ids.Next(),
			FeedID:      feedID,
			GUID:        guid,
			Title:       p.Title,
			Author:      p.Author,
			Content:     content,
			Link:        p.Link,
			Date:        s.now().Unix(),
			ContentHash: hash,
		}
		if p.PublishedAt != nil {
			e.Date = p.PublishedAt.Unix()
		}
		if err := s.store.Create(ctx, e); err != nil {
			return inserted, updated, fmt.Errorf("記事の挿入に失敗: %w", err)
		}
		inserted++
	}

	if inserted > 0 || updated > 0 {
		slog.Info("記事UPSERT完了",
			slog.Int64("feed_id", feedID),
			slog.Int("inserted", inserted),
			slog.Int("updated", updated),
		)
	}
	return inserted, updated, nil
}

// identityKey は記事の同一性判定に使うキーを返す。
// 優先順位: GUID > リンク > 内容ハッシュ
func identityKey(p model.ParsedEntry, contentHash string) string {
	if p.GUID != "" {
		return p.GUID
	}
	if p.Link != "" {
		return p.Link
	}
	return contentHash
}

// computeContentHash はtitle + published + contentのSHA-256ハッシュを計算する。
func computeContentHash(title string, publishedAt *time.Time, content string) string {
	pubStr := ""
	if publishedAt != nil {
		pubStr = publishedAt.UTC().Format(time.RFC3339)
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", title, pubStr, content)))
	return fmt.Sprintf("%x", sum)
}
