// Package entry は記事の状態変更と取り込みを提供する。
package entry

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/hitoshi/readerbridge/internal/itemid"
	"github.com/hitoshi/readerbridge/internal/model"
	"github.com/hitoshi/readerbridge/internal/stream"
)

// StateWriter は記事の既読・お気に入り状態を書き込むバックエンドのインターフェース。
type StateWriter interface {
	MarkRead(ctx context.Context, username string, ids []uint64, read bool) (int64, error)
	MarkFavorite(ctx context.Context, username string, ids []uint64, favorite bool) (int64, error)
	MarkFeedRead(ctx context.Context, username string, feedID int64, olderThan uint64) (int64, error)
	MarkCategoryRead(ctx context.Context, username, categoryName string, olderThan uint64) (int64, error)
	MarkAllRead(ctx context.Context, username string, olderThan uint64) (int64, error)
}

// StateService はedit-tagとmark-all-as-readの操作を提供する。
type StateService struct {
	writer StateWriter
	logger *slog.Logger
}

// NewStateService はStateServiceを生成する。
func NewStateService(writer StateWriter, logger *slog.Logger) *StateService {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateService{writer: writer, logger: logger}
}

// EditTag は記事IDの一覧に対してタグの付与(add)と除去(remove)を適用する。
// 対応するタグは既読とお気に入りのみで、それ以外は何もしない。
// IDのいずれかが16進として解釈できない場合はBadRequestを返し、何も変更しない。
func (s *StateService) EditTag(ctx context.Context, username string, refs []string, add, remove string) error {
	ids := make([]uint64, 0, len(refs))
	for _, ref := range refs {
		id, err := itemid.ParseItemRef(ref)
		if err != nil {
			return &model.ProtocolError{Kind: model.KindBadRequest, Reason: "invalid item id", Err: err}
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}

	if err := s.applyTag(ctx, username, ids, add, true); err != nil {
		return err
	}
	return s.applyTag(ctx, username, ids, remove, false)
}

func (s *StateService) applyTag(ctx context.Context, username string, ids []uint64, tag string, value bool) error {
	var (
		affected int64
		err      error
	)
	switch tag {
	case stream.ReadState:
		affected, err = s.writer.MarkRead(ctx, username, ids, value)
	case stream.Starred:
		affected, err = s.writer.MarkFavorite(ctx, username, ids, value)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to apply tag %s: %w", tag, err)
	}

	s.logger.Info("記事の状態を更新しました",
		slog.String("user", username),
		slog.String("tag", tag),
		slog.Bool("value", value),
		slog.Int("requested", len(ids)),
		slog.Int64("affected", affected),
	)
	return nil
}

// MarkAllAsRead はストリームIDの種類に応じて記事をまとめて既読にする。
// olderThanは記事IDの上限で、0は上限なしを表す。
// feed/、user/-/label/、reading-list 以外のストリームIDでは何もしない。
func (s *StateService) MarkAllAsRead(ctx context.Context, username, streamID string, olderThan uint64) error {
	var (
		affected int64
		err      error
	)
	switch {
	case strings.HasPrefix(streamID, stream.FeedPrefix):
		feedID, parseErr := strconv.ParseInt(baseName(streamID), 10, 64)
		if parseErr != nil {
			feedID = model.NoMatchScopeID
		}
		affected, err = s.writer.MarkFeedRead(ctx, username, feedID, olderThan)
	case strings.HasPrefix(streamID, stream.LabelPrefix):
		affected, err = s.writer.MarkCategoryRead(ctx, username, strings.TrimPrefix(streamID, stream.LabelPrefix), olderThan)
	case streamID == stream.ReadingList:
		affected, err = s.writer.MarkAllRead(ctx, username, olderThan)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to mark %s as read: %w", streamID, err)
	}

	s.logger.Info("ストリームを既読にしました",
		slog.String("user", username),
		slog.String("stream_id", streamID),
		slog.Uint64("older_than", olderThan),
		slog.Int64("affected", affected),
	)
	return nil
}

func baseName(s string) string {
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}
	return s
}
