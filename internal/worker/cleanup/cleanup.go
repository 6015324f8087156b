// Package cleanup は古い既読記事を削除する保持期間ジョブを提供する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Recorder は削除件数を記録するインターフェース。
type Recorder interface {
	RecordEntriesCleaned(count int64)
}

// DefaultRetentionDays は記事の既定の保持日数。
const DefaultRetentionDays = 90

// CleanupJob は保持期間を超えた既読かつお気に入りでない記事を削除する。
// 記事IDは取り込み時刻のマイクロ秒値なので、IDの比較で期間を判定する。
type CleanupJob struct {
	db            Executor
	recorder      Recorder
	logger        *slog.Logger
	RetentionDays int
	now           func() time.Time
}

// NewCleanupJob はCleanupJobを生成する。retentionDaysが0以下の場合は既定値を使う。
func NewCleanupJob(db Executor, recorder Recorder, logger *slog.Logger, retentionDays int) *CleanupJob {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &CleanupJob{
		db:            db,
		recorder:      recorder,
		logger:        logger,
		RetentionDays: retentionDays,
		now:           time.Now,
	}
}

// Cutoff はこれより小さいIDの記事が削除対象となる境界IDを返す。
func (j *CleanupJob) Cutoff() int64 {
	return j.now().AddDate(0, 0, -j.RetentionDays).UnixMicro()
}

// Run は削除を1回実行する。削除対象がなくてもエラーにはならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()

	result, err := j.db.ExecContext(ctx,
		`DELETE FROM entries WHERE is_read = true AND is_favorite = false AND id < $1`,
		j.Cutoff(),
	)
	if err != nil {
		return fmt.Errorf("failed to delete expired entries: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read deleted count: %w", err)
	}
	j.recorder.RecordEntriesCleaned(deleted)

	j.logger.Info("entry cleanup completed",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Int64("duration_ms", j.now().Sub(start).Milliseconds()),
	)
	return nil
}

// Start は起動直後とinterval毎にRunを実行する。ctxがキャンセルされると戻る。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := j.Run(ctx); err != nil {
			j.logger.Error("entry cleanup failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
