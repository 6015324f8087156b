package fetch

import (
	"fmt"
	"net/http"
	"time"

	"github.com/hitoshi/readerbridge/internal/model"
)

// Outcome はHTTPステータスコードから決まるフェッチ結果の分類。
type Outcome int

const (
	// OutcomeOK は本文をパースする（200）。
	OutcomeOK Outcome = iota
	// OutcomeNotModified は前回から変更なし（304）。
	OutcomeNotModified
	// OutcomeStop は以後のフェッチを止める（404/410/401/403）。
	OutcomeStop
	// OutcomeBackoff は間隔を空けて再試行する（429/5xx/その他）。
	OutcomeBackoff
)

const (
	initialBackoff        = 30 * time.Minute
	maxBackoff            = 12 * time.Hour
	parseFailureThreshold = 10
)

// Classify はHTTPステータスコードをOutcomeに分類する。
func Classify(statusCode int) Outcome {
	switch statusCode {
	case http.StatusOK:
		return OutcomeOK
	case http.StatusNotModified:
		return OutcomeNotModified
	case http.StatusNotFound, http.StatusGone, http.StatusUnauthorized, http.StatusForbidden:
		return OutcomeStop
	default:
		return OutcomeBackoff
	}
}

// BackoffDelay は連続エラー回数に応じた再試行までの待ち時間を返す。
// 初回30分から倍々に伸び、12時間で頭打ちになる。
func BackoffDelay(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// markStopped はフィードのフェッチを停止状態にする。
func markStopped(feed *model.Feed, reason string) {
	feed.FetchStatus = model.FetchStatusStopped
	feed.ErrorMessage = reason
}

// markBackoff は連続エラー回数を増やし、次回フェッチを指数バックオフで先送りする。
func markBackoff(feed *model.Feed, reason string, now time.Time) {
	feed.ConsecutiveErrors++
	feed.ErrorMessage = reason
	feed.NextFetchAt = now.Add(BackoffDelay(feed.ConsecutiveErrors - 1))
}

// markFetched はエラー状態をリセットし、次回フェッチをinterval後に設定する。
func markFetched(feed *model.Feed, interval time.Duration, now time.Time) {
	feed.ConsecutiveErrors = 0
	feed.ErrorMessage = ""
	feed.NextFetchAt = now.Add(interval)
}

// markParseFailure はパース失敗を記録する。連続して閾値に達したフィードは停止する。
func markParseFailure(feed *model.Feed, reason string, now time.Time) {
	markBackoff(feed, fmt.Sprintf("パース失敗 (%d回連続): %s", feed.ConsecutiveErrors+1, reason), now)
	if feed.ConsecutiveErrors >= parseFailureThreshold {
		markStopped(feed, fmt.Sprintf("パース失敗が%d回連続したためフェッチを停止しました: %s", feed.ConsecutiveErrors, reason))
	}
}
