// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// namespace は全メトリクス名の接頭辞。
const namespace = "readerbridge"

// FetchRecorder はフェッチワーカーから利用するメトリクス記録のインターフェース。
type FetchRecorder interface {
	RecordFetchSuccess(feedID int64)
	RecordFetchFailure(feedID int64, reason string)
	RecordParseFailure(feedID int64)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordEntriesUpserted(inserted, updated int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	apiRequests    *prometheus.CounterVec
	apiLatency     *prometheus.HistogramVec
	fetchSuccess   prometheus.Counter
	fetchFail      *prometheus.CounterVec
	parseFail      prometheus.Counter
	httpStatus     *prometheus.CounterVec
	fetchLatency   prometheus.Histogram
	entriesUpsert  *prometheus.CounterVec
	entriesCleaned prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "エンドポイント・ステータス別のプロトコルリクエスト数",
		}, []string{"endpoint", "status_code"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "エンドポイント別のリクエスト処理時間（秒）",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		fetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_success_total",
			Help:      "フィードフェッチ成功の合計数",
		}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_fail_total",
			Help:      "理由別のフィードフェッチ失敗数",
		}, []string{"reason"}),
		parseFail: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_fail_total",
			Help:      "フィードパース失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_http_status_total",
			Help:      "フェッチ先HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_latency_seconds",
			Help:      "フィードフェッチのレイテンシ（秒）",
			Buckets:   prometheus.DefBuckets,
		}),
		entriesUpsert: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_upserted_total",
			Help:      "種別（inserted/updated）ごとのアップサート記事数",
		}, []string{"kind"}),
		entriesCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_cleaned_total",
			Help:      "保持期間切れで削除された記事数",
		}),
	}

	reg.MustRegister(
		c.apiRequests,
		c.apiLatency,
		c.fetchSuccess,
		c.fetchFail,
		c.parseFail,
		c.httpStatus,
		c.fetchLatency,
		c.entriesUpsert,
		c.entriesCleaned,
	)

	return c
}

// RecordAPIRequest はプロトコルリクエストの結果を記録する。
func (c *Collector) RecordAPIRequest(endpoint string, statusCode int, duration time.Duration) {
	c.apiRequests.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
	c.apiLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordFetchSuccess はフェッチ成功を記録する。
func (c *Collector) RecordFetchSuccess(feedID int64) {
	c.fetchSuccess.Inc()
}

// RecordFetchFailure はフェッチ失敗を理由ラベル付きで記録する。
func (c *Collector) RecordFetchFailure(feedID int64, reason string) {
	c.fetchFail.WithLabelValues(reason).Inc()
}

// RecordParseFailure はパース失敗を記録する。
func (c *Collector) RecordParseFailure(feedID int64) {
	c.parseFail.Inc()
}

// RecordHTTPStatus はフェッチ先のHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordEntriesUpserted は新規・更新された記事数を記録する。
func (c *Collector) RecordEntriesUpserted(inserted, updated int) {
	c.entriesUpsert.WithLabelValues("inserted").Add(float64(inserted))
	c.entriesUpsert.WithLabelValues("updated").Add(float64(updated))
}

// RecordEntriesCleaned は削除された記事数を記録する。
func (c *Collector) RecordEntriesCleaned(count int64) {
	c.entriesCleaned.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
