// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はメトリクス収集のインターフェース。
// ポーラーやサービス層から利用する。
type Recorder interface {
	RecordFetchSuccess(kind string)
	RecordFetchFailure(kind string)
	RecordFetchLatency(duration time.Duration)
	RecordStaleDiscarded(kind string)
	RecordPollTick(kind string)
	RecordUpstreamStatus(statusCode int)
	RecordNotification(kind string)
	SetActivePollers(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	fetchSuccess   *prometheus.CounterVec
	fetchFail      *prometheus.CounterVec
	fetchLatency   prometheus.Histogram
	staleDiscarded *prometheus.CounterVec
	pollTicks      *prometheus.CounterVec
	upstreamStatus *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	activePollers  prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "melodeck_fetch_success_total",
			Help: "リソース一覧フェッチ成功の合計数",
		}, []string{"kind"}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "melodeck_fetch_fail_total",
			Help: "リソース一覧フェッチ失敗の合計数",
		}, []string{"kind"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "melodeck_fetch_latency_seconds",
			Help:    "リソース一覧フェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		staleDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "melodeck_stale_response_discarded_total",
			Help: "シーケンス検査で破棄されたstaleレスポンスの合計数",
		}, []string{"kind"}),
		pollTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "melodeck_poll_ticks_total",
			Help: "ポーリングティックの合計数",
		}, []string{"kind"}),
		upstreamStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "melodeck_upstream_status_total",
			Help: "生成バックエンドのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "melodeck_completion_notifications_total",
			Help: "発行されたジョブ完了通知の合計数",
		}, []string{"kind"}),
		activePollers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "melodeck_active_pollers",
			Help: "現在稼働中のポーラー数",
		}),
	}

	reg.MustRegister(
		c.fetchSuccess,
		c.fetchFail,
		c.fetchLatency,
		c.staleDiscarded,
		c.pollTicks,
		c.upstreamStatus,
		c.notifications,
		c.activePollers,
	)

	return c
}

// RecordFetchSuccess はフェッチ成功を記録する。
func (c *Collector) RecordFetchSuccess(kind string) {
	c.fetchSuccess.WithLabelValues(kind).Inc()
}

// RecordFetchFailure はフェッチ失敗を記録する。
func (c *Collector) RecordFetchFailure(kind string) {
	c.fetchFail.WithLabelValues(kind).Inc()
}

// RecordFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordStaleDiscarded はstaleレスポンスの破棄を記録する。
func (c *Collector) RecordStaleDiscarded(kind string) {
	c.staleDiscarded.WithLabelValues(kind).Inc()
}

// RecordPollTick はポーリングティックの実行を記録する。
func (c *Collector) RecordPollTick(kind string) {
	c.pollTicks.WithLabelValues(kind).Inc()
}

// RecordUpstreamStatus は生成バックエンドのHTTPステータスコードを記録する。
func (c *Collector) RecordUpstreamStatus(statusCode int) {
	c.upstreamStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordNotification はジョブ完了通知の発行を記録する。
func (c *Collector) RecordNotification(kind string) {
	c.notifications.WithLabelValues(kind).Inc()
}

// SetActivePollers は稼働中のポーラー数を記録する。
func (c *Collector) SetActivePollers(count int) {
	c.activePollers.Set(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
