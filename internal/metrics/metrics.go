// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェアやレジストリ層から利用する。
type MetricsCollector interface {
	RecordOutboundRequest(statusCode int, duration time.Duration)
	RecordOutboundFailure()
	RecordTokenRefresh(success bool)
	RecordAccountSwitch()
	RecordBrokenAccount(platform string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	outboundRequests *prometheus.CounterVec
	outboundFailures prometheus.Counter
	requestLatency   prometheus.Histogram
	tokenRefresh     *prometheus.CounterVec
	accountSwitch    prometheus.Counter
	brokenAccount    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		outboundRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accountman_outbound_requests_total",
			Help: "HTTPステータスコード別の送信リクエスト数",
		}, []string{"status_code"}),
		outboundFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accountman_outbound_failures_total",
			Help: "ネットワーク層で失敗した送信リクエストの合計数",
		}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "accountman_request_latency_seconds",
			Help:    "送信リクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		tokenRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accountman_token_refresh_total",
			Help: "バックグラウンドトークンリフレッシュの結果別合計数",
		}, []string{"result"}),
		accountSwitch: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accountman_account_switch_total",
			Help: "アカウント切り替え成功の合計数",
		}),
		brokenAccount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accountman_broken_account_total",
			Help: "プラットフォーム別のアカウント連携切れ通知数",
		}, []string{"platform"}),
	}

	reg.MustRegister(
		c.outboundRequests,
		c.outboundFailures,
		c.requestLatency,
		c.tokenRefresh,
		c.accountSwitch,
		c.brokenAccount,
	)

	return c
}

// RecordOutboundRequest は送信リクエストの完了を記録する。
func (c *Collector) RecordOutboundRequest(statusCode int, duration time.Duration) {
	c.outboundRequests.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	c.requestLatency.Observe(duration.Seconds())
}

// RecordOutboundFailure はネットワーク層での送信失敗を記録する。
func (c *Collector) RecordOutboundFailure() {
	c.outboundFailures.Inc()
}

// RecordTokenRefresh はトークンリフレッシュの結果を記録する。
func (c *Collector) RecordTokenRefresh(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.tokenRefresh.WithLabelValues(result).Inc()
}

// RecordAccountSwitch はアカウント切り替え成功を記録する。
func (c *Collector) RecordAccountSwitch() {
	c.accountSwitch.Inc()
}

// RecordBrokenAccount はアカウント連携切れ通知を記録する。
func (c *Collector) RecordBrokenAccount(platform string) {
	c.brokenAccount.WithLabelValues(platform).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
