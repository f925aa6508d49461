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
// サービス層とミドルウェアから利用する。
type MetricsCollector interface {
	RecordSessionIssued(method string)
	RecordSessionRevoked()
	RecordMagicLinkRequest(outcome string)
	RecordProviderError(provider, kind string)
	RecordProviderLatency(provider string, duration time.Duration)
	RecordIdentityRaceRecovered()
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	sessionsIssued    *prometheus.CounterVec
	sessionsRevoked   prometheus.Counter
	magicLinkRequests *prometheus.CounterVec
	providerErrors    *prometheus.CounterVec
	providerLatency   *prometheus.HistogramVec
	raceRecovered     prometheus.Counter
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sessionsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thefn_sessions_issued_total",
			Help: "発行したセッションの合計数（認証方式別）",
		}, []string{"method"}),
		sessionsRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thefn_sessions_revoked_total",
			Help: "ログアウトで失効したセッションの合計数",
		}),
		magicLinkRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thefn_magic_link_requests_total",
			Help: "マジックリンク発行要求の合計数（レート制限の判定結果別）",
		}, []string{"outcome"}),
		providerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thefn_provider_errors_total",
			Help: "外部プロバイダ呼び出しの失敗数",
		}, []string{"provider", "kind"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "thefn_provider_latency_seconds",
			Help:    "外部プロバイダ呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		raceRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thefn_identity_race_recovered_total",
			Help: "初回登録の競合を再読込で回復した回数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thefn_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.sessionsIssued,
		c.sessionsRevoked,
		c.magicLinkRequests,
		c.providerErrors,
		c.providerLatency,
		c.raceRecovered,
		c.httpStatus,
	)

	return c
}

// RecordSessionIssued はセッション発行を記録する。
func (c *Collector) RecordSessionIssued(method string) {
	c.sessionsIssued.WithLabelValues(method).Inc()
}

// RecordSessionRevoked はセッション失効を記録する。
func (c *Collector) RecordSessionRevoked() {
	c.sessionsRevoked.Inc()
}

// RecordMagicLinkRequest はマジックリンク発行要求の判定結果を記録する。
func (c *Collector) RecordMagicLinkRequest(outcome string) {
	c.magicLinkRequests.WithLabelValues(outcome).Inc()
}

// RecordProviderError はプロバイダ呼び出しの失敗を記録する。
func (c *Collector) RecordProviderError(provider, kind string) {
	c.providerErrors.WithLabelValues(provider, kind).Inc()
}

// RecordProviderLatency はプロバイダ呼び出しのレイテンシを記録する。
func (c *Collector) RecordProviderLatency(provider string, duration time.Duration) {
	c.providerLatency.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordIdentityRaceRecovered は初回登録競合からの回復を記録する。
func (c *Collector) RecordIdentityRaceRecovered() {
	c.raceRecovered.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordSessionIssued(string)                  {}
func (Nop) RecordSessionRevoked()                       {}
func (Nop) RecordMagicLinkRequest(string)               {}
func (Nop) RecordProviderError(string, string)          {}
func (Nop) RecordProviderLatency(string, time.Duration) {}
func (Nop) RecordIdentityRaceRecovered()                {}
func (Nop) RecordHTTPStatus(int)                        {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
