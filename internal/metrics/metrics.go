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
// セッション層・購読層・ハンドラー層から利用する。
type MetricsCollector interface {
	RecordSignInSuccess()
	RecordSignInFailure(reason string)
	RecordSignOut()
	RecordSessionCreated()
	RecordSessionDestroyed()
	RecordSubscriptionError(kind string)
	RecordSnapshotDelivered(kind string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signInSuccess      prometheus.Counter
	signInFail         *prometheus.CounterVec
	signOut            prometheus.Counter
	sessionsActive     prometheus.Gauge
	subscriptionErrors *prometheus.CounterVec
	snapshotsDelivered *prometheus.CounterVec
	httpStatus         *prometheus.CounterVec
	requestLatency     prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signInSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "manabiya_signin_success_total",
			Help: "サインイン成功の合計数",
		}),
		signInFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "manabiya_signin_fail_total",
			Help: "サインイン失敗の合計数（理由別）",
		}, []string{"reason"}),
		signOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "manabiya_signout_total",
			Help: "サインアウトの合計数",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "manabiya_sessions_active",
			Help: "アクティブなクライアントセッション数",
		}),
		subscriptionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "manabiya_subscription_errors_total",
			Help: "リアルタイム購読エラーの合計数（種別ごと）",
		}, []string{"kind"}),
		snapshotsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "manabiya_snapshots_delivered_total",
			Help: "配送されたスナップショットの合計数（種別ごと）",
		}, []string{"kind"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "manabiya_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "manabiya_request_latency_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.signInSuccess,
		c.signInFail,
		c.signOut,
		c.sessionsActive,
		c.subscriptionErrors,
		c.snapshotsDelivered,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordSignInSuccess はサインイン成功を記録する。
func (c *Collector) RecordSignInSuccess() {
	c.signInSuccess.Inc()
}

// RecordSignInFailure はサインイン失敗を理由つきで記録する。
func (c *Collector) RecordSignInFailure(reason string) {
	c.signInFail.WithLabelValues(reason).Inc()
}

// RecordSignOut はサインアウトを記録する。
func (c *Collector) RecordSignOut() {
	c.signOut.Inc()
}

// RecordSessionCreated はクライアントセッションの生成を記録する。
func (c *Collector) RecordSessionCreated() {
	c.sessionsActive.Inc()
}

// RecordSessionDestroyed はクライアントセッションの破棄を記録する。
func (c *Collector) RecordSessionDestroyed() {
	c.sessionsActive.Dec()
}

// RecordSubscriptionError は購読エラーを記録する。
func (c *Collector) RecordSubscriptionError(kind string) {
	c.subscriptionErrors.WithLabelValues(kind).Inc()
}

// RecordSnapshotDelivered はスナップショット配送を記録する。
func (c *Collector) RecordSnapshotDelivered(kind string) {
	c.snapshotsDelivered.WithLabelValues(kind).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Nop は何も記録しないMetricsCollector。メトリクスが不要な構成で使う。
type Nop struct{}

var _ MetricsCollector = Nop{}

func (Nop) RecordSignInSuccess()               {}
func (Nop) RecordSignInFailure(string)         {}
func (Nop) RecordSignOut()                     {}
func (Nop) RecordSessionCreated()              {}
func (Nop) RecordSessionDestroyed()            {}
func (Nop) RecordSubscriptionError(string)     {}
func (Nop) RecordSnapshotDelivered(string)     {}
func (Nop) RecordHTTPStatus(int)               {}
func (Nop) RecordRequestLatency(time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
