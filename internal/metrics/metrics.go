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
// 画面の処理、修復ワーカー、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordWorkflowOutcome(workflow, outcome string)
	RecordIdentityError(kind string)
	RecordSessionTransition(from, to string)
	RecordRepairDeletions(count int)
	RecordExpiredSessionsDeleted(count int64)
	RecordHTTPStatus(statusCode int)
	RecordHTTPLatency(duration time.Duration)
}

var _ MetricsCollector = (*Collector)(nil)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	workflowOutcomes   *prometheus.CounterVec
	identityErrors     *prometheus.CounterVec
	sessionTransitions *prometheus.CounterVec
	repairDeletions    prometheus.Counter
	sessionsExpired    prometheus.Counter
	httpStatus         *prometheus.CounterVec
	httpLatency        prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		workflowOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "directorio_workflow_outcomes_total",
			Help: "画面の処理結果の種別ごとの件数",
		}, []string{"workflow", "outcome"}),
		identityErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "directorio_identity_errors_total",
			Help: "Identity Serviceが返したエラー種別ごとの件数",
		}, []string{"kind"}),
		sessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "directorio_session_transitions_total",
			Help: "ナビゲーション状態の遷移数",
		}, []string{"from", "to"}),
		repairDeletions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "directorio_repair_deletions_total",
			Help: "プロフィールのないidentityを修復ジョブが削除した数",
		}),
		sessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "directorio_expired_sessions_deleted_total",
			Help: "期限切れで削除したセッションの数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "directorio_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "directorio_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.workflowOutcomes,
		c.identityErrors,
		c.sessionTransitions,
		c.repairDeletions,
		c.sessionsExpired,
		c.httpStatus,
		c.httpLatency,
	)

	return c
}

// RecordWorkflowOutcome は画面の処理結果を記録する。
func (c *Collector) RecordWorkflowOutcome(workflow, outcome string) {
	c.workflowOutcomes.WithLabelValues(workflow, outcome).Inc()
}

// RecordIdentityError はIdentityエラー種別を記録する。
func (c *Collector) RecordIdentityError(kind string) {
	c.identityErrors.WithLabelValues(kind).Inc()
}

// RecordSessionTransition はナビゲーション状態の遷移を記録する。
func (c *Collector) RecordSessionTransition(from, to string) {
	c.sessionTransitions.WithLabelValues(from, to).Inc()
}

// RecordRepairDeletions は修復ジョブが削除したidentity数を記録する。
func (c *Collector) RecordRepairDeletions(count int) {
	c.repairDeletions.Add(float64(count))
}

// RecordExpiredSessionsDeleted は削除した期限切れセッション数を記録する。
func (c *Collector) RecordExpiredSessionsDeleted(count int64) {
	c.sessionsExpired.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordHTTPLatency はHTTPリクエストの処理時間を記録する。
func (c *Collector) RecordHTTPLatency(duration time.Duration) {
	c.httpLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// workerコマンドが単独でメトリクスを公開する場合に使う。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
