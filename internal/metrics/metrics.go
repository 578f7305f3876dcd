// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層・ワーカー・HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordSessionOpened()
	RecordSessionClosed()
	RecordSessionsSwept(count int64)
	RecordActivityRecorded(activityType string)
	RecordActivitySuppressed(activityType string)
	RecordQuotaCheck(action string, allowed bool)
	RecordQuotaConsumed(action string)
	RecordQuotaDenied(action string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	sessionsOpened       prometheus.Counter
	sessionsClosed       prometheus.Counter
	sessionsSwept        prometheus.Counter
	activitiesRecorded   *prometheus.CounterVec
	activitiesSuppressed *prometheus.CounterVec
	quotaChecks          *prometheus.CounterVec
	quotaConsumed        *prometheus.CounterVec
	quotaDenied          *prometheus.CounterVec
	httpStatus           *prometheus.CounterVec
	requestLatency       prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "resumetrack_sessions_opened_total",
			Help: "開始されたセッションの合計数",
		}),
		sessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "resumetrack_sessions_closed_total",
			Help: "明示的に終了されたセッションの合計数",
		}),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "resumetrack_sessions_swept_total",
			Help: "無操作によりクローズされたセッションの合計数",
		}),
		activitiesRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resumetrack_activities_recorded_total",
			Help: "記録されたアクティビティ数",
		}, []string{"activity_type"}),
		activitiesSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resumetrack_activities_suppressed_total",
			Help: "重複として抑止されたアクティビティ数",
		}, []string{"activity_type"}),
		quotaChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resumetrack_quota_checks_total",
			Help: "利用上限チェックの回数",
		}, []string{"action", "allowed"}),
		quotaConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resumetrack_quota_consumed_total",
			Help: "加算された利用回数",
		}, []string{"action"}),
		quotaDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resumetrack_quota_denied_total",
			Help: "上限超過により拒否された回数",
		}, []string{"action"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resumetrack_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "resumetrack_request_latency_seconds",
			Help:    "APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.sessionsOpened,
		c.sessionsClosed,
		c.sessionsSwept,
		c.activitiesRecorded,
		c.activitiesSuppressed,
		c.quotaChecks,
		c.quotaConsumed,
		c.quotaDenied,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

func (c *Collector) RecordSessionOpened() {
	c.sessionsOpened.Inc()
}

func (c *Collector) RecordSessionClosed() {
	c.sessionsClosed.Inc()
}

// RecordSessionsSwept はスイープでクローズした件数を加算する。
func (c *Collector) RecordSessionsSwept(count int64) {
	c.sessionsSwept.Add(float64(count))
}

func (c *Collector) RecordActivityRecorded(activityType string) {
	c.activitiesRecorded.WithLabelValues(activityType).Inc()
}

func (c *Collector) RecordActivitySuppressed(activityType string) {
	c.activitiesSuppressed.WithLabelValues(activityType).Inc()
}

// RecordQuotaCheck は上限チェックの結果を記録する。
func (c *Collector) RecordQuotaCheck(action string, allowed bool) {
	c.quotaChecks.WithLabelValues(action, strconv.FormatBool(allowed)).Inc()
}

func (c *Collector) RecordQuotaConsumed(action string) {
	c.quotaConsumed.WithLabelValues(action).Inc()
}

func (c *Collector) RecordQuotaDenied(action string) {
	c.quotaDenied.WithLabelValues(action).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Middleware はレスポンスのステータスコードと処理時間を記録するミドルウェアを返す。
func Middleware(m MetricsCollector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.RecordHTTPStatus(status)
			m.RecordRequestLatency(time.Since(start))
		})
	}
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NopCollector は何も記録しないMetricsCollector。
// メトリクスを必要としないテストやCLIで使用する。
type NopCollector struct{}

func (NopCollector) RecordSessionOpened() {}
func (NopCollector) RecordSessionClosed() {}
func (NopCollector) RecordSessionsSwept(int64) {}
func (NopCollector) RecordActivityRecorded(string) {}
func (NopCollector) RecordActivitySuppressed(string) {}
func (NopCollector) RecordQuotaCheck(string, bool) {}
func (NopCollector) RecordQuotaConsumed(string) {}
func (NopCollector) RecordQuotaDenied(string) {}
func (NopCollector) RecordHTTPStatus(int) {}
func (NopCollector) RecordRequestLatency(time.Duration) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
