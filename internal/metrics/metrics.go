// Package metrics は Prometheus 向けの計測値を定義します。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "eco_portal"

// Metrics は各コンポーネントが更新する計測値の集合です。
// nil の *Metrics に対する呼び出しは何もしません。
type Metrics struct {
	exportsTotal       *prometheus.CounterVec
	exportDuration     *prometheus.HistogramVec
	exportArchiveBytes prometheus.Histogram
	notificationsTotal *prometheus.CounterVec
	sweptTotal         *prometheus.CounterVec
	cacheRebuildsTotal *prometheus.CounterVec
	submissionsTotal   *prometheus.CounterVec
}

// New は計測値を作成し reg に登録します。
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		exportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Export job runs by outcome (done, failed, skipped).",
		}, []string{"outcome"}),
		exportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_duration_seconds",
			Help:      "Duration of export job runs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		exportArchiveBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_archive_bytes",
			Help:      "Size of produced export archives.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Completion emails by outcome (sent, failed).",
		}, []string{"outcome"}),
		sweptTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_swept_total",
			Help:      "Retention sweep results by kind (files_deleted, missing, rows_updated, errors).",
		}, []string{"kind"}),
		cacheRebuildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_rebuilds_total",
			Help:      "Map cache rebuilds by index and outcome.",
		}, []string{"index", "outcome"}),
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_submissions_total",
			Help:      "Download submissions by outcome (accepted, invalid, throttled).",
		}, []string{"outcome"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.exportsTotal,
			m.exportDuration,
			m.exportArchiveBytes,
			m.notificationsTotal,
			m.sweptTotal,
			m.cacheRebuildsTotal,
			m.submissionsTotal,
		)
	}
	return m
}

// ExportFinished はジョブ1回分の結果を記録します。
func (m *Metrics) ExportFinished(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.exportsTotal.WithLabelValues(outcome).Inc()
	m.exportDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) ArchiveProduced(size int64) {
	if m == nil {
		return
	}
	m.exportArchiveBytes.Observe(float64(size))
}

func (m *Metrics) Notification(sent bool) {
	if m == nil {
		return
	}
	outcome := "sent"
	if !sent {
		outcome = "failed"
	}
	m.notificationsTotal.WithLabelValues(outcome).Inc()
}

// Swept は掃除処理の件数を加算します。
func (m *Metrics) Swept(filesDeleted, missing, rowsUpdated, errors int) {
	if m == nil {
		return
	}
	m.sweptTotal.WithLabelValues("files_deleted").Add(float64(filesDeleted))
	m.sweptTotal.WithLabelValues("missing").Add(float64(missing))
	m.sweptTotal.WithLabelValues("rows_updated").Add(float64(rowsUpdated))
	m.sweptTotal.WithLabelValues("errors").Add(float64(errors))
}

func (m *Metrics) CacheRebuilt(index string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.cacheRebuildsTotal.WithLabelValues(index, outcome).Inc()
}

func (m *Metrics) Submission(outcome string) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(outcome).Inc()
}
