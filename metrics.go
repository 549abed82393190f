package filecheck

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 是守护进程导出的 Prometheus 指标
type Metrics struct {
	Cycles        *prometheus.CounterVec
	Findings      *prometheus.CounterVec
	HashInFlight  prometheus.Gauge
	CycleDuration prometheus.Histogram
	TrackedFiles  prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "filecheck",
			Name:      "cycles_total",
			Help:      "Completed verification cycles by verdict.",
		}, []string{"verdict"}),
		Findings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "filecheck",
			Name:      "findings_total",
			Help:      "Reported findings by kind.",
		}, []string{"kind"}),
		HashInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "filecheck",
			Name:      "hashes_in_flight",
			Help:      "Checksum computations currently running.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "filecheck",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a verification cycle including report rendering.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		TrackedFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "filecheck",
			Name:      "tracked_files",
			Help:      "Files in the baseline registry.",
		}),
	}
}

// Register 把所有指标注册到 reg
func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(m.Cycles, m.Findings, m.HashInFlight, m.CycleDuration, m.TrackedFiles)
}

// observeCycle 记录一个完成的周期
func (m *Metrics) observeCycle(s CycleSummary) {
	m.Cycles.WithLabelValues(s.Verdict).Inc()
	m.CycleDuration.Observe(s.Duration.Seconds())
}

func (m *Metrics) observeFinding(f Finding) {
	m.Findings.WithLabelValues(f.Kind.String()).Inc()
}

func (m *Metrics) setInFlight(n int64) {
	m.HashInFlight.Set(float64(n))
}
