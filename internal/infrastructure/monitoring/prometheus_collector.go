package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	tokensIssuedTotal   *prometheus.CounterVec
	issuanceErrorsTotal *prometheus.CounterVec
	issuanceDuration    prometheus.Histogram

	activeViewers *prometheus.GaugeVec
	feedClients   prometheus.Gauge
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		tokensIssuedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "streamgate_tokens_issued_total",
			Help: "Total number of credentials issued",
		}, []string{"role"}),

		issuanceErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "streamgate_token_issuance_errors_total",
			Help: "Total number of failed issuance requests",
		}, []string{"code"}),

		issuanceDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamgate_token_issuance_duration_seconds",
			Help:    "Duration of token issuance including signing",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),

		activeViewers: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "streamgate_active_viewers",
			Help: "Number of viewers currently present per channel",
		}, []string{"channel"}),

		feedClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "streamgate_event_feed_clients",
			Help: "Number of connected operator event feed clients",
		}),
	}
}

func (c *PrometheusCollector) ObserveIssuance(role string, d time.Duration) {
	c.tokensIssuedTotal.WithLabelValues(role).Inc()
	c.issuanceDuration.Observe(d.Seconds())
}

func (c *PrometheusCollector) IssuanceFailed(code string) {
	c.issuanceErrorsTotal.WithLabelValues(code).Inc()
}

func (c *PrometheusCollector) SetActiveViewers(channel string, count int) {
	c.activeViewers.WithLabelValues(channel).Set(float64(count))
}

func (c *PrometheusCollector) FeedClientConnected() {
	c.feedClients.Inc()
}

func (c *PrometheusCollector) FeedClientDisconnected() {
	c.feedClients.Dec()
}
