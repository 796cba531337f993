package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements the Collector interface using Prometheus metrics.
type PrometheusCollector struct {
	connectionsTotal   prometheus.Counter
	connectionsActive  prometheus.Gauge
	tlsConnectionTotal prometheus.Counter

	authAttemptsTotal *prometheus.CounterVec

	commandsTotal *prometheus.CounterVec

	transfersTotal  *prometheus.CounterVec
	transfersFailed *prometheus.CounterVec
	transferBytes   *prometheus.HistogramVec

	quotaDeniedTotal *prometheus.CounterVec
	ratioDeniedTotal *prometheus.CounterVec
}

// NewPrometheusCollector creates a new PrometheusCollector with all metrics registered.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rouilleftpd_connections_total",
			Help: "Total number of FTP connections opened.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rouilleftpd_connections_active",
			Help: "Number of currently active FTP connections.",
		}),
		tlsConnectionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rouilleftpd_tls_connections_total",
			Help: "Total number of TLS connections established.",
		}),
		authAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rouilleftpd_auth_attempts_total",
			Help: "Total number of authentication attempts.",
		}, []string{"result"}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rouilleftpd_commands_total",
			Help: "Total number of FTP commands processed.",
		}, []string{"command"}),
		transfersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rouilleftpd_transfers_total",
			Help: "Total number of completed transfers.",
		}, []string{"direction"}),
		transfersFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rouilleftpd_transfers_failed_total",
			Help: "Total number of failed transfers.",
		}, []string{"direction"}),
		transferBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rouilleftpd_transfer_bytes",
			Help:    "Size of completed transfers in bytes.",
			Buckets: []float64{1024, 10240, 102400, 1048576, 10485760, 104857600, 1073741824},
		}, []string{"direction"}),
		quotaDeniedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rouilleftpd_quota_denied_total",
			Help: "Total number of transfers denied due to quota.",
		}, []string{"username"}),
		ratioDeniedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rouilleftpd_ratio_denied_total",
			Help: "Total number of transfers denied due to ratio.",
		}, []string{"username"}),
	}

	reg.MustRegister(
		c.connectionsTotal,
		c.connectionsActive,
		c.tlsConnectionTotal,
		c.authAttemptsTotal,
		c.commandsTotal,
		c.transfersTotal,
		c.transfersFailed,
		c.transferBytes,
		c.quotaDeniedTotal,
		c.ratioDeniedTotal,
	)

	return c
}

// ConnectionOpened increments the connection counter and active gauge.
func (c *PrometheusCollector) ConnectionOpened() {
	c.connectionsTotal.Inc()
	c.connectionsActive.Inc()
}

// ConnectionClosed decrements the active connections gauge.
func (c *PrometheusCollector) ConnectionClosed() {
	c.connectionsActive.Dec()
}

// TLSConnectionEstablished increments the TLS connection counter.
func (c *PrometheusCollector) TLSConnectionEstablished() {
	c.tlsConnectionTotal.Inc()
}

// AuthAttempt increments the authentication attempts counter.
func (c *PrometheusCollector) AuthAttempt(username string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.authAttemptsTotal.WithLabelValues(result).Inc()
}

// CommandProcessed increments the command counter.
func (c *PrometheusCollector) CommandProcessed(command string) {
	c.commandsTotal.WithLabelValues(command).Inc()
}

// TransferCompleted increments the transfer counter and observes transfer size.
func (c *PrometheusCollector) TransferCompleted(direction string, sizeBytes int64) {
	c.transfersTotal.WithLabelValues(direction).Inc()
	c.transferBytes.WithLabelValues(direction).Observe(float64(sizeBytes))
}

// TransferFailed increments the failed transfer counter.
func (c *PrometheusCollector) TransferFailed(direction string) {
	c.transfersFailed.WithLabelValues(direction).Inc()
}

// QuotaDenied increments the quota-denied counter for a user.
func (c *PrometheusCollector) QuotaDenied(username string) {
	c.quotaDeniedTotal.WithLabelValues(username).Inc()
}

// RatioDenied increments the ratio-denied counter for a user.
func (c *PrometheusCollector) RatioDenied(username string) {
	c.ratioDeniedTotal.WithLabelValues(username).Inc()
}
