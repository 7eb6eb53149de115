package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Exit ladder metrics
	stageFillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ladderbot_stage_fills_total",
			Help: "Total number of ladder stage exits filled",
		},
		[]string{"symbol", "stage"},
	)

	stopMovesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ladderbot_stop_moves_total",
			Help: "Total number of stop ratchets after stage fills",
		},
		[]string{"symbol"},
	)

	emergencyClosesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ladderbot_emergency_closes_total",
			Help: "Total number of forced market closes after a stop failed to execute",
		},
		[]string{"symbol"},
	)

	reconcileCorrectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ladderbot_reconciliation_corrections_total",
			Help: "Total number of position size corrections adopted from the broker",
		},
		[]string{"symbol"},
	)

	tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ladderbot_trades_total",
			Help: "Total number of completed trade sessions",
		},
		[]string{"symbol", "exit_reason"},
	)

	// Market data metrics
	currentPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ladderbot_current_price",
			Help: "Last observed price of the managed symbol",
		},
		[]string{"symbol"},
	)

	remainingSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ladderbot_remaining_size",
			Help: "Shares still held in the managed position",
		},
		[]string{"symbol"},
	)

	// Error metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ladderbot_errors_total",
			Help: "Total number of errors",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(stageFillsTotal)
	prometheus.MustRegister(stopMovesTotal)
	prometheus.MustRegister(emergencyClosesTotal)
	prometheus.MustRegister(reconcileCorrectionsTotal)
	prometheus.MustRegister(tradesTotal)
	prometheus.MustRegister(currentPrice)
	prometheus.MustRegister(remainingSize)
	prometheus.MustRegister(errorsTotal)
}

// MetricsHandler handles Prometheus metrics endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// RecordStageFill records a filled ladder stage
func RecordStageFill(symbol, stage string) {
	stageFillsTotal.WithLabelValues(symbol, stage).Inc()
}

// RecordStopMove records a stop ratchet
func RecordStopMove(symbol string) {
	stopMovesTotal.WithLabelValues(symbol).Inc()
}

// RecordEmergencyClose records a forced market close
func RecordEmergencyClose(symbol string) {
	emergencyClosesTotal.WithLabelValues(symbol).Inc()
}

// RecordReconciliation records a position correction adopted from the broker
func RecordReconciliation(symbol string) {
	reconcileCorrectionsTotal.WithLabelValues(symbol).Inc()
}

// RecordTradeComplete records a finished trade session
func RecordTradeComplete(symbol, exitReason string) {
	tradesTotal.WithLabelValues(symbol, exitReason).Inc()
}

// UpdatePrice updates the current price metric
func UpdatePrice(symbol string, price float64) {
	currentPrice.WithLabelValues(symbol).Set(price)
}

// UpdateRemainingSize updates the remaining position gauge
func UpdateRemainingSize(symbol string, shares int64) {
	remainingSize.WithLabelValues(symbol).Set(float64(shares))
}

// RecordError records an error metric
func RecordError(errorType string) {
	errorsTotal.WithLabelValues(errorType).Inc()
}
