package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

var startTime = time.Now()

// HealthChecker reports liveness of the trade session: whether the broker
// connection is up, when the last tick ran, and the last observed price.
type HealthChecker struct {
	mu          sync.RWMutex
	lastTick    time.Time
	lastPrice   float64
	tradeState  string
	isConnected bool
	errors      []string
}

type HealthStatus struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	LastTick    time.Time `json:"last_tick"`
	LastPrice   float64   `json:"last_price"`
	TradeState  string    `json:"trade_state"`
	IsConnected bool      `json:"is_connected"`
	Uptime      string    `json:"uptime"`
	Errors      []string  `json:"errors,omitempty"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		errors: make([]string, 0),
	}
}

// RecordTick notes a completed manager tick.
func (h *HealthChecker) RecordTick(price float64, state string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastTick = time.Now()
	h.lastPrice = price
	h.tradeState = state
}

// SetConnected flags broker connectivity.
func (h *HealthChecker) SetConnected(connected bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.isConnected = connected
}

// RecordError appends to the recent error list, keeping the last ten.
func (h *HealthChecker) RecordError(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, msg)
	if len(h.errors) > 10 {
		h.errors = h.errors[len(h.errors)-10:]
	}
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// Resolve the final status before touching the response: the header can
	// only be written once
	status := "healthy"
	code := http.StatusOK
	if !h.isConnected || time.Since(h.lastTick) > time.Minute {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	if len(h.errors) > 0 {
		status = "unhealthy"
		code = http.StatusInternalServerError
	}

	health := HealthStatus{
		Status:      status,
		Timestamp:   time.Now(),
		LastTick:    h.lastTick,
		LastPrice:   h.lastPrice,
		TradeState:  h.tradeState,
		IsConnected: h.isConnected,
		Uptime:      time.Since(startTime).String(),
		Errors:      h.errors,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(health)
}
