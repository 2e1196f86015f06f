// Package metrics provides Prometheus instrumentation for the scratch engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CardsPurchased counts minted cards.
	CardsPurchased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scratch_cards_purchased_total",
		Help: "Total number of scratch cards minted",
	})

	// CardsScratched counts settled cards, partitioned by whether they paid.
	CardsScratched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scratch_cards_scratched_total",
		Help: "Total number of scratch cards settled",
	}, []string{"outcome"})

	// PayoutVolume tracks cumulative settlement amounts per payout asset.
	PayoutVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scratch_payout_volume_total",
		Help: "Cumulative settlement amount paid, in asset base units",
	}, []string{"asset"})

	// PurchaseLatency tracks how long a purchase batch takes end to end.
	PurchaseLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scratch_purchase_latency_seconds",
		Help:    "Card purchase latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// AdminUpdates counts accepted admin mutations by operation.
	AdminUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scratch_admin_updates_total",
		Help: "Accepted admin configuration changes",
	}, []string{"op"})

	// Rejections counts refused operations by operation and reason.
	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scratch_rejections_total",
		Help: "Operations rejected before any state change",
	}, []string{"op", "reason"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scratch_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scratch_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scratch_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Card IDs in the raw path would explode label cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
