package httpx

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var histogramBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}

func (r *Router) initMetrics() {
	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notes",
		Subsystem: "api",
		Name:      "http_requests_total",
		Help:      "Count of processed HTTP requests",
	}, []string{"method", "route", "status"})

	requestLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "notes",
		Subsystem: "api",
		Name:      "http_request_duration_seconds",
		Help:      "Latency distribution of HTTP handlers",
		Buckets:   histogramBuckets,
	}, []string{"method", "route", "status"})

	r.requestTotal = requestTotal
	r.requestLatency = requestLatency
	for _, collector := range []prometheus.Collector{requestTotal, requestLatency} {
		err := prometheus.Register(collector)
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			continue
		}
		switch v := are.ExistingCollector.(type) {
		case *prometheus.CounterVec:
			r.requestTotal = v
		case *prometheus.HistogramVec:
			r.requestLatency = v
		}
	}
}

func (r *Router) recordRequestMetrics(method, route string, status int, duration time.Duration) {
	if r.requestTotal == nil || r.requestLatency == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	r.requestTotal.With(labels).Inc()
	r.requestLatency.With(labels).Observe(duration.Seconds())
}
