package notes

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	opCreate = "create"
	opPut    = "put"
	opDelete = "delete"

	resultOK      = "ok"
	resultCreated = "created"
	resultDenied  = "denied"
	resultMissing = "missing"
	resultError   = "error"
)

var (
	metricsOnce sync.Once
	operations  *prometheus.CounterVec
)

func initMetrics() {
	metricsOnce.Do(func() {
		counter := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notes",
			Subsystem: "api",
			Name:      "note_operations_total",
			Help:      "Note mutations by operation and outcome",
		}, []string{"op", "result"})
		if err := prometheus.Register(counter); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
					counter = existing
				}
			}
		}
		operations = counter
	})
}

func observe(op, result string) {
	if operations == nil {
		return
	}
	operations.With(prometheus.Labels{"op": op, "result": result}).Inc()
}
