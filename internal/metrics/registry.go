// Package metrics owns the process-wide Prometheus registry and the
// dedicated metrics/health HTTP server every other package's
// NewMetrics(reg) call (store, controller) registers its collectors
// against — a separate listener from the application's chi router, the
// usual shape for a Kubernetes workload's scrape target.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// NewRegistry builds a registry seeded with the standard Go runtime and
// process collectors. Callers pass it to each package's NewMetrics.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
