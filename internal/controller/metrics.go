package controller

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors the controller's six loops
// report to.
type Metrics struct {
	TickDuration        *prometheus.HistogramVec
	DeploymentsByStatus *prometheus.GaugeVec
	SupersedeTotal      prometheus.Counter
	LeaseSkippedTotal   *prometheus.CounterVec
}

// NewMetrics registers the controller's collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "rise_reconcile_tick_duration_seconds",
			Help: "Duration of a single controller loop tick, by loop name.",
		}, []string{"loop"}),
		DeploymentsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rise_deployments_by_status",
			Help: "Number of deployments last observed in each status by the reconcile loop.",
		}, []string{"status"}),
		SupersedeTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rise_supersede_total",
			Help: "Number of deployments marked Terminating because another deployment replaced them as active.",
		}),
		LeaseSkippedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rise_controller_lease_skipped_total",
			Help: "Number of ticks skipped because this replica did not hold the loop's lease.",
		}, []string{"loop"}),
	}
	reg.MustRegister(m.TickDuration, m.DeploymentsByStatus, m.SupersedeTotal, m.LeaseSkippedTotal)
	return m
}
