package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Timer measures elapsed wall-clock time for recording into a duration
// histogram without every caller repeating the time.Since(start) dance.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the time since the timer started.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time, in seconds, into obs.
func (t *Timer) ObserveDuration(obs prometheus.Observer) {
	obs.Observe(t.Elapsed().Seconds())
}
