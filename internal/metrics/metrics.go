// Package metrics records the service's Prometheus counters.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Recorder struct {
	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	appendConflicts prometheus.Counter
	projection      *prometheus.CounterVec
	locks           *prometheus.CounterVec
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_commands_total",
			Help: "Total number of transaction commands handled",
		}, []string{"command", "result"}),

		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "checkout_command_duration_seconds",
			Help:    "Transaction command latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"command"}),

		appendConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "checkout_append_conflicts_total",
			Help: "Total number of optimistic append conflicts",
		}),

		projection: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_projection_events_total",
			Help: "Total number of events applied to the read model, by result",
		}, []string{"result"}),

		locks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_lock_acquire_total",
			Help: "Total number of transaction lock attempts, by result",
		}, []string{"result"}),
	}

	reg.MustRegister(r.commands, r.commandDuration, r.appendConflicts, r.projection, r.locks)
	return r
}

func (r *Recorder) CommandHandled(command, result string) {
	r.commands.WithLabelValues(command, result).Inc()
}

func (r *Recorder) CommandDuration(command string, d time.Duration) {
	r.commandDuration.WithLabelValues(command).Observe(d.Seconds())
}

func (r *Recorder) AppendConflict() {
	r.appendConflicts.Inc()
}

func (r *Recorder) ProjectionApplied(result string) {
	r.projection.WithLabelValues(result).Inc()
}

func (r *Recorder) LockAcquired(result string) {
	r.locks.WithLabelValues(result).Inc()
}
