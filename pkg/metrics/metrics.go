// Package metrics exposes Prometheus metrics for the chassis manager.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/newtron-network/chassis/pkg/model"
	"github.com/newtron-network/chassis/pkg/util"
)

// Collector bundles the chassis metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	SDECalls          *prometheus.CounterVec
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	Ports             *prometheus.GaugeVec
	ReplaySkipped     prometheus.Counter
}

// NewCollector registers the chassis metrics against reg, defaulting to the
// global Prometheus registry when nil. Registering twice against the same
// registry returns collectors bound to the existing metrics.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	sdeCalls, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chassis_sde_calls_total",
		Help: "Device adapter calls, labeled by operation and result.",
	}, []string{"op", "result"}), "chassis_sde_calls_total")
	if err != nil {
		return nil, err
	}

	ops, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chassis_operations_total",
		Help: "Chassis manager operations, labeled by operation and error kind.",
	}, []string{"op", "result"}), "chassis_operations_total")
	if err != nil {
		return nil, err
	}

	durations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chassis_operation_duration_seconds",
		Help:    "Chassis manager operation latency in seconds.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"op"}), "chassis_operation_duration_seconds")
	if err != nil {
		return nil, err
	}

	ports, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chassis_ports",
		Help: "Configured ports by committed admin state.",
	}, []string{"admin_state"}), "chassis_ports")
	if err != nil {
		return nil, err
	}

	skipped, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chassis_replay_skipped_total",
		Help: "Ports skipped during replay because they were never programmed.",
	}), "chassis_replay_skipped_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:          gatherer,
		SDECalls:          sdeCalls,
		Operations:        ops,
		OperationDuration: durations,
		Ports:             ports,
		ReplaySkipped:     skipped,
	}, nil
}

// ObserveSDECall records one device adapter call.
func (c *Collector) ObserveSDECall(op string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.SDECalls.WithLabelValues(op, result).Inc()
}

// ObserveOperation records one public manager operation.
func (c *Collector) ObserveOperation(op string, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	c.Operations.WithLabelValues(op, string(util.KindOf(err))).Inc()
	c.OperationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// SetPortCounts replaces the per-admin-state port gauge. States missing from
// counts are reported as zero.
func (c *Collector) SetPortCounts(counts map[model.AdminState]int) {
	if c == nil {
		return
	}
	for _, s := range []model.AdminState{
		model.AdminStateUnknown, model.AdminStateEnabled,
		model.AdminStateDisabled, model.AdminStateDiag,
	} {
		c.Ports.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}

// IncReplaySkipped counts a port skipped by replay.
func (c *Collector) IncReplaySkipped() {
	if c == nil {
		return
	}
	c.ReplaySkipped.Inc()
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return c, nil
}
