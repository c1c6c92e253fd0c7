// Package chassis reconciles the desired port configuration of a switch
// chassis against the data plane. It owns the committed port state, drives
// the device adapter to add, update, hotplug and remove ports, replays ports
// after a device session loss and answers port state queries.
package chassis

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/newtron-network/chassis/pkg/model"
	"github.com/newtron-network/chassis/pkg/sde"
	"github.com/newtron-network/chassis/pkg/util"
)

const tracerName = "github.com/newtron-network/chassis/pkg/chassis"

// Mode is the operation mode of the manager.
type Mode int

const (
	ModeStandalone Mode = iota
	ModeCoupled
	ModeSim
)

func (m Mode) String() string {
	switch m {
	case ModeStandalone:
		return "standalone"
	case ModeCoupled:
		return "coupled"
	case ModeSim:
		return "sim"
	}
	return "unknown"
}

const (
	// DefaultMaxMTU is the largest MTU accepted for a port.
	DefaultMaxMTU = 9000

	// DefaultControlPortBase is added to a port's sdk id to derive the sdk id
	// of its auxiliary control port.
	DefaultControlPortBase = 256
)

// Recorder receives metrics from the manager. *metrics.Collector implements it.
type Recorder interface {
	ObserveSDECall(op string, err error)
	ObserveOperation(op string, elapsed time.Duration, err error)
	SetPortCounts(counts map[model.AdminState]int)
	IncReplaySkipped()
}

// Option configures a Manager.
type Option func(*Manager)

// WithMode sets the operation mode.
func WithMode(mode Mode) Option {
	return func(m *Manager) { m.mode = mode }
}

// WithMaxMTU overrides DefaultMaxMTU.
func WithMaxMTU(mtu int32) Option {
	return func(m *Manager) { m.maxMTU = mtu }
}

// WithControlPortBase overrides DefaultControlPortBase.
func WithControlPortBase(base uint32) Option {
	return func(m *Manager) { m.controlPortBase = base }
}

// WithMetrics installs a metrics recorder.
func WithMetrics(r Recorder) Option {
	return func(m *Manager) { m.metrics = r }
}

// WithClock overrides the time source used for state timestamps and events.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager is the chassis manager. All committed state is guarded by a single
// reader/writer lock: queries share it, mutations hold it exclusively. The
// event writer has its own lock so that unregistering it never waits on a
// mutation in progress.
type Manager struct {
	mode            Mode
	maxMTU          int32
	controlPortBase uint32
	metrics         Recorder
	now             func() time.Time
	tracer          trace.Tracer

	dev sde.Interface

	mu          sync.RWMutex
	initialized bool
	repo        *repository

	eventMu sync.RWMutex
	writer  EventWriter
}

// New creates a manager driving dev.
func New(dev sde.Interface, opts ...Option) *Manager {
	m := &Manager{
		mode:            ModeStandalone,
		maxMTU:          DefaultMaxMTU,
		controlPortBase: DefaultControlPortBase,
		now:             time.Now,
		dev:             dev,
		repo:            newRepository(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.tracer = otel.Tracer(tracerName)
	return m
}

// Mode returns the operation mode.
func (m *Manager) Mode() Mode { return m.mode }

// Initialized reports whether a configuration has been pushed.
func (m *Manager) Initialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

// Shutdown drops all committed state. The device is left untouched. The
// event writer is unregistered before the state lock is taken.
func (m *Manager) Shutdown(ctx context.Context) error {
	_, finish := m.startOp(ctx, "shutdown")
	var err error
	defer func() { finish(err) }()

	m.mu.RLock()
	initialized := m.initialized
	m.mu.RUnlock()
	if !initialized {
		return nil
	}

	m.UnregisterEventWriter()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = false
	m.repo = newRepository()
	m.recordPortCounts()
	util.WithOperation("shutdown").Info("Chassis manager state cleared")
	return nil
}

// startOp opens a span for a public operation and returns a finisher that
// records the outcome in the span and in metrics.
func (m *Manager) startOp(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := m.now()
	ctx, span := m.tracer.Start(ctx, "chassis."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(util.KindOf(err)))
		}
		span.End()
		if m.metrics != nil {
			m.metrics.ObserveOperation(op, m.now().Sub(start), err)
		}
	}
}

func portAttrs(nodeID uint64, portID uint32) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64("chassis.node_id", int64(nodeID)),
		attribute.Int64("chassis.port_id", int64(portID)),
	}
}

// recordPortCounts refreshes the admin-state gauge. Caller holds m.mu.
func (m *Manager) recordPortCounts() {
	if m.metrics != nil {
		m.metrics.SetPortCounts(m.repo.adminCounts())
	}
}

func (m *Manager) checkInitialized() error {
	if !m.initialized {
		return util.ErrNotInitialized
	}
	return nil
}

// lookup resolves a configured port. Caller holds m.mu.
func (m *Manager) lookup(nodeID uint64, portID uint32) (*nodeEntry, *portEntry, error) {
	if err := m.checkInitialized(); err != nil {
		return nil, nil, err
	}
	if _, ok := m.repo.nodes[nodeID]; !ok {
		return nil, nil, util.NewPortError(util.ErrNotConfigured, nodeID, portID, "node %d is not configured or not known", nodeID)
	}
	n, p, ok := m.repo.port(nodeID, portID)
	if !ok {
		return nil, nil, util.NewPortError(util.ErrNotConfigured, nodeID, portID, "port is not configured or not known")
	}
	return n, p, nil
}
