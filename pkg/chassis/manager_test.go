package chassis

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/newtron-network/chassis/pkg/metrics"
	"github.com/newtron-network/chassis/pkg/model"
	"github.com/newtron-network/chassis/pkg/util"
)

func TestModeString(t *testing.T) {
	tests := []struct {
		mode Mode
		want string
	}{
		{ModeStandalone, "standalone"},
		{ModeCoupled, "coupled"},
		{ModeSim, "sim"},
		{Mode(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.mode.String(); got != tt.want {
			t.Errorf("Mode(%d).String() = %q, want %q", tt.mode, got, tt.want)
		}
	}

	m, _ := newTestManager(t)
	if m.Mode() != ModeStandalone {
		t.Errorf("default mode = %s", m.Mode())
	}
	m, _ = newTestManager(t, WithMode(ModeSim))
	if m.Mode() != ModeSim {
		t.Errorf("mode = %s, want sim", m.Mode())
	}
}

func TestShutdown(t *testing.T) {
	m, dev := newTestManager(t)
	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() before push: %v", err)
	}

	log := &eventLog{}
	m.RegisterEventWriter(log)
	mustPush(t, m, testConfig(tapPort(1, 1)))
	if !m.Initialized() {
		t.Fatal("manager should be initialized after push")
	}
	dev.resetCalls()

	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if m.Initialized() || len(m.Ports()) != 0 {
		t.Error("shutdown kept committed state")
	}
	if got := dev.mutations(); len(got) != 0 {
		t.Errorf("shutdown touched the device: %v", got)
	}
	if err := m.ApplyAttribute(context.Background(), 1, 1, model.AttrUpdate{Kind: model.AttrMTU, Value: "1500"}); !errors.Is(err, util.ErrNotInitialized) {
		t.Errorf("ApplyAttribute() after shutdown: error = %v", err)
	}

	// The writer was unregistered, so a fresh push emits nothing.
	n := len(log.kinds())
	dev.wipe()
	mustPush(t, m, testConfig(tapPort(1, 1)))
	if got := len(log.kinds()); got != n {
		t.Errorf("events after shutdown = %d, want %d", got, n)
	}
}

func TestManagerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := metrics.NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	m, dev := newTestManager(t, WithMetrics(c))
	mustPush(t, m, testConfig(tapPort(1, 1), plainPort(2, 2)))

	if got := testutil.ToFloat64(c.Ports.WithLabelValues("disabled")); got != 1 {
		t.Errorf("disabled ports = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Ports.WithLabelValues("unknown")); got != 1 {
		t.Errorf("unknown ports = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.SDECalls.WithLabelValues("add_port", "ok")); got != 1 {
		t.Errorf("add_port ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Operations.WithLabelValues("push_config", "ok")); got != 1 {
		t.Errorf("push_config ok = %v, want 1", got)
	}

	dev.failFn = func(c devCall) error {
		if c.op == "enable_port" {
			return errInjected
		}
		return nil
	}
	err = m.ApplyAttribute(context.Background(), 1, 1, model.AttrUpdate{Kind: model.AttrAdminState, Value: "enabled"})
	if !errors.Is(err, util.ErrInternal) {
		t.Fatalf("ApplyAttribute() error = %v, want internal", err)
	}
	if got := testutil.ToFloat64(c.SDECalls.WithLabelValues("enable_port", "error")); got != 1 {
		t.Errorf("enable_port error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Operations.WithLabelValues("apply_attribute", "internal")); got != 1 {
		t.Errorf("apply_attribute internal = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Ports.WithLabelValues("unknown")); got != 2 {
		t.Errorf("unknown ports after failure = %v, want 2", got)
	}

	dev.failFn = nil
	dev.wipe()
	if err := m.ReplayNode(context.Background(), 1); err != nil {
		t.Fatalf("ReplayNode() error = %v", err)
	}
	if got := testutil.ToFloat64(c.ReplaySkipped); got != 2 {
		t.Errorf("replay skipped = %v, want 2", got)
	}
}
