package chassis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/newtron-network/chassis/pkg/model"
	"github.com/newtron-network/chassis/pkg/sde"
)

// devCall is one recorded device adapter call.
type devCall struct {
	op    string
	unit  int
	sdk   uint32
	value string
}

func (c devCall) String() string {
	return fmt.Sprintf("%s(%d,%d,%s)", c.op, c.unit, c.sdk, c.value)
}

type portRef struct {
	unit int
	sdk  uint32
}

// fakeDevice implements sde.Interface in memory and records every call.
// failFn, when set, can fail any recorded call.
type fakeDevice struct {
	mu     sync.Mutex
	ports  map[portRef]sde.PortConfigParams
	states map[portRef]model.PortState
	calls  []devCall
	failFn func(devCall) error
}

var errInjected = errors.New("injected failure")

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		ports:  make(map[portRef]sde.PortConfigParams),
		states: make(map[portRef]model.PortState),
	}
}

func (f *fakeDevice) record(op string, unit int, sdk uint32, value string) error {
	c := devCall{op: op, unit: unit, sdk: sdk, value: value}
	f.calls = append(f.calls, c)
	if f.failFn != nil {
		return f.failFn(c)
	}
	return nil
}

func (f *fakeDevice) exists(unit int, sdk uint32) error {
	if _, ok := f.ports[portRef{unit, sdk}]; !ok {
		return sde.ErrNoSuchPort
	}
	return nil
}

// ResolvePort maps port P channel C to sdk port P*10+C.
func (f *fakeDevice) ResolvePort(unit int, key model.PortKey) (uint32, error) {
	if key.Port <= 0 || key.Channel < 0 || key.Channel > 3 {
		return 0, fmt.Errorf("bad port key %s", key)
	}
	return uint32(key.Port)*10 + uint32(key.Channel), nil
}

func (f *fakeDevice) AddPort(unit int, sdkPort uint32, speedBps uint64, fec model.FecMode, params sde.PortConfigParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("add_port", unit, sdkPort, strconv.FormatUint(speedBps, 10)); err != nil {
		return err
	}
	ref := portRef{unit, sdkPort}
	if _, ok := f.ports[ref]; ok {
		return fmt.Errorf("sdk port %d already exists", sdkPort)
	}
	f.ports[ref] = params
	f.states[ref] = model.PortStateDown
	return nil
}

func (f *fakeDevice) DeletePort(unit int, sdkPort uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("delete_port", unit, sdkPort, ""); err != nil {
		return err
	}
	if err := f.exists(unit, sdkPort); err != nil {
		return err
	}
	delete(f.ports, portRef{unit, sdkPort})
	delete(f.states, portRef{unit, sdkPort})
	return nil
}

func (f *fakeDevice) simple(op string, unit int, sdkPort uint32, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(op, unit, sdkPort, value); err != nil {
		return err
	}
	return f.exists(unit, sdkPort)
}

func (f *fakeDevice) EnablePort(unit int, sdkPort uint32) error {
	return f.simple("enable_port", unit, sdkPort, "")
}

func (f *fakeDevice) DisablePort(unit int, sdkPort uint32) error {
	return f.simple("disable_port", unit, sdkPort, "")
}

func (f *fakeDevice) SetMTU(unit int, sdkPort uint32, mtu int32) error {
	return f.simple("set_mtu", unit, sdkPort, strconv.Itoa(int(mtu)))
}

func (f *fakeDevice) SetAutonegPolicy(unit int, sdkPort uint32, policy model.TriState) error {
	return f.simple("set_autoneg", unit, sdkPort, policy.String())
}

func (f *fakeDevice) SetLoopbackMode(unit int, sdkPort uint32, mode model.LoopbackState) error {
	return f.simple("set_loopback", unit, sdkPort, mode.String())
}

func (f *fakeDevice) HotplugPort(unit int, sdkPort uint32, params sde.HotplugParams) error {
	return f.simple("hotplug_port", unit, sdkPort, params.Action.String())
}

func (f *fakeDevice) IsValidPort(unit int, sdkPort uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, devCall{op: "is_valid_port", unit: unit, sdk: sdkPort})
	return f.exists(unit, sdkPort) == nil
}

func (f *fakeDevice) GetPortState(unit int, sdkPort uint32) (model.PortState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.exists(unit, sdkPort); err != nil {
		return model.PortStateUnknown, err
	}
	return f.states[portRef{unit, sdkPort}], nil
}

func (f *fakeDevice) GetPortCounters(unit int, sdkPort uint32) (sde.PortCounters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.exists(unit, sdkPort); err != nil {
		return sde.PortCounters{}, err
	}
	return sde.PortCounters{InOctets: uint64(sdkPort), OutOctets: 2 * uint64(sdkPort)}, nil
}

func (f *fakeDevice) GetPortInfo(unit int, sdkPort uint32) (sde.PortInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.exists(unit, sdkPort); err != nil {
		return sde.PortInfo{}, err
	}
	p := f.ports[portRef{unit, sdkPort}]
	return sde.PortInfo{Type: p.Type, PipelineName: p.PipelineName, TargetDatapathID: sdkPort + 1000}, nil
}

// wipe drops every port, as a device reset would.
func (f *fakeDevice) wipe() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ports = make(map[portRef]sde.PortConfigParams)
	f.states = make(map[portRef]model.PortState)
}

func (f *fakeDevice) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *fakeDevice) count(op string) int {
	return len(f.callsFor(op))
}

func (f *fakeDevice) callsFor(op string) []devCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []devCall
	for _, c := range f.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

// mutations returns the ops of every call that changes the device.
func (f *fakeDevice) mutations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c.op != "is_valid_port" {
			out = append(out, c.op)
		}
	}
	return out
}

// fakeRecorder implements Recorder.
type fakeRecorder struct {
	mu      sync.Mutex
	skipped int
	ops     map[string]int
	counts  map[model.AdminState]int
}

func (r *fakeRecorder) ObserveSDECall(string, error) {}

func (r *fakeRecorder) ObserveOperation(op string, _ time.Duration, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ops == nil {
		r.ops = make(map[string]int)
	}
	r.ops[op]++
}

func (r *fakeRecorder) SetPortCounts(counts map[model.AdminState]int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts = counts
}

func (r *fakeRecorder) IncReplaySkipped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped++
}

// eventLog is an EventWriter that keeps every event.
type eventLog struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (l *eventLog) WriteEvent(e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return l.err
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventKind, len(l.events))
	for i, e := range l.events {
		out[i] = e.Kind
	}
	return out
}

const speed10G = 10_000_000_000

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, opts ...Option) (*Manager, *fakeDevice) {
	t.Helper()
	dev := newFakeDevice()
	opts = append([]Option{WithClock(func() time.Time { return testTime })}, opts...)
	return New(dev, opts...), dev
}

func testConfig(ports ...model.SingletonPort) *model.ChassisConfig {
	return &model.ChassisConfig{
		Chassis:        model.Chassis{Name: "test", Platform: model.PlatformP4SoftSwitch},
		Nodes:          []model.Node{{ID: 1, Name: "pipe0", Slot: 1}},
		SingletonPorts: ports,
	}
}

// plainPort is a port without a port type; it is programmed through
// ApplyAttribute.
func plainPort(id uint32, port int32) model.SingletonPort {
	return model.SingletonPort{
		ID:    id,
		Name:  fmt.Sprintf("port%d", id),
		Node:  1,
		Slot:  1,
		Port:  port,
		Speed: speed10G,
	}
}

func tapPort(id uint32, port int32) model.SingletonPort {
	p := plainPort(id, port)
	p.Config.Type = model.PortTypeTap
	return p
}

func mustPush(t *testing.T, m *Manager, cfg *model.ChassisConfig) {
	t.Helper()
	if err := m.PushConfig(context.Background(), cfg); err != nil {
		t.Fatalf("PushConfig() error = %v", err)
	}
}

func mustApply(t *testing.T, m *Manager, portID uint32, kind model.AttrKind, value string) {
	t.Helper()
	if err := m.ApplyAttribute(context.Background(), 1, portID, model.AttrUpdate{Kind: kind, Value: value}); err != nil {
		t.Fatalf("ApplyAttribute(%s=%s) error = %v", kind, value, err)
	}
}

func mustConfig(t *testing.T, m *Manager, portID uint32) PortConfig {
	t.Helper()
	c, err := m.GetPortConfig(1, portID)
	if err != nil {
		t.Fatalf("GetPortConfig(%d) error = %v", portID, err)
	}
	return c
}

func portStatus(t *testing.T, m *Manager, portID uint32) PortStatus {
	t.Helper()
	for _, p := range m.Ports() {
		if p.Node == 1 && p.Port == portID {
			return p
		}
	}
	t.Fatalf("port %d not found", portID)
	return PortStatus{}
}
