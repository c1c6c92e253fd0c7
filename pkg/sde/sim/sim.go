// Package sim provides an in-memory data plane implementing sde.Interface.
// It backs the daemon in simulation mode and the command-line tools.
package sim

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/newtron-network/chassis/pkg/model"
	"github.com/newtron-network/chassis/pkg/sde"
	"github.com/newtron-network/chassis/pkg/util"
)

const (
	// EventQueueDepth is the capacity of the port status channel.
	EventQueueDepth = 1024

	// ChannelsPerPort is the number of breakout channels per physical port.
	ChannelsPerPort = 4

	defaultPortsPerSlot = 64
	defaultMTU          = 1500
)

// HotplugBackend performs the VM side of a hotplug request.
type HotplugBackend interface {
	Attach(p sde.HotplugParams) error
	Detach(p sde.HotplugParams) error
}

// Option configures a simulated data plane.
type Option func(*SDE)

// WithHotplugBackend forwards hotplug requests to b after the local checks pass.
func WithHotplugBackend(b HotplugBackend) Option {
	return func(s *SDE) { s.hotplug = b }
}

// WithPortsPerSlot bounds the physical port numbers ResolvePort accepts.
func WithPortsPerSlot(n int32) Option {
	return func(s *SDE) { s.portsPerSlot = n }
}

// WithClock overrides the time source used for status events.
func WithClock(now func() time.Time) Option {
	return func(s *SDE) { s.now = now }
}

type simPort struct {
	speed    uint64
	fec      model.FecMode
	params   sde.PortConfigParams
	mtu      int32
	autoneg  model.TriState
	loopback model.LoopbackState
	enabled  bool
	state    model.PortState
	counters sde.PortCounters
	attached bool
}

// SDE is the simulated data plane.
type SDE struct {
	mu           sync.Mutex
	units        map[int]map[uint32]*simPort
	events       chan sde.PortStatusEvent
	hotplug      HotplugBackend
	portsPerSlot int32
	now          func() time.Time
}

var _ sde.Interface = (*SDE)(nil)

// New creates an empty simulated data plane.
func New(opts ...Option) *SDE {
	s := &SDE{
		units:        make(map[int]map[uint32]*simPort),
		events:       make(chan sde.PortStatusEvent, EventQueueDepth),
		portsPerSlot: defaultPortsPerSlot,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Events returns the port status channel. Events are dropped when the
// channel is full.
func (s *SDE) Events() <-chan sde.PortStatusEvent {
	return s.events
}

// ResolvePort maps (slot, port, channel) to (port-1)*4 + channel. The slot
// only has to be positive; the simulator has a single line card per unit.
func (s *SDE) ResolvePort(unit int, key model.PortKey) (uint32, error) {
	if unit < 0 {
		return 0, fmt.Errorf("sim: invalid unit %d", unit)
	}
	if key.Slot <= 0 || key.Port <= 0 || key.Port > s.portsPerSlot {
		return 0, fmt.Errorf("sim: cannot resolve port %s on unit %d", key, unit)
	}
	if key.Channel < 0 || key.Channel >= ChannelsPerPort {
		return 0, fmt.Errorf("sim: invalid channel %d for port %s", key.Channel, key)
	}
	return uint32((key.Port-1)*ChannelsPerPort + key.Channel), nil
}

func (s *SDE) AddPort(unit int, sdkPort uint32, speedBps uint64, fec model.FecMode, params sde.PortConfigParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ports := s.units[unit]
	if ports == nil {
		ports = make(map[uint32]*simPort)
		s.units[unit] = ports
	}
	if _, ok := ports[sdkPort]; ok {
		return fmt.Errorf("sim: port %d already exists on unit %d", sdkPort, unit)
	}
	ports[sdkPort] = &simPort{
		speed:  speedBps,
		fec:    fec,
		params: params,
		mtu:    defaultMTU,
		state:  model.PortStateDown,
	}
	util.WithFields(map[string]interface{}{"unit": unit, "sdk_port": sdkPort}).
		Debugf("sim: added %s port at %d bps", params.Type, speedBps)
	return nil
}

func (s *SDE) DeletePort(unit int, sdkPort uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lookup(unit, sdkPort); err != nil {
		return err
	}
	delete(s.units[unit], sdkPort)
	return nil
}

func (s *SDE) EnablePort(unit int, sdkPort uint32) error {
	return s.setEnabled(unit, sdkPort, true)
}

func (s *SDE) DisablePort(unit int, sdkPort uint32) error {
	return s.setEnabled(unit, sdkPort, false)
}

func (s *SDE) setEnabled(unit int, sdkPort uint32, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.lookup(unit, sdkPort)
	if err != nil {
		return err
	}
	p.enabled = enabled
	state := model.PortStateDown
	if enabled {
		state = model.PortStateUp
	}
	s.setStateLocked(unit, sdkPort, p, state)
	return nil
}

func (s *SDE) SetMTU(unit int, sdkPort uint32, mtu int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.lookup(unit, sdkPort)
	if err != nil {
		return err
	}
	if mtu <= 0 {
		return fmt.Errorf("sim: invalid mtu %d", mtu)
	}
	p.mtu = mtu
	return nil
}

func (s *SDE) SetAutonegPolicy(unit int, sdkPort uint32, policy model.TriState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.lookup(unit, sdkPort)
	if err != nil {
		return err
	}
	p.autoneg = policy
	return nil
}

func (s *SDE) SetLoopbackMode(unit int, sdkPort uint32, mode model.LoopbackState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.lookup(unit, sdkPort)
	if err != nil {
		return err
	}
	p.loopback = mode
	return nil
}

// HotplugPort attaches or detaches the port to a VM. The backend, if any, is
// called with the simulator lock held so attach and detach never interleave.
func (s *SDE) HotplugPort(unit int, sdkPort uint32, params sde.HotplugParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.lookup(unit, sdkPort)
	if err != nil {
		return err
	}
	switch params.Action {
	case model.HotplugAdd:
		if p.attached {
			return fmt.Errorf("sim: port %d on unit %d already attached", sdkPort, unit)
		}
		if s.hotplug != nil {
			if err := s.hotplug.Attach(params); err != nil {
				return fmt.Errorf("sim: attach port %d: %w", sdkPort, err)
			}
		}
		p.attached = true
	case model.HotplugDel:
		if !p.attached {
			return fmt.Errorf("sim: port %d on unit %d not attached", sdkPort, unit)
		}
		if s.hotplug != nil {
			if err := s.hotplug.Detach(params); err != nil {
				return fmt.Errorf("sim: detach port %d: %w", sdkPort, err)
			}
		}
		p.attached = false
	default:
		return fmt.Errorf("sim: invalid hotplug action %s", params.Action)
	}
	return nil
}

func (s *SDE) IsValidPort(unit int, sdkPort uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.lookup(unit, sdkPort)
	return err == nil
}

func (s *SDE) GetPortState(unit int, sdkPort uint32) (model.PortState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.lookup(unit, sdkPort)
	if err != nil {
		return model.PortStateUnknown, err
	}
	return p.state, nil
}

func (s *SDE) GetPortCounters(unit int, sdkPort uint32) (sde.PortCounters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.lookup(unit, sdkPort)
	if err != nil {
		return sde.PortCounters{}, err
	}
	return p.counters, nil
}

func (s *SDE) GetPortInfo(unit int, sdkPort uint32) (sde.PortInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.lookup(unit, sdkPort)
	if err != nil {
		return sde.PortInfo{}, err
	}
	return sde.PortInfo{
		Type:             p.params.Type,
		PipelineName:     p.params.PipelineName,
		TargetDatapathID: sdkPort,
	}, nil
}

// SetLinkState forces the operational state of a port, as a cable pull or
// peer reboot would, and emits a status event.
func (s *SDE) SetLinkState(unit int, sdkPort uint32, state model.PortState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.lookup(unit, sdkPort)
	if err != nil {
		return err
	}
	s.setStateLocked(unit, sdkPort, p, state)
	return nil
}

// SetCounters replaces the counters reported for a port.
func (s *SDE) SetCounters(unit int, sdkPort uint32, c sde.PortCounters) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.lookup(unit, sdkPort)
	if err != nil {
		return err
	}
	p.counters = c
	return nil
}

// Reset drops every port of a unit, as a device session loss would. It
// returns the number of ports removed.
func (s *SDE) Reset(unit int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.units[unit])
	delete(s.units, unit)
	util.WithField("unit", unit).Warnf("sim: device session reset, %d ports dropped", n)
	return n
}

// Ports returns the sdk port ids present on a unit, sorted.
func (s *SDE) Ports(unit int) []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]uint32, 0, len(s.units[unit]))
	for id := range s.units[unit] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PortSnapshot is a read-only view of a simulated port.
type PortSnapshot struct {
	Speed    uint64
	Fec      model.FecMode
	Params   sde.PortConfigParams
	MTU      int32
	Autoneg  model.TriState
	Loopback model.LoopbackState
	Enabled  bool
	State    model.PortState
	Attached bool
}

// Port returns a snapshot of one port.
func (s *SDE) Port(unit int, sdkPort uint32) (PortSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.lookup(unit, sdkPort)
	if err != nil {
		return PortSnapshot{}, false
	}
	return PortSnapshot{
		Speed:    p.speed,
		Fec:      p.fec,
		Params:   p.params,
		MTU:      p.mtu,
		Autoneg:  p.autoneg,
		Loopback: p.loopback,
		Enabled:  p.enabled,
		State:    p.state,
		Attached: p.attached,
	}, true
}

func (s *SDE) lookup(unit int, sdkPort uint32) (*simPort, error) {
	p, ok := s.units[unit][sdkPort]
	if !ok {
		return nil, fmt.Errorf("unit %d port %d: %w", unit, sdkPort, sde.ErrNoSuchPort)
	}
	return p, nil
}

func (s *SDE) setStateLocked(unit int, sdkPort uint32, p *simPort, state model.PortState) {
	if p.state == state {
		return
	}
	p.state = state
	ev := sde.PortStatusEvent{Unit: unit, SdkPort: sdkPort, State: state, Time: s.now()}
	select {
	case s.events <- ev:
	default:
		util.WithField("unit", unit).Warnf("sim: status queue full, dropping event for port %d", sdkPort)
	}
}
