package statedb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/newtron-network/chassis/pkg/chassis"
	"github.com/newtron-network/chassis/pkg/util"
)

// PortEntry is the PORT_TABLE hash of one port. Every field is a string as
// stored in Redis.
type PortEntry struct {
	Name         string `json:"name,omitempty"`
	Unit         string `json:"unit,omitempty"`
	SdkPort      string `json:"sdk_port,omitempty"`
	AdminStatus  string `json:"admin_status,omitempty"`
	OperStatus   string `json:"oper_status,omitempty"`
	Speed        string `json:"speed,omitempty"`
	MTU          string `json:"mtu,omitempty"`
	PortType     string `json:"port_type,omitempty"`
	Autoneg      string `json:"autoneg,omitempty"`
	FecMode      string `json:"fec_mode,omitempty"`
	Loopback     string `json:"loopback_mode,omitempty"`
	Programmed   string `json:"programmed,omitempty"`
	HotplugState string `json:"hotplug_state,omitempty"`
	LastChanged  string `json:"last_changed,omitempty"`
}

// NewPortEntry renders a port status for STATE_DB.
func NewPortEntry(st chassis.PortStatus) PortEntry {
	e := PortEntry{
		Name:         st.Name,
		Unit:         strconv.Itoa(st.Unit),
		SdkPort:      strconv.FormatUint(uint64(st.SdkPort), 10),
		AdminStatus:  st.Config.AdminState.String(),
		OperStatus:   st.OperState.String(),
		Speed:        strconv.FormatUint(st.Config.Speed, 10),
		MTU:          strconv.Itoa(int(st.Config.MTU)),
		PortType:     st.Config.Type.String(),
		Autoneg:      st.Config.Autoneg.String(),
		FecMode:      st.Config.FecMode.String(),
		Loopback:     st.Config.Loopback.String(),
		Programmed:   strconv.FormatBool(st.Programmed),
		HotplugState: "detached",
	}
	if st.Attached {
		e.HotplugState = "attached"
	}
	if !st.LastChanged.IsZero() {
		e.LastChanged = st.LastChanged.UTC().Format(time.RFC3339Nano)
	}
	return e
}

// Fields returns the non-empty fields of e keyed by their hash field names.
func (e PortEntry) Fields() map[string]string {
	out := make(map[string]string)
	add := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	add("name", e.Name)
	add("unit", e.Unit)
	add("sdk_port", e.SdkPort)
	add("admin_status", e.AdminStatus)
	add("oper_status", e.OperStatus)
	add("speed", e.Speed)
	add("mtu", e.MTU)
	add("port_type", e.PortType)
	add("autoneg", e.Autoneg)
	add("fec_mode", e.FecMode)
	add("loopback_mode", e.Loopback)
	add("programmed", e.Programmed)
	add("hotplug_state", e.HotplugState)
	add("last_changed", e.LastChanged)
	return out
}

func parsePortEntry(vals map[string]string) *PortEntry {
	return &PortEntry{
		Name:         vals["name"],
		Unit:         vals["unit"],
		SdkPort:      vals["sdk_port"],
		AdminStatus:  vals["admin_status"],
		OperStatus:   vals["oper_status"],
		Speed:        vals["speed"],
		MTU:          vals["mtu"],
		PortType:     vals["port_type"],
		Autoneg:      vals["autoneg"],
		FecMode:      vals["fec_mode"],
		Loopback:     vals["loopback_mode"],
		Programmed:   vals["programmed"],
		HotplugState: vals["hotplug_state"],
		LastChanged:  vals["last_changed"],
	}
}

// GetPort reads the PORT_TABLE entry of a port. It returns (nil, nil) when
// the port is not mirrored.
func (c *Client) GetPort(ctx context.Context, node uint64, port uint32) (*PortEntry, error) {
	vals, err := c.GetEntry(ctx, PortKey(node, port))
	if err != nil || vals == nil {
		return nil, err
	}
	return parsePortEntry(vals), nil
}

// Store is the subset of Client used by Mirror.
type Store interface {
	SetEntry(ctx context.Context, key string, fields map[string]string) error
	DeleteEntry(ctx context.Context, key string) error
	Keys(ctx context.Context, table string) ([]string, error)
	Publish(ctx context.Context, channel string, payload []byte) error
}

// PortSource answers port status queries. *chassis.Manager implements it.
type PortSource interface {
	Port(nodeID uint64, portID uint32) (chassis.PortStatus, error)
	Ports() []chassis.PortStatus
}

// DefaultTimeout bounds each Redis round trip made for one event.
const DefaultTimeout = 2 * time.Second

// Mirror keeps PORT_TABLE in sync with the chassis manager. It implements
// chassis.EventWriter: every event refreshes (or deletes) the port's hash
// and is published on EventChannel.
type Mirror struct {
	store   Store
	source  PortSource
	timeout time.Duration
}

// NewMirror creates a mirror writing the state of source into store.
func NewMirror(store Store, source PortSource) *Mirror {
	return &Mirror{store: store, source: source, timeout: DefaultTimeout}
}

// WriteEvent implements chassis.EventWriter.
func (m *Mirror) WriteEvent(ev chassis.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var errs []error
	key := PortKey(ev.Node, ev.Port)
	if ev.Kind == chassis.PortDeleted {
		if err := m.store.DeleteEntry(ctx, key); err != nil {
			errs = append(errs, err)
		}
	} else {
		st, err := m.source.Port(ev.Node, ev.Port)
		switch {
		case err == nil:
			if err := m.store.SetEntry(ctx, key, NewPortEntry(st).Fields()); err != nil {
				errs = append(errs, err)
			}
		case errors.Is(err, util.ErrNotConfigured), errors.Is(err, util.ErrNotInitialized):
			// The port went away before the event was delivered.
		default:
			errs = append(errs, err)
		}
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := m.store.Publish(ctx, EventChannel, payload); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Sync writes every configured port and removes hashes of ports that are no
// longer configured.
func (m *Mirror) Sync(ctx context.Context) error {
	ports := m.source.Ports()
	keep := make(map[string]bool, len(ports))
	var errs []error
	for _, st := range ports {
		key := PortKey(st.Node, st.Port)
		keep[key] = true
		if err := m.store.SetEntry(ctx, key, NewPortEntry(st).Fields()); err != nil {
			errs = append(errs, err)
		}
	}

	keys, err := m.store.Keys(ctx, PortTable)
	if err != nil {
		return errors.Join(append(errs, err)...)
	}
	stale := 0
	for _, key := range keys {
		if keep[key] {
			continue
		}
		if err := m.store.DeleteEntry(ctx, key); err != nil {
			errs = append(errs, err)
			continue
		}
		stale++
	}
	util.WithField("table", PortTable).Infof("Mirrored %d port(s), removed %d stale", len(ports), stale)
	return errors.Join(errs...)
}
