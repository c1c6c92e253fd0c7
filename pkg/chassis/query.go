package chassis

import (
	"fmt"
	"time"

	"github.com/newtron-network/chassis/pkg/model"
	"github.com/newtron-network/chassis/pkg/sde"
	"github.com/newtron-network/chassis/pkg/util"
)

// DataKind selects the port data returned by GetPortData.
type DataKind string

const (
	DataOperStatus          DataKind = "oper-status"
	DataAdminStatus         DataKind = "admin-status"
	DataMACAddress          DataKind = "mac-address"
	DataPortSpeed           DataKind = "port-speed"
	DataNegotiatedSpeed     DataKind = "negotiated-port-speed"
	DataLACPRouterMAC       DataKind = "lacp-router-mac"
	DataPortCounters        DataKind = "port-counters"
	DataAutonegStatus       DataKind = "autoneg-status"
	DataFrontPanelPortInfo  DataKind = "front-panel-port-info"
	DataFecStatus           DataKind = "fec-status"
	DataLoopbackStatus      DataKind = "loopback-status"
	DataSdnPortID           DataKind = "sdn-port-id"
	DataTargetDatapathID    DataKind = "target-dp-id"
	DataForwardingViability DataKind = "forwarding-viability"
	DataHealthIndicator     DataKind = "health-indicator"
)

// DataKinds lists every kind GetPortData understands.
func DataKinds() []DataKind {
	return []DataKind{
		DataOperStatus, DataAdminStatus, DataMACAddress, DataPortSpeed,
		DataNegotiatedSpeed, DataLACPRouterMAC, DataPortCounters,
		DataAutonegStatus, DataFrontPanelPortInfo, DataFecStatus,
		DataLoopbackStatus, DataSdnPortID, DataTargetDatapathID,
		DataForwardingViability, DataHealthIndicator,
	}
}

// DataRequest asks for one piece of port data.
type DataRequest struct {
	Kind DataKind
	Node uint64
	Port uint32
}

// PortData is the answer to a DataRequest. Only the fields of the requested
// kind are set.
type PortData struct {
	Kind            DataKind            `json:"kind"`
	OperState       model.PortState     `json:"oper_state,omitempty"`
	TimeLastChanged time.Time           `json:"time_last_changed,omitempty"`
	AdminState      model.AdminState    `json:"admin_state,omitempty"`
	MACAddress      string              `json:"mac_address,omitempty"`
	SpeedBps        uint64              `json:"speed_bps,omitempty"`
	Counters        *sde.PortCounters   `json:"counters,omitempty"`
	Autoneg         model.TriState      `json:"autoneg,omitempty"`
	FrontPanel      *FrontPanelInfo     `json:"front_panel,omitempty"`
	FecMode         model.FecMode       `json:"fec_mode,omitempty"`
	Loopback        model.LoopbackState `json:"loopback_mode,omitempty"`
	SdnPortID       uint32              `json:"sdn_port_id,omitempty"`
	TargetDPID      uint32              `json:"target_dp_id,omitempty"`
	Status          string              `json:"status,omitempty"`
}

// FrontPanelInfo describes the physical port. No platform populates it yet.
type FrontPanelInfo struct {
	MediaType     string `json:"media_type,omitempty"`
	ConnectorType string `json:"connector_type,omitempty"`
}

// statusUnknown is reported for forwarding viability and health.
const statusUnknown = "unknown"

// GetPortData answers a single port data request.
func (m *Manager) GetPortData(req DataRequest) (*PortData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, p, err := m.lookup(req.Node, req.Port)
	if err != nil {
		return nil, err
	}
	out := &PortData{Kind: req.Kind}
	switch req.Kind {
	case DataOperStatus:
		state, err := m.portState(n, p)
		if err != nil {
			return nil, err
		}
		out.OperState = state
		out.TimeLastChanged = p.lastChanged
	case DataAdminStatus:
		out.AdminState = p.config.AdminState
	case DataMACAddress, DataLACPRouterMAC:
		out.MACAddress = util.MACFromUint64(0)
	case DataPortSpeed:
		out.SpeedBps = p.config.Speed
	case DataNegotiatedSpeed:
		state, err := m.portState(n, p)
		if err != nil {
			return nil, err
		}
		if state == model.PortStateUp {
			out.SpeedBps = p.config.Speed
		}
	case DataPortCounters:
		c, err := m.portCounters(n, p)
		if err != nil {
			return nil, err
		}
		out.Counters = &c
	case DataAutonegStatus:
		out.Autoneg = p.config.Autoneg
	case DataFrontPanelPortInfo:
		out.FrontPanel = &FrontPanelInfo{}
	case DataFecStatus:
		out.FecMode = p.config.FecMode
	case DataLoopbackStatus:
		out.Loopback = p.config.Loopback
	case DataSdnPortID:
		out.SdnPortID = p.id
	case DataTargetDatapathID:
		info, err := m.dev.GetPortInfo(n.unit, p.sdkPort)
		m.observe("get_port_info", err)
		if err != nil {
			return nil, m.devErr(p, p.sdkPort, err, "get port info")
		}
		out.TargetDPID = info.TargetDatapathID
	case DataForwardingViability, DataHealthIndicator:
		out.Status = statusUnknown
	default:
		return nil, util.NewPortError(util.ErrInvalidParam, req.Node, req.Port, "unsupported data kind %q", req.Kind)
	}
	return out, nil
}

// portState returns the cached operational state, asking the device when
// none is cached. The answer is not cached. Caller holds m.mu.
func (m *Manager) portState(n *nodeEntry, p *portEntry) (model.PortState, error) {
	if p.operState != model.PortStateUnknown {
		return p.operState, nil
	}
	state, err := m.dev.GetPortState(n.unit, p.sdkPort)
	m.observe("get_port_state", err)
	if err != nil {
		return model.PortStateUnknown, m.devErr(p, p.sdkPort, err, "get port state")
	}
	return state, nil
}

func (m *Manager) portCounters(n *nodeEntry, p *portEntry) (sde.PortCounters, error) {
	c, err := m.dev.GetPortCounters(n.unit, p.sdkPort)
	m.observe("get_port_counters", err)
	if err != nil {
		return sde.PortCounters{}, m.devErr(p, p.sdkPort, err, "get port counters")
	}
	return c, nil
}

// GetPortState returns the operational state of a port.
func (m *Manager) GetPortState(nodeID uint64, portID uint32) (model.PortState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, p, err := m.lookup(nodeID, portID)
	if err != nil {
		return model.PortStateUnknown, err
	}
	return m.portState(n, p)
}

// GetPortTimeLastChanged returns when the operational state last changed.
// The zero time means no change was observed since the last push or replay.
func (m *Manager) GetPortTimeLastChanged(nodeID uint64, portID uint32) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, p, err := m.lookup(nodeID, portID)
	if err != nil {
		return time.Time{}, err
	}
	return p.lastChanged, nil
}

func (m *Manager) GetPortCounters(nodeID uint64, portID uint32) (sde.PortCounters, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, p, err := m.lookup(nodeID, portID)
	if err != nil {
		return sde.PortCounters{}, err
	}
	return m.portCounters(n, p)
}

// GetNodeIDToUnitMap returns a copy of the node to unit mapping.
func (m *Manager) GetNodeIDToUnitMap() (map[uint64]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	out := make(map[uint64]int, len(m.repo.nodes))
	for id, n := range m.repo.nodes {
		out[id] = n.unit
	}
	return out, nil
}

func (m *Manager) GetUnitFromNodeID(nodeID uint64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkInitialized(); err != nil {
		return 0, err
	}
	n, ok := m.repo.nodes[nodeID]
	if !ok {
		return 0, fmt.Errorf("%w: node %d is not configured or not known", util.ErrNotConfigured, nodeID)
	}
	return n.unit, nil
}

func (m *Manager) GetSdkPortID(nodeID uint64, portID uint32) (uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, p, err := m.lookup(nodeID, portID)
	if err != nil {
		return 0, err
	}
	return p.sdkPort, nil
}

// GetPortConfig returns a copy of the committed configuration of a port.
func (m *Manager) GetPortConfig(nodeID uint64, portID uint32) (PortConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, p, err := m.lookup(nodeID, portID)
	if err != nil {
		return PortConfig{}, err
	}
	return p.config, nil
}

// PortStatus is a point-in-time view of one port.
type PortStatus struct {
	Node        uint64          `json:"node"`
	Port        uint32          `json:"port"`
	Name        string          `json:"name,omitempty"`
	Key         model.PortKey   `json:"key"`
	Unit        int             `json:"unit"`
	SdkPort     uint32          `json:"sdk_port"`
	Config      PortConfig      `json:"config"`
	OperState   model.PortState `json:"oper_state"`
	LastChanged time.Time       `json:"last_changed"`
	Programmed  bool            `json:"programmed"`
	Attached    bool            `json:"attached"`

	// Pending lists accumulated attributes of a port not yet programmed.
	Pending        []string `json:"pending,omitempty"`
	PendingHotplug []string `json:"pending_hotplug,omitempty"`
}

// Ports returns every configured port ordered by node and port id. It is
// empty before the first push.
func (m *Manager) Ports() []PortStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []PortStatus
	for _, nodeID := range m.repo.sortedNodes() {
		n := m.repo.nodes[nodeID]
		for _, portID := range n.sortedPorts() {
			out = append(out, statusOf(n, n.ports[portID]))
		}
	}
	return out
}

// Port returns the status of a single port.
func (m *Manager) Port(nodeID uint64, portID uint32) (PortStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, p, err := m.lookup(nodeID, portID)
	if err != nil {
		return PortStatus{}, err
	}
	return statusOf(n, p), nil
}

func statusOf(n *nodeEntry, p *portEntry) PortStatus {
	st := PortStatus{
		Node:           p.node,
		Port:           p.id,
		Name:           p.name,
		Key:            p.key,
		Unit:           n.unit,
		SdkPort:        p.sdkPort,
		Config:         p.config,
		OperState:      p.operState,
		LastChanged:    p.lastChanged,
		Programmed:     p.progress.programmed,
		Attached:       p.progress.attached,
		PendingHotplug: p.progress.hotplug.names(hotplugAttrNames),
	}
	if !p.progress.programmed {
		st.Pending = p.progress.attrs.names(attrNames)
	}
	return st
}
