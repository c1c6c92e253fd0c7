// Package sde defines the boundary between the chassis manager and the
// data-plane control interface that actually programs ports.
package sde

import (
	"errors"
	"fmt"
	"time"

	"github.com/newtron-network/chassis/pkg/model"
)

// ErrNoSuchPort is returned by adapters for an sdk port they do not know.
var ErrNoSuchPort = errors.New("sde: no such port")

// Interface is the device adapter consumed by the chassis manager. All calls
// are synchronous and must not call back into the manager.
type Interface interface {
	// ResolvePort maps a physical port position to the device-local port id.
	ResolvePort(unit int, key model.PortKey) (uint32, error)

	AddPort(unit int, sdkPort uint32, speedBps uint64, fec model.FecMode, params PortConfigParams) error
	DeletePort(unit int, sdkPort uint32) error
	EnablePort(unit int, sdkPort uint32) error
	DisablePort(unit int, sdkPort uint32) error
	SetMTU(unit int, sdkPort uint32, mtu int32) error
	SetAutonegPolicy(unit int, sdkPort uint32, policy model.TriState) error
	SetLoopbackMode(unit int, sdkPort uint32, mode model.LoopbackState) error
	HotplugPort(unit int, sdkPort uint32, params HotplugParams) error

	IsValidPort(unit int, sdkPort uint32) bool
	GetPortState(unit int, sdkPort uint32) (model.PortState, error)
	GetPortCounters(unit int, sdkPort uint32) (PortCounters, error)
	GetPortInfo(unit int, sdkPort uint32) (PortInfo, error)
}

// PortConfigParams are the backend parameters passed with AddPort.
type PortConfigParams struct {
	Type         model.PortType
	DeviceType   model.DeviceType
	Queues       int32
	SocketPath   string
	HostName     string
	PipelineName string
	MempoolName  string
	PCIBDF       string
	PacketDir    model.PacketDirection
}

// HotplugParams describe a VM attach or detach.
type HotplugParams struct {
	SocketIP         string
	SocketPort       uint32
	VMMAC            string
	NetdevID         string
	ChardevID        string
	DeviceID         string
	NativeSocketPath string
	Action           model.HotplugAction
}

// MonitorAddr returns the host:port of the VM monitor socket.
func (p HotplugParams) MonitorAddr() string {
	return fmt.Sprintf("%s:%d", p.SocketIP, p.SocketPort)
}

// PortCounters are the interface counters reported for a port.
type PortCounters struct {
	InOctets         uint64 `json:"in_octets"`
	InUnicastPkts    uint64 `json:"in_unicast_pkts"`
	InBroadcastPkts  uint64 `json:"in_broadcast_pkts"`
	InMulticastPkts  uint64 `json:"in_multicast_pkts"`
	InDiscards       uint64 `json:"in_discards"`
	InErrors         uint64 `json:"in_errors"`
	InUnknownProtos  uint64 `json:"in_unknown_protos"`
	InFCSErrors      uint64 `json:"in_fcs_errors"`
	OutOctets        uint64 `json:"out_octets"`
	OutUnicastPkts   uint64 `json:"out_unicast_pkts"`
	OutBroadcastPkts uint64 `json:"out_broadcast_pkts"`
	OutMulticastPkts uint64 `json:"out_multicast_pkts"`
	OutDiscards      uint64 `json:"out_discards"`
	OutErrors        uint64 `json:"out_errors"`
}

// PortInfo is static information the device keeps about a port.
type PortInfo struct {
	Type         model.PortType `json:"type"`
	PipelineName string         `json:"pipeline_name"`
	// TargetDatapathID is the id the pipeline uses for this port.
	TargetDatapathID uint32 `json:"target_dp_id"`
}

// PortStatusEvent is an operational state change reported by the device.
type PortStatusEvent struct {
	Unit    int
	SdkPort uint32
	State   model.PortState
	Time    time.Time
}
