package chassis

import (
	"sort"
	"time"

	"github.com/newtron-network/chassis/pkg/model"
	"github.com/newtron-network/chassis/pkg/sde"
)

// Defaults filled in when a port is programmed without them.
const (
	DefaultPipelineName = "pipe"
	DefaultMempoolName  = "MEMPOOL0"
	DefaultMTU          = 1500
	DefaultPacketDir    = model.DirectionHost
)

// PortConfig is the committed configuration of a port. AdminState
// AdminStateUnknown means the port was never programmed or the last
// programming attempt failed; the other fields are not trusted then.
type PortConfig struct {
	AdminState model.AdminState    `json:"admin_state"`
	Speed      uint64              `json:"speed_bps,omitempty"`
	MTU        int32               `json:"mtu,omitempty"`
	Autoneg    model.TriState      `json:"autoneg"`
	FecMode    model.FecMode       `json:"fec_mode"`
	Loopback   model.LoopbackState `json:"loopback_mode"`

	Type         model.PortType        `json:"port_type"`
	DeviceType   model.DeviceType      `json:"device_type"`
	Queues       int32                 `json:"queues,omitempty"`
	SocketPath   string                `json:"socket_path,omitempty"`
	HostName     string                `json:"host_name,omitempty"`
	PipelineName string                `json:"pipeline_name,omitempty"`
	MempoolName  string                `json:"mempool_name,omitempty"`
	ControlPort  string                `json:"control_port,omitempty"`
	PCIBDF       string                `json:"pci_bdf,omitempty"`
	PacketDir    model.PacketDirection `json:"packet_dir"`

	Hotplug HotplugConfig `json:"hotplug"`
}

// HotplugConfig holds the VM attach parameters of a port.
type HotplugConfig struct {
	SocketIP         string              `json:"socket_ip,omitempty"`
	SocketPort       uint32              `json:"socket_port,omitempty"`
	VMMAC            string              `json:"vm_mac,omitempty"`
	NetdevID         string              `json:"netdev_id,omitempty"`
	ChardevID        string              `json:"chardev_id,omitempty"`
	DeviceID         string              `json:"device_id,omitempty"`
	NativeSocketPath string              `json:"native_socket_path,omitempty"`
	Action           model.HotplugAction `json:"action"`
}

func (c *PortConfig) sdeParams() sde.PortConfigParams {
	return sde.PortConfigParams{
		Type:         c.Type,
		DeviceType:   c.DeviceType,
		Queues:       c.Queues,
		SocketPath:   c.SocketPath,
		HostName:     c.HostName,
		PipelineName: c.PipelineName,
		MempoolName:  c.MempoolName,
		PCIBDF:       c.PCIBDF,
		PacketDir:    c.PacketDir,
	}
}

// controlParams are the parameters of the auxiliary control port: a tap that
// always faces the host.
func (c *PortConfig) controlParams() sde.PortConfigParams {
	p := c.sdeParams()
	p.Type = model.PortTypeTap
	p.PacketDir = model.DirectionHost
	return p
}

func (h *HotplugConfig) sdeParams() sde.HotplugParams {
	return sde.HotplugParams{
		SocketIP:         h.SocketIP,
		SocketPort:       h.SocketPort,
		VMMAC:            h.VMMAC,
		NetdevID:         h.NetdevID,
		ChardevID:        h.ChardevID,
		DeviceID:         h.DeviceID,
		NativeSocketPath: h.NativeSocketPath,
		Action:           h.Action,
	}
}

// clearOneTime drops every attribute that is accumulated before programming.
func (c *PortConfig) clearOneTime() {
	c.Type = model.PortTypeNone
	c.DeviceType = model.DeviceTypeNone
	c.Queues = 0
	c.SocketPath = ""
	c.HostName = ""
	c.PipelineName = ""
	c.MempoolName = ""
	c.ControlPort = ""
	c.PCIBDF = ""
	c.PacketDir = DefaultPacketDir
	c.MTU = 0
}

// runtimeAttrs are the attributes that may change on a programmed port.
type runtimeAttrs struct {
	admin    model.AdminState
	speed    uint64
	mtu      int32
	autoneg  model.TriState
	fec      model.FecMode
	loopback model.LoopbackState
}

func runtimeFromDoc(p *model.SingletonPort) runtimeAttrs {
	admin := p.Config.AdminState
	if admin == model.AdminStateUnknown {
		admin = model.AdminStateDisabled
	}
	return runtimeAttrs{
		admin:    admin,
		speed:    p.Speed,
		mtu:      p.Config.MTU,
		autoneg:  p.Config.Autoneg,
		fec:      p.Config.FecMode,
		loopback: p.Config.Loopback,
	}
}

// runtimeFromConfig rebuilds the runtime attributes a committed config was
// programmed with. It is used to roll back a failed speed change.
func runtimeFromConfig(c *PortConfig) runtimeAttrs {
	return runtimeAttrs{
		admin:    c.AdminState,
		speed:    c.Speed,
		mtu:      c.MTU,
		autoneg:  c.Autoneg,
		fec:      c.FecMode,
		loopback: c.Loopback,
	}
}

// portEntry is the repository record of one configured port.
type portEntry struct {
	node    uint64
	id      uint32
	name    string
	key     model.PortKey
	sdkPort uint32

	desired  runtimeAttrs
	config   PortConfig
	progress progress

	// controlAdded is set once the auxiliary control port exists on the device.
	controlAdded bool

	operState   model.PortState
	lastChanged time.Time
}

// nodeEntry groups the ports of one node.
type nodeEntry struct {
	id        uint64
	unit      int
	ports     map[uint32]*portEntry
	sdkToPort map[uint32]uint32
}

// repository is the committed state guarded by Manager.mu.
type repository struct {
	nodes      map[uint64]*nodeEntry
	unitToNode map[int]uint64
}

func newRepository() *repository {
	return &repository{
		nodes:      make(map[uint64]*nodeEntry),
		unitToNode: make(map[int]uint64),
	}
}

func (r *repository) port(nodeID uint64, portID uint32) (*nodeEntry, *portEntry, bool) {
	n, ok := r.nodes[nodeID]
	if !ok {
		return nil, nil, false
	}
	p, ok := n.ports[portID]
	return n, p, ok
}

func (r *repository) portBySdk(unit int, sdkPort uint32) (*portEntry, bool) {
	nodeID, ok := r.unitToNode[unit]
	if !ok {
		return nil, false
	}
	n := r.nodes[nodeID]
	id, ok := n.sdkToPort[sdkPort]
	if !ok {
		return nil, false
	}
	return n.ports[id], true
}

// sortedNodes returns the node ids in ascending order.
func (r *repository) sortedNodes() []uint64 {
	ids := make([]uint64, 0, len(r.nodes))
	for id := range r.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// sortedPorts returns the port ids of a node in ascending order.
func (n *nodeEntry) sortedPorts() []uint32 {
	ids := make([]uint32, 0, len(n.ports))
	for id := range n.ports {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *repository) adminCounts() map[model.AdminState]int {
	counts := make(map[model.AdminState]int)
	for _, n := range r.nodes {
		for _, p := range n.ports {
			counts[p.config.AdminState]++
		}
	}
	return counts
}
