package model

// ChassisConfig is the northbound configuration document. Nodes and ports
// are ordered; the position of a node in Nodes is its device unit.
type ChassisConfig struct {
	Description    string            `json:"description,omitempty" yaml:"description,omitempty"`
	Chassis        Chassis           `json:"chassis" yaml:"chassis"`
	Nodes          []Node            `json:"nodes" yaml:"nodes"`
	SingletonPorts []SingletonPort   `json:"singleton_ports" yaml:"singleton_ports"`
	TrunkPorts     []TrunkPort       `json:"trunk_ports,omitempty" yaml:"trunk_ports,omitempty"`
	PortGroups     []PortGroup       `json:"port_groups,omitempty" yaml:"port_groups,omitempty"`
	Labels         map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// Chassis describes the box itself.
type Chassis struct {
	Name     string   `json:"name,omitempty" yaml:"name,omitempty"`
	Platform Platform `json:"platform" yaml:"platform"`
}

// Node is a packet-processing instance, mapped 1:1 to a device unit.
type Node struct {
	ID   uint64 `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	Slot int32  `json:"slot" yaml:"slot"`
}

// SingletonPort is a single logical port in a pushed configuration.
type SingletonPort struct {
	ID      uint32 `json:"id" yaml:"id"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Node    uint64 `json:"node" yaml:"node"`
	Slot    int32  `json:"slot" yaml:"slot"`
	Port    int32  `json:"port" yaml:"port"`
	Channel int32  `json:"channel,omitempty" yaml:"channel,omitempty"`
	Speed   uint64 `json:"speed_bps" yaml:"speed_bps"`

	Config PortParams `json:"config_params" yaml:"config_params"`
}

// Key returns the physical position of the port.
func (p *SingletonPort) Key() PortKey {
	return PortKey{Slot: p.Slot, Port: p.Port, Channel: p.Channel}
}

// PortParams carries the per-port attributes of a pushed configuration. A
// port whose Type is PortTypeNone is programmed only through incremental
// attribute updates.
type PortParams struct {
	AdminState AdminState    `json:"admin_state,omitempty" yaml:"admin_state,omitempty"`
	MTU        int32         `json:"mtu,omitempty" yaml:"mtu,omitempty"`
	Autoneg    TriState      `json:"autoneg,omitempty" yaml:"autoneg,omitempty"`
	FecMode    FecMode       `json:"fec_mode,omitempty" yaml:"fec_mode,omitempty"`
	Loopback   LoopbackState `json:"loopback_mode,omitempty" yaml:"loopback_mode,omitempty"`

	Type         PortType        `json:"port_type,omitempty" yaml:"port_type,omitempty"`
	DeviceType   DeviceType      `json:"device_type,omitempty" yaml:"device_type,omitempty"`
	Queues       int32           `json:"queues,omitempty" yaml:"queues,omitempty"`
	SocketPath   string          `json:"socket_path,omitempty" yaml:"socket_path,omitempty"`
	HostName     string          `json:"host_name,omitempty" yaml:"host_name,omitempty"`
	PipelineName string          `json:"pipeline_name,omitempty" yaml:"pipeline_name,omitempty"`
	MempoolName  string          `json:"mempool_name,omitempty" yaml:"mempool_name,omitempty"`
	ControlPort  string          `json:"control_port,omitempty" yaml:"control_port,omitempty"`
	PCIBDF       string          `json:"pci_bdf,omitempty" yaml:"pci_bdf,omitempty"`
	PacketDir    PacketDirection `json:"packet_dir,omitempty" yaml:"packet_dir,omitempty"`
}

// TrunkPort and PortGroup are accepted by the document format but are not
// supported by this chassis; verification rejects them.
type TrunkPort struct {
	ID      uint32   `json:"id" yaml:"id"`
	Members []uint32 `json:"members,omitempty" yaml:"members,omitempty"`
}

type PortGroup struct {
	ID      uint32   `json:"id" yaml:"id"`
	Members []uint32 `json:"members,omitempty" yaml:"members,omitempty"`
}

// NodeByID returns the node with the given id, or nil.
func (c *ChassisConfig) NodeByID(id uint64) *Node {
	for i := range c.Nodes {
		if c.Nodes[i].ID == id {
			return &c.Nodes[i]
		}
	}
	return nil
}

// PortCount returns the number of singleton ports on a node.
func (c *ChassisConfig) PortCount(nodeID uint64) int {
	n := 0
	for _, p := range c.SingletonPorts {
		if p.Node == nodeID {
			n++
		}
	}
	return n
}
