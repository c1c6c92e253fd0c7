package model

import (
	"fmt"
	"sort"
	"strings"
)

// AttrKind names a single port attribute that can be set incrementally.
type AttrKind string

const (
	AttrPortType     AttrKind = "port-type"
	AttrDeviceType   AttrKind = "device-type"
	AttrQueueCount   AttrKind = "queue-count"
	AttrSocketPath   AttrKind = "socket-path"
	AttrHostName     AttrKind = "host-name"
	AttrPipelineName AttrKind = "pipeline-name"
	AttrMempoolName  AttrKind = "mempool-name"
	AttrControlPort  AttrKind = "control-port"
	AttrPCIBDF       AttrKind = "pci-bdf"
	AttrMTU          AttrKind = "mtu"
	AttrPacketDir    AttrKind = "packet-dir"
	AttrAdminState   AttrKind = "admin-state"
	AttrSpeed        AttrKind = "speed"
	AttrAutoneg      AttrKind = "autoneg"
	AttrFecMode      AttrKind = "fec-mode"
	AttrLoopback     AttrKind = "loopback-mode"

	AttrHotplugSocketIP   AttrKind = "hotplug-socket-ip"
	AttrHotplugSocketPort AttrKind = "hotplug-socket-port"
	AttrHotplugVMMAC      AttrKind = "hotplug-vm-mac"
	AttrHotplugNetdevID   AttrKind = "hotplug-netdev-id"
	AttrHotplugChardevID  AttrKind = "hotplug-chardev-id"
	AttrHotplugDeviceID   AttrKind = "hotplug-device-id"
	AttrNativeSocketPath  AttrKind = "native-socket-path"
	AttrHotplug           AttrKind = "hotplug"
)

var hotplugKinds = map[AttrKind]bool{
	AttrHotplugSocketIP:   true,
	AttrHotplugSocketPort: true,
	AttrHotplugVMMAC:      true,
	AttrHotplugNetdevID:   true,
	AttrHotplugChardevID:  true,
	AttrHotplugDeviceID:   true,
	AttrNativeSocketPath:  true,
	AttrHotplug:           true,
}

var configKinds = map[AttrKind]bool{
	AttrPortType:     true,
	AttrDeviceType:   true,
	AttrQueueCount:   true,
	AttrSocketPath:   true,
	AttrHostName:     true,
	AttrPipelineName: true,
	AttrMempoolName:  true,
	AttrControlPort:  true,
	AttrPCIBDF:       true,
	AttrMTU:          true,
	AttrPacketDir:    true,
	AttrAdminState:   true,
	AttrSpeed:        true,
	AttrAutoneg:      true,
	AttrFecMode:      true,
	AttrLoopback:     true,
}

// IsHotplug reports whether the kind belongs to the hotplug accumulator.
func (k AttrKind) IsHotplug() bool { return hotplugKinds[k] }

// Valid reports whether the kind is known.
func (k AttrKind) Valid() bool { return hotplugKinds[k] || configKinds[k] }

// ParseAttrKind validates an attribute kind name.
func ParseAttrKind(s string) (AttrKind, error) {
	k := AttrKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown attribute %q", s)
	}
	return k, nil
}

// AttrKinds returns every known attribute kind, sorted.
func AttrKinds() []AttrKind {
	out := make([]AttrKind, 0, len(configKinds)+len(hotplugKinds))
	for k := range configKinds {
		out = append(out, k)
	}
	for k := range hotplugKinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AttrUpdate is an incremental attribute-set request for one port.
type AttrUpdate struct {
	Kind  AttrKind `json:"kind"`
	Value string   `json:"value"`
}

func (u AttrUpdate) String() string {
	return fmt.Sprintf("%s=%s", u.Kind, u.Value)
}
