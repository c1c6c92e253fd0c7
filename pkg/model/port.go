// Package model defines the domain models for chassis port configuration.
package model

import (
	"fmt"
	"strings"
)

// CPUPortID is the reserved SDN port id of the CPU port. It is configured
// separately and may never appear as a singleton port.
const CPUPortID uint32 = 0xFFFFFFFD

// PortKey identifies the physical position of a port.
type PortKey struct {
	Slot    int32 `json:"slot" yaml:"slot"`
	Port    int32 `json:"port" yaml:"port"`
	Channel int32 `json:"channel,omitempty" yaml:"channel,omitempty"`
}

func (k PortKey) String() string {
	return fmt.Sprintf("%d/%d/%d", k.Slot, k.Port, k.Channel)
}

// AdminState is the administrative state of a port. AdminStateUnknown is the
// "never programmed or last programming attempt failed" sentinel.
type AdminState int

const (
	AdminStateUnknown AdminState = iota
	AdminStateEnabled
	AdminStateDisabled
	AdminStateDiag
)

// PortState is the operational state of a port.
type PortState int

const (
	PortStateUnknown PortState = iota
	PortStateUp
	PortStateDown
)

// TriState is used for autonegotiation policy.
type TriState int

const (
	TriStateUnknown TriState = iota
	TriStateEnabled
	TriStateDisabled
)

// FecMode is the forward error correction mode.
type FecMode int

const (
	FecModeUnknown FecMode = iota
	FecModeOn
	FecModeOff
	FecModeAuto
)

// LoopbackState is the port loopback mode.
type LoopbackState int

const (
	LoopbackStateUnknown LoopbackState = iota
	LoopbackStateNone
	LoopbackStateMAC
	LoopbackStatePHY
)

// PortType selects the data-plane backend of a port.
type PortType int

const (
	PortTypeNone PortType = iota
	PortTypeVhost
	PortTypeLink
	PortTypeTap
)

// DeviceType is the vhost device flavour.
type DeviceType int

const (
	DeviceTypeNone DeviceType = iota
	DeviceTypeVirtioNet
	DeviceTypeVirtioBlk
)

// PacketDirection tells the pipeline whether a port faces the host or the network.
type PacketDirection int

const (
	DirectionHost PacketDirection = iota
	DirectionNetwork
)

// HotplugAction is the requested attach/detach operation for a port.
type HotplugAction int

const (
	NoHotplug HotplugAction = iota
	HotplugAdd
	HotplugDel
)

// Platform identifies the chassis platform in a configuration document.
type Platform int

const (
	PlatformUnknown Platform = iota
	PlatformTofino
	PlatformTofino2
	PlatformP4SoftSwitch
)

var (
	adminStateNames    = []string{"unknown", "enabled", "disabled", "diag"}
	portStateNames     = []string{"unknown", "up", "down"}
	triStateNames      = []string{"unknown", "enabled", "disabled"}
	fecModeNames       = []string{"unknown", "on", "off", "auto"}
	loopbackStateNames = []string{"unknown", "none", "mac", "phy"}
	portTypeNames      = []string{"none", "vhost", "link", "tap"}
	deviceTypeNames    = []string{"none", "virtio-net", "virtio-blk"}
	directionNames     = []string{"host", "network"}
	hotplugActionNames = []string{"none", "add", "del"}
	platformNames      = []string{"unknown", "tofino", "tofino2", "p4-soft-switch"}
)

func enumString(names []string, v int) string {
	if v < 0 || v >= len(names) {
		return fmt.Sprintf("invalid(%d)", v)
	}
	return names[v]
}

func parseEnum(kind string, names []string, s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range names {
		if n == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("invalid %s %q (expected one of %s)", kind, s, strings.Join(names, ", "))
}

func (s AdminState) String() string { return enumString(adminStateNames, int(s)) }
func (s PortState) String() string { return enumString(portStateNames, int(s)) }
func (s TriState) String() string { return enumString(triStateNames, int(s)) }
func (m FecMode) String() string { return enumString(fecModeNames, int(m)) }
func (s LoopbackState) String() string { return enumString(loopbackStateNames, int(s)) }
func (t PortType) String() string { return enumString(portTypeNames, int(t)) }
func (t DeviceType) String() string { return enumString(deviceTypeNames, int(t)) }
func (d PacketDirection) String() string {
	return enumString(directionNames, int(d))
}
func (a HotplugAction) String() string { return enumString(hotplugActionNames, int(a)) }
func (p Platform) String() string { return enumString(platformNames, int(p)) }

// ParseAdminState parses "enabled", "disabled", "diag" or "unknown".
func ParseAdminState(s string) (AdminState, error) {
	v, err := parseEnum("admin state", adminStateNames, s)
	return AdminState(v), err
}

// ParsePortState parses an operational state.
func ParsePortState(s string) (PortState, error) {
	v, err := parseEnum("port state", portStateNames, s)
	return PortState(v), err
}

// ParseTriState parses an autonegotiation policy.
func ParseTriState(s string) (TriState, error) {
	v, err := parseEnum("autoneg policy", triStateNames, s)
	return TriState(v), err
}

// ParseFecMode parses a FEC mode.
func ParseFecMode(s string) (FecMode, error) {
	v, err := parseEnum("fec mode", fecModeNames, s)
	return FecMode(v), err
}

// ParseLoopbackState parses a loopback mode.
func ParseLoopbackState(s string) (LoopbackState, error) {
	v, err := parseEnum("loopback mode", loopbackStateNames, s)
	return LoopbackState(v), err
}

// ParsePortType parses a port type.
func ParsePortType(s string) (PortType, error) {
	v, err := parseEnum("port type", portTypeNames, s)
	return PortType(v), err
}

// ParseDeviceType parses a device type.
func ParseDeviceType(s string) (DeviceType, error) {
	v, err := parseEnum("device type", deviceTypeNames, s)
	return DeviceType(v), err
}

// ParsePacketDirection parses a packet direction.
func ParsePacketDirection(s string) (PacketDirection, error) {
	v, err := parseEnum("packet direction", directionNames, s)
	return PacketDirection(v), err
}

// ParseHotplugAction parses a hotplug action.
func ParseHotplugAction(s string) (HotplugAction, error) {
	v, err := parseEnum("hotplug action", hotplugActionNames, s)
	return HotplugAction(v), err
}

// ParsePlatform parses a platform name.
func ParsePlatform(s string) (Platform, error) {
	v, err := parseEnum("platform", platformNames, s)
	return Platform(v), err
}

// Text marshalling lets documents spell enums by name in YAML and JSON.

func (s AdminState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (s *AdminState) UnmarshalText(b []byte) (err error) {
	*s, err = ParseAdminState(string(b))
	return err
}

func (s TriState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (s *TriState) UnmarshalText(b []byte) (err error) {
	*s, err = ParseTriState(string(b))
	return err
}

func (m FecMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }
func (m *FecMode) UnmarshalText(b []byte) (err error) {
	*m, err = ParseFecMode(string(b))
	return err
}

func (s LoopbackState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (s *LoopbackState) UnmarshalText(b []byte) (err error) {
	*s, err = ParseLoopbackState(string(b))
	return err
}

func (t PortType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }
func (t *PortType) UnmarshalText(b []byte) (err error) {
	*t, err = ParsePortType(string(b))
	return err
}

func (t DeviceType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }
func (t *DeviceType) UnmarshalText(b []byte) (err error) {
	*t, err = ParseDeviceType(string(b))
	return err
}

func (d PacketDirection) MarshalText() ([]byte, error) { return []byte(d.String()), nil }
func (d *PacketDirection) UnmarshalText(b []byte) (err error) {
	*d, err = ParsePacketDirection(string(b))
	return err
}

func (a HotplugAction) MarshalText() ([]byte, error) { return []byte(a.String()), nil }
func (a *HotplugAction) UnmarshalText(b []byte) (err error) {
	*a, err = ParseHotplugAction(string(b))
	return err
}

func (p Platform) MarshalText() ([]byte, error) { return []byte(p.String()), nil }
func (p *Platform) UnmarshalText(b []byte) (err error) {
	*p, err = ParsePlatform(string(b))
	return err
}

func (s PortState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (s *PortState) UnmarshalText(b []byte) (err error) {
	*s, err = ParsePortState(string(b))
	return err
}
