package model

import (
	"encoding/json"
	"testing"

	"gopkg.in/yaml.v3"
)

// ===================== Enum Tests =====================

func TestParseAdminState(t *testing.T) {
	tests := []struct {
		in      string
		want    AdminState
		wantErr bool
	}{
		{"enabled", AdminStateEnabled, false},
		{"DISABLED", AdminStateDisabled, false},
		{" diag ", AdminStateDiag, false},
		{"unknown", AdminStateUnknown, false},
		{"up", AdminStateUnknown, true},
		{"", AdminStateUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAdminState(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAdminState(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseAdminState(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestEnumString(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"port type vhost", PortTypeVhost.String(), "vhost"},
		{"port type tap", PortTypeTap.String(), "tap"},
		{"device type", DeviceTypeVirtioNet.String(), "virtio-net"},
		{"direction", DirectionNetwork.String(), "network"},
		{"fec", FecModeAuto.String(), "auto"},
		{"loopback", LoopbackStateMAC.String(), "mac"},
		{"platform", PlatformP4SoftSwitch.String(), "p4-soft-switch"},
		{"hotplug", HotplugDel.String(), "del"},
		{"oper", PortStateUp.String(), "up"},
		{"out of range", AdminState(42).String(), "invalid(42)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("String() = %q, want %q", tt.got, tt.want)
			}
		})
	}
}

// ===================== Document Tests =====================

const sampleYAML = `
chassis:
  platform: p4-soft-switch
nodes:
  - id: 1
    slot: 1
singleton_ports:
  - id: 10
    node: 1
    slot: 1
    port: 1
    speed_bps: 10000000000
    config_params:
      admin_state: enabled
      port_type: vhost
      device_type: virtio-net
      queues: 2
      socket_path: /tmp/vhost-user-0
      host_name: host0
      fec_mode: off
`

func TestChassisConfig_YAML(t *testing.T) {
	var cfg ChassisConfig
	if err := yaml.Unmarshal([]byte(sampleYAML), &cfg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if cfg.Chassis.Platform != PlatformP4SoftSwitch {
		t.Errorf("Platform = %v, want p4-soft-switch", cfg.Chassis.Platform)
	}
	if len(cfg.SingletonPorts) != 1 {
		t.Fatalf("len(SingletonPorts) = %d, want 1", len(cfg.SingletonPorts))
	}
	p := cfg.SingletonPorts[0]
	if p.Config.Type != PortTypeVhost || p.Config.DeviceType != DeviceTypeVirtioNet {
		t.Errorf("port type = %v/%v, want vhost/virtio-net", p.Config.Type, p.Config.DeviceType)
	}
	if p.Config.AdminState != AdminStateEnabled {
		t.Errorf("AdminState = %v, want enabled", p.Config.AdminState)
	}
	if p.Config.FecMode != FecModeOff {
		t.Errorf("FecMode = %v, want off", p.Config.FecMode)
	}
	if got := p.Key(); got != (PortKey{Slot: 1, Port: 1}) {
		t.Errorf("Key() = %v", got)
	}
}

func TestChassisConfig_JSONRejectsBadEnum(t *testing.T) {
	doc := `{"chassis":{"platform":"bmv2"},"nodes":[],"singleton_ports":[]}`
	var cfg ChassisConfig
	if err := json.Unmarshal([]byte(doc), &cfg); err == nil {
		t.Error("expected error for unknown platform")
	}
}

func TestChassisConfig_Lookups(t *testing.T) {
	cfg := &ChassisConfig{
		Nodes: []Node{{ID: 1, Slot: 1}, {ID: 2, Slot: 1}},
		SingletonPorts: []SingletonPort{
			{ID: 1, Node: 1}, {ID: 2, Node: 1}, {ID: 3, Node: 2},
		},
	}
	if n := cfg.NodeByID(2); n == nil || n.ID != 2 {
		t.Errorf("NodeByID(2) = %v", n)
	}
	if n := cfg.NodeByID(9); n != nil {
		t.Errorf("NodeByID(9) = %v, want nil", n)
	}
	if got := cfg.PortCount(1); got != 2 {
		t.Errorf("PortCount(1) = %d, want 2", got)
	}
}

// ===================== Attribute Tests =====================

func TestParseAttrKind(t *testing.T) {
	tests := []struct {
		in        string
		want      AttrKind
		isHotplug bool
		wantErr   bool
	}{
		{"mtu", AttrMTU, false, false},
		{"Port-Type", AttrPortType, false, false},
		{"hotplug", AttrHotplug, true, false},
		{"native-socket-path", AttrNativeSocketPath, true, false},
		{"colour", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAttrKind(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAttrKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseAttrKind(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if got.IsHotplug() != tt.isHotplug {
				t.Errorf("IsHotplug() = %v, want %v", got.IsHotplug(), tt.isHotplug)
			}
		})
	}
}

func TestAttrKinds_Sorted(t *testing.T) {
	kinds := AttrKinds()
	if len(kinds) != 24 {
		t.Fatalf("len(AttrKinds()) = %d, want 24", len(kinds))
	}
	for i := 1; i < len(kinds); i++ {
		if kinds[i-1] >= kinds[i] {
			t.Errorf("AttrKinds() not sorted at %d: %q >= %q", i, kinds[i-1], kinds[i])
		}
	}
}
