package chassis

import (
	"github.com/newtron-network/chassis/pkg/model"
	"github.com/newtron-network/chassis/pkg/sde"
	"github.com/newtron-network/chassis/pkg/util"
)

// Device adapter calls go through these helpers so that every call is
// counted and every failure carries the port identity.

func (m *Manager) observe(op string, err error) error {
	if m.metrics != nil {
		m.metrics.ObserveSDECall(op, err)
	}
	return err
}

func (m *Manager) devErr(p *portEntry, sdkPort uint32, err error, what string) error {
	if err == nil {
		return nil
	}
	return util.WrapPortError(util.ErrInternal, p.node, p.id, sdkPort, err, "%s", what)
}

func (m *Manager) devAddPort(unit int, p *portEntry, sdkPort uint32, speed uint64, fec model.FecMode, params sde.PortConfigParams) error {
	err := m.observe("add_port", m.dev.AddPort(unit, sdkPort, speed, fec, params))
	return m.devErr(p, sdkPort, err, "add port")
}

func (m *Manager) devDeletePort(unit int, p *portEntry, sdkPort uint32) error {
	err := m.observe("delete_port", m.dev.DeletePort(unit, sdkPort))
	return m.devErr(p, sdkPort, err, "delete port")
}

func (m *Manager) devEnable(unit int, p *portEntry) error {
	err := m.observe("enable_port", m.dev.EnablePort(unit, p.sdkPort))
	return m.devErr(p, p.sdkPort, err, "enable port")
}

func (m *Manager) devDisable(unit int, p *portEntry) error {
	err := m.observe("disable_port", m.dev.DisablePort(unit, p.sdkPort))
	return m.devErr(p, p.sdkPort, err, "disable port")
}

func (m *Manager) devSetMTU(unit int, p *portEntry, mtu int32) error {
	err := m.observe("set_mtu", m.dev.SetMTU(unit, p.sdkPort, mtu))
	return m.devErr(p, p.sdkPort, err, "set mtu")
}

func (m *Manager) devSetAutoneg(unit int, p *portEntry, policy model.TriState) error {
	err := m.observe("set_autoneg", m.dev.SetAutonegPolicy(unit, p.sdkPort, policy))
	return m.devErr(p, p.sdkPort, err, "set autoneg policy")
}

func (m *Manager) devSetLoopback(unit int, p *portEntry, mode model.LoopbackState) error {
	err := m.observe("set_loopback", m.dev.SetLoopbackMode(unit, p.sdkPort, mode))
	return m.devErr(p, p.sdkPort, err, "set loopback mode")
}

func (m *Manager) devHotplug(unit int, p *portEntry, params sde.HotplugParams) error {
	err := m.observe("hotplug_port", m.dev.HotplugPort(unit, p.sdkPort, params))
	return m.devErr(p, p.sdkPort, err, "hotplug "+params.Action.String())
}

func (m *Manager) controlSdkPort(p *portEntry) uint32 {
	return m.controlPortBase + p.sdkPort
}
