package chassis

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/newtron-network/chassis/pkg/model"
	"github.com/newtron-network/chassis/pkg/util"
)

// applyHotplug records a hotplug attribute and runs an attach or detach once
// the action is known and, for attach, every parameter has arrived.
func (m *Manager) applyHotplug(n *nodeEntry, p *portEntry, upd model.AttrUpdate, batch *eventBatch) error {
	a, err := parseHotplug(&p.config.Hotplug, upd)
	if err != nil {
		return util.NewPortError(util.ErrInvalidParam, p.node, p.id, "%s: %v", upd.Kind, err)
	}
	pr := &p.progress
	pr.hotplug = pr.hotplug.with(a)

	if !pr.hotplug.has(hpAction) {
		return nil
	}
	switch p.config.Hotplug.Action {
	case model.HotplugAdd:
		if !pr.hotplug.containsAll(hotplugAttachSet) {
			util.WithPort(p.node, p.id).Debugf("Hotplug attach waiting for %s",
				hotplugAttachSet.intersect(^pr.hotplug).names(hotplugAttrNames))
			return nil
		}
		return m.attach(n, p, batch)
	case model.HotplugDel:
		return m.detach(n, p, batch)
	}
	return nil
}

// hotplugDone closes one attach or detach attempt.
func (p *portEntry) hotplugDone() {
	p.progress.hotplug = p.progress.hotplug.without(hpAction)
	p.config.Hotplug.Action = model.NoHotplug
}

func (p *portEntry) resource() string {
	return fmt.Sprintf("node %d port %d", p.node, p.id)
}

func (m *Manager) attach(n *nodeEntry, p *portEntry, batch *eventBatch) error {
	if !p.progress.programmed || p.config.AdminState == model.AdminStateUnknown {
		p.hotplugDone()
		return util.NewPreconditionError("hotplug attach", p.resource(), "port must be programmed", "")
	}
	if p.progress.attached {
		p.hotplugDone()
		return util.NewPreconditionError("hotplug attach", p.resource(), "port must not be attached", "")
	}

	h := &p.config.Hotplug
	util.WithPort(p.node, p.id).Infof("Attaching to VM at %s (mac %s)", h.sdeParams().MonitorAddr(), h.VMMAC)
	err := m.devHotplug(n.unit, p, h.sdeParams())
	p.hotplugDone()
	if err != nil {
		return err
	}
	p.progress.attached = true
	batch.add(PortHotplugged, p)
	return nil
}

func (m *Manager) detach(n *nodeEntry, p *portEntry, batch *eventBatch) error {
	if !p.progress.attached {
		p.hotplugDone()
		return util.NewPreconditionError("hotplug detach", p.resource(), "port must be attached", "")
	}

	params := p.config.Hotplug.sdeParams()
	params.Action = model.HotplugDel
	util.WithPort(p.node, p.id).Infof("Detaching from VM at %s", params.MonitorAddr())
	err := m.devHotplug(n.unit, p, params)
	p.hotplugDone()
	if err != nil {
		return err
	}
	p.progress.attached = false
	p.progress.resetHotplug()
	batch.add(PortUnplugged, p)
	return nil
}

func parseHotplug(h *HotplugConfig, upd model.AttrUpdate) (attr, error) {
	v := strings.TrimSpace(upd.Value)
	if v == "" {
		return 0, fmt.Errorf("empty value")
	}
	switch upd.Kind {
	case model.AttrHotplugSocketIP:
		if net.ParseIP(v) == nil {
			return 0, fmt.Errorf("invalid IP address %q", v)
		}
		h.SocketIP = v
		return hpSocketIP, nil
	case model.AttrHotplugSocketPort:
		port, err := strconv.ParseUint(v, 10, 16)
		if err != nil || port == 0 {
			return 0, fmt.Errorf("invalid port %q", v)
		}
		h.SocketPort = uint32(port)
		return hpSocketPort, nil
	case model.AttrHotplugVMMAC:
		mac, err := util.NormalizeMAC(v)
		if err != nil {
			return 0, err
		}
		h.VMMAC = mac
		return hpVMMAC, nil
	case model.AttrHotplugNetdevID:
		h.NetdevID = v
		return hpNetdevID, nil
	case model.AttrHotplugChardevID:
		h.ChardevID = v
		return hpChardevID, nil
	case model.AttrHotplugDeviceID:
		h.DeviceID = v
		return hpDeviceID, nil
	case model.AttrNativeSocketPath:
		h.NativeSocketPath = v
		return hpNativeSocketPath, nil
	case model.AttrHotplug:
		a, err := model.ParseHotplugAction(v)
		if err != nil {
			return 0, err
		}
		if a == model.NoHotplug {
			return 0, fmt.Errorf("hotplug action must be add or del")
		}
		h.Action = a
		return hpAction, nil
	}
	return 0, fmt.Errorf("not a hotplug attribute")
}
