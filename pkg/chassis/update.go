package chassis

import (
	"github.com/newtron-network/chassis/pkg/model"
	"github.com/newtron-network/chassis/pkg/util"
)

// adminTransition decides which of disable and enable a programmed port
// needs to go from old to want. A port that stays enabled is bounced when
// other attributes changed so the new settings take effect.
func adminTransition(old, want model.AdminState, changed bool) (disable, enable bool) {
	switch want {
	case model.AdminStateDisabled:
		disable = old != model.AdminStateDisabled
	case model.AdminStateEnabled:
		disable = changed && old != model.AdminStateDisabled
		enable = disable || old == model.AdminStateDisabled
	}
	return disable, enable
}

// markUnknown flags a port whose device state can no longer be trusted. The
// next push or runtime attribute reprograms it.
func markUnknown(p *portEntry) {
	p.config.AdminState = model.AdminStateUnknown
}

// updatePort reconciles a programmed port towards want. Validation failures
// leave the committed config untouched; device failures mark the port
// unknown. Caller holds m.mu.
func (m *Manager) updatePort(n *nodeEntry, p *portEntry, want runtimeAttrs, batch *eventBatch) error {
	if want.mtu > m.maxMTU {
		p.desired = runtimeFromConfig(&p.config)
		return util.NewPortError(util.ErrInvalidParam, p.node, p.id,
			"mtu %d exceeds maximum %d", want.mtu, m.maxMTU)
	}
	p.desired = want
	c := &p.config
	log := util.WithPort(p.node, p.id)

	if !m.dev.IsValidPort(n.unit, p.sdkPort) {
		markUnknown(p)
		c.Speed = 0
		c.FecMode = model.FecModeUnknown
		return util.NewPortError(util.ErrInternal, p.node, p.id, "port is not valid on the device (sdk port %d)", p.sdkPort)
	}

	if want.speed != c.Speed {
		return m.changeSpeed(n, p, want, batch)
	}
	if want.fec != c.FecMode {
		return util.NewPortError(util.ErrUnimplemented, p.node, p.id,
			"fec mode changed from %s to %s; delete the port and add it again", c.FecMode, want.fec)
	}
	switch want.admin {
	case model.AdminStateUnknown:
		return util.NewPortError(util.ErrInvalidParam, p.node, p.id, "invalid admin state")
	case model.AdminStateDiag:
		return util.NewPortError(util.ErrUnimplemented, p.node, p.id, "unsupported 'diag' admin state")
	}

	changed := false
	if mtu := want.effectiveMTU(); mtu != c.MTU {
		log.Debugf("MTU changed %d -> %d", c.MTU, mtu)
		if err := m.devSetMTU(n.unit, p, mtu); err != nil {
			markUnknown(p)
			return err
		}
		c.MTU = mtu
		changed = true
	}
	if want.autoneg != model.TriStateUnknown && want.autoneg != c.Autoneg {
		log.Debugf("Autoneg changed %s -> %s", c.Autoneg, want.autoneg)
		if err := m.devSetAutoneg(n.unit, p, want.autoneg); err != nil {
			markUnknown(p)
			return err
		}
		c.Autoneg = want.autoneg
		changed = true
	}
	if want.loopback != model.LoopbackStateUnknown && want.loopback != c.Loopback {
		log.Debugf("Loopback changed %s -> %s", c.Loopback, want.loopback)
		if err := m.devSetLoopback(n.unit, p, want.loopback); err != nil {
			markUnknown(p)
			return err
		}
		c.Loopback = want.loopback
		changed = true
	}

	old := c.AdminState
	disable, enable := adminTransition(old, want.admin, changed)
	if disable {
		log.Info("Disabling port")
		if err := m.devDisable(n.unit, p); err != nil {
			markUnknown(p)
			return err
		}
		c.AdminState = model.AdminStateDisabled
	}
	if enable {
		log.Info("Enabling port")
		if err := m.devEnable(n.unit, p); err != nil {
			markUnknown(p)
			return err
		}
		c.AdminState = model.AdminStateEnabled
	}
	if c.AdminState != old {
		batch.add(PortAdminStateChanged, p)
	}
	return nil
}

// changeSpeed recreates the port at a new speed. If the new port cannot be
// added the old configuration is programmed again and ErrInvalidParam is
// returned.
func (m *Manager) changeSpeed(n *nodeEntry, p *portEntry, want runtimeAttrs, batch *eventBatch) error {
	log := util.WithPort(p.node, p.id)
	old := runtimeFromConfig(&p.config)
	log.Infof("Speed changed %d -> %d, recreating port", old.speed, want.speed)

	if err := m.devDisable(n.unit, p); err != nil {
		markUnknown(p)
		return err
	}
	if err := m.devDeletePort(n.unit, p, p.sdkPort); err != nil {
		markUnknown(p)
		return err
	}
	if p.controlAdded {
		if err := m.devDeletePort(n.unit, p, m.controlSdkPort(p)); err != nil {
			log.Warnf("Control port delete failed: %v", err)
		}
		p.controlAdded = false
	}

	err := m.addPort(n, p, want, batch)
	if err == nil {
		return nil
	}
	log.Warnf("Could not add port at new speed, restoring speed %d: %v", old.speed, err)
	if m.dev.IsValidPort(n.unit, p.sdkPort) {
		if derr := m.devDeletePort(n.unit, p, p.sdkPort); derr != nil {
			log.Warnf("Ignoring partial port delete failure: %v", derr)
		}
	}
	if rerr := m.addPort(n, p, old, batch); rerr != nil {
		log.Errorf("Restoring old port config failed: %v", rerr)
		markUnknown(p)
	}
	return util.NewPortError(util.ErrInvalidParam, p.node, p.id,
		"could not add port with new speed %d: %v", want.speed, err)
}
