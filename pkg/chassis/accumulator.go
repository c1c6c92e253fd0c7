package chassis

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/newtron-network/chassis/pkg/model"
	"github.com/newtron-network/chassis/pkg/util"
)

var pciBDFPattern = regexp.MustCompile(`^([0-9a-fA-F]{4}:)?[0-9a-fA-F]{2}:[0-9a-fA-F]{2}\.[0-7]$`)

// ApplyAttribute sets a single attribute of a configured port. Before the
// port is programmed the attribute is accumulated until the mandatory set of
// its port type is complete; afterwards runtime attributes are reconciled
// immediately and one-time attributes are rejected. Hotplug attributes feed
// the attach/detach state machine.
func (m *Manager) ApplyAttribute(ctx context.Context, nodeID uint64, portID uint32, upd model.AttrUpdate) (err error) {
	attrs := append(portAttrs(nodeID, portID), attribute.String("chassis.attr", string(upd.Kind)))
	_, finish := m.startOp(ctx, "apply_attribute", attrs...)
	defer func() { finish(err) }()

	batch := m.newBatch()
	defer m.publish(batch)

	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.recordPortCounts()

	n, p, err := m.lookup(nodeID, portID)
	if err != nil {
		return err
	}
	if !upd.Kind.Valid() {
		return util.NewPortError(util.ErrInvalidParam, nodeID, portID, "unknown attribute %q", upd.Kind)
	}

	util.WithPort(nodeID, portID).Debugf("Apply %s", upd)
	if upd.Kind.IsHotplug() {
		return m.applyHotplug(n, p, upd, batch)
	}
	if isRuntimeAttr(upd.Kind) {
		return m.applyRuntime(n, p, upd, batch)
	}
	return m.applyOneTime(n, p, upd, batch)
}

func isRuntimeAttr(k model.AttrKind) bool {
	switch k {
	case model.AttrAdminState, model.AttrSpeed, model.AttrMTU,
		model.AttrAutoneg, model.AttrFecMode, model.AttrLoopback:
		return true
	}
	return false
}

// applyRuntime handles attributes that may change on a programmed port.
func (m *Manager) applyRuntime(n *nodeEntry, p *portEntry, upd model.AttrUpdate, batch *eventBatch) error {
	want := p.desired
	if err := parseRuntime(&want, upd); err != nil {
		return util.NewPortError(util.ErrInvalidParam, p.node, p.id, "%s: %v", upd.Kind, err)
	}

	if upd.Kind == model.AttrMTU && want.mtu > m.maxMTU {
		m.discardProgress(p)
		return util.NewPortError(util.ErrInvalidParam, p.node, p.id,
			"mtu %d exceeds maximum %d; pending attributes discarded", want.mtu, m.maxMTU)
	}

	if p.progress.programmed {
		if p.config.AdminState == model.AdminStateUnknown {
			p.desired = want
			return m.reprogram(n, p, batch)
		}
		return m.updatePort(n, p, want, batch)
	}

	p.desired = want
	if upd.Kind == model.AttrMTU {
		p.config.MTU = want.mtu
		p.progress.attrs = p.progress.attrs.with(attrMTU)
	}
	return m.tryProgram(n, p, batch)
}

// applyOneTime handles attributes that can only be set before programming.
func (m *Manager) applyOneTime(n *nodeEntry, p *portEntry, upd model.AttrUpdate, batch *eventBatch) error {
	if p.progress.programmed {
		return util.NewPortError(util.ErrUnimplemented, p.node, p.id,
			"%s cannot be changed on a programmed port; delete and add the port again", upd.Kind)
	}
	a, err := parseOneTime(&p.config, upd)
	if err != nil {
		return util.NewPortError(util.ErrInvalidParam, p.node, p.id, "%s: %v", upd.Kind, err)
	}
	if a != 0 {
		p.progress.attrs = p.progress.attrs.with(a)
	}
	return m.tryProgram(n, p, batch)
}

// discardProgress drops a corrupt partial configuration. The programmed
// flag survives; the committed one-time attributes of a programmed port are
// kept because they describe the device.
func (m *Manager) discardProgress(p *portEntry) {
	p.progress.resetConfig()
	if !p.progress.programmed {
		p.config.clearOneTime()
	}
}

// typeSets returns the mandatory and forbidden attribute sets of a port type.
func typeSets(t model.PortType) (mandatory, forbidden attrSet, ok bool) {
	switch t {
	case model.PortTypeVhost:
		return vhostMandatory, vhostForbidden, true
	case model.PortTypeLink:
		return linkMandatory, linkForbidden, true
	case model.PortTypeTap:
		return tapMandatory, tapForbidden, true
	}
	return 0, 0, false
}

// tryProgram programs the port once its mandatory attribute set is complete.
// Caller holds m.mu.
func (m *Manager) tryProgram(n *nodeEntry, p *portEntry, batch *eventBatch) error {
	pr := &p.progress
	if pr.programmed || !pr.attrs.has(attrPortType) {
		return nil
	}
	mandatory, forbidden, ok := typeSets(p.config.Type)
	if !ok {
		m.discardProgress(p)
		return util.NewPortError(util.ErrInvalidParam, p.node, p.id, "unsupported port type %s", p.config.Type)
	}
	if !pr.attrs.containsAll(mandatory) {
		util.WithPort(p.node, p.id).Debugf("Waiting for %s attributes, have %s",
			p.config.Type, pr.attrs)
		return nil
	}
	if bad := pr.attrs.intersect(forbidden); !bad.isEmpty() {
		m.discardProgress(p)
		return util.NewPortError(util.ErrInvalidParam, p.node, p.id,
			"attributes %s are not allowed on a %s port", bad, p.config.Type)
	}

	c := &p.config
	if !pr.attrs.has(attrPipelineName) {
		c.PipelineName = DefaultPipelineName
	}
	if !pr.attrs.has(attrMempoolName) {
		c.MempoolName = DefaultMempoolName
	}
	if !pr.attrs.has(attrMTU) {
		c.MTU = p.desired.effectiveMTU()
	}
	if !pr.attrs.has(attrPacketDir) {
		c.PacketDir = DefaultPacketDir
	}
	pr.attrs = pr.attrs.union(setOf(attrPipelineName, attrMempoolName, attrMTU, attrPacketDir))

	if err := m.addPort(n, p, p.desired, batch); err != nil {
		m.programmingFailed(p)
		return err
	}
	pr.programmed = true
	return nil
}

// programmingFailed puts a port back to the never-programmed sentinel.
func (m *Manager) programmingFailed(p *portEntry) {
	p.config.AdminState = model.AdminStateUnknown
	p.progress.programmed = false
	p.progress.resetConfig()
	p.config.clearOneTime()
}

// addPort creates the port on the device with the committed one-time
// attributes and the given runtime attributes, then applies the runtime
// attributes in order and finally enables the port when asked to. The
// committed runtime attributes are only updated on success. Caller holds m.mu.
func (m *Manager) addPort(n *nodeEntry, p *portEntry, want runtimeAttrs, batch *eventBatch) error {
	switch want.admin {
	case model.AdminStateUnknown:
		return util.NewPortError(util.ErrInvalidParam, p.node, p.id, "invalid admin state")
	case model.AdminStateDiag:
		return util.NewPortError(util.ErrUnimplemented, p.node, p.id, "unsupported 'diag' admin state")
	}

	c := &p.config
	log := util.WithPort(p.node, p.id)
	log.Infof("Adding %s port (sdk port %d, speed %d)", c.Type, p.sdkPort, want.speed)
	if err := m.devAddPort(n.unit, p, p.sdkPort, want.speed, want.fec, c.sdeParams()); err != nil {
		return err
	}
	if c.ControlPort != "" && !p.controlAdded {
		ctl := m.controlSdkPort(p)
		log.Infof("Adding control port %s (sdk port %d)", c.ControlPort, ctl)
		if err := m.devAddPort(n.unit, p, ctl, want.speed, want.fec, c.controlParams()); err != nil {
			return err
		}
		p.controlAdded = true
	}

	mtu := want.effectiveMTU()
	if err := m.devSetMTU(n.unit, p, mtu); err != nil {
		return err
	}
	if want.autoneg != model.TriStateUnknown {
		if err := m.devSetAutoneg(n.unit, p, want.autoneg); err != nil {
			return err
		}
	}
	if want.loopback != model.LoopbackStateUnknown {
		if err := m.devSetLoopback(n.unit, p, want.loopback); err != nil {
			return err
		}
	}

	c.AdminState = model.AdminStateDisabled
	c.Speed = want.speed
	c.FecMode = want.fec
	c.MTU = mtu
	c.Autoneg = want.autoneg
	c.Loopback = want.loopback
	batch.add(PortAdded, p)

	if want.admin == model.AdminStateEnabled {
		log.Info("Enabling port")
		if err := m.devEnable(n.unit, p); err != nil {
			return err
		}
		c.AdminState = model.AdminStateEnabled
		batch.add(PortAdminStateChanged, p)
	}
	return nil
}

// reprogram deletes whatever the device still holds for the port and
// programs it again from the committed one-time attributes. Delete errors are
// ignored. Caller holds m.mu.
func (m *Manager) reprogram(n *nodeEntry, p *portEntry, batch *eventBatch) error {
	m.forceDelete(n, p)
	p.progress.programmed = false
	p.progress.attached = false
	p.progress.resetHotplug()
	if p.progress.attrs.isEmpty() {
		p.progress.attrs = progressFromConfig(&p.config)
	}
	return m.tryProgram(n, p, batch)
}

// forceDelete removes stale device state of a port, ignoring failures.
func (m *Manager) forceDelete(n *nodeEntry, p *portEntry) {
	log := util.WithPort(p.node, p.id)
	if m.dev.IsValidPort(n.unit, p.sdkPort) {
		if err := m.devDeletePort(n.unit, p, p.sdkPort); err != nil {
			log.Warnf("Ignoring stale port delete failure: %v", err)
		}
	}
	if p.controlAdded {
		if err := m.devDeletePort(n.unit, p, m.controlSdkPort(p)); err != nil {
			log.Warnf("Ignoring stale control port delete failure: %v", err)
		}
		p.controlAdded = false
	}
}

// progressFromConfig rebuilds the accumulated attribute set from committed
// one-time attributes.
func progressFromConfig(c *PortConfig) attrSet {
	var s attrSet
	if c.Type != model.PortTypeNone {
		s = s.with(attrPortType)
	}
	if c.DeviceType != model.DeviceTypeNone {
		s = s.with(attrDeviceType)
	}
	if c.Queues > 0 {
		s = s.with(attrQueueCount)
	}
	if c.SocketPath != "" {
		s = s.with(attrSocketPath)
	}
	if c.HostName != "" {
		s = s.with(attrHostName)
	}
	if c.PipelineName != "" {
		s = s.with(attrPipelineName)
	}
	if c.MempoolName != "" {
		s = s.with(attrMempoolName)
	}
	if c.MTU > 0 {
		s = s.with(attrMTU)
	}
	if c.PCIBDF != "" {
		s = s.with(attrPCIBDF)
	}
	return s.with(attrPacketDir)
}

// loadDoc feeds the one-time attributes of a pushed port into the
// accumulator in one batch.
func (m *Manager) loadDoc(p *portEntry, sp *model.SingletonPort) error {
	p.progress.resetConfig()
	p.config.clearOneTime()

	cp := sp.Config
	if cp.MTU > m.maxMTU {
		return util.NewPortError(util.ErrInvalidParam, p.node, p.id,
			"mtu %d exceeds maximum %d", cp.MTU, m.maxMTU)
	}
	c := &p.config
	c.Type = cp.Type
	c.DeviceType = cp.DeviceType
	c.Queues = cp.Queues
	c.SocketPath = cp.SocketPath
	c.HostName = cp.HostName
	c.PipelineName = cp.PipelineName
	c.MempoolName = cp.MempoolName
	c.ControlPort = cp.ControlPort
	c.PCIBDF = cp.PCIBDF
	c.PacketDir = cp.PacketDir
	c.MTU = cp.MTU
	p.progress.attrs = progressFromConfig(c)
	return nil
}

// oneTimeConflicts lists the one-time attributes a pushed document sets to
// values different from the committed ones.
func oneTimeConflicts(c *PortConfig, cp *model.PortParams) []string {
	var out []string
	diff := func(set, differs bool, kind model.AttrKind) {
		if set && differs {
			out = append(out, string(kind))
		}
	}
	diff(cp.Type != model.PortTypeNone, cp.Type != c.Type, model.AttrPortType)
	diff(cp.DeviceType != model.DeviceTypeNone, cp.DeviceType != c.DeviceType, model.AttrDeviceType)
	diff(cp.Queues > 0, cp.Queues != c.Queues, model.AttrQueueCount)
	diff(cp.SocketPath != "", cp.SocketPath != c.SocketPath, model.AttrSocketPath)
	diff(cp.HostName != "", cp.HostName != c.HostName, model.AttrHostName)
	diff(cp.PipelineName != "", cp.PipelineName != c.PipelineName, model.AttrPipelineName)
	diff(cp.MempoolName != "", cp.MempoolName != c.MempoolName, model.AttrMempoolName)
	diff(cp.ControlPort != "", cp.ControlPort != c.ControlPort, model.AttrControlPort)
	diff(cp.PCIBDF != "", cp.PCIBDF != c.PCIBDF, model.AttrPCIBDF)
	return out
}

func (r runtimeAttrs) effectiveMTU() int32 {
	if r.mtu <= 0 {
		return DefaultMTU
	}
	return r.mtu
}

func parseRuntime(want *runtimeAttrs, upd model.AttrUpdate) error {
	v := strings.TrimSpace(upd.Value)
	switch upd.Kind {
	case model.AttrAdminState:
		s, err := model.ParseAdminState(v)
		if err != nil {
			return err
		}
		if s == model.AdminStateUnknown {
			return fmt.Errorf("admin state must be set")
		}
		want.admin = s
	case model.AttrSpeed:
		speed, err := parseSpeed(v)
		if err != nil {
			return err
		}
		want.speed = speed
	case model.AttrMTU:
		mtu, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid mtu %q", v)
		}
		if mtu <= 0 {
			return fmt.Errorf("mtu must be positive")
		}
		want.mtu = int32(mtu)
	case model.AttrAutoneg:
		s, err := model.ParseTriState(v)
		if err != nil {
			return err
		}
		if s == model.TriStateUnknown {
			return fmt.Errorf("autoneg must be enabled or disabled")
		}
		want.autoneg = s
	case model.AttrFecMode:
		f, err := model.ParseFecMode(v)
		if err != nil {
			return err
		}
		if f == model.FecModeUnknown {
			return fmt.Errorf("fec mode must be set")
		}
		want.fec = f
	case model.AttrLoopback:
		l, err := model.ParseLoopbackState(v)
		if err != nil {
			return err
		}
		if l == model.LoopbackStateUnknown {
			return fmt.Errorf("loopback mode must be set")
		}
		want.loopback = l
	default:
		return fmt.Errorf("not a runtime attribute")
	}
	return nil
}

// parseOneTime stores a one-time attribute in c and returns its progress
// bit. control-port has no bit.
func parseOneTime(c *PortConfig, upd model.AttrUpdate) (attr, error) {
	v := strings.TrimSpace(upd.Value)
	if v == "" {
		return 0, fmt.Errorf("empty value")
	}
	switch upd.Kind {
	case model.AttrPortType:
		t, err := model.ParsePortType(v)
		if err != nil {
			return 0, err
		}
		if t == model.PortTypeNone {
			return 0, fmt.Errorf("port type must be set")
		}
		c.Type = t
		return attrPortType, nil
	case model.AttrDeviceType:
		t, err := model.ParseDeviceType(v)
		if err != nil {
			return 0, err
		}
		if t == model.DeviceTypeNone {
			return 0, fmt.Errorf("device type must be set")
		}
		c.DeviceType = t
		return attrDeviceType, nil
	case model.AttrQueueCount:
		q, err := strconv.ParseInt(v, 10, 32)
		if err != nil || q <= 0 {
			return 0, fmt.Errorf("invalid queue count %q", v)
		}
		c.Queues = int32(q)
		return attrQueueCount, nil
	case model.AttrSocketPath:
		c.SocketPath = v
		return attrSocketPath, nil
	case model.AttrHostName:
		c.HostName = v
		return attrHostName, nil
	case model.AttrPipelineName:
		c.PipelineName = v
		return attrPipelineName, nil
	case model.AttrMempoolName:
		c.MempoolName = v
		return attrMempoolName, nil
	case model.AttrControlPort:
		c.ControlPort = v
		return 0, nil
	case model.AttrPCIBDF:
		if !pciBDFPattern.MatchString(v) {
			return 0, fmt.Errorf("invalid PCI address %q", v)
		}
		c.PCIBDF = v
		return attrPCIBDF, nil
	case model.AttrPacketDir:
		d, err := model.ParsePacketDirection(v)
		if err != nil {
			return 0, err
		}
		c.PacketDir = d
		return attrPacketDir, nil
	}
	return 0, fmt.Errorf("not a one-time attribute")
}

// parseSpeed accepts a rate in bits per second with an optional G or M
// suffix, e.g. "25G" or "100000000000".
func parseSpeed(s string) (uint64, error) {
	mult := uint64(1)
	num := strings.ToLower(s)
	switch {
	case strings.HasSuffix(num, "g"):
		mult, num = 1_000_000_000, strings.TrimSuffix(num, "g")
	case strings.HasSuffix(num, "m"):
		mult, num = 1_000_000, strings.TrimSuffix(num, "m")
	}
	v, err := strconv.ParseUint(num, 10, 64)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid speed %q", s)
	}
	return v * mult, nil
}
