package chassis

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/newtron-network/chassis/pkg/model"
	"github.com/newtron-network/chassis/pkg/util"
)

// PushConfig reconciles the device against cfg and commits it.
//
// The document is verified first; a verification failure changes nothing.
// New ports are recorded and only programmed when the document carries their
// port type. Ports whose last programming failed are deleted and programmed
// again. Programmed ports are updated in place. Ports missing from cfg are
// deleted from the device. Per-port failures do not stop the push: the
// affected port is left in the unknown state, the new configuration is
// committed and the failures are returned joined.
func (m *Manager) PushConfig(ctx context.Context, cfg *model.ChassisConfig) (err error) {
	var attrs []attribute.KeyValue
	if cfg != nil {
		attrs = pushAttrs(cfg)
	}
	_, finish := m.startOp(ctx, "push_config", attrs...)
	defer func() { finish(err) }()

	batch := m.newBatch()
	defer m.publish(batch)

	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := m.verifyLocked(cfg)
	if err != nil {
		return err
	}

	log := util.WithOperation("push")
	old := m.repo
	var errs []error

	for i := range cfg.SingletonPorts {
		sp := &cfg.SingletonPorts[i]
		n, p, _ := next.port(sp.Node, sp.ID)
		p.desired = runtimeFromDoc(sp)

		_, prev, existed := old.port(sp.Node, sp.ID)
		if !existed {
			log.Debugf("New port %d in node %d (%s)", sp.ID, sp.Node, sp.Key())
			if sp.Config.Type == model.PortTypeNone {
				continue
			}
			if err := m.programFromDoc(n, p, sp, batch); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		carryOver(p, prev)
		if prev.config.AdminState == model.AdminStateUnknown {
			if err := m.retryFromPush(n, p, sp, batch); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		if prev.config.Speed == 0 {
			errs = append(errs, util.NewPortError(util.ErrInternal, sp.Node, sp.ID,
				"programmed port has no speed recorded"))
			continue
		}
		if conflicts := oneTimeConflicts(&p.config, &sp.Config); len(conflicts) > 0 {
			errs = append(errs, util.NewPortError(util.ErrUnimplemented, sp.Node, sp.ID,
				"%s cannot be changed on a programmed port; delete and add the port again",
				strings.Join(conflicts, ",")))
			continue
		}
		if err := m.updatePort(n, p, p.desired, batch); err != nil {
			errs = append(errs, err)
		}
	}

	errs = append(errs, m.deleteDropped(old, next, batch)...)

	m.repo = next
	m.initialized = true
	m.recordPortCounts()

	if err := errors.Join(errs...); err != nil {
		log.Errorf("Push completed with %d port failure(s)", len(errs))
		return err
	}
	log.Infof("Pushed %d node(s), %d port(s)", len(cfg.Nodes), len(cfg.SingletonPorts))
	return nil
}

// carryOver moves the state of a committed port into its new entry. Pending
// attribute progress of an unprogrammed port does not survive a push.
func carryOver(p, prev *portEntry) {
	p.config = prev.config
	p.progress = prev.progress
	p.controlAdded = prev.controlAdded
	p.operState = prev.operState
	p.lastChanged = prev.lastChanged
	if !p.progress.programmed {
		p.progress.resetConfig()
	}
}

// programFromDoc programs a port whose document carries its port type.
func (m *Manager) programFromDoc(n *nodeEntry, p *portEntry, sp *model.SingletonPort, batch *eventBatch) error {
	if err := m.loadDoc(p, sp); err != nil {
		return err
	}
	return m.tryProgram(n, p, batch)
}

// retryFromPush programs again a port whose last programming failed or that
// never got programmed. Without a port type in either the document or the
// committed config the port keeps waiting for attributes.
func (m *Manager) retryFromPush(n *nodeEntry, p *portEntry, sp *model.SingletonPort, batch *eventBatch) error {
	switch {
	case sp.Config.Type != model.PortTypeNone:
		if err := m.loadDoc(p, sp); err != nil {
			return err
		}
	case p.config.Type != model.PortTypeNone:
		p.progress.attrs = progressFromConfig(&p.config)
	default:
		return nil
	}
	return m.reprogram(n, p, batch)
}

// deleteDropped removes ports absent from next from the device. Failures are
// collected.
func (m *Manager) deleteDropped(old, next *repository, batch *eventBatch) []error {
	var errs []error
	for _, nodeID := range old.sortedNodes() {
		on := old.nodes[nodeID]
		for _, portID := range on.sortedPorts() {
			if _, _, ok := next.port(nodeID, portID); ok {
				continue
			}
			p := on.ports[portID]
			if err := m.removePort(on, p, batch); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errs
}

// removePort deletes a port and its control port from the device. Ports
// that never reached the device are just forgotten.
func (m *Manager) removePort(n *nodeEntry, p *portEntry, batch *eventBatch) error {
	log := util.WithPort(p.node, p.id)
	var errs []error
	onDevice := p.progress.programmed &&
		(p.config.AdminState != model.AdminStateUnknown || m.dev.IsValidPort(n.unit, p.sdkPort))
	if onDevice {
		log.Infof("Deleting port (sdk port %d)", p.sdkPort)
		if err := m.devDeletePort(n.unit, p, p.sdkPort); err != nil {
			errs = append(errs, err)
		}
	}
	if p.controlAdded {
		ctl := m.controlSdkPort(p)
		log.Infof("Deleting control port %s (sdk port %d)", p.config.ControlPort, ctl)
		if err := m.devDeletePort(n.unit, p, ctl); err != nil {
			errs = append(errs, err)
		}
	}
	if onDevice || p.controlAdded {
		batch.add(PortDeleted, p)
	}
	return errors.Join(errs...)
}

func pushAttrs(cfg *model.ChassisConfig) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int("chassis.nodes", len(cfg.Nodes)),
		attribute.Int("chassis.ports", len(cfg.SingletonPorts)),
	}
}
