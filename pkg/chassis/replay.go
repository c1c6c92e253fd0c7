package chassis

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/newtron-network/chassis/pkg/model"
	"github.com/newtron-network/chassis/pkg/util"
)

// ReplayNode programs every committed port of a node again after the device
// lost its state. Each port is attempted exactly once; failures are joined
// and leave the failed port in the unknown state. Ports that were never
// programmed successfully are skipped with a warning.
func (m *Manager) ReplayNode(ctx context.Context, nodeID uint64) (err error) {
	_, finish := m.startOp(ctx, "replay_node", attribute.Int64("chassis.node_id", int64(nodeID)))
	defer func() { finish(err) }()

	batch := m.newBatch()
	defer m.publish(batch)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkInitialized(); err != nil {
		return err
	}
	n, ok := m.repo.nodes[nodeID]
	if !ok {
		return util.NewPortError(util.ErrNotConfigured, nodeID, 0, "node %d is not configured or not known", nodeID)
	}

	log := util.WithNode(nodeID)
	var errs []error
	replayed := 0
	for _, portID := range n.sortedPorts() {
		p := n.ports[portID]
		p.operState = model.PortStateUnknown
		p.lastChanged = time.Time{}
		p.progress.attached = false
		p.progress.resetHotplug()
		p.config.Hotplug.Action = model.NoHotplug
		p.controlAdded = false

		if p.config.AdminState == model.AdminStateUnknown {
			log.Warnf("Skipping replay of port %d: admin state unknown", portID)
			if m.metrics != nil {
				m.metrics.IncReplaySkipped()
			}
			continue
		}
		if p.config.Speed == 0 {
			errs = append(errs, util.NewPortError(util.ErrInternal, nodeID, portID,
				"programmed port has no speed recorded"))
			markUnknown(p)
			continue
		}

		want := runtimeFromConfig(&p.config)
		if err := m.addPort(n, p, want, batch); err != nil {
			log.Errorf("Replay of port %d failed: %v", portID, err)
			markUnknown(p)
			errs = append(errs, err)
			continue
		}
		replayed++
	}
	m.recordPortCounts()

	if err := errors.Join(errs...); err != nil {
		return err
	}
	log.Infof("Replayed %d port(s)", replayed)
	return nil
}
