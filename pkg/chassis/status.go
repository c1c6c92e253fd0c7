package chassis

import (
	"context"

	"github.com/newtron-network/chassis/pkg/sde"
	"github.com/newtron-network/chassis/pkg/util"
)

// HandlePortStatusEvent records an operational state change reported by the
// device and notifies the event writer. Events for ports that are not
// configured are dropped.
func (m *Manager) HandlePortStatusEvent(ev sde.PortStatusEvent) {
	batch := m.newBatch()
	defer m.publish(batch)

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return
	}
	p, ok := m.repo.portBySdk(ev.Unit, ev.SdkPort)
	if !ok {
		util.WithField("unit", ev.Unit).Debugf("Ignoring state event for unknown sdk port %d", ev.SdkPort)
		return
	}
	when := ev.Time
	if when.IsZero() {
		when = m.now()
	}
	p.operState = ev.State
	p.lastChanged = when
	util.WithPort(p.node, p.id).Infof("Oper state %s", ev.State)
	batch.add(PortOperStateChanged, p)
}

// Run handles port status events until ctx is done or events is closed.
func (m *Manager) Run(ctx context.Context, events <-chan sde.PortStatusEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			m.HandlePortStatusEvent(ev)
		}
	}
}
