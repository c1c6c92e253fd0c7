package chassis

import (
	"fmt"
	"time"

	"github.com/newtron-network/chassis/pkg/model"
	"github.com/newtron-network/chassis/pkg/util"
)

// EventKind identifies a port state change.
type EventKind string

const (
	PortOperStateChanged  EventKind = "oper-state-changed"
	PortAdminStateChanged EventKind = "admin-state-changed"
	PortAdded             EventKind = "port-added"
	PortDeleted           EventKind = "port-deleted"
	PortHotplugged        EventKind = "port-hotplugged"
	PortUnplugged         EventKind = "port-unplugged"
)

// Event is a notification delivered to the registered EventWriter.
type Event struct {
	Kind       EventKind        `json:"kind"`
	Node       uint64           `json:"node"`
	Port       uint32           `json:"port"`
	OperState  model.PortState  `json:"oper_state,omitempty"`
	AdminState model.AdminState `json:"admin_state,omitempty"`
	Time       time.Time        `json:"time"`
}

func (e Event) String() string {
	switch e.Kind {
	case PortOperStateChanged:
		return fmt.Sprintf("%s node %d port %d: %s", e.Kind, e.Node, e.Port, e.OperState)
	case PortAdminStateChanged:
		return fmt.Sprintf("%s node %d port %d: %s", e.Kind, e.Node, e.Port, e.AdminState)
	}
	return fmt.Sprintf("%s node %d port %d", e.Kind, e.Node, e.Port)
}

// EventWriter receives port events. WriteEvent is called without the
// manager's state lock held and may call back into read queries.
type EventWriter interface {
	WriteEvent(Event) error
}

// EventWriterFunc adapts a function to EventWriter.
type EventWriterFunc func(Event) error

func (f EventWriterFunc) WriteEvent(e Event) error { return f(e) }

// eventBatch collects events during an operation so they can be written
// after the state lock is released.
type eventBatch struct {
	now    func() time.Time
	events []Event
}

func (b *eventBatch) add(kind EventKind, p *portEntry) {
	b.events = append(b.events, Event{
		Kind:       kind,
		Node:       p.node,
		Port:       p.id,
		OperState:  p.operState,
		AdminState: p.config.AdminState,
		Time:       b.now(),
	})
}

// RegisterEventWriter installs w as the event sink, replacing any previous one.
func (m *Manager) RegisterEventWriter(w EventWriter) {
	m.eventMu.Lock()
	defer m.eventMu.Unlock()
	m.writer = w
}

// UnregisterEventWriter removes the event sink. It is a no-op when none is
// registered.
func (m *Manager) UnregisterEventWriter() {
	m.eventMu.Lock()
	defer m.eventMu.Unlock()
	m.writer = nil
}

// publish hands the batch to the registered writer. It must be called
// without m.mu held.
func (m *Manager) publish(b *eventBatch) {
	if len(b.events) == 0 {
		return
	}
	m.eventMu.RLock()
	w := m.writer
	m.eventMu.RUnlock()
	if w == nil {
		return
	}
	for _, ev := range b.events {
		if err := w.WriteEvent(ev); err != nil {
			util.WithPort(ev.Node, ev.Port).Warnf("event writer: %s: %v", ev.Kind, err)
		}
	}
}

func (m *Manager) newBatch() *eventBatch {
	return &eventBatch{now: m.now}
}
