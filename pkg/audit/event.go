// Package audit records northbound chassis operations in a JSON-lines log.
package audit

import (
	"fmt"
	"time"

	"github.com/newtron-network/chassis/pkg/util"
)

// Operation names logged by the daemon and the CLI.
const (
	OpPush    = "push"
	OpVerify  = "verify"
	OpSet     = "set"
	OpReplay  = "replay"
	OpHotplug = "hotplug"
	OpReset   = "reset"
)

// Event is one audited operation.
type Event struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	User      string        `json:"user"`
	Chassis   string        `json:"chassis,omitempty"`
	Operation string        `json:"operation"`
	Node      uint64        `json:"node,omitempty"`
	Port      uint32        `json:"port,omitempty"`
	Attribute string        `json:"attribute,omitempty"`
	Value     string        `json:"value,omitempty"`
	Source    string        `json:"source,omitempty"` // config file for push and verify
	Success   bool          `json:"success"`
	Kind      util.Kind     `json:"kind,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Filter defines criteria for querying audit events
type Filter struct {
	User        string
	Operation   string
	Node        uint64
	Port        uint32
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent creates a new audit event
func NewEvent(user, chassis, operation string) *Event {
	return &Event{
		ID:        generateID(),
		Timestamp: time.Now(),
		User:      user,
		Chassis:   chassis,
		Operation: operation,
	}
}

// WithPort sets the target port.
func (e *Event) WithPort(node uint64, port uint32) *Event {
	e.Node = node
	e.Port = port
	return e
}

// WithNode sets the target node.
func (e *Event) WithNode(node uint64) *Event {
	e.Node = node
	return e
}

// WithAttribute records the attribute kind and the raw value that was set.
func (e *Event) WithAttribute(kind, value string) *Event {
	e.Attribute = kind
	e.Value = value
	return e
}

// WithSource records the config document an operation read.
func (e *Event) WithSource(path string) *Event {
	e.Source = path
	return e
}

// WithResult marks the event successful when err is nil and failed otherwise.
// The error kind is kept so failures can be grouped.
func (e *Event) WithResult(err error) *Event {
	e.Kind = util.KindOf(err)
	if err == nil {
		e.Success = true
		e.Error = ""
		return e
	}
	e.Success = false
	e.Error = err.Error()
	return e
}

// WithDuration sets the operation duration
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

func generateID() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
