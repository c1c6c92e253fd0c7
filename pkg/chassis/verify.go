package chassis

import (
	"context"
	"fmt"
	"strings"

	"github.com/newtron-network/chassis/pkg/model"
	"github.com/newtron-network/chassis/pkg/util"
)

// VerifyConfig validates a configuration document without changing any
// state. Once a configuration is committed, a document that would move an
// existing port to another sdk port or a node to another unit is rejected
// with a *util.RestartRequiredError.
func (m *Manager) VerifyConfig(ctx context.Context, cfg *model.ChassisConfig) (err error) {
	_, finish := m.startOp(ctx, "verify_config")
	defer func() { finish(err) }()

	m.mu.RLock()
	defer m.mu.RUnlock()
	_, err = m.verifyLocked(cfg)
	return err
}

// verifyLocked validates cfg and returns the identity maps it resolves to,
// with ports carrying no state yet. Caller holds m.mu.
func (m *Manager) verifyLocked(cfg *model.ChassisConfig) (*repository, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: no configuration", util.ErrInvalidParam)
	}
	v := &util.ValidationBuilder{}
	v.Add(len(cfg.TrunkPorts) == 0, "trunk ports are not supported")
	v.Add(len(cfg.PortGroups) == 0, "port groups are not supported")
	v.Add(len(cfg.Nodes) > 0, "the configuration must contain at least one node")

	switch cfg.Chassis.Platform {
	case model.PlatformTofino, model.PlatformTofino2, model.PlatformP4SoftSwitch:
	default:
		v.AddErrorf("unsupported platform %s", cfg.Chassis.Platform)
	}

	next := newRepository()
	for i, node := range cfg.Nodes {
		if node.Slot <= 0 {
			v.AddErrorf("node %d: slot must be positive", node.ID)
		}
		if node.ID == 0 {
			v.AddError("node id must be positive")
			continue
		}
		if _, dup := next.nodes[node.ID]; dup {
			v.AddErrorf("duplicate node id %d", node.ID)
			continue
		}
		next.nodes[node.ID] = &nodeEntry{
			id:        node.ID,
			unit:      i,
			ports:     make(map[uint32]*portEntry),
			sdkToPort: make(map[uint32]uint32),
		}
		next.unitToNode[i] = node.ID
	}

	keys := make(map[model.PortKey]uint32)
	for i := range cfg.SingletonPorts {
		sp := &cfg.SingletonPorts[i]
		key := sp.Key()
		where := fmt.Sprintf("port %d (%s)", sp.ID, key)

		if sp.ID == 0 {
			v.AddErrorf("%s: port id must be positive", where)
		}
		if sp.ID == model.CPUPortID {
			v.AddErrorf("%s: port id is reserved for the CPU port", where)
		}
		if sp.Slot <= 0 {
			v.AddErrorf("%s: slot must be positive", where)
		}
		if sp.Port <= 0 {
			v.AddErrorf("%s: port must be positive", where)
		}
		if sp.Speed == 0 {
			v.AddErrorf("%s: speed must be positive", where)
		}
		if other, dup := keys[key]; dup {
			v.AddErrorf("%s: (slot, port, channel) already used by port %d", where, other)
		} else {
			keys[key] = sp.ID
		}
		if sp.Node == 0 {
			v.AddErrorf("%s: node id must be positive", where)
			continue
		}
		n, ok := next.nodes[sp.Node]
		if !ok {
			v.AddErrorf("%s: unknown node %d", where, sp.Node)
			continue
		}
		if _, dup := n.ports[sp.ID]; dup {
			v.AddErrorf("%s: duplicate port id in node %d", where, sp.Node)
			continue
		}
		if sp.ID == 0 || sp.ID == model.CPUPortID || sp.Slot <= 0 || sp.Port <= 0 {
			continue
		}
		sdkPort, err := m.observeResolve(n.unit, key)
		if err != nil {
			v.AddErrorf("%s: cannot resolve sdk port: %v", where, err)
			continue
		}
		n.ports[sp.ID] = &portEntry{
			node:    sp.Node,
			id:      sp.ID,
			name:    sp.Name,
			key:     key,
			sdkPort: sdkPort,
		}
		n.sdkToPort[sdkPort] = sp.ID
	}
	if err := v.Build(); err != nil {
		return nil, err
	}

	if m.initialized {
		if reasons := restartReasons(m.repo, next); len(reasons) > 0 {
			return nil, &util.RestartRequiredError{Reasons: reasons}
		}
		if busy := attachedDropped(m.repo, next); len(busy) > 0 {
			return nil, util.NewInUseError("port "+strings.Join(busy, ","), "hotplug attachment")
		}
	}
	return next, nil
}

func (m *Manager) observeResolve(unit int, key model.PortKey) (uint32, error) {
	sdkPort, err := m.dev.ResolvePort(unit, key)
	m.observe("resolve_port", err)
	return sdkPort, err
}

// restartReasons lists identity mapping changes between the committed and a
// new repository. Ports and nodes present in only one of them are not
// changes, unless they take over the port key or sdk port of another port.
func restartReasons(old, next *repository) []string {
	var reasons []string
	for _, id := range next.sortedNodes() {
		nn := next.nodes[id]
		on, ok := old.nodes[id]
		if !ok {
			if prev, used := old.unitToNode[nn.unit]; used {
				if _, kept := next.nodes[prev]; !kept {
					reasons = append(reasons, fmt.Sprintf("unit %d moves from node %d to node %d", nn.unit, prev, id))
				}
			}
			continue
		}
		if on.unit != nn.unit {
			reasons = append(reasons, fmt.Sprintf("node %d moves from unit %d to unit %d", id, on.unit, nn.unit))
		}
		for _, pid := range nn.sortedPorts() {
			np := nn.ports[pid]
			op, ok := on.ports[pid]
			if !ok {
				continue
			}
			if op.key != np.key {
				reasons = append(reasons, fmt.Sprintf("node %d port %d moves from %s to %s", id, pid, op.key, np.key))
			} else if op.sdkPort != np.sdkPort {
				reasons = append(reasons, fmt.Sprintf("node %d port %d moves from sdk port %d to %d", id, pid, op.sdkPort, np.sdkPort))
			}
		}
	}
	return append(reasons, ownerChanges(old, next)...)
}

type portOwner struct {
	node uint64
	port uint32
}

func (r portOwner) String() string { return fmt.Sprintf("%d/%d", r.node, r.port) }

// ownerChanges lists port keys and sdk ports of the committed repository
// that belong to a different port in next.
func ownerChanges(old, next *repository) []string {
	owners := make(map[model.PortKey]portOwner)
	for _, id := range old.sortedNodes() {
		for pid, p := range old.nodes[id].ports {
			owners[p.key] = portOwner{id, pid}
		}
	}

	var reasons []string
	for _, id := range next.sortedNodes() {
		nn := next.nodes[id]
		on := old.nodes[id]
		for _, pid := range nn.sortedPorts() {
			np := nn.ports[pid]
			self := portOwner{id, pid}
			if prev, ok := owners[np.key]; ok && prev != self {
				reasons = append(reasons, fmt.Sprintf("port key %s moves from port %s to port %s", np.key, prev, self))
				continue
			}
			if on == nil {
				continue
			}
			if prev, ok := on.sdkToPort[np.sdkPort]; ok && prev != pid {
				reasons = append(reasons, fmt.Sprintf("node %d sdk port %d moves from port %d to port %d", id, np.sdkPort, prev, pid))
			}
		}
	}
	return reasons
}

// attachedDropped lists committed ports that are attached to a VM and absent
// from next.
func attachedDropped(old, next *repository) []string {
	var out []string
	for _, id := range old.sortedNodes() {
		on := old.nodes[id]
		for _, pid := range on.sortedPorts() {
			if !on.ports[pid].progress.attached {
				continue
			}
			if _, _, ok := next.port(id, pid); !ok {
				out = append(out, fmt.Sprintf("%d/%d", id, pid))
			}
		}
	}
	return out
}
