package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/newtron-network/chassis/pkg/audit"
	"github.com/newtron-network/chassis/pkg/chassis"
	"github.com/newtron-network/chassis/pkg/cli"
	"github.com/newtron-network/chassis/pkg/model"
	"github.com/newtron-network/chassis/pkg/sde/sim"
	"github.com/newtron-network/chassis/pkg/spec"
	"github.com/newtron-network/chassis/pkg/util"
)

type shellCommand struct {
	usage string
	help  string
	run   func(ctx context.Context, args []string) error
}

// Shell is the interactive console of "chassisd serve".
type Shell struct {
	m       *chassis.Manager
	dev     *sim.SDE
	chassis string
	user    string
	in      io.Reader
	out     io.Writer

	commands map[string]shellCommand
}

// NewShell creates a shell operating on m and its simulated data plane.
func NewShell(m *chassis.Manager, dev *sim.SDE, chassisName string, in io.Reader, out io.Writer) *Shell {
	s := &Shell{m: m, dev: dev, chassis: chassisName, user: currentUser(), in: in, out: out}
	s.commands = map[string]shellCommand{
		"show":   {"show [node [ports]]", "List configured ports, e.g. show 1 1-4,8", s.cmdShow},
		"port":   {"port <node> <port>", "Show one port in detail", s.cmdPort},
		"set":    {"set <node> <port> <attr> <value>", "Apply one attribute update", s.cmdSet},
		"data":   {"data <kind> <node> <port>", "Query port data", s.cmdData},
		"replay": {"replay <node>", "Re-program a node from the committed state", s.cmdReplay},
		"reset":  {"reset <node>", "Simulate a device session loss on a node", s.cmdReset},
		"link":   {"link <node> <port> up|down", "Force the link state of a port", s.cmdLink},
		"push":   {"push <file>", "Push a chassis document", s.cmdPush},
		"help":   {"help", "Show this help", func(context.Context, []string) error { s.cmdHelp(); return nil }},
	}
	return s
}

// Run reads commands until quit, end of input or ctx is done.
func (s *Shell) Run(ctx context.Context) error {
	name := s.chassis
	if name == "" {
		name = "chassis"
	}
	fmt.Fprintf(s.out, "Managing %s (%d port(s)).\n", cli.Bold(name), len(s.m.Ports()))
	fmt.Fprintln(s.out, "Type 'help' for available commands.")

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(s.in)
		for sc.Scan() {
			lines <- sc.Text()
		}
		readErr <- sc.Err()
	}()

	for {
		fmt.Fprintf(s.out, "%s> ", name)
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return nil
		case err := <-readErr:
			fmt.Fprintln(s.out)
			return err
		case line = <-lines:
		}

		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "quit", "exit", "q":
			return nil
		case "?":
			args[0] = "help"
		}
		cmd, ok := s.commands[args[0]]
		if !ok {
			fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", args[0])
			continue
		}
		if err := cmd.run(ctx, args[1:]); err != nil {
			fmt.Fprintf(s.out, "%s %v\n", cli.Red("Error:"), err)
		}
	}
}

func (s *Shell) cmdHelp() {
	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	t := cli.NewTableTo(s.out, "COMMAND", "DESCRIPTION")
	for _, name := range names {
		t.Row(s.commands[name].usage, s.commands[name].help)
	}
	t.Row("quit", "Leave the shell")
	t.Flush()
}

func (s *Shell) cmdShow(_ context.Context, args []string) error {
	if len(args) > 2 {
		return fmt.Errorf("usage: show [node [ports]]")
	}
	ports := s.m.Ports()
	if len(args) == 0 {
		printPorts(s.out, ports)
		return nil
	}

	node, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid node %q", args[0])
	}
	var want map[uint32]bool
	if len(args) == 2 {
		ids, err := util.ExpandRange(args[1])
		if err != nil {
			return err
		}
		want = make(map[uint32]bool, len(ids))
		for _, id := range ids {
			want[id] = true
		}
	}
	var filtered []chassis.PortStatus
	for _, p := range ports {
		if p.Node == node && (want == nil || want[p.Port]) {
			filtered = append(filtered, p)
		}
	}
	printPorts(s.out, filtered)
	return nil
}

func (s *Shell) cmdPort(_ context.Context, args []string) error {
	node, port, err := parsePortArgs(args, "port <node> <port>")
	if err != nil {
		return err
	}
	st, err := s.m.Port(node, port)
	if err != nil {
		return err
	}

	c := st.Config
	fmt.Fprintf(s.out, "Port: %s (node %d port %d)\n", cli.Bold(cli.Dash(st.Name)), st.Node, st.Port)
	t := cli.NewTableTo(s.out, "FIELD", "VALUE").WithPrefix("  ")
	t.Row("key", st.Key.String())
	t.Row("unit/sdk", fmt.Sprintf("%d/%d", st.Unit, st.SdkPort))
	t.Row("admin", cli.State(c.AdminState.String()))
	t.Row("oper", cli.State(st.OperState.String()))
	t.Row("speed", formatSpeed(c.Speed))
	t.Row("mtu", strconv.Itoa(int(c.MTU)))
	t.Row("type", c.Type.String())
	if c.Type == model.PortTypeVhost {
		t.Row("device", c.DeviceType.String())
		t.Row("queues", strconv.Itoa(int(c.Queues)))
		t.Row("socket", c.SocketPath)
		t.Row("host", c.HostName)
	}
	if c.PCIBDF != "" {
		t.Row("pci-bdf", c.PCIBDF)
	}
	t.Row("pipeline", c.PipelineName)
	t.Row("control-port", c.ControlPort)
	t.Row("programmed", strconv.FormatBool(st.Programmed))
	if st.Attached {
		t.Row("hotplug", cli.State("attached")+" "+c.Hotplug.VMMAC)
	}
	if len(st.Pending) > 0 {
		t.Row("pending", strings.Join(st.Pending, ","))
	}
	if len(st.PendingHotplug) > 0 {
		t.Row("pending-hotplug", strings.Join(st.PendingHotplug, ","))
	}
	if !st.LastChanged.IsZero() {
		t.Row("last-changed", st.LastChanged.Format("2006-01-02 15:04:05"))
	}
	t.Flush()
	return nil
}

func (s *Shell) cmdSet(ctx context.Context, args []string) error {
	if len(args) != 4 {
		return fmt.Errorf("usage: set <node> <port> <attr> <value>")
	}
	node, port, err := parsePortArgs(args[:2], "set <node> <port> <attr> <value>")
	if err != nil {
		return err
	}
	kind, err := model.ParseAttrKind(args[2])
	if err != nil {
		return err
	}
	upd := model.AttrUpdate{Kind: kind, Value: args[3]}

	op := audit.OpSet
	if kind.IsHotplug() {
		op = audit.OpHotplug
	}
	event := audit.NewEvent(s.user, s.chassis, op).WithPort(node, port).WithAttribute(string(kind), upd.Value)
	if err := audit.Record(event, func() error { return s.m.ApplyAttribute(ctx, node, port, upd) }); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s %s\n", cli.Green("ok"), upd)
	return nil
}

func (s *Shell) cmdData(_ context.Context, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: data <kind> <node> <port> (kinds: %s)", dataKindNames())
	}
	kind := chassis.DataKind(args[0])
	node, port, err := parsePortArgs(args[1:], "data <kind> <node> <port>")
	if err != nil {
		return err
	}
	data, err := s.m.GetPortData(chassis.DataRequest{Kind: kind, Node: node, Port: port})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (s *Shell) cmdReplay(ctx context.Context, args []string) error {
	node, err := parseNodeArg(args, "replay <node>")
	if err != nil {
		return err
	}
	event := audit.NewEvent(s.user, s.chassis, audit.OpReplay).WithNode(node)
	if err := audit.Record(event, func() error { return s.m.ReplayNode(ctx, node) }); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s node %d replayed\n", cli.Green("ok"), node)
	return nil
}

func (s *Shell) cmdReset(_ context.Context, args []string) error {
	node, err := parseNodeArg(args, "reset <node>")
	if err != nil {
		return err
	}
	event := audit.NewEvent(s.user, s.chassis, audit.OpReset).WithNode(node)
	return audit.Record(event, func() error {
		unit, err := s.m.GetUnitFromNodeID(node)
		if err != nil {
			return err
		}
		n := s.dev.Reset(unit)
		fmt.Fprintf(s.out, "%s unit %d lost %d port(s); run 'replay %d' to restore\n", cli.Yellow("reset"), unit, n, node)
		return nil
	})
}

func (s *Shell) cmdLink(_ context.Context, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: link <node> <port> up|down")
	}
	node, port, err := parsePortArgs(args[:2], "link <node> <port> up|down")
	if err != nil {
		return err
	}
	state, err := model.ParsePortState(args[2])
	if err != nil {
		return err
	}
	unit, err := s.m.GetUnitFromNodeID(node)
	if err != nil {
		return err
	}
	sdkPort, err := s.m.GetSdkPortID(node, port)
	if err != nil {
		return err
	}
	return s.dev.SetLinkState(unit, sdkPort, state)
}

func (s *Shell) cmdPush(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: push <file>")
	}
	cfg, err := spec.LoadChassisConfig(args[0])
	if err != nil {
		return err
	}
	if err := pushConfig(ctx, s.m, cfg, args[0]); err != nil {
		return err
	}
	if cfg.Chassis.Name != "" {
		s.chassis = cfg.Chassis.Name
	}
	fmt.Fprintf(s.out, "%s pushed %s\n", cli.Green("ok"), args[0])
	return nil
}

func parseNodeArg(args []string, usage string) (uint64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("usage: %s", usage)
	}
	node, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid node %q", args[0])
	}
	return node, nil
}

func parsePortArgs(args []string, usage string) (uint64, uint32, error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("usage: %s", usage)
	}
	node, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid node %q", args[0])
	}
	port, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid port %q", args[1])
	}
	return node, uint32(port), nil
}

func dataKindNames() string {
	kinds := chassis.DataKinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
