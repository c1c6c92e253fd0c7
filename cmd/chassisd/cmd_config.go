package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/newtron-network/chassis/pkg/audit"
	"github.com/newtron-network/chassis/pkg/chassis"
	"github.com/newtron-network/chassis/pkg/cli"
	"github.com/newtron-network/chassis/pkg/model"
	"github.com/newtron-network/chassis/pkg/sde/sim"
	"github.com/newtron-network/chassis/pkg/spec"
	"github.com/newtron-network/chassis/pkg/util"
)

var verifyAgainst string

var verifyCmd = &cobra.Command{
	Use:   "verify <file>",
	Short: "Validate a chassis document",
	Long: `Validate a chassis document without applying it.

With --against, the running configuration is first loaded from another
document so that changes needing a restart (a port moving to another sdk
port, a node changing unit) are reported.

Examples:
  chassisd verify chassis.yaml
  chassisd verify new.yaml --against running.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		m, _ := newSimManager()

		if verifyAgainst != "" {
			running, err := spec.LoadChassisConfig(verifyAgainst)
			if err != nil {
				return err
			}
			if err := m.PushConfig(ctx, running); err != nil {
				return fmt.Errorf("loading running config %s: %w", verifyAgainst, err)
			}
		}

		cfg, err := spec.LoadChassisConfig(args[0])
		if err != nil {
			return err
		}
		event := audit.NewEvent(currentUser(), cfg.Chassis.Name, audit.OpVerify).WithSource(args[0])
		err = audit.Record(event, func() error { return m.VerifyConfig(ctx, cfg) })

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(event)
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d node(s), %d port(s) %s\n",
			args[0], len(cfg.Nodes), len(cfg.SingletonPorts), cli.Green("ok"))
		for _, line := range nodeSummary(cfg) {
			fmt.Println("  " + line)
		}
		return nil
	},
}

var pushCmd = &cobra.Command{
	Use:   "push <file>",
	Short: "Apply a chassis document against the simulated data plane",
	Long: `Apply a chassis document against the simulated data plane and print
the resulting port table.

Examples:
  chassisd push chassis.yaml
  chassisd push chassis.json --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := spec.LoadChassisConfig(args[0])
		if err != nil {
			return err
		}
		m, _ := newSimManager()
		pushErr := pushConfig(cmd.Context(), m, cfg, args[0])

		if jsonOutput {
			if err := json.NewEncoder(os.Stdout).Encode(m.Ports()); err != nil {
				return err
			}
			return pushErr
		}
		printPorts(os.Stdout, m.Ports())
		return pushErr
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyAgainst, "against", "", "Running configuration to verify against")
}

// newSimManager creates a manager bound to a fresh simulated data plane.
func newSimManager(opts ...chassis.Option) (*chassis.Manager, *sim.SDE) {
	dev := sim.New()
	return chassis.New(dev, append([]chassis.Option{chassis.WithMode(chassis.ModeSim)}, opts...)...), dev
}

// pushConfig pushes cfg and records the outcome in the audit log.
func pushConfig(ctx context.Context, m *chassis.Manager, cfg *model.ChassisConfig, source string) error {
	event := audit.NewEvent(currentUser(), cfg.Chassis.Name, audit.OpPush).WithSource(source)
	return audit.Record(event, func() error { return m.PushConfig(ctx, cfg) })
}

func printPorts(w io.Writer, ports []chassis.PortStatus) {
	if len(ports) == 0 {
		fmt.Fprintln(w, "No ports configured")
		return
	}
	t := cli.NewTableTo(w, "NODE", "PORT", "NAME", "KEY", "SDK", "TYPE", "ADMIN", "OPER", "SPEED", "MTU", "HOTPLUG")
	for _, p := range ports {
		hotplug := ""
		if p.Attached {
			hotplug = "attached"
		}
		mtu := ""
		if p.Config.MTU != 0 {
			mtu = strconv.Itoa(int(p.Config.MTU))
		}
		t.Row(
			strconv.FormatUint(p.Node, 10),
			strconv.FormatUint(uint64(p.Port), 10),
			p.Name,
			p.Key.String(),
			strconv.FormatUint(uint64(p.SdkPort), 10),
			p.Config.Type.String(),
			cli.State(p.Config.AdminState.String()),
			cli.State(p.OperState.String()),
			formatSpeed(p.Config.Speed),
			mtu,
			cli.State(hotplug),
		)
	}
	t.Flush()
}

// nodeSummary lists the port ids of every node in range notation.
func nodeSummary(cfg *model.ChassisConfig) []string {
	ids := make(map[uint64][]uint32)
	for _, p := range cfg.SingletonPorts {
		ids[p.Node] = append(ids[p.Node], p.ID)
	}
	var out []string
	for i, n := range cfg.Nodes {
		out = append(out, fmt.Sprintf("node %d (%s, unit %d): ports %s", n.ID, n.Name, i, cli.Dash(util.CompactRange(ids[n.ID]))))
	}
	return out
}

// formatSpeed renders bits per second as 10G, 25G, 100M and so on.
func formatSpeed(bps uint64) string {
	switch {
	case bps == 0:
		return ""
	case bps%1_000_000_000 == 0:
		return fmt.Sprintf("%dG", bps/1_000_000_000)
	case bps%1_000_000 == 0:
		return fmt.Sprintf("%dM", bps/1_000_000)
	}
	return strconv.FormatUint(bps, 10)
}
