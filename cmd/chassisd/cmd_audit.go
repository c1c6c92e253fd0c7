package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/chassis/pkg/audit"
	"github.com/newtron-network/chassis/pkg/cli"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "View the audit log",
	Long: `View the audit log of chassis operations (push, verify, set,
hotplug, replay and reset).

Examples:
  chassisd audit list --last 24h
  chassisd audit list --node 1 --failures`,
}

var (
	auditUser      string
	auditOperation string
	auditNode      uint64
	auditLast      string
	auditLimit     int
	auditFailures  bool
)

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := audit.Filter{
			User:        auditUser,
			Operation:   auditOperation,
			Node:        auditNode,
			Limit:       auditLimit,
			FailureOnly: auditFailures,
		}
		if auditLast != "" {
			d, err := time.ParseDuration(auditLast)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", auditLast)
			}
			filter.StartTime = time.Now().Add(-d)
		}

		events, err := audit.Query(filter)
		if err != nil {
			return fmt.Errorf("querying audit log: %w", err)
		}
		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(events)
		}
		if len(events) == 0 {
			fmt.Println("No audit events found")
			return nil
		}

		t := cli.NewTable("TIMESTAMP", "USER", "OPERATION", "TARGET", "DETAIL", "STATUS")
		for _, e := range events {
			status := cli.Green("ok")
			if !e.Success {
				status = cli.Red(string(e.Kind))
			}
			target := ""
			switch {
			case e.Port != 0:
				target = fmt.Sprintf("%d/%d", e.Node, e.Port)
			case e.Node != 0:
				target = fmt.Sprintf("node %d", e.Node)
			}
			detail := e.Source
			if e.Attribute != "" {
				detail = e.Attribute + "=" + e.Value
			}
			t.Row(e.Timestamp.Format("2006-01-02 15:04:05"), e.User, e.Operation, target, detail, status)
		}
		t.Flush()
		return nil
	},
}

func init() {
	f := auditListCmd.Flags()
	f.StringVar(&auditUser, "user", "", "Filter by user")
	f.StringVar(&auditOperation, "operation", "", "Filter by operation")
	f.Uint64Var(&auditNode, "node", 0, "Filter by node id")
	f.StringVar(&auditLast, "last", "", "Only events newer than this duration (e.g. 24h)")
	f.IntVar(&auditLimit, "limit", 0, "Maximum number of events")
	f.BoolVar(&auditFailures, "failures", false, "Only failed operations")
	auditCmd.AddCommand(auditListCmd)
}
