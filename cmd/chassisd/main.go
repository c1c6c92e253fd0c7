// Chassisd - P4 switch chassis manager
//
// Reconciles a declarative chassis document (nodes and singleton ports)
// against the data-plane adapter, accumulates incremental port attribute
// updates and drives VM hotplug.
//
// Commands:
//
//	chassisd verify <file>            Validate a document without applying it
//	chassisd push <file>              Apply a document against the simulated adapter
//	chassisd serve [--config <file>]  Run the manager with an interactive shell
//	chassisd audit list               Show the audit log
//	chassisd settings show|set|clear  Persistent defaults
//	chassisd version
package main

import (
	"errors"
	"fmt"
	"os"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/newtron-network/chassis/pkg/audit"
	"github.com/newtron-network/chassis/pkg/settings"
	"github.com/newtron-network/chassis/pkg/util"
	"github.com/newtron-network/chassis/pkg/version"
)

var (
	verbose    bool
	jsonOutput bool
	jsonLogs   bool

	userSettings *settings.Settings
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:               "chassisd",
	Short:             "P4 switch chassis manager",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `Chassisd reconciles a chassis configuration document against the
switch data plane and keeps per-port state, events and hotplug attachments.

  chassisd verify chassis.yaml
  chassisd serve --config chassis.yaml --redis 127.0.0.1:6379`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			util.SetLogLevel("debug")
		} else {
			util.SetLogLevel("warn")
		}
		if jsonLogs {
			util.SetJSONFormat()
		}

		var err error
		userSettings, err = settings.Load()
		if err != nil {
			util.Warnf("Could not load settings: %v", err)
			userSettings = &settings.Settings{}
		}
		if isSettingsOrVersion(cmd) {
			return nil
		}

		auditLogger, err := audit.NewFileLogger(userSettings.GetAuditLogPath(), audit.RotationConfig{
			MaxSize:    10 * 1024 * 1024,
			MaxBackups: 10,
		})
		if err != nil {
			util.Warnf("Could not initialize audit logging: %v", err)
		} else {
			audit.SetDefaultLogger(auditLogger)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "log-json", false, "Log in JSON format")

	for _, cmd := range []*cobra.Command{verifyCmd, pushCmd, auditListCmd} {
		cmd.Flags().BoolVar(&jsonOutput, "json", false, "JSON output")
	}

	rootCmd.AddGroup(
		&cobra.Group{ID: "config", Title: "Configuration:"},
		&cobra.Group{ID: "meta", Title: "Meta:"},
	)
	for _, cmd := range []*cobra.Command{verifyCmd, pushCmd, serveCmd} {
		cmd.GroupID = "config"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{auditCmd, settingsCmd, versionCmd} {
		cmd.GroupID = "meta"
		rootCmd.AddCommand(cmd)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("chassisd %s\n", version.Info())
	},
}

func isSettingsOrVersion(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "settings", "version", "help":
			return true
		}
	}
	return false
}

// currentUser names the operator in audit events.
func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "unknown"
}

// exitCode maps an error kind to a process exit status.
func exitCode(err error) int {
	var verr *util.ValidationError
	if errors.As(err, &verr) {
		return 2
	}
	switch util.KindOf(err) {
	case util.KindInvalidParam:
		return 2
	case util.KindRestartRequired:
		return 3
	case util.KindInUse, util.KindPrecondition:
		return 4
	case util.KindUnimplemented:
		return 5
	}
	return 1
}
