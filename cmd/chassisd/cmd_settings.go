package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newtron-network/chassis/pkg/cli"
	"github.com/newtron-network/chassis/pkg/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage persistent settings",
	Long: `Manage persistent settings stored in ~/.chassis/settings.json.

Settings provide defaults for flags:
  - config_path:    Chassis document for serve (--config)
  - redis_addr:     STATE_DB mirror address (--redis)
  - audit_log_path: Audit log location
  - metrics_addr:   /metrics listen address (--metrics-addr)

Examples:
  chassisd settings show
  chassisd settings set redis_addr 127.0.0.1:6379
  chassisd settings clear`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load()
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}

		fmt.Printf("Settings file: %s\n\n", settings.DefaultSettingsPath())

		t := cli.NewTable("SETTING", "VALUE", "EFFECTIVE")
		effective := map[string]string{
			"config_path":    s.GetConfigPath(),
			"audit_log_path": s.GetAuditLogPath(),
			"metrics_addr":   s.GetMetricsAddr(),
			"redis_addr":     cli.Dim("(mirror off)"),
		}
		for _, key := range settings.Keys() {
			value, _ := s.Get(key)
			eff := effective[key]
			if value != "" {
				eff = value
			} else {
				value = "(not set)"
			}
			t.Row(key, value, eff)
		}
		t.Flush()
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <setting> <value>",
	Short: "Set a setting value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load()
		if err != nil {
			s = &settings.Settings{}
		}
		if err := s.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := s.Save(); err != nil {
			return fmt.Errorf("saving settings: %w", err)
		}
		fmt.Printf("%s = %s\n", args[0], args[1])
		return nil
	},
}

var settingsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Reset all settings to defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		s := &settings.Settings{}
		if err := s.Save(); err != nil {
			return fmt.Errorf("saving settings: %w", err)
		}
		fmt.Println("Settings cleared")
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd, settingsClearCmd)
}
