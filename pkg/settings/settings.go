// Package settings manages persistent operator settings for chassisd.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/newtron-network/chassis/pkg/spec"
)

// Defaults used when a setting is unset.
const (
	DefaultMetricsAddr = ":9464"
	DefaultAuditFile   = "audit.log"
)

// Settings holds persistent operator preferences.
type Settings struct {
	// ConfigPath is the chassis config document loaded when --config is not given.
	ConfigPath string `json:"config_path,omitempty"`

	// RedisAddr enables the STATE_DB mirror when set.
	RedisAddr string `json:"redis_addr,omitempty"`

	// AuditLogPath overrides the audit log location.
	AuditLogPath string `json:"audit_log_path,omitempty"`

	// MetricsAddr is the listen address of the /metrics endpoint.
	MetricsAddr string `json:"metrics_addr,omitempty"`
}

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	return filepath.Join(baseDir(), "settings.json")
}

func baseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chassis"
	}
	return filepath.Join(home, ".chassis")
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from path. A missing file yields empty settings.
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing settings %s: %w", path, err)
	}
	return s, nil
}

// Save writes settings to the default location
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to a specific path
func (s *Settings) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// GetConfigPath returns the chassis config path (with fallback).
func (s *Settings) GetConfigPath() string {
	if s.ConfigPath != "" {
		return s.ConfigPath
	}
	return spec.DefaultConfigPath
}

// GetAuditLogPath returns the audit log path (with fallback).
func (s *Settings) GetAuditLogPath() string {
	if s.AuditLogPath != "" {
		return s.AuditLogPath
	}
	return filepath.Join(baseDir(), DefaultAuditFile)
}

// GetMetricsAddr returns the metrics listen address (with fallback).
func (s *Settings) GetMetricsAddr() string {
	if s.MetricsAddr != "" {
		return s.MetricsAddr
	}
	return DefaultMetricsAddr
}

// fields maps setting keys, as used by "chassisd settings set", to fields.
func (s *Settings) fields() map[string]*string {
	return map[string]*string{
		"config_path":    &s.ConfigPath,
		"redis_addr":     &s.RedisAddr,
		"audit_log_path": &s.AuditLogPath,
		"metrics_addr":   &s.MetricsAddr,
	}
}

// Keys returns the setting keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, 4)
	for k := range (&Settings{}).fields() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set assigns value to key. An empty value clears the setting.
func (s *Settings) Set(key, value string) error {
	f, ok := s.fields()[key]
	if !ok {
		return fmt.Errorf("unknown setting %q (valid: %v)", key, Keys())
	}
	*f = value
	return nil
}

// Get returns the raw value of key.
func (s *Settings) Get(key string) (string, error) {
	f, ok := s.fields()[key]
	if !ok {
		return "", fmt.Errorf("unknown setting %q (valid: %v)", key, Keys())
	}
	return *f, nil
}

// Clear resets all settings to defaults
func (s *Settings) Clear() {
	*s = Settings{}
}
