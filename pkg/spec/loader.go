// Package spec loads chassis configuration documents from disk.
package spec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/chassis/pkg/model"
)

// DefaultConfigPath is used when no document path is configured.
var DefaultConfigPath = "/etc/chassis/chassis.yaml"

// Format is the encoding of a configuration document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatOf derives the document format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported config file extension %q (want .yaml, .yml or .json)", filepath.Ext(path))
}

// LoadChassisConfig reads a chassis configuration document and applies the
// document defaults. Structural checks are left to the chassis manager's
// VerifyConfig.
func LoadChassisConfig(path string) (*model.ChassisConfig, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading chassis config %s: %w", path, err)
	}
	cfg, err := ParseChassisConfig(data, format)
	if err != nil {
		return nil, fmt.Errorf("parsing chassis config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseChassisConfig decodes a document. Unknown fields are rejected.
func ParseChassisConfig(data []byte, format Format) (*model.ChassisConfig, error) {
	var cfg model.ChassisConfig
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && err != io.EOF {
			return nil, err
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDefaults fills the fields a document may omit.
func applyDefaults(cfg *model.ChassisConfig) {
	for i := range cfg.Nodes {
		n := &cfg.Nodes[i]
		if n.Name == "" {
			n.Name = fmt.Sprintf("node%d", n.ID)
		}
	}
	for i := range cfg.SingletonPorts {
		p := &cfg.SingletonPorts[i]
		if p.Name == "" {
			p.Name = p.Key().String()
		}
		if p.Config.Type != model.PortTypeNone && p.Config.AdminState == model.AdminStateUnknown {
			p.Config.AdminState = model.AdminStateDisabled
		}
	}
}

// Marshal encodes cfg in the given format.
func Marshal(cfg *model.ChassisConfig, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(cfg)
	case FormatJSON:
		return json.MarshalIndent(cfg, "", "  ")
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}
