package mapping

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/phonograph/pkg/core"
	"gopkg.in/yaml.v3"
)

// Format identifies the encoding of a mapping document.
type Format string

// Supported document formats.
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatForPath infers the document format from a file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unsupported mapping file extension %q (use .yaml, .yml or .json)", ErrInvalidMapping, filepath.Ext(path))
	}
}

// document is the on-disk shape of a mapping file.
type document struct {
	Mappings []rawConfig `yaml:"mappings" json:"mappings"`
}

type rawConfig struct {
	SourceType        string               `yaml:"source_type" json:"source_type"`
	SourceConfig      map[string]any       `yaml:"source_config" json:"source_config"`
	ObjectTypeID      string               `yaml:"object_type_id" json:"object_type_id"`
	PropertyMappings  []rawPropertyMapping `yaml:"property_mappings" json:"property_mappings"`
	PrimaryKeyMapping *rawPropertyMapping  `yaml:"primary_key_mapping" json:"primary_key_mapping"`
}

type rawPropertyMapping struct {
	SourceField string `yaml:"source_field" json:"source_field"`
	// SourceColumn is the spelling used by older mapping files.
	SourceColumn   string `yaml:"source_column" json:"source_column"`
	TargetProperty string `yaml:"target_property" json:"target_property"`
	Transformation string `yaml:"transformation" json:"transformation"`
}

func (r rawPropertyMapping) toPropertyMapping() PropertyMapping {
	field := r.SourceField
	if field == "" {
		field = r.SourceColumn
	}
	return PropertyMapping{
		SourceField:    field,
		TargetProperty: r.TargetProperty,
		Transformation: strings.TrimSpace(r.Transformation),
	}
}

// LoadFile reads and validates a mapping document from disk.
func LoadFile(path string, reg *Registry) (*Set, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: mapping path comes from the CLI
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}
	set, err := Load(data, format, reg)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.Path = path
			return nil, le
		}
		return nil, fmt.Errorf("mapping document %s: %w", path, err)
	}
	return set, nil
}

// Load parses and validates a mapping document.
// A nil registry validates transformation names against DefaultRegistry.
func Load(data []byte, format Format, reg *Registry) (*Set, error) {
	if reg == nil {
		reg = DefaultRegistry()
	}

	var doc document
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: failed to parse YAML: %v", ErrInvalidMapping, err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: failed to parse JSON: %v", ErrInvalidMapping, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidMapping, format)
	}

	configs := make([]*Config, 0, len(doc.Mappings))
	for i, raw := range doc.Mappings {
		cfg, err := raw.toConfig()
		if err != nil {
			return nil, &LoadError{Index: i, Err: err}
		}
		configs = append(configs, cfg)
	}
	return NewSet(configs, reg)
}

func (r rawConfig) toConfig() (*Config, error) {
	st, err := core.ParseSourceType(r.SourceType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMapping, err)
	}
	if r.PrimaryKeyMapping == nil {
		return nil, fmt.Errorf("%w: primary_key_mapping is required", ErrInvalidMapping)
	}

	cfg := &Config{
		SourceType:        st,
		SourceConfig:      core.SourceConfig(r.SourceConfig),
		ObjectTypeID:      r.ObjectTypeID,
		PropertyMappings:  make([]PropertyMapping, 0, len(r.PropertyMappings)),
		PrimaryKeyMapping: r.PrimaryKeyMapping.toPropertyMapping(),
	}
	if cfg.SourceConfig == nil {
		cfg.SourceConfig = core.SourceConfig{}
	}
	for _, pm := range r.PropertyMappings {
		cfg.PropertyMappings = append(cfg.PropertyMappings, pm.toPropertyMapping())
	}
	return cfg, nil
}
