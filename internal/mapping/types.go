// Package mapping describes how source rows become normalized objects.
//
// A mapping document lists one Config per source. Each Config names the
// target object type, the field-to-property rules (with optional named
// transformations) and the rule that derives the object's primary key.
// Documents are loaded once, validated eagerly, and never mutated afterwards.
package mapping

import (
	"errors"
	"fmt"
	"sort"

	"github.com/leapstack-labs/phonograph/pkg/core"
)

// ErrInvalidMapping marks configuration errors found while loading mappings.
var ErrInvalidMapping = errors.New("invalid mapping")

// PropertyMapping maps one source field to one object property.
type PropertyMapping struct {
	SourceField    string
	TargetProperty string
	Transformation string
}

// Config is the mapping for one source.
// A Config returned from a Set is shared and must be treated as read-only.
type Config struct {
	SourceType        core.SourceType
	SourceConfig      core.SourceConfig
	ObjectTypeID      string
	PropertyMappings  []PropertyMapping
	PrimaryKeyMapping PropertyMapping
}

// Key returns the lookup key of the mapping: source_config.identifier,
// falling back to object_type_id.
func (c *Config) Key() string {
	if id := c.SourceConfig.Identifier(); id != "" {
		return id
	}
	return c.ObjectTypeID
}

// SourceFields returns every source field the mapping reads, primary key
// first, without duplicates.
func (c *Config) SourceFields() []string {
	seen := make(map[string]bool, len(c.PropertyMappings)+1)
	fields := make([]string, 0, len(c.PropertyMappings)+1)
	add := func(f string) {
		if f != "" && !seen[f] {
			seen[f] = true
			fields = append(fields, f)
		}
	}
	add(c.PrimaryKeyMapping.SourceField)
	for _, pm := range c.PropertyMappings {
		add(pm.SourceField)
	}
	return fields
}

// validate checks the structural rules of a single mapping.
func (c *Config) validate(reg *Registry) error {
	if c.ObjectTypeID == "" {
		return fmt.Errorf("%w: object_type_id is required", ErrInvalidMapping)
	}
	if c.PrimaryKeyMapping.SourceField == "" {
		return fmt.Errorf("%w: primary_key_mapping.source_field is required for %s", ErrInvalidMapping, c.ObjectTypeID)
	}
	for i, pm := range c.PropertyMappings {
		if pm.SourceField == "" {
			return fmt.Errorf("%w: property_mappings[%d].source_field is required", ErrInvalidMapping, i)
		}
		if pm.TargetProperty == "" {
			return fmt.Errorf("%w: property_mappings[%d].target_property is required", ErrInvalidMapping, i)
		}
	}
	if reg != nil {
		return reg.check(c)
	}
	return nil
}

// Set is an immutable collection of mappings keyed by Config.Key.
type Set struct {
	byKey map[string]*Config
	order []*Config
}

// NewSet validates configs against reg and indexes them by key.
// Any invalid mapping or duplicate key fails the whole set.
func NewSet(configs []*Config, reg *Registry) (*Set, error) {
	s := &Set{byKey: make(map[string]*Config, len(configs))}
	for i, cfg := range configs {
		if cfg == nil {
			return nil, &LoadError{Index: i, Err: fmt.Errorf("%w: empty mapping entry", ErrInvalidMapping)}
		}
		if err := cfg.validate(reg); err != nil {
			return nil, &LoadError{Index: i, Err: err}
		}
		key := cfg.Key()
		if _, dup := s.byKey[key]; dup {
			return nil, &LoadError{Index: i, Err: fmt.Errorf("%w: duplicate mapping key %q", ErrInvalidMapping, key)}
		}
		s.byKey[key] = cfg
		s.order = append(s.order, cfg)
	}
	return s, nil
}

// Get returns the mapping registered under key.
func (s *Set) Get(key string) (*Config, bool) {
	cfg, ok := s.byKey[key]
	return cfg, ok
}

// Keys returns all mapping keys in sorted order.
func (s *Set) Keys() []string {
	keys := make([]string, 0, len(s.byKey))
	for k := range s.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// All returns the mappings in document order.
func (s *Set) All() []*Config {
	out := make([]*Config, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of mappings.
func (s *Set) Len() int {
	return len(s.order)
}

// LoadError describes a configuration error in a mapping document.
type LoadError struct {
	Path  string
	Index int
	Err   error
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("mapping document %s: mappings[%d]: %v", e.Path, e.Index, e.Err)
	}
	return fmt.Sprintf("mappings[%d]: %v", e.Index, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
