package mapping

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/leapstack-labs/phonograph/pkg/core"
)

// Fallback records a transformation that failed on one value.
// The raw value was kept in its place.
type Fallback struct {
	SourceField    string
	TargetProperty string
	Transformation string
	Value          any
	Err            error
}

// Result is the outcome of mapping one row.
type Result struct {
	Properties core.Properties
	Fallbacks  []Fallback
}

// Mapper turns raw rows into normalized objects. It owns the transformation
// registry it applies and keeps no other state, so mapping the same row twice
// yields the same output.
type Mapper struct {
	registry *Registry
}

// NewMapper creates a mapper over reg. A nil registry uses DefaultRegistry.
func NewMapper(reg *Registry) *Mapper {
	if reg == nil {
		reg = DefaultRegistry()
	}
	return &Mapper{registry: reg}
}

// Registry returns the mapper's transformation table.
func (m *Mapper) Registry() *Registry {
	return m.registry
}

// Validate checks that cfg is well formed and every transformation it names
// is known to this mapper.
func (m *Mapper) Validate(cfg *Config) error {
	return cfg.validate(m.registry)
}

// Map applies cfg to row. Fields missing from the row, or holding nil, are
// left out of the output. A transformation that fails keeps the raw value
// and is reported in Result.Fallbacks. Nested values (maps, slices) are
// stored as their compact JSON text so every property stays a scalar.
func (m *Mapper) Map(cfg *Config, row core.Row) Result {
	res := Result{Properties: make(core.Properties, len(cfg.PropertyMappings))}
	for _, pm := range cfg.PropertyMappings {
		v, ok := row[pm.SourceField]
		if !ok || v == nil {
			continue
		}
		if pm.Transformation != "" {
			out, err := m.registry.Apply(pm.Transformation, v)
			if err != nil {
				res.Fallbacks = append(res.Fallbacks, Fallback{
					SourceField:    pm.SourceField,
					TargetProperty: pm.TargetProperty,
					Transformation: pm.Transformation,
					Value:          v,
					Err:            err,
				})
			} else {
				v = out
			}
		}
		res.Properties[pm.TargetProperty] = scalar(v)
	}
	return res
}

// scalar flattens composite values to compact JSON text. []byte becomes a
// string; everything else is returned unchanged.
func scalar(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	default:
		return v
	}
}

// MapRow returns only the mapped properties of row.
func (m *Mapper) MapRow(cfg *Config, row core.Row) core.Properties {
	return m.Map(cfg, row).Properties
}

// ExtractPrimaryKey derives the object key from row. It never fails:
// an absent or nil field yields "".
func (m *Mapper) ExtractPrimaryKey(cfg *Config, row core.Row) string {
	pk := cfg.PrimaryKeyMapping
	v, ok := row[pk.SourceField]
	if !ok || v == nil {
		return ""
	}
	if pk.Transformation != "" {
		if out, err := m.registry.Apply(pk.Transformation, v); err == nil {
			v = out
		}
	}
	return stringify(v)
}

// Object maps row into a normalized object.
func (m *Mapper) Object(cfg *Config, row core.Row) (core.Object, []Fallback) {
	res := m.Map(cfg, row)
	return core.Object{
		Type:       cfg.ObjectTypeID,
		PrimaryKey: m.ExtractPrimaryKey(cfg, row),
		Properties: res.Properties,
	}, res.Fallbacks
}

// CheckSchema returns the source fields cfg reads that schema does not declare.
func CheckSchema(cfg *Config, schema core.Schema) []string {
	var missing []string
	for _, f := range cfg.SourceFields() {
		if !schema.Has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}
