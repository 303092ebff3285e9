package core

import (
	"fmt"
	"sort"
	"strings"
)

// Row is one unit of source data, keyed by field name.
type Row map[string]any

// Schema maps a source field name to its declared type name.
type Schema map[string]string

// Fields returns the schema's field names in sorted order.
func (s Schema) Fields() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether the schema declares the named field.
func (s Schema) Has(field string) bool {
	_, ok := s[field]
	return ok
}

// Properties holds the normalized scalar values of an object.
// Absent source fields are omitted rather than stored as nil.
type Properties map[string]any

// Object is the normalized representation of one source row.
type Object struct {
	Type       string
	PrimaryKey string
	Properties Properties
}

// String returns the object's "type/key" reference used in logs.
func (o Object) String() string {
	return o.Type + "/" + o.PrimaryKey
}

// SourceType tags the kind of source a mapping reads from.
type SourceType string

// Source type constants.
const (
	SourceTypeFile     SourceType = "file"
	SourceTypeDatabase SourceType = "database"
	SourceTypeAPI      SourceType = "api"
	SourceTypeStream   SourceType = "stream"
)

// SourceTypes lists every supported source type.
func SourceTypes() []SourceType {
	return []SourceType{SourceTypeFile, SourceTypeDatabase, SourceTypeAPI, SourceTypeStream}
}

// ParseSourceType converts a configuration value into a SourceType.
// The aliases used by older mapping files ("csv", "sql", "kafka") are accepted.
func ParseSourceType(s string) (SourceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "file", "csv":
		return SourceTypeFile, nil
	case "database", "sql", "db":
		return SourceTypeDatabase, nil
	case "api", "rest", "http":
		return SourceTypeAPI, nil
	case "stream", "kafka", "topic":
		return SourceTypeStream, nil
	default:
		return "", fmt.Errorf("unknown source type %q (expected one of file, database, api, stream)", s)
	}
}

// SourceConfig is the opaque, source-specific configuration of a mapping.
type SourceConfig map[string]any

// Identifier returns source_config.identifier, or "" when unset.
func (c SourceConfig) Identifier() string {
	return c.String("identifier")
}

// String returns the string value stored under key, or "".
func (c SourceConfig) String(key string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
