package mapping

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrUnknownTransformation is returned for transformation names missing from the registry.
var ErrUnknownTransformation = errors.New("unknown transformation")

// ErrNotCoercible is returned when a value cannot be converted by a transformation.
var ErrNotCoercible = errors.New("value not coercible")

// TransformFunc converts one property value. It must be pure.
type TransformFunc func(v any) (any, error)

// Registry is the table of named transformations available to mappings.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]TransformFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]TransformFunc)}
}

// DefaultRegistry returns a registry holding the built-in transformations:
// to_string, to_int, to_float, to_lower and to_upper.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("to_string", ToString)
	r.Register("to_int", ToInt)
	r.Register("to_float", ToFloat)
	r.Register("to_lower", ToLower)
	r.Register("to_upper", ToUpper)
	r.Register("to_lowercase", ToLower)
	r.Register("to_uppercase", ToUpper)
	return r
}

// NormalizeName canonicalizes a transformation name: "To-Int" becomes "to_int".
func NormalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
}

// Register adds or replaces a transformation.
func (r *Registry) Register(name string, fn TransformFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[NormalizeName(name)] = fn
}

// Lookup returns the transformation registered under name.
func (r *Registry) Lookup(name string) (TransformFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[NormalizeName(name)]
	return fn, ok
}

// Names returns the registered transformation names (sorted).
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply runs the named transformation on v.
func (r *Registry) Apply(name string, v any) (any, error) {
	fn, ok := r.Lookup(name)
	if !ok {
		return v, fmt.Errorf("%w %q", ErrUnknownTransformation, name)
	}
	return fn(v)
}

// check verifies every transformation named by cfg exists.
func (r *Registry) check(cfg *Config) error {
	all := append([]PropertyMapping{cfg.PrimaryKeyMapping}, cfg.PropertyMappings...)
	for _, pm := range all {
		if pm.Transformation == "" {
			continue
		}
		if _, ok := r.Lookup(pm.Transformation); !ok {
			return fmt.Errorf("%w: %w %q on %s (available: %s)",
				ErrInvalidMapping, ErrUnknownTransformation, pm.Transformation,
				pm.SourceField, strings.Join(r.Names(), ", "))
		}
	}
	return nil
}

// ToString renders any scalar as a string. It never fails.
func ToString(v any) (any, error) {
	return stringify(v), nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case json.Number:
		return x.String()
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// ToInt converts numbers, booleans and numeric strings to int64.
// Floats are truncated toward zero; strings must hold a base-10 integer.
func ToInt(v any) (any, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return uintToInt(uint64(x))
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return uintToInt(x)
	case float32:
		return floatToInt(float64(x))
	case float64:
		return floatToInt(x)
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		f, err := x.Float64()
		if err != nil {
			return v, fmt.Errorf("%w: %q is not a number", ErrNotCoercible, x.String())
		}
		return floatToInt(f)
	case string:
		return parseInt(x)
	case []byte:
		return parseInt(string(x))
	default:
		return v, fmt.Errorf("%w: cannot convert %T to int", ErrNotCoercible, v)
	}
}

func parseInt(s string) (any, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return s, fmt.Errorf("%w: %q is not an integer", ErrNotCoercible, s)
	}
	return n, nil
}

func uintToInt(u uint64) (any, error) {
	if u > math.MaxInt64 {
		return u, fmt.Errorf("%w: %d overflows int64", ErrNotCoercible, u)
	}
	return int64(u), nil
}

func floatToInt(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f, fmt.Errorf("%w: %v has no integer value", ErrNotCoercible, f)
	}
	t := math.Trunc(f)
	if t > math.MaxInt64 || t < math.MinInt64 {
		return f, fmt.Errorf("%w: %v overflows int64", ErrNotCoercible, f)
	}
	return int64(t), nil
}

// ToFloat converts numbers, booleans and numeric strings to float64.
func ToFloat(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint8:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case bool:
		if x {
			return 1.0, nil
		}
		return 0.0, nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return v, fmt.Errorf("%w: %q is not a number", ErrNotCoercible, x.String())
		}
		return f, nil
	case string:
		return parseFloat(x)
	case []byte:
		return parseFloat(string(x))
	default:
		return v, fmt.Errorf("%w: cannot convert %T to float", ErrNotCoercible, v)
	}
}

func parseFloat(s string) (any, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return s, fmt.Errorf("%w: %q is not a number", ErrNotCoercible, s)
	}
	return f, nil
}

// ToLower renders v as a string and lower-cases it (Unicode aware).
func ToLower(v any) (any, error) {
	// A Caser is stateful, so one is built per call.
	return cases.Lower(language.Und).String(stringify(v)), nil
}

// ToUpper renders v as a string and upper-cases it (Unicode aware).
func ToUpper(v any) (any, error) {
	return cases.Upper(language.Und).String(stringify(v)), nil
}
