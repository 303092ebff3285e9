package source

import (
	"fmt"
	"os"
	"regexp"

	"github.com/go-viper/mapstructure/v2"
	"github.com/leapstack-labs/phonograph/pkg/core"
)

// DecodeParams decodes a mapping's source_config into a reader's params struct.
// Keys unknown to the struct are ignored (identifier, driver and friends are
// shared by every source). String values are weakly typed, so "5432" decodes
// into an int field.
func DecodeParams(cfg core.SourceConfig, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to build source_config decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(cfg)); err != nil {
		return fmt.Errorf("invalid source_config: %w", err)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ExpandEnv expands ${VAR} patterns with environment variable values.
// Unset variables expand to the empty string.
func ExpandEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}
