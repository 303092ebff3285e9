package api

import (
	"fmt"
	"time"
)

// Response formats.
const (
	// FormatTable is a JSON array whose first element is the header row
	// and whose remaining elements are value rows (the Census Data API shape).
	FormatTable = "table"

	// FormatRecords is a JSON array of objects, optionally nested under RecordsPath.
	FormatRecords = "records"
)

// Defaults applied to unset params.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultRetryMax    = 3
	DefaultAPIKeyParam = "key"
)

// Params holds API-specific source_config keys.
type Params struct {
	URL     string            `mapstructure:"url"`
	Params  map[string]string `mapstructure:"params"`
	Headers map[string]string `mapstructure:"headers"`

	// APIKeyEnv names the environment variable holding the API key. When set,
	// the key is sent as the APIKeyParam query parameter.
	APIKeyEnv   string `mapstructure:"api_key_env"`
	APIKeyParam string `mapstructure:"api_key_param"`

	Format      string `mapstructure:"format"`
	RecordsPath string `mapstructure:"records_path"`

	Timeout  time.Duration `mapstructure:"timeout"`
	RetryMax int           `mapstructure:"retry_max"`
}

func (p *Params) applyDefaults() error {
	if p.URL == "" {
		return fmt.Errorf("source_config.url is required")
	}
	switch p.Format {
	case "":
		p.Format = FormatTable
	case FormatTable, FormatRecords:
	default:
		return fmt.Errorf("unknown response format %q (expected %s or %s)", p.Format, FormatTable, FormatRecords)
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	if p.RetryMax <= 0 {
		p.RetryMax = DefaultRetryMax
	}
	if p.APIKeyParam == "" {
		p.APIKeyParam = DefaultAPIKeyParam
	}
	return nil
}
