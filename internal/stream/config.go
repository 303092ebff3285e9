package stream

import "time"

// Defaults for Config fields left unset.
const (
	DefaultBackend          = "kafka"
	DefaultBootstrapServers = "localhost:9092"
	DefaultGroupID          = "phonograph"
	DefaultOffsetReset      = "earliest"
	DefaultPollTimeout      = time.Second
)

// Config holds consumer settings. Extra is passed through to the backend
// verbatim and wins over the named fields.
type Config struct {
	Backend          string         `koanf:"backend"`
	BootstrapServers string         `koanf:"bootstrap_servers"`
	GroupID          string         `koanf:"group_id"`
	OffsetReset      string         `koanf:"offset_reset"`
	AutoCommit       *bool          `koanf:"auto_commit"`
	PollTimeout      time.Duration  `koanf:"poll_timeout"`
	Extra            map[string]any `koanf:"extra"`
}

// WithDefaults returns a copy with unset fields defaulted.
func (c Config) WithDefaults() Config {
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}
	if c.BootstrapServers == "" {
		c.BootstrapServers = DefaultBootstrapServers
	}
	if c.GroupID == "" {
		c.GroupID = DefaultGroupID
	}
	if c.OffsetReset == "" {
		c.OffsetReset = DefaultOffsetReset
	}
	if c.AutoCommit == nil {
		on := true
		c.AutoCommit = &on
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	return c
}

// Properties renders the consumer properties in librdkafka key form.
func (c Config) Properties() map[string]any {
	c = c.WithDefaults()
	props := map[string]any{
		"bootstrap.servers":  c.BootstrapServers,
		"group.id":           c.GroupID,
		"auto.offset.reset":  c.OffsetReset,
		"enable.auto.commit": *c.AutoCommit,
	}
	flattenInto(props, "", c.Extra)
	return props
}

// flattenInto copies extra into props. Nested maps, which a dotted key such
// as session.timeout.ms becomes after passing through the config loader,
// are joined back with dots.
func flattenInto(props map[string]any, prefix string, extra map[string]any) {
	for k, v := range extra {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flattenInto(props, key, nested)
			continue
		}
		props[key] = v
	}
}
