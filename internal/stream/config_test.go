package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_WithDefaults(t *testing.T) {
	got := Config{}.WithDefaults()
	assert.Equal(t, "kafka", got.Backend)
	assert.Equal(t, "localhost:9092", got.BootstrapServers)
	assert.Equal(t, "phonograph", got.GroupID)
	assert.Equal(t, "earliest", got.OffsetReset)
	assert.True(t, *got.AutoCommit)
	assert.Equal(t, time.Second, got.PollTimeout)

	off := false
	got = Config{GroupID: "census", AutoCommit: &off, PollTimeout: 250 * time.Millisecond}.WithDefaults()
	assert.Equal(t, "census", got.GroupID)
	assert.False(t, *got.AutoCommit)
	assert.Equal(t, 250*time.Millisecond, got.PollTimeout)
}

func TestConfig_Properties(t *testing.T) {
	props := Config{
		BootstrapServers: "broker:9093",
		Extra: map[string]any{
			"security.protocol": "SASL_SSL",
			"group.id":          "override",
		},
	}.Properties()

	assert.Equal(t, map[string]any{
		"bootstrap.servers":  "broker:9093",
		"group.id":           "override",
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": true,
		"security.protocol":  "SASL_SSL",
	}, props)
}

func TestConfig_PropertiesNestedExtra(t *testing.T) {
	props := Config{
		Extra: map[string]any{
			"session": map[string]any{"timeout": map[string]any{"ms": 6000}},
		},
	}.Properties()

	assert.Equal(t, 6000, props["session.timeout.ms"])
	assert.NotContains(t, props, "session")
}
