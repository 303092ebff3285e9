package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindConfigFile(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  string
	}{
		{"none", nil, ""},
		{"yaml", []string{ConfigFileName}, ConfigFileName},
		{"yml", []string{ConfigFileNameAlt}, ConfigFileNameAlt},
		{"yaml preferred", []string{ConfigFileNameAlt, ConfigFileName}, ConfigFileName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, f := range tt.files {
				require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("sink: log\n"), 0600))
			}
			got := FindConfigFile(dir)
			if tt.want == "" {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, filepath.Join(dir, tt.want), got)
		})
	}
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0750))

	assert.Empty(t, FindProjectRoot(nested))

	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileName), []byte{}, 0600))
	assert.Equal(t, root, FindProjectRoot(nested))
	assert.Equal(t, root, FindProjectRoot(root))
}

func TestIsValidSink(t *testing.T) {
	for _, s := range Sinks() {
		assert.True(t, IsValidSink(s), s)
	}
	assert.False(t, IsValidSink("kafka"))
	assert.False(t, IsValidSink(""))
}
