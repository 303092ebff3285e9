package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRenderer(mode Mode, isTTY bool) (*Renderer, *bytes.Buffer, *bytes.Buffer) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return NewRendererWithTTY(out, errOut, isTTY, mode), out, errOut
}

func TestEffectiveMode(t *testing.T) {
	tests := []struct {
		mode  Mode
		isTTY bool
		want  Mode
	}{
		{ModeAuto, true, ModeText},
		{ModeAuto, false, ModeMarkdown},
		{"", false, ModeMarkdown},
		{ModeJSON, true, ModeJSON},
		{ModeText, false, ModeText},
		{ModeMarkdown, true, ModeMarkdown},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			r, _, _ := newTestRenderer(tt.mode, tt.isTTY)
			assert.Equal(t, tt.want, r.EffectiveMode())
		})
	}
}

func TestNewRenderer_BufferIsNotTTY(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{}, &bytes.Buffer{}, ModeAuto)
	assert.Equal(t, ModeMarkdown, r.EffectiveMode())
}

func TestRenderer_Markdown(t *testing.T) {
	r, out, errOut := newTestRenderer(ModeAuto, false)

	r.Header(1, "Mappings")
	r.KeyValue("Object type", "household")
	r.Success("done")
	r.Error("boom")

	got := out.String()
	assert.Contains(t, got, "# Mappings\n")
	assert.Contains(t, got, "- **Object type**: household")
	assert.Contains(t, got, "✓ done")
	assert.NotContains(t, got, "\x1b[", "no ANSI codes off a terminal")
	assert.Contains(t, errOut.String(), "✗ boom")
}

func TestRenderer_Table(t *testing.T) {
	t.Run("markdown", func(t *testing.T) {
		r, out, _ := newTestRenderer(ModeMarkdown, false)
		r.Table([]string{"KEY", "OBJECT TYPE"}, [][]string{{"households", "household"}})
		got := out.String()
		assert.Contains(t, got, "| KEY | OBJECT TYPE |")
		assert.Contains(t, got, "| households | household |")
	})

	t.Run("text", func(t *testing.T) {
		r, out, _ := newTestRenderer(ModeText, false)
		r.Table([]string{"KEY"}, [][]string{{"a"}, {"b"}})
		got := out.String()
		assert.Contains(t, got, "KEY")
		assert.Contains(t, got, "(2 rows)")
		assert.Equal(t, 1, strings.Count(got, "(2 rows)"))
	})

	t.Run("empty", func(t *testing.T) {
		r, out, _ := newTestRenderer(ModeText, false)
		r.Table([]string{"KEY"}, nil)
		assert.Equal(t, "(0 rows)\n", out.String())
	})
}

func TestRenderer_JSON(t *testing.T) {
	r, out, _ := newTestRenderer(ModeJSON, false)
	require.NoError(t, r.JSON(map[string]int{"ingested": 3}))
	assert.JSONEq(t, `{"ingested": 3}`, out.String())
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "## Runs", FormatHeader(2, "Runs"))
	assert.Equal(t, "# Runs", FormatHeader(0, "Runs"))
	assert.Equal(t, "- **Status**: ok", FormatKeyValue("Status", "ok"))
	assert.Equal(t, "1 object", FormatCount(1, "object"))
	assert.Equal(t, "3 objects", FormatCount(3, "object"))
}
