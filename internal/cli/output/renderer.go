// Package output renders command results for terminals, markdown consumers
// and JSON pipelines.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/leapstack-labs/phonograph/internal/cli/config"
	"github.com/muesli/termenv"
)

// Mode selects how results are rendered.
type Mode string

// Output modes.
const (
	ModeAuto     Mode = "auto"
	ModeText     Mode = "text"
	ModeMarkdown Mode = "markdown"
	ModeJSON     Mode = "json"
)

// Styles holds the lipgloss styles used in text mode.
type Styles struct {
	Header  lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) *Styles {
	return &Styles{
		Header:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Bold:    r.NewStyle().Bold(true),
		Muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
		Success: r.NewStyle().Foreground(lipgloss.Color("10")),
		Warning: r.NewStyle().Foreground(lipgloss.Color("11")),
		Error:   r.NewStyle().Foreground(lipgloss.Color("9")),
		Info:    r.NewStyle().Foreground(lipgloss.Color("14")),
	}
}

// Renderer writes command output in the effective mode.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	isTTY  bool
	mode   Mode
	styles *Styles
}

// NewRenderer creates a renderer, detecting whether out is a terminal.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	return NewRendererWithTTY(out, errOut, config.IsTerminal(out), mode)
}

// NewRendererWithTTY creates a renderer with an explicit terminal state.
// Colors are only emitted on a terminal.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode Mode) *Renderer {
	if mode == "" {
		mode = ModeAuto
	}
	lr := lipgloss.NewRenderer(out)
	if !isTTY {
		lr.SetColorProfile(termenv.Ascii)
	}
	return &Renderer{
		out:    out,
		errOut: errOut,
		isTTY:  isTTY,
		mode:   mode,
		styles: newStyles(lr),
	}
}

// EffectiveMode resolves ModeAuto: text on a terminal, markdown otherwise.
func (r *Renderer) EffectiveMode() Mode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if r.isTTY {
		return ModeText
	}
	return ModeMarkdown
}

// Styles returns the text-mode styles.
func (r *Renderer) Styles() *Styles {
	return r.styles
}

// Writer returns the standard output writer.
func (r *Renderer) Writer() io.Writer {
	return r.out
}

// ErrWriter returns the error output writer.
func (r *Renderer) ErrWriter() io.Writer {
	return r.errOut
}

// Println writes a line to standard output.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Printf writes formatted output.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format, a...)
}

// Header writes a heading in the effective mode.
func (r *Renderer) Header(level int, title string) {
	if r.EffectiveMode() == ModeText {
		r.Println(r.styles.Header.Render(title))
		return
	}
	r.Println(FormatHeader(level, title))
	r.Println("")
}

// KeyValue writes one labelled value.
func (r *Renderer) KeyValue(key, value string) {
	if r.EffectiveMode() == ModeText {
		r.Printf("  %s %s\n", r.styles.Muted.Render(key+":"), value)
		return
	}
	r.Println(FormatKeyValue(key, value))
}

// Success writes a success message.
func (r *Renderer) Success(msg string) {
	r.status(r.styles.Success, "✓", msg)
}

// Warning writes a warning message.
func (r *Renderer) Warning(msg string) {
	r.status(r.styles.Warning, "!", msg)
}

// Error writes an error message to the error output.
func (r *Renderer) Error(msg string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Error.Render("✗ "+msg))
}

// Muted renders s in the muted style.
func (r *Renderer) Muted(s string) string {
	return r.styles.Muted.Render(s)
}

func (r *Renderer) status(style lipgloss.Style, mark, msg string) {
	if r.EffectiveMode() == ModeText {
		r.Println(style.Render(mark + " " + msg))
		return
	}
	r.Println(mark + " " + msg)
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// FormatHeader returns a markdown heading.
func FormatHeader(level int, title string) string {
	if level < 1 {
		level = 1
	}
	return strings.Repeat("#", level) + " " + title
}

// FormatKeyValue returns a markdown list item with a bold key.
func FormatKeyValue(key, value string) string {
	return fmt.Sprintf("- **%s**: %s", key, value)
}
