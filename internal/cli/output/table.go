package output

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Table writes rows under header: a box table in text mode and a markdown
// table otherwise. An empty table prints "(0 rows)".
func (r *Renderer) Table(header []string, rows [][]string) {
	if len(rows) == 0 {
		r.Println("(0 rows)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)

	headerRow := make(table.Row, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	t.AppendHeader(headerRow)

	for _, row := range rows {
		tr := make(table.Row, len(row))
		for i, v := range row {
			tr[i] = v
		}
		t.AppendRow(tr)
	}

	if r.EffectiveMode() == ModeText {
		t.SetStyle(table.StyleLight)
		t.Render()
		r.Printf("(%d rows)\n", len(rows))
		return
	}
	t.RenderMarkdown()
	r.Println("")
}

// FormatCount renders n with its noun, pluralized.
func FormatCount(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
