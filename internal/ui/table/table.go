package table

import (
	"bytes"
	"io"
	"strings"

	"text/template"

	"github.com/ttare/ttare/internal/ui"
)

// Table lays out rows of templated cells under a header line. Every cell of a
// column is rendered with the same text/template format string.
type Table struct {
	columns   []string
	templates []*template.Template
	data      []interface{}
	footer    []string

	CellSeparator  string
	PrintHeader    func(io.Writer, string) error
	PrintSeparator func(io.Writer, string) error
	PrintData      func(io.Writer, int, string) error
	PrintFooter    func(io.Writer, string) error
}

var funcmap = template.FuncMap{
	"join": strings.Join,
}

// New returns an empty table with a two-space cell separator and plain line
// printers.
func New() *Table {
	p := func(w io.Writer, s string) error {
		_, err := w.Write(append([]byte(s), '\n'))
		return err
	}
	return &Table{
		CellSeparator:  "  ",
		PrintHeader:    p,
		PrintSeparator: p,
		PrintData: func(w io.Writer, _ int, s string) error {
			return p(w, s)
		},
		PrintFooter: p,
	}
}

// AddColumn adds a column with the given header. format is a text/template
// string applied to every row value; AddColumn panics when it does not
// compile.
func (t *Table) AddColumn(header, format string) {
	t.columns = append(t.columns, header)
	tmpl, err := template.New("template for " + header).Funcs(funcmap).Parse(format)
	if err != nil {
		panic(err)
	}

	t.templates = append(t.templates, tmpl)
}

// AddRow adds a row, data is handed to the column templates.
func (t *Table) AddRow(data interface{}) {
	t.data = append(t.data, data)
}

// AddFooter adds a line to be printed after the table.
func (t *Table) AddFooter(line string) {
	t.footer = append(t.footer, line)
}

func printLine(w io.Writer, print func(io.Writer, string) error, sep string, data []string, widths []int) error {
	var fields [][]string

	maxLines := 1
	for _, d := range data {
		lines := strings.Split(d, "\n")
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
		fields = append(fields, lines)
	}

	for i := 0; i < maxLines; i++ {
		var s string

		for fieldNum, lines := range fields {
			var v string

			if i < len(lines) {
				v += lines[i]
			}

			// pad in terminal cells, member names may contain wide runes
			pad := widths[fieldNum] - ui.DisplayWidth(v)
			if pad > 0 {
				v += strings.Repeat(" ", pad)
			}

			if fieldNum > 0 {
				v = sep + v
			}

			s += v
		}

		err := print(w, strings.TrimRight(s, " "))
		if err != nil {
			return err
		}
	}

	return nil
}

// cellWidth returns the display width of the widest line in content.
func cellWidth(content string) int {
	width := 0
	for _, line := range strings.Split(content, "\n") {
		if w := ui.DisplayWidth(line); w > width {
			width = w
		}
	}
	return width
}

// renderRows executes the column templates for every row.
func (t *Table) renderRows() ([][]string, error) {
	lines := make([][]string, 0, len(t.data))
	buf := bytes.NewBuffer(nil)

	for _, data := range t.data {
		row := make([]string, 0, len(t.templates))
		for _, tmpl := range t.templates {
			if err := tmpl.Execute(buf, data); err != nil {
				return nil, err
			}

			row = append(row, buf.String())
			buf.Reset()
		}
		lines = append(lines, row)
	}

	return lines, nil
}

// columnWidths returns the display width of each column and of the whole
// table, headers included.
func (t *Table) columnWidths(lines [][]string) (widths []int, total int) {
	widths = make([]int, len(t.templates))

	for i, desc := range t.columns {
		if w := cellWidth(desc); widths[i] < w {
			widths[i] = w
		}
	}
	for _, line := range lines {
		for i, content := range line {
			if w := cellWidth(content); widths[i] < w {
				widths[i] = w
			}
		}
	}

	for _, w := range widths {
		total += w
	}
	total += (len(widths) - 1) * len(t.CellSeparator)

	return widths, total
}

// Write prints the table to w.
func (t *Table) Write(w io.Writer) error {
	if len(t.templates) == 0 {
		return nil
	}

	lines, err := t.renderRows()
	if err != nil {
		return err
	}

	widths, totalWidth := t.columnWidths(lines)

	if len(t.columns) > 0 {
		if err := printLine(w, t.PrintHeader, t.CellSeparator, t.columns, widths); err != nil {
			return err
		}

		if err := t.PrintSeparator(w, strings.Repeat("-", totalWidth)); err != nil {
			return err
		}
	}

	for i, line := range lines {
		print := func(w io.Writer, s string) error {
			return t.PrintData(w, i, s)
		}
		if err := printLine(w, print, t.CellSeparator, line, widths); err != nil {
			return err
		}
	}

	if err := t.PrintSeparator(w, strings.Repeat("-", totalWidth)); err != nil {
		return err
	}

	for _, line := range t.footer {
		if err := t.PrintFooter(w, line); err != nil {
			return err
		}
	}

	return nil
}
