package style

import (
	"regexp"
	"strings"
)

// Alignment of a column's cells.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
	AlignCenter
)

// Column describes one table column.
type Column struct {
	Name  string
	Width int
	Align Alignment

	// Style, if set, is applied to every cell of the column.
	Style func(string) string
}

// Table renders fixed-width columns with a bold header.
type Table struct {
	columns   []Column
	rows      [][]string
	headerSep bool
	indent    string
}

// NewTable creates a table with the given columns, a header separator and
// a two-space indent.
func NewTable(columns ...Column) *Table {
	return &Table{
		columns:   columns,
		headerSep: true,
		indent:    "  ",
	}
}

// SetIndent sets the prefix of every line.
func (t *Table) SetIndent(indent string) *Table {
	t.indent = indent
	return t
}

// SetHeaderSeparator toggles the line under the header.
func (t *Table) SetHeaderSeparator(enabled bool) *Table {
	t.headerSep = enabled
	return t
}

// AddRow appends a row. Missing cells are left empty; extra cells are
// dropped.
func (t *Table) AddRow(values ...string) *Table {
	row := make([]string, len(t.columns))
	copy(row, values)
	t.rows = append(t.rows, row)
	return t
}

// Render returns the table as text ending in a newline, or "" when the
// table has no columns.
func (t *Table) Render() string {
	if len(t.columns) == 0 {
		return ""
	}
	var sb strings.Builder

	sb.WriteString(t.indent)
	for i, col := range t.columns {
		if i > 0 {
			sb.WriteString(" ")
		}
		plain := truncate(col.Name, col.Width)
		sb.WriteString(t.pad(Bold.Render(plain), plain, col.Width, col.Align))
	}
	sb.WriteString("\n")

	if t.headerSep {
		sb.WriteString(t.indent)
		total := 0
		for i, col := range t.columns {
			if i > 0 {
				total++
			}
			total += col.Width
		}
		sb.WriteString(Dim.Render(strings.Repeat("─", total)))
		sb.WriteString("\n")
	}

	for _, row := range t.rows {
		sb.WriteString(t.indent)
		for i, col := range t.columns {
			if i > 0 {
				sb.WriteString(" ")
			}
			plain := truncate(row[i], col.Width)
			styled := plain
			if col.Style != nil {
				styled = col.Style(plain)
			}
			sb.WriteString(t.pad(styled, plain, col.Width, col.Align))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// pad aligns styled within width, measuring with the unstyled plain text.
func (t *Table) pad(styled, plain string, width int, align Alignment) string {
	n := len([]rune(plain))
	if n >= width {
		return styled
	}
	gap := width - n
	switch align {
	case AlignRight:
		return strings.Repeat(" ", gap) + styled
	case AlignCenter:
		left := gap / 2
		return strings.Repeat(" ", left) + styled + strings.Repeat(" ", gap-left)
	default:
		return styled + strings.Repeat(" ", gap)
	}
}

func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 0 || len(r) <= width {
		return s
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripAnsi(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}
