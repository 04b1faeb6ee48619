// Package ui renders the CLI's tabular output.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

// Table is a titled grid of cells. Columns are padded to the display width
// of their widest cell.
type Table struct {
	Title  string
	Header []string
	Rows   [][]string
	// MaxWidth truncates cells wider than it; 0 disables truncation.
	MaxWidth int
}

// AddRow appends a row, formatting each cell with %v.
func (t *Table) AddRow(cells ...any) {
	row := make([]string, len(cells))
	for i, c := range cells {
		row[i] = fmt.Sprint(c)
	}
	t.Rows = append(t.Rows, row)
}

func (t *Table) widths() []int {
	n := len(t.Header)
	for _, r := range t.Rows {
		n = max(n, len(r))
	}
	w := make([]int, n)
	measure := func(row []string) {
		for i, c := range row {
			w[i] = max(w[i], runewidth.StringWidth(Truncate(c, t.MaxWidth)))
		}
	}
	measure(t.Header)
	for _, r := range t.Rows {
		measure(r)
	}
	return w
}

// Render writes the table. styled enables lipgloss styling of the title
// and header.
func (t *Table) Render(w io.Writer, styled bool) error {
	widths := t.widths()
	var sb strings.Builder
	if t.Title != "" {
		sb.WriteString(style(titleStyle, t.Title, styled))
		sb.WriteByte('\n')
	}
	if len(t.Header) > 0 {
		sb.WriteString(style(headerStyle, t.line(t.Header, widths), styled))
		sb.WriteByte('\n')
	}
	for _, r := range t.Rows {
		sb.WriteString(t.line(r, widths))
		sb.WriteByte('\n')
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func (t *Table) line(row []string, widths []int) string {
	cells := make([]string, len(row))
	for i, c := range row {
		c = Truncate(c, t.MaxWidth)
		if i == len(row)-1 {
			cells[i] = c
			continue
		}
		cells[i] = runewidth.FillRight(c, widths[i])
	}
	return strings.Join(cells, "  ")
}

func style(s lipgloss.Style, text string, styled bool) string {
	if !styled {
		return text
	}
	return s.Render(text)
}

// Status renders a run status ("ok", "error", anything else) colored when
// styled.
func Status(status string, styled bool) string {
	return style(statusStyle(status), status, styled)
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "ok", "done":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case "error":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case "running", "binding", "initializing":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

// Truncate shortens value to width display columns, marking the cut with
// "...". A width of 0 or less keeps value whole.
func Truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width, "...")
}
