// Package ui renders maestro's command line output
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
)

// UI writes styled messages. Status lines go to err so that out carries
// only the target's output and command results.
type UI struct {
	out io.Writer
	err io.Writer
}

// New creates a UI over the given writers
func New(out, err io.Writer) *UI {
	return &UI{out: out, err: err}
}

// Success prints a success message
func (ui *UI) Success(msg string) {
	fmt.Fprintln(ui.err, successStyle.Render("✓ "+msg))
}

// Error prints an error message
func (ui *UI) Error(msg string) {
	fmt.Fprintln(ui.err, errorStyle.Render("✗ "+msg))
}

// Warning prints a warning message
func (ui *UI) Warning(msg string) {
	fmt.Fprintln(ui.err, warningStyle.Render("⚠ "+msg))
}

// Info prints an info message
func (ui *UI) Info(msg string) {
	fmt.Fprintln(ui.err, infoStyle.Render("ℹ "+msg))
}

// Subtle prints a muted message
func (ui *UI) Subtle(msg string) {
	fmt.Fprintln(ui.out, subtleStyle.Render(msg))
}

// Println prints a plain line
func (ui *UI) Println(msg string) {
	fmt.Fprintln(ui.out, msg)
}

// Header prints a section header
func (ui *UI) Header(title string) {
	fmt.Fprintln(ui.out, headerStyle.Render(title))
}

// KeyValue prints an indented key-value pair
func (ui *UI) KeyValue(key, value string) {
	fmt.Fprintf(ui.out, "  %s: %s\n", subtleStyle.Render(key), value)
}

// Table collects rows and prints them with aligned columns
type Table struct {
	ui      *UI
	headers []string
	rows    [][]string
}

// NewTable creates a table with the given headers
func (ui *UI) NewTable(headers ...string) *Table {
	return &Table{ui: ui, headers: headers}
}

// AddRow adds a row; missing cells render empty
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Render prints the table
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, header := range t.headers {
		widths[i] = lipgloss.Width(header)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	parts := make([]string, len(t.headers))
	for i, header := range t.headers {
		parts[i] = padRight(header, widths[i])
	}
	t.ui.Println(headerStyle.Render(strings.Join(parts, " │ ")))

	for i, width := range widths {
		parts[i] = strings.Repeat("─", width)
	}
	t.ui.Println(subtleStyle.Render(strings.Join(parts, "─┼─")))

	for _, row := range t.rows {
		for i := range t.headers {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			parts[i] = padRight(cell, widths[i])
		}
		t.ui.Println(strings.TrimRight(strings.Join(parts, " │ "), " "))
	}
}

func padRight(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}
