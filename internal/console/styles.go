// Package console implements the interactive terminal chat.
package console

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	Gold  = lipgloss.Color("11")
	Green = lipgloss.Color("10")
	Red   = lipgloss.Color("9")
	Grey  = lipgloss.Color("8")
)

// Styles holds text styles bound to one output.
type Styles struct {
	Rule      lipgloss.Style
	Title     lipgloss.Style
	Muted     lipgloss.Style
	Narration lipgloss.Style
	User      lipgloss.Style
	Speaker   lipgloss.Style
	Error     lipgloss.Style
}

// NewStyles creates styles for output. Color is dropped when output is not a terminal.
func NewStyles(output io.Writer) Styles {
	r := lipgloss.NewRenderer(output)
	return Styles{
		Rule:      r.NewStyle().Foreground(Grey),
		Title:     r.NewStyle().Bold(true).Foreground(Gold),
		Muted:     r.NewStyle().Foreground(Grey),
		Narration: r.NewStyle().Italic(true),
		User:      r.NewStyle().Bold(true).Foreground(Green),
		Speaker:   r.NewStyle().Bold(true).Foreground(Gold),
		Error:     r.NewStyle().Foreground(Red),
	}
}
