// Package theme holds the terminal colors used when printing archived
// conversations.
package theme

import "github.com/charmbracelet/lipgloss"

// Theme is a set of colors for transcript output
type Theme struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Text      lipgloss.Color
	TextMuted lipgloss.Color
}

// CurrentTheme is used by Styles
var CurrentTheme = Theme{
	Primary:   lipgloss.Color("#00ff00"),
	Secondary: lipgloss.Color("#00afff"),
	Text:      lipgloss.Color("#ffffff"),
	TextMuted: lipgloss.Color("#808080"),
}

// Styles are the rendered roles of a transcript.
type Styles struct {
	Header    lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	Content   lipgloss.Style
	Muted     lipgloss.Style
}

// NewStyles builds styles from the current theme. With color disabled every
// style renders its input unchanged.
func NewStyles(color bool) Styles {
	if !color {
		plain := lipgloss.NewStyle()
		return Styles{Header: plain, User: plain, Assistant: plain, Content: plain, Muted: plain}
	}
	t := CurrentTheme
	return Styles{
		Header:    lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		User:      lipgloss.NewStyle().Bold(true).Foreground(t.Secondary),
		Assistant: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Content:   lipgloss.NewStyle().Foreground(t.Text).PaddingLeft(2),
		Muted:     lipgloss.NewStyle().Foreground(t.TextMuted),
	}
}

// Role returns the label style for a turn role.
func (s Styles) Role(role string) lipgloss.Style {
	if role == "user" {
		return s.User
	}
	return s.Assistant
}
