package render

import (
	"sort"

	"github.com/charmbracelet/lipgloss"
)

// Theme is a named terminal palette
type Theme struct {
	Name string

	User  lipgloss.Style
	AI    lipgloss.Style
	Text  lipgloss.Style
	Hint  lipgloss.Style
	Image lipgloss.Style
	Error lipgloss.Style

	// CodeStyle is the chroma style used for code segments
	CodeStyle string
}

var themes = map[string]Theme{
	"dark": {
		User:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		AI:        lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170")),
		Text:      lipgloss.NewStyle(),
		Hint:      lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
		Image:     lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("86")),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		CodeStyle: "monokai",
	},
	"light": {
		User:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("25")),
		AI:        lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("90")),
		Text:      lipgloss.NewStyle(),
		Hint:      lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Image:     lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("30")),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("160")),
		CodeStyle: "github",
	},
	"hacker": {
		User:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46")),
		AI:        lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("40")),
		Text:      lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		Hint:      lipgloss.NewStyle().Foreground(lipgloss.Color("22")),
		Image:     lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("118")),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		CodeStyle: "vim",
	},
	"ocean": {
		User:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45")),
		AI:        lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33")),
		Text:      lipgloss.NewStyle().Foreground(lipgloss.Color("153")),
		Hint:      lipgloss.NewStyle().Foreground(lipgloss.Color("67")),
		Image:     lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("51")),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		CodeStyle: "dracula",
	},
	"mono": {
		User:      lipgloss.NewStyle().Bold(true),
		AI:        lipgloss.NewStyle().Bold(true).Italic(true),
		Text:      lipgloss.NewStyle(),
		Hint:      lipgloss.NewStyle().Faint(true),
		Image:     lipgloss.NewStyle().Underline(true),
		Error:     lipgloss.NewStyle().Bold(true),
		CodeStyle: "bw",
	},
}

// LookupTheme returns the palette named name, falling back to dark for unknown names
func LookupTheme(name string) Theme {
	t, ok := themes[name]
	if !ok {
		name = "dark"
		t = themes[name]
	}
	t.Name = name
	return t
}

// ThemeNames lists the known palettes in sorted order
func ThemeNames() []string {
	names := make([]string, 0, len(themes))
	for name := range themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
