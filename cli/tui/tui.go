package tui

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// viewFunc renders a payload into lines. ok is false when data is not the
// payload type the view expects.
type viewFunc func(data any) (lines []string, ok bool)

// views maps view types to their renderers. Keep SupportedTUIViews in sync.
var views = map[string]viewFunc{
	"inspect_pca":   pcaView,
	"inspect_probe": probeView,
	"stats_notes":   notesStatsView,
}

// Run starts the TUI for viewType.
// Returns an error if the view type doesn't support TUI.
func Run(viewType string, data any) error {
	if !IsTUISupported(viewType) {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
	p := tea.NewProgram(NewViewModel(viewType, data), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// IsTUISupported returns true if the view type supports TUI mode.
func IsTUISupported(viewType string) bool {
	_, ok := views[viewType]
	return ok
}

// SupportedTUIViews returns the view types that support TUI, sorted.
func SupportedTUIViews() []string {
	return slices.Sorted(maps.Keys(views))
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
	Up   key.Binding
	Down key.Binding
	Top  key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c", "esc"),
		key.WithHelp("q", "quit"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "scroll up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "scroll down"),
	),
	Top: key.NewBinding(
		key.WithKeys("home", "g"),
		key.WithHelp("g", "top"),
	),
}

// ViewModel is a read-only Bubble Tea model that shows one rendered payload.
// Content taller than the window scrolls.
type ViewModel struct {
	viewType string
	lines    []string
	offset   int
	width    int
	height   int
	quitting bool
}

// NewViewModel renders data for viewType.
func NewViewModel(viewType string, data any) ViewModel {
	m := ViewModel{viewType: viewType}
	render, ok := views[viewType]
	if !ok {
		m.lines = []string{fmt.Sprintf("Unknown view type: %s", viewType)}
		return m
	}
	lines, ok := render(data)
	if !ok {
		lines = []string{fmt.Sprintf("Invalid data type for %s", viewType)}
	}
	m.lines = lines
	return m
}

// Init implements tea.Model.
func (m ViewModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ViewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.offset = min(m.offset, m.maxOffset())
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Down):
			m.offset = min(m.offset+1, m.maxOffset())
		case key.Matches(msg, keys.Up):
			m.offset = max(m.offset-1, 0)
		case key.Matches(msg, keys.Top):
			m.offset = 0
		}
	}

	return m, nil
}

// visibleRows is the number of content lines that fit, leaving room for the
// box border, padding and help line. Zero height means unknown: show all.
func (m ViewModel) visibleRows() int {
	if m.height == 0 {
		return len(m.lines)
	}
	return max(m.height-6, 1)
}

func (m ViewModel) maxOffset() int {
	return max(len(m.lines)-m.visibleRows(), 0)
}

// View implements tea.Model.
func (m ViewModel) View() string {
	if m.quitting {
		return ""
	}

	end := min(m.offset+m.visibleRows(), len(m.lines))
	body := BoxStyle.Render(strings.Join(m.lines[m.offset:end], "\n"))

	help := "q quit"
	if m.maxOffset() > 0 {
		help = fmt.Sprintf("↑/↓ scroll (%d/%d) • g top • q quit", m.offset+1, m.maxOffset()+1)
	}
	return body + "\n" + HelpStyle.Render(help)
}

// RenderStatic renders a view without running a program, at a fixed size
// large enough to show everything.
func RenderStatic(viewType string, data any) string {
	m := NewViewModel(viewType, data)
	return lipgloss.NewStyle().Padding(1, 2).Render(m.View())
}
