package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mdouchement/potfand"
	"github.com/mdouchement/potfand/mcp4xxx"
)

type model struct {
	table table.Model
}

func newTUI() *model {
	columns := []table.Column{
		{Title: "Fans", Width: 24},
		{Title: "State", Width: 6},
		{Title: "Speeds", Width: 10},
		{Title: "Wiper", Width: 28},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(false),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		Foreground(lipgloss.Color("#00afff")).
		BorderForeground(lipgloss.Color("#00afff")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#ffffff")).
		Bold(false)
	t.SetStyles(s)

	return &model{
		table: t,
	}
}

func (m *model) Init() tea.Cmd {
	return nil
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		m.table.SetHeight(msg.Height)
	case []potfand.FanState:
		m.table.SetRows(rows(msg))
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	}
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *model) View() string {
	return m.table.View()
}

// rows expects states sorted by name, as sent by potfand.
func rows(states []potfand.FanState) []table.Row {
	rows := make([]table.Row, 0, len(states))
	for _, state := range states {
		name := state.Name
		if state.Label != "" {
			name = fmt.Sprintf("%s(%s)", state.Name, state.Label)
		}

		st := "off"
		if state.On {
			st = "on"
		}

		rows = append(rows, table.Row{
			name,
			st,
			fmt.Sprintf("%4d", state.Speed),
			fmt.Sprintf("%3d %s", state.Wiper, gauge(state.Wiper, 20)),
		})
	}

	return rows
}

func gauge(v uint8, width int) string {
	n := int(v) * width / int(mcp4xxx.MaxValue)
	return strings.Repeat("█", n) + strings.Repeat("░", width-n)
}
