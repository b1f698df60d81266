package garage

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.quitting {
		return m, nil
	}

	var cmd tea.Cmd
	switch msg := msg.(type) {
	case startMsg:
		if m.controller != nil {
			m.controller.Start()
		}

	case runMsg:
		msg.fn()

	case tea.KeyMsg:
		cmd = m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
	}

	if m.terminated != "" && !m.quitting {
		m.logger.LogUIStateChange("running", "quit", m.terminated)
		m.quitting = true
		return m, tea.Quit
	}
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quit("user quit")
		return tea.Quit

	case key.Matches(msg, m.keys.Toggle):
		if m.controller == nil {
			return nil
		}
		m.toggleCount++
		m.controller.RequestToggle()

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return nil
}

func (m *Model) quit(reason string) {
	if m.controller != nil {
		m.controller.Stop()
	}
	m.logger.LogUIStateChange("running", "quit", reason)
	m.quitting = true
}
