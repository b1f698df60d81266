package garage

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/universal-console/garage/internal/interfaces"
	"github.com/universal-console/garage/internal/ui/components"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	doorPaneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#6C7086")).
			Padding(1, 3).
			MarginTop(1)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C7086")).
			MarginTop(1)
)

const keepaliveBarWidth = 20

// View implements tea.Model
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	sections := []string{
		m.renderHeader(),
		m.renderDoor(),
	}
	if line := m.renderKeepalive(); line != "" {
		sections = append(sections, line)
	}
	sections = append(sections, m.renderFooter(), m.help.View(m.keys))

	return strings.Join(sections, "\n")
}

func (m *Model) renderHeader() string {
	title := "Garage Console"
	if m.profile.Name != "" {
		title += fmt.Sprintf(" [%s]", m.profile.Name)
	}
	style := headerStyle
	if m.width > 0 {
		style = style.Width(m.width)
	}
	return style.Render(title)
}

func (m *Model) renderDoor() string {
	door := components.RenderDoorStatus(m.text, m.palette)
	if m.controller != nil && m.controller.InFlight(interfaces.TagCommandSubmit) {
		door += " " + m.spinner.View()
	}
	return doorPaneStyle.Render(door)
}

func (m *Model) renderKeepalive() string {
	if m.controller == nil || !m.controller.Bounded() {
		return ""
	}
	remaining := m.controller.RemainingTicks()
	budget := m.controller.KeepaliveTicks()
	percent := 0
	if budget > 0 {
		percent = remaining * 100 / budget
	}

	bar := components.RenderProgressBar(percent, keepaliveBarWidth, "█", "░")
	interval := m.profile.PollInterval
	return fmt.Sprintf("Keepalive %s %s left", bar, (interval * time.Duration(remaining)).String())
}

func (m *Model) renderFooter() string {
	var parts []string
	if m.stats != nil {
		s := m.stats()
		parts = append(parts, fmt.Sprintf("sent %d", s.TotalRequests))
		if s.FailedRequests > 0 {
			parts = append(parts, components.RenderStatus("error", fmt.Sprintf("failed %d", s.FailedRequests)))
		}
		if !s.LastSuccessTime.IsZero() {
			parts = append(parts, "last reply "+s.LastSuccessTime.Format("15:04:05"))
		}
	}
	if !m.lastChange.IsZero() {
		parts = append(parts, "updated "+m.lastChange.Format("15:04:05"))
	}
	if len(parts) == 0 {
		return footerStyle.Render(components.RenderStatus("pending", "waiting for first reply"))
	}
	return footerStyle.Render(strings.Join(parts, " · "))
}
