// Package components provides small rendering helpers shared by the
// terminal views: door status badges, notices and progress bars.
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/universal-console/garage/internal/interfaces"
)

// Door condition classes
const (
	DoorOpen    = "open"
	DoorClosed  = "closed"
	DoorMoving  = "moving"
	DoorUnknown = "unknown"
)

var doorIcons = map[string]string{
	DoorOpen:    "▲",
	DoorClosed:  "■",
	DoorMoving:  "↕",
	DoorUnknown: "?",
}

// statusStyles maps notice kinds to their visual style.
var statusStyles = map[string]lipgloss.Style{
	"pending": lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF")),
	"success": lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1")),
	"error":   lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8")),
	"info":    lipgloss.NewStyle().Foreground(lipgloss.Color("#89B4FA")),
}

// Palette holds the styles used to draw each door condition
type Palette struct {
	styles map[string]lipgloss.Style
}

// NewPalette builds a palette from theme colors. A nil theme gives plain,
// bold text.
func NewPalette(theme *interfaces.Theme) Palette {
	base := lipgloss.NewStyle().Bold(true)
	p := Palette{styles: map[string]lipgloss.Style{
		DoorOpen:    base,
		DoorClosed:  base,
		DoorMoving:  base,
		DoorUnknown: base,
	}}
	if theme == nil {
		return p
	}

	colors := map[string]string{
		DoorOpen:    theme.Open,
		DoorClosed:  theme.Closed,
		DoorMoving:  theme.Moving,
		DoorUnknown: theme.Unknown,
	}
	for class, color := range colors {
		if color != "" {
			p.styles[class] = base.Foreground(lipgloss.Color(color))
		}
	}
	return p
}

// Style returns the style for a door condition class
func (p Palette) Style(class string) lipgloss.Style {
	if s, ok := p.styles[class]; ok {
		return s
	}
	return p.styles[DoorUnknown]
}

// ClassifyStatus maps display text such as "Garage: Opening" to a door
// condition class. Only the part after the last ": " is considered.
func ClassifyStatus(text string) string {
	status := text
	if i := strings.LastIndex(text, ": "); i >= 0 {
		status = text[i+2:]
	}

	switch strings.ToLower(strings.TrimSpace(status)) {
	case "open", "opened", "up":
		return DoorOpen
	case "closed", "close", "down", "shut":
		return DoorClosed
	case "opening", "closing", "moving", "stopped", "...":
		return DoorMoving
	default:
		return DoorUnknown
	}
}

// RenderDoorStatus draws display text with the icon and color for its condition
func RenderDoorStatus(text string, palette Palette) string {
	class := ClassifyStatus(text)
	return palette.Style(class).Render(fmt.Sprintf("%s %s", doorIcons[class], text))
}

// RenderStatus formats a short notice in the color for its kind
func RenderStatus(status, message string) string {
	style, exists := statusStyles[status]
	if !exists {
		style = lipgloss.NewStyle()
	}
	return style.Render(message)
}

// RenderProgressBar creates a textual progress bar.
// - progress: The percentage of completion (0-100).
// - width: The total width of the bar in characters.
func RenderProgressBar(progress int, width int, fillChar, emptyChar string) string {
	if width <= 0 {
		return ""
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	filledWidth := (progress * width) / 100
	return fmt.Sprintf("[%s%s]", strings.Repeat(fillChar, filledWidth), strings.Repeat(emptyChar, width-filledWidth))
}
