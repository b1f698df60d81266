package components

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/universal-console/garage/internal/interfaces"
)

func TestClassifyStatus(t *testing.T) {
	tests := map[string]string{
		"Garage: Open":    DoorOpen,
		"Garage: Closed":  DoorClosed,
		"Garage: closing": DoorMoving,
		"Garage: ...":     DoorMoving,
		"Updating...":     DoorUnknown,
		"Shed: Jammed":    DoorUnknown,
		"Open":            DoorOpen,
	}
	for text, want := range tests {
		assert.Equal(t, want, ClassifyStatus(text), text)
	}
}

func TestRenderDoorStatusKeepsText(t *testing.T) {
	p := NewPalette(&interfaces.Theme{Open: "#00ff00"})
	out := RenderDoorStatus("Garage: Open", p)
	assert.Contains(t, out, "Garage: Open")
	assert.Contains(t, out, "▲")

	assert.Contains(t, RenderDoorStatus("Updating...", NewPalette(nil)), "? Updating...")
}

func TestRenderProgressBar(t *testing.T) {
	assert.Equal(t, "[##--]", RenderProgressBar(50, 4, "#", "-"))
	assert.Equal(t, "[####]", RenderProgressBar(150, 4, "#", "-"))
	assert.Equal(t, "[----]", RenderProgressBar(-5, 4, "#", "-"))
	assert.Equal(t, "", RenderProgressBar(50, 0, "#", "-"))
}
