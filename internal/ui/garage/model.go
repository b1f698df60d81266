// Package garage implements the terminal interface for a polling session.
// The bubbletea Update loop is the session's event loop: timer ticks and
// transport completions arrive as posted messages and run inside Update,
// one at a time, alongside key presses.
package garage

import (
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/universal-console/garage/internal/interfaces"
	"github.com/universal-console/garage/internal/logging"
	"github.com/universal-console/garage/internal/protocol"
	"github.com/universal-console/garage/internal/session"
	"github.com/universal-console/garage/internal/ui/components"
)

// Controller is the part of a session the view drives
type Controller interface {
	Start()
	Stop()
	RequestToggle() bool
	InFlight(kind interfaces.RequestTag) bool
	Bounded() bool
	RemainingTicks() int
	KeepaliveTicks() int
}

var _ Controller = (*session.Session)(nil)

// Options configure a Model
type Options struct {
	Profile *interfaces.Profile
	Theme   *interfaces.Theme
	// Stats, when set, feeds the footer's request counters
	Stats  func() protocol.ConnectionStatistics
	Logger *logging.Logger
	Now    func() time.Time
}

// Model is the bubbletea model for the garage view. It also serves as the
// session's Display.
type Model struct {
	controller Controller
	profile    *interfaces.Profile
	palette    components.Palette
	stats      func() protocol.ConnectionStatistics
	logger     *logging.Logger
	now        func() time.Time

	keys    keyMap
	help    help.Model
	spinner spinner.Model

	text        string
	lastChange  time.Time
	terminated  string
	quitting    bool
	width       int
	height      int
	toggleCount int
}

// NewModel creates the view. Attach a Controller before running it.
func NewModel(opts Options) *Model {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetUILogger()
	}
	profile := opts.Profile
	if profile == nil {
		profile = &interfaces.Profile{}
	}

	s := spinner.New()
	s.Spinner = spinner.MiniDot

	return &Model{
		profile: profile,
		palette: components.NewPalette(opts.Theme),
		stats:   opts.Stats,
		logger:  opts.Logger,
		now:     opts.Now,
		keys:    defaultKeyMap(),
		help:    help.New(),
		spinner: s,
		text:    session.InitialText,
	}
}

// Attach sets the session the view drives
func (m *Model) Attach(c Controller) {
	m.controller = c
}

// SetText implements interfaces.Display. It is only ever called from inside
// Update; after the view has quit it does nothing.
func (m *Model) SetText(text string) {
	if m.quitting {
		return
	}
	m.text = text
	m.lastChange = m.now()
}

// Terminated records that the session stopped on its own. The view quits
// at the end of the current Update.
func (m *Model) Terminated(reason string) {
	m.terminated = reason
}

// Text returns the current display text
func (m *Model) Text() string {
	return m.text
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return startMsg{} },
		m.spinner.Tick,
	)
}

// startMsg starts the session from inside the event loop
type startMsg struct{}

// runMsg carries a callback posted to the event loop
type runMsg struct {
	fn func()
}

// ProgramPoster implements interfaces.Poster on top of a tea.Program. It
// may be created before the program and bound later; posts made before
// Bind or after the program exits are dropped.
type ProgramPoster struct {
	mu      sync.RWMutex
	program *tea.Program
}

// Bind attaches the program callbacks are sent to
func (p *ProgramPoster) Bind(program *tea.Program) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.program = program
}

// Post implements interfaces.Poster
func (p *ProgramPoster) Post(fn func()) {
	p.mu.RLock()
	program := p.program
	p.mu.RUnlock()
	if program == nil {
		return
	}
	program.Send(runMsg{fn: fn})
}
