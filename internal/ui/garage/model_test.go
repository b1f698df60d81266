package garage

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/universal-console/garage/internal/interfaces"
	"github.com/universal-console/garage/internal/logging"
	"github.com/universal-console/garage/internal/loop"
	"github.com/universal-console/garage/internal/protocol"
	"github.com/universal-console/garage/internal/session"
)

type recordingTransport struct {
	sent []interfaces.RequestTag
}

func (r *recordingTransport) Send(tag interfaces.RequestTag, _ any) bool {
	r.sent = append(r.sent, tag)
	return true
}

type fixture struct {
	model     *Model
	session   *session.Session
	transport *recordingTransport
	clock     *loop.VirtualScheduler
}

func newFixture(t *testing.T, keepalive int) *fixture {
	t.Helper()
	clock := loop.NewVirtualScheduler(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	tr := &recordingTransport{}

	m := NewModel(Options{
		Profile: &interfaces.Profile{Name: "home", PollInterval: 4 * time.Second},
		Stats: func() protocol.ConnectionStatistics {
			return protocol.ConnectionStatistics{TotalRequests: len(tr.sent), FailedRequests: 1}
		},
		Logger: logging.Discard(),
		Now:    clock.Now,
	})

	sess, err := session.New(session.Config{
		Target:         "Garage",
		PollInterval:   4 * time.Second,
		KeepaliveTicks: keepalive,
		Now:            clock.Now,
	}, session.Dependencies{
		Transport:   tr,
		Display:     m,
		Scheduler:   clock,
		Logger:      logging.Discard(),
		OnTerminate: m.Terminated,
	})
	require.NoError(t, err)
	m.Attach(sess)

	return &fixture{model: m, session: sess, transport: tr, clock: clock}
}

func (f *fixture) update(t *testing.T, msg tea.Msg) tea.Cmd {
	t.Helper()
	_, cmd := f.model.Update(msg)
	return cmd
}

// post runs fn the way a posted callback would arrive
func (f *fixture) post(t *testing.T, fn func()) tea.Cmd {
	t.Helper()
	return f.update(t, runMsg{fn: fn})
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestStartShowsInitialTextAndFetches(t *testing.T) {
	f := newFixture(t, 0)
	assert.Equal(t, session.InitialText, f.model.Text())

	f.update(t, startMsg{})
	assert.Equal(t, session.StateRunning, f.session.State())
	assert.Equal(t, []interfaces.RequestTag{interfaces.TagStatusQuery}, f.transport.sent)
	assert.Contains(t, f.model.View(), "Updating...")
}

func TestStatusReplyUpdatesView(t *testing.T) {
	f := newFixture(t, 0)
	f.update(t, startMsg{})

	f.post(t, func() {
		f.session.Dispatch(interfaces.Success{Tag: interfaces.TagStatusQuery, Payload: map[string]any{"3": "Open"}})
	})
	assert.Equal(t, "Garage: Open", f.model.Text())

	view := f.model.View()
	assert.Contains(t, view, "Garage: Open")
	assert.Contains(t, view, "sent 1")
	assert.Contains(t, view, "failed 1")
	assert.Contains(t, view, "updated 12:00:00")
}

func TestToggleKeysSendCommand(t *testing.T) {
	for _, msg := range []tea.KeyMsg{keyRunes("t"), {Type: tea.KeyEnter}, {Type: tea.KeySpace, Runes: []rune(" ")}} {
		t.Run(msg.String(), func(t *testing.T) {
			f := newFixture(t, 0)
			f.update(t, startMsg{})

			f.update(t, msg)
			assert.Equal(t, interfaces.TagCommandSubmit, f.transport.sent[len(f.transport.sent)-1])
			assert.Equal(t, "Garage: ...", f.model.Text())
			assert.True(t, f.session.InFlight(interfaces.TagCommandSubmit))

			// a second press while busy sends nothing
			f.update(t, msg)
			assert.Len(t, f.transport.sent, 2)
		})
	}
}

func TestToggleBeforeStartIsIgnored(t *testing.T) {
	f := newFixture(t, 0)

	f.update(t, keyRunes("t"))
	assert.Empty(t, f.transport.sent)
	assert.Equal(t, session.InitialText, f.model.Text())

	f.update(t, startMsg{})
	assert.Equal(t, []interfaces.RequestTag{interfaces.TagStatusQuery}, f.transport.sent)
	assert.False(t, f.session.InFlight(interfaces.TagCommandSubmit))
}

func TestQuitKeyStopsSession(t *testing.T) {
	f := newFixture(t, 0)
	f.update(t, startMsg{})

	cmd := f.update(t, keyRunes("q"))
	assert.True(t, isQuit(cmd))
	assert.Equal(t, session.StateTerminated, f.session.State())
	assert.Equal(t, 0, f.clock.Pending())

	// late completions after quit are harmless
	f.post(t, func() {
		f.session.Dispatch(interfaces.Success{Tag: interfaces.TagStatusQuery, Payload: map[string]any{"3": "Closed"}})
	})
	assert.Equal(t, session.InitialText, f.model.Text())
	assert.Empty(t, f.model.View())
}

func TestKeepaliveExpiryQuits(t *testing.T) {
	f := newFixture(t, 2)
	f.update(t, startMsg{})
	assert.Contains(t, f.model.View(), "8s left")

	cmd := f.post(t, func() { f.clock.Advance(4 * time.Second) })
	assert.False(t, isQuit(cmd))
	assert.Contains(t, f.model.View(), "4s left")

	cmd = f.post(t, func() { f.clock.Advance(4 * time.Second) })
	assert.True(t, isQuit(cmd))
	assert.Equal(t, session.StateTerminated, f.session.State())
}

func TestToggleRefillsKeepalive(t *testing.T) {
	f := newFixture(t, 3)
	f.update(t, startMsg{})
	f.post(t, func() { f.clock.Advance(8 * time.Second) })
	assert.Equal(t, 1, f.session.RemainingTicks())

	f.update(t, keyRunes("t"))
	assert.Equal(t, 3, f.session.RemainingTicks())
}

func TestHelpToggle(t *testing.T) {
	f := newFixture(t, 0)
	f.update(t, keyRunes("?"))
	assert.True(t, f.model.help.ShowAll)
	f.update(t, tea.WindowSizeMsg{Width: 60, Height: 20})
	assert.Equal(t, 60, f.model.width)
}

func TestProgramPosterDropsBeforeBind(t *testing.T) {
	var p ProgramPoster
	p.Post(func() { t.Error("posted callback ran without a program") })
}
