// Package tui provides a Bubble Tea terminal UI for playing cgmlsim games.
package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nathoo/cgmlsim/cli"
	"github.com/nathoo/cgmlsim/engine"
	"github.com/nathoo/cgmlsim/engine/events"
	"github.com/nathoo/cgmlsim/engine/rules"
	"github.com/nathoo/cgmlsim/engine/snapshot"
	"github.com/nathoo/cgmlsim/types"
)

// rawLine stores an unstyled log line with its classification, so it can
// be re-wrapped and re-styled when the terminal is resized.
type rawLine struct {
	text string
	kind lineKind
}

// eventLog collects lines from the event bus. It is shared between model
// copies.
type eventLog struct {
	lines []rawLine
}

func (l *eventLog) add(text string) {
	l.lines = append(l.lines, rawLine{text: text, kind: classifyLine(text)})
}

// Model is the Bubble Tea model for the cgmlsim TUI.
type Model struct {
	sim    *engine.Simulator
	humans map[int]bool

	viewport viewport.Model
	help     help.Model
	keys     keyMap
	log      *eventLog

	legal  []rules.LegalAction // pending choice for a human seat
	cursor int
	err    error

	width    int
	height   int
	ready    bool
	trace    bool
	auto     bool
	over     bool // outcome already logged
	quitting bool
}

// advanceMsg asks the model to play until a human must choose.
type advanceMsg struct{}

type keyMap struct {
	Up    key.Binding
	Down  key.Binding
	Play  key.Binding
	Auto  key.Binding
	Trace key.Binding
	State key.Binding
	Quit  key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Play, k.Auto, k.Trace, k.State, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

func defaultKeyMap() keyMap {
	return keyMap{
		Up:    key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:  key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Play:  key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter/1-9", "play")),
		Auto:  key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "auto")),
		Trace: key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "trace")),
		State: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "state")),
		Quit:  key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// New creates a TUI model over sim. Events published on bus are shown in
// the log; humans lists the seats chosen from the keyboard.
func New(sim *engine.Simulator, bus *events.Bus, humans ...int) Model {
	m := Model{
		sim:    sim,
		humans: map[int]bool{},
		help:   help.New(),
		keys:   defaultKeyMap(),
		log:    &eventLog{},
	}
	for _, h := range humans {
		m.humans[h] = true
	}
	if bus != nil {
		log := m.log
		bus.Subscribe(func(ev types.Event) {
			log.add(cli.FormatEvent(ev))
		})
	}
	def := sim.State().Def
	m.log.add(fmt.Sprintf("[%s %s, %d players]", def.Meta.Name, def.Meta.Version, len(sim.State().Players)))
	return m
}

// Run starts the Bubble Tea program.
func Run(sim *engine.Simulator, bus *events.Bus, humans ...int) error {
	m := New(sim, bus, humans...)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init starts play.
func (m Model) Init() tea.Cmd {
	return func() tea.Msg { return advanceMsg{} }
}

// Update handles messages (key presses, window resize, play).
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		if !m.ready {
			m.viewport = viewport.New(m.width, 1)
			m.viewport.KeyMap = viewportKeyMap()
			m.ready = true
		}
		m.refreshViewport()

	case advanceMsg:
		m = m.advance()
		m.refreshViewport()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.legal)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Play):
		if len(m.legal) > 0 {
			m = m.play(m.cursor)
		}

	case key.Matches(msg, m.keys.Auto):
		if !m.auto {
			m.auto = true
			m.log.add("[Playing the rest of the game at random.]")
			m.legal = nil
			m = m.advance()
		}

	case key.Matches(msg, m.keys.Trace):
		m.trace = !m.trace
		if m.trace {
			m.log.add("[Trace output enabled.]")
		} else {
			m.log.add("[Trace output disabled.]")
		}

	case key.Matches(msg, m.keys.State):
		for _, l := range m.boardLines() {
			m.log.add("[" + l + "]")
		}

	case msg.Type == tea.KeyPgUp, msg.Type == tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	default:
		if n, err := strconv.Atoi(msg.String()); err == nil && n >= 1 && n <= len(m.legal) {
			m = m.play(n - 1)
		}
	}
	m.refreshViewport()
	return m, nil
}

// play executes the pending choice idx and continues until the next human
// decision.
func (m Model) play(idx int) Model {
	m.legal = nil
	m.cursor = 0
	_, err := m.sim.StepWith(func(int, []rules.LegalAction) (int, error) { return idx, nil })
	if err != nil {
		return m.fail(err)
	}
	return m.advance()
}

// advance steps the simulator with random choices for computer seats and
// stops when a human seat has actions to pick from or the game is over.
func (m Model) advance() Model {
	for m.err == nil && !m.sim.Done() {
		gs := m.sim.State()
		player := gs.CurrentPlayer
		if m.humans[player] && !m.auto && !gs.IsTerminal() {
			legal, err := m.sim.LegalActions(player)
			if err != nil {
				return m.fail(err)
			}
			if len(legal) > 0 {
				m.legal = legal
				m.cursor = 0
				return m
			}
		}
		if _, err := m.sim.Step(); err != nil {
			return m.fail(err)
		}
	}
	if out := m.sim.Outcome(); out != nil && !m.over {
		m.over = true
		m.log.add(fmt.Sprintf("[Game over: %s in state %s after %d iterations.]", out.Reason, out.FinalState, out.Iterations))
	}
	return m
}

func (m Model) fail(err error) Model {
	m.err = err
	m.legal = nil
	m.log.add("[error] " + err.Error())
	return m
}

// viewer is the seat whose view the board shows: the human seat to act,
// else the lowest human seat, else everything.
func (m Model) viewer() int {
	cur := m.sim.State().CurrentPlayer
	if m.humans[cur] {
		return cur
	}
	best := -1
	for h := range m.humans {
		if best == -1 || h < best {
			best = h
		}
	}
	if best == -1 {
		return snapshot.Omniscient
	}
	return best
}

// refreshViewport sizes the log to the space the other panels leave and
// re-renders it.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	used := 2 // status bar + help
	if b := m.renderBoard(); b != "" {
		used += lipgloss.Height(b)
	}
	if c := m.renderChoices(); c != "" {
		used += lipgloss.Height(c)
	}
	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-used, 1)

	width := max(m.width, 10)
	var styled []string
	for _, rl := range m.log.lines {
		if rl.kind == kindTrace && !m.trace {
			continue
		}
		styled = append(styled, renderLineKind(wordWrap(rl.text, width), rl.kind))
	}
	m.viewport.SetContent(strings.Join(styled, "\n"))
	m.viewport.GotoBottom()
}

// wordWrap wraps text to fit within the given width, breaking at word
// boundaries.
func wordWrap(text string, width int) string {
	if width <= 0 || len(text) <= width {
		return text
	}

	var b strings.Builder
	lineLen := 0
	for i, word := range strings.Fields(text) {
		switch {
		case i == 0:
			lineLen = len(word)
		case lineLen+1+len(word) > width:
			b.WriteString("\n")
			lineLen = len(word)
		default:
			b.WriteString(" ")
			lineLen += 1 + len(word)
		}
		b.WriteString(word)
	}
	return b.String()
}

// View renders the layout: log, board, choices, status bar and help.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading..."
	}

	parts := []string{m.viewport.View()}
	if b := m.renderBoard(); b != "" {
		parts = append(parts, b)
	}
	if c := m.renderChoices(); c != "" {
		parts = append(parts, c)
	}
	parts = append(parts, m.renderStatusBar(), m.help.View(m.keys))
	return strings.Join(parts, "\n")
}

// viewportKeyMap keeps the arrow keys for the choice list.
func viewportKeyMap() viewport.KeyMap {
	return viewport.KeyMap{
		PageDown:     key.NewBinding(key.WithKeys("pgdown")),
		PageUp:       key.NewBinding(key.WithKeys("pgup")),
		HalfPageDown: key.NewBinding(key.WithKeys("ctrl+d")),
		HalfPageUp:   key.NewBinding(key.WithKeys("ctrl+u")),
		Up:           key.NewBinding(key.WithDisabled()),
		Down:         key.NewBinding(key.WithDisabled()),
	}
}
