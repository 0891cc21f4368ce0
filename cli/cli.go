// Package cli provides plain terminal play and trace output for the
// cgmlsim simulator.
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/nathoo/cgmlsim/engine"
	"github.com/nathoo/cgmlsim/engine/events"
	"github.com/nathoo/cgmlsim/engine/rules"
	"github.com/nathoo/cgmlsim/engine/snapshot"
	"github.com/nathoo/cgmlsim/engine/state"
	"github.com/nathoo/cgmlsim/types"
)

// errQuit unwinds a step when the player types /quit.
var errQuit = errors.New("quit")

// CLI handles terminal interaction with the players.
type CLI struct {
	Sim       *engine.Simulator
	In        io.Reader
	Out       io.Writer
	Humans    map[int]bool // seats that choose from the terminal
	Trace     bool
	EchoInput bool // echo each input line after the prompt (for script playback)

	scanner *bufio.Scanner
	auto    bool // remaining human choices are random
}

// New creates a CLI over sim. humans lists the seats played from the
// terminal; every other seat picks at random.
func New(sim *engine.Simulator, bus *events.Bus, humans ...int) *CLI {
	c := &CLI{
		Sim:    sim,
		In:     os.Stdin,
		Out:    os.Stdout,
		Humans: map[int]bool{},
	}
	for _, h := range humans {
		c.Humans[h] = true
	}
	if bus != nil {
		bus.Subscribe(func(ev types.Event) {
			if c.Trace {
				c.printLine(FormatEvent(ev))
			}
		})
	}
	return c
}

// Run plays until the game ends or the player quits.
func (c *CLI) Run() error {
	c.scanner = bufio.NewScanner(c.In)
	def := c.Sim.State().Def
	c.printLine(fmt.Sprintf("%s %s (%d players)", def.Meta.Name, def.Meta.Version, len(c.Sim.State().Players)))
	c.printLine("")

	for {
		done, err := c.Sim.StepWith(c.choose)
		if errors.Is(err, errQuit) {
			c.printSystem("Goodbye.")
			return nil
		}
		if err != nil {
			return err
		}
		if done {
			c.printOutcome(*c.Sim.Outcome())
			return nil
		}
	}
}

// choose is the Chooser for interactive play.
func (c *CLI) choose(player int, legal []rules.LegalAction) (int, error) {
	if !c.Humans[player] || c.auto {
		idx, err := engine.RandomChooser(c.Sim.RNG())(player, legal)
		if err == nil && c.Humans[player] {
			c.printSystem(fmt.Sprintf("auto: %s", legal[idx].RuleID))
		}
		return idx, err
	}

	gs := c.Sim.State()
	c.printLine(fmt.Sprintf("%s, phase %s (%s):", playerName(gs.Players, player), gs.CurrentPhase, gs.CurrentState))
	for i, la := range legal {
		c.printLine(fmt.Sprintf("  %d) %s", i+1, la.RuleID))
	}

	for {
		c.print("> ")
		if !c.scanner.Scan() {
			return 0, errQuit
		}
		input := strings.TrimSpace(c.scanner.Text())
		if input == "" || strings.HasPrefix(input, "#") {
			continue
		}
		if c.EchoInput {
			c.printLine(input)
		}

		if strings.HasPrefix(input, "/") {
			if c.handleMeta(input, player) {
				return 0, errQuit
			}
			if c.auto {
				return engine.RandomChooser(c.Sim.RNG())(player, legal)
			}
			continue
		}

		n, err := strconv.Atoi(input)
		if err != nil || n < 1 || n > len(legal) {
			c.printSystem(fmt.Sprintf("Pick a number from 1 to %d.", len(legal)))
			continue
		}
		return n - 1, nil
	}
}

// handleMeta dispatches meta-commands. Returns true if the game should exit.
func (c *CLI) handleMeta(input string, player int) bool {
	switch strings.Fields(input)[0] {
	case "/quit", "/exit":
		return true

	case "/help":
		c.cmdHelp()

	case "/state":
		c.printState(snapshot.Take(c.Sim.State(), snapshot.Options{Viewer: player}))

	case "/trace":
		c.Trace = !c.Trace
		if c.Trace {
			c.printSystem("Trace output enabled.")
		} else {
			c.printSystem("Trace output disabled.")
		}

	case "/auto":
		c.auto = true
		c.printSystem("Playing the rest of the game at random.")

	default:
		c.printSystem(fmt.Sprintf("Unknown command: %s. Type /help for available commands.", input))
	}
	return false
}

func (c *CLI) cmdHelp() {
	help := []string{
		"Type the number of an action to play it.",
		"",
		"System:",
		"  /state   Show the table as your seat sees it",
		"  /trace   Toggle event trace output",
		"  /auto    Finish the game with random choices",
		"  /quit    Exit game",
		"  /help    Show this help",
	}
	for _, line := range help {
		c.printLine(line)
	}
}

func (c *CLI) printState(snap *snapshot.Snapshot) {
	c.printSystem(fmt.Sprintf("State: %s  Phase: %s  Turn of: %d", snap.CurrentState, snap.CurrentPhase, snap.CurrentPlayer))
	for _, z := range snap.SharedZones {
		c.printLine("  " + formatZone(z))
	}
	if len(snap.SharedVariables) > 0 {
		c.printLine("  variables: " + formatVars(snap.SharedVariables))
	}
	for _, p := range snap.Players {
		c.printLine(fmt.Sprintf("  %s:", p.Name))
		for _, z := range p.Zones {
			c.printLine("    " + formatZone(z))
		}
		if len(p.Variables) > 0 {
			c.printLine("    variables: " + formatVars(p.Variables))
		}
	}
}

func (c *CLI) printOutcome(out engine.Outcome) {
	c.printLine("")
	c.printSystem(fmt.Sprintf("Game over: %s in state %s after %d iterations (%d actions, %d turns).",
		out.Reason, out.FinalState, out.Iterations, out.Actions, out.Turns))
}

// Watch runs the simulation to completion with random choices, writing one
// trace line per event to out.
func Watch(sim *engine.Simulator, bus *events.Bus, out io.Writer) (engine.Outcome, error) {
	bus.Subscribe(func(ev types.Event) {
		fmt.Fprintln(out, FormatEvent(ev))
	})
	return sim.Run()
}

// FormatEvent renders one simulator event as a single trace line.
func FormatEvent(ev types.Event) string {
	d := ev.Data
	switch ev.Type {
	case events.ActionExecuted:
		line := fmt.Sprintf("[%v] p%v plays %v", d["phase"], d["player"], d["rule"])
		if effs, ok := d["effects"].([]types.Event); ok && len(effs) > 0 {
			parts := make([]string, 0, len(effs))
			for _, e := range effs {
				parts = append(parts, e.Type)
			}
			line += " (" + strings.Join(parts, ", ") + ")"
		}
		return line
	case events.StateChanged, events.Transition:
		return fmt.Sprintf("state %v -> %v", d["from"], d["to"])
	case events.PhaseAdvanced:
		return fmt.Sprintf("phase %v for p%v", d["phase"], d["player"])
	case events.TurnEnded:
		return fmt.Sprintf("turn over: p%v -> p%v", d["player"], d["next"])
	case events.GameOver:
		return fmt.Sprintf("game over (%v) in %v after %v iterations", d["reason"], d["state"], d["iterations"])
	}
	return fmt.Sprintf("%s %s", ev.Type, formatVars(d))
}

func formatZone(z snapshot.Zone) string {
	if z.Hidden {
		return fmt.Sprintf("%s: %d cards", z.Name, z.Count)
	}
	return fmt.Sprintf("%s: %d [%s]", z.Name, z.Count, strings.Join(z.Cards, " "))
}

func formatVars(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return strings.Join(parts, " ")
}

func playerName(players []*state.Player, id int) string {
	for _, p := range players {
		if p.ID == id && p.Name != "" {
			return p.Name
		}
	}
	return fmt.Sprintf("Player %d", id+1)
}

func (c *CLI) printLine(text string) {
	fmt.Fprintln(c.Out, text)
}

func (c *CLI) print(text string) {
	fmt.Fprint(c.Out, text)
}

func (c *CLI) printSystem(text string) {
	fmt.Fprintf(c.Out, "[%s]\n", text)
}
