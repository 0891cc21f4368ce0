package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nathoo/cgmlsim/engine"
	"github.com/nathoo/cgmlsim/engine/events"
	"github.com/nathoo/cgmlsim/engine/rules"
	"github.com/nathoo/cgmlsim/engine/snapshot"
	"github.com/nathoo/cgmlsim/engine/state"
	"github.com/nathoo/cgmlsim/types"
)

// testDef is a two-seat draw race: each turn a seat may draw from the
// shared deck or pass; the game ends when the deck is empty.
func testDef() *types.Definition {
	return &types.Definition{
		Meta: types.Meta{Name: "Draw Race", Version: "1.0", Players: types.PlayerBounds{Min: 2, Max: 2}},
		Components: types.Components{
			DeckTypes: []types.DeckTypeDef{{
				Name: "plain",
				Composition: []types.CompositionEntry{{
					Type:  "cards",
					Cards: []types.CardDef{{Name: "A"}, {Name: "B"}, {Name: "C"}, {Name: "D"}},
				}},
			}},
			Decks: []types.DeckDef{{Name: "main", Type: "plain"}},
			Zones: []types.ZoneDef{
				{Name: "deck", Type: "deck", OfDeck: "main"},
				{Name: "hand", Type: "hand", PerPlayer: true, Visibility: map[string]string{"owner": "all", "others": "hidden"}},
			},
			Variables: []types.VariableDef{{Name: "passes", Initial: 0}},
		},
		Rules: []types.RuleDef{
			{
				ID:        "draw",
				Trigger:   "on.phase.Turn",
				Condition: rules.Gt(rules.Path("zones.deck.card_count"), rules.Value(0)),
				Effect:    []types.EffectAction{{Action: "MOVE", Params: map[string]any{"from": "deck", "to": "hand"}}},
			},
			{
				ID:      "pass",
				Trigger: "on.phase.Turn",
				Effect:  []types.EffectAction{{Action: "INC_VARIABLE", Params: map[string]any{"name": "passes"}}},
			},
		},
		Flow: types.FlowDef{
			InitialState: "Playing",
			States:       map[string]types.StateDef{"Playing": {Name: "Playing", Phases: []string{"Turn"}}},
			StateOrder:   []string{"Playing"},
			Transitions: []types.TransitionDef{{
				From:      "Playing",
				To:        "GameOver",
				Condition: rules.Eq(rules.Path("zones.deck.card_count"), rules.Value(0)),
			}},
		},
	}
}

func newTestSim(t *testing.T) (*engine.Simulator, *events.Bus) {
	t.Helper()
	gs, err := state.Build(testDef(), 2, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	bus := &events.Bus{}
	sim, err := engine.New(gs, engine.WithRNG(engine.NewRNG(1)), engine.WithEvents(bus))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sim, bus
}

func newTestCLI(t *testing.T, input string) (*CLI, *bytes.Buffer) {
	t.Helper()
	sim, bus := newTestSim(t)
	var out bytes.Buffer
	c := New(sim, bus, 0)
	c.In = strings.NewReader(input)
	c.Out = &out
	return c, &out
}

func TestCLI_PlayToTheEnd(t *testing.T) {
	c, out := newTestCLI(t, strings.Repeat("1\n", 10))
	if err := c.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	output := out.String()
	if !strings.Contains(output, "Draw Race 1.0 (2 players)") {
		t.Error("expected banner in output")
	}
	if !strings.Contains(output, "1) draw") || !strings.Contains(output, "2) pass") {
		t.Errorf("expected numbered legal actions, got:\n%s", output)
	}
	if !strings.Contains(output, "Game over: end_state in state GameOver") {
		t.Errorf("expected game over line, got:\n%s", output)
	}
	if !c.Sim.Done() {
		t.Error("simulation should be finished")
	}
}

func TestCLI_InvalidChoice(t *testing.T) {
	c, out := newTestCLI(t, "9\nabc\n/quit\n")
	if err := c.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	output := out.String()
	if strings.Count(output, "[Pick a number from 1 to 2.]") != 2 {
		t.Errorf("expected two range hints, got:\n%s", output)
	}
	if !strings.Contains(output, "[Goodbye.]") {
		t.Error("expected goodbye")
	}
	if c.Sim.Done() {
		t.Error("quitting must not finish the game")
	}
}

func TestCLI_MetaCommands(t *testing.T) {
	c, out := newTestCLI(t, "/help\n/state\n/bogus\n/trace\n1\n/quit\n")
	if err := c.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	output := out.String()

	for _, want := range []string{
		"/auto",                       // help text
		"State: Playing  Phase: Turn", // state header
		"deck: 4 [A B C D]",           // shared zone visible
		"variables: passes=0",
		"Unknown command: /bogus",
		"Trace output enabled.",
		"p0 plays draw", // traced after the choice
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestCLI_StateHidesOtherHands(t *testing.T) {
	c, out := newTestCLI(t, "")
	gs := c.Sim.State()
	state.Move(gs.SharedZones["deck"], gs.Players[1].Zones["hand"], 2)

	c.printState(snapshot.Take(gs, snapshot.Options{Viewer: 0}))
	output := out.String()
	if !strings.Contains(output, "hand: 2 cards") {
		t.Errorf("other seat's hand should be hidden:\n%s", output)
	}
	if strings.Contains(output, "hand: 2 [") {
		t.Errorf("other seat's cards leaked:\n%s", output)
	}
}

func TestCLI_AutoFinishes(t *testing.T) {
	c, out := newTestCLI(t, "/auto\n")
	if err := c.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	output := out.String()
	if !strings.Contains(output, "Playing the rest of the game at random.") {
		t.Error("expected auto confirmation")
	}
	if !strings.Contains(output, "Game over") {
		t.Errorf("expected game to finish:\n%s", output)
	}
}

func TestCLI_EOFQuits(t *testing.T) {
	c, out := newTestCLI(t, "")
	if err := c.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "[Goodbye.]") {
		t.Error("expected goodbye on end of input")
	}
}

func TestWatch(t *testing.T) {
	sim, bus := newTestSim(t)
	var out bytes.Buffer
	outcome, err := Watch(sim, bus, &out)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if outcome.Reason != engine.ReasonEndState {
		t.Errorf("reason = %s", outcome.Reason)
	}
	output := out.String()
	if strings.Count(output, "plays draw") != 4 {
		t.Errorf("expected four draws:\n%s", output)
	}
	if !strings.Contains(output, "state Playing -> GameOver") {
		t.Errorf("expected transition line:\n%s", output)
	}
	if !strings.Contains(output, "game over (end_state)") {
		t.Errorf("expected game over line:\n%s", output)
	}
}

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		ev   types.Event
		want string
	}{
		{
			types.Event{Type: events.ActionExecuted, Data: map[string]any{
				"phase": "Turn", "player": 1, "rule": "draw",
				"effects": []types.Event{{Type: "cards_moved"}},
			}},
			"[Turn] p1 plays draw (cards_moved)",
		},
		{types.Event{Type: events.Transition, Data: map[string]any{"from": "A", "to": "B"}}, "state A -> B"},
		{types.Event{Type: events.PhaseAdvanced, Data: map[string]any{"phase": "Draw", "player": 0}}, "phase Draw for p0"},
		{types.Event{Type: events.TurnEnded, Data: map[string]any{"player": 0, "next": 1}}, "turn over: p0 -> p1"},
		{types.Event{Type: "custom", Data: map[string]any{"b": 2, "a": 1}}, "custom a=1 b=2"},
	}
	for _, tt := range tests {
		if got := FormatEvent(tt.ev); got != tt.want {
			t.Errorf("FormatEvent(%s) = %q, want %q", tt.ev.Type, got, tt.want)
		}
	}
}
