package engine

import (
	"errors"
	"testing"

	"github.com/nathoo/cgmlsim/engine/effects"
	"github.com/nathoo/cgmlsim/engine/events"
	"github.com/nathoo/cgmlsim/engine/rules"
	"github.com/nathoo/cgmlsim/engine/state"
	"github.com/nathoo/cgmlsim/types"
)

func logAction(msg string) []types.EffectAction {
	return []types.EffectAction{{Action: "LOG", Params: map[string]any{"message": msg}}}
}

// phaseDef is a one-state flow Play with phases A and B, a LOG rule in each.
func phaseDef() *types.Definition {
	return &types.Definition{
		Meta: types.Meta{Name: "Phases", Players: types.PlayerBounds{Min: 1, Max: 4}},
		Components: types.Components{
			Zones: []types.ZoneDef{{Name: "pile", Type: "discard"}},
			Variables: []types.VariableDef{
				{Name: "ticks", Initial: 0},
			},
		},
		Rules: []types.RuleDef{
			{ID: "in_a", Trigger: "on.phase.A", Effect: logAction("a")},
			{ID: "in_b", Trigger: "on.phase.B", Effect: logAction("b")},
		},
		Flow: types.FlowDef{
			InitialState: "Play",
			States: map[string]types.StateDef{
				"Play": {Name: "Play", Phases: []string{"A", "B"}},
			},
		},
	}
}

func newSim(t *testing.T, def *types.Definition, players int, opts ...Option) *Simulator {
	t.Helper()
	gs, err := state.Build(def, players, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	opts = append([]Option{WithRNG(NewRNG(1))}, opts...)
	sim, err := New(gs, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sim
}

func step(t *testing.T, sim *Simulator) bool {
	t.Helper()
	done, err := sim.Step()
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	return done
}

func TestSimulator_PhaseCycleAdvancesPlayer(t *testing.T) {
	sim := newSim(t, phaseDef(), 2)

	want := []struct {
		phase  string
		player int
	}{
		{"A", 0}, {"B", 0}, {"A", 1}, {"B", 1}, {"A", 0}, {"B", 0},
	}
	for i, w := range want {
		if sim.Phase() != w.phase || sim.State().CurrentPlayer != w.player {
			t.Fatalf("step %d: phase=%s player=%d, want %s/%d",
				i, sim.Phase(), sim.State().CurrentPlayer, w.phase, w.player)
		}
		if step(t, sim) {
			t.Fatalf("step %d: game ended early", i)
		}
	}
}

func TestSimulator_LegalActions(t *testing.T) {
	def := phaseDef()
	def.Rules = append(def.Rules, types.RuleDef{
		ID:        "seat_one_only",
		Trigger:   "on.phase.A",
		Condition: rules.Eq(rules.Ref("player"), rules.Value(1)),
		Effect:    logAction("one"),
	})
	sim := newSim(t, def, 2)

	legal, err := sim.LegalActions(0)
	if err != nil {
		t.Fatalf("LegalActions: %v", err)
	}
	if len(legal) != 1 || legal[0].RuleID != "in_a" {
		t.Errorf("player 0 legal = %+v", legal)
	}
	legal, err = sim.LegalActions(1)
	if err != nil {
		t.Fatalf("LegalActions: %v", err)
	}
	if len(legal) != 2 {
		t.Errorf("player 1 legal = %+v", legal)
	}
	if _, err := sim.LegalActions(5); err == nil {
		t.Error("expected error for unknown player")
	}
}

func TestSimulator_AlwaysTrueTransitionOverridesPhaseAdvance(t *testing.T) {
	def := phaseDef()
	def.Flow.States["Score"] = types.StateDef{Name: "Score", Phases: []string{"Tally"}}
	def.Flow.Transitions = []types.TransitionDef{
		{From: "Play", To: "Score", Condition: rules.Value(true)},
		{From: "Play", To: "GameOver"},
	}
	var rec events.Recorder
	bus := &events.Bus{}
	bus.Subscribe(rec.Record)
	sim := newSim(t, def, 2, WithEvents(bus))

	step(t, sim)

	gs := sim.State()
	if gs.CurrentState != "Score" {
		t.Fatalf("state = %q, want Score", gs.CurrentState)
	}
	if sim.PhaseIndex() != 0 || sim.Phase() != "Tally" || gs.CurrentPlayer != 0 {
		t.Errorf("phase=%s idx=%d player=%d", sim.Phase(), sim.PhaseIndex(), gs.CurrentPlayer)
	}
	if rec.Count(events.Transition) != 1 || rec.Count(events.PhaseAdvanced) != 0 {
		t.Errorf("events = %+v", rec.Events())
	}
}

func TestSimulator_SetGameStateEndsBeforeTransitions(t *testing.T) {
	def := phaseDef()
	def.Rules = []types.RuleDef{{
		ID:      "end",
		Trigger: "on.phase.A",
		Effect:  []types.EffectAction{{Action: "SET_GAME_STATE", Params: map[string]any{"state": "GameOver"}}},
	}}
	def.Flow.States["Other"] = types.StateDef{Name: "Other", Phases: []string{"X"}}
	def.Flow.Transitions = []types.TransitionDef{{From: "Play", To: "Other"}}
	sim := newSim(t, def, 2)

	if step(t, sim) {
		t.Fatal("first step should execute the action, not finish")
	}
	if sim.State().CurrentState != "GameOver" {
		t.Fatalf("state = %q; transition should have been bypassed", sim.State().CurrentState)
	}
	if !step(t, sim) {
		t.Fatal("next step should detect termination")
	}
	out := sim.Outcome()
	if out.Reason != ReasonEndState || out.Iterations != 1 || out.Actions != 1 {
		t.Errorf("outcome = %+v", out)
	}
}

func TestSimulator_NoProgress(t *testing.T) {
	def := phaseDef()
	def.Rules = nil
	sim := newSim(t, def, 3)

	out, err := sim.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Reason != ReasonNoProgress {
		t.Fatalf("reason = %s", out.Reason)
	}
	// Every player passes through both phases once.
	if out.Iterations != 6 {
		t.Errorf("iterations = %d, want 6", out.Iterations)
	}
}

func TestSimulator_NoPhasesNoActionsStops(t *testing.T) {
	def := phaseDef()
	def.Flow.States["Play"] = types.StateDef{Name: "Play"}
	sim := newSim(t, def, 2)

	out, err := sim.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Reason != ReasonNoProgress || out.Iterations != 1 {
		t.Errorf("outcome = %+v", out)
	}
}

func TestSimulator_IterationLimit(t *testing.T) {
	sim := newSim(t, phaseDef(), 2, WithMaxIterations(25))

	out, err := sim.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Reason != ReasonIterationLimit || out.Iterations != 25 {
		t.Errorf("outcome = %+v", out)
	}
	if done, _ := sim.Step(); !done {
		t.Error("Step after the end should report done")
	}
}

func TestSimulator_RunToGameOver(t *testing.T) {
	def := phaseDef()
	def.Rules = []types.RuleDef{
		{ID: "tick", Trigger: "on.phase.A",
			Effect: []types.EffectAction{{Action: "INC_VARIABLE", Params: map[string]any{"name": "ticks"}}}},
	}
	def.Flow.Transitions = []types.TransitionDef{{
		From:      "Play",
		To:        "GameOver",
		Condition: rules.Gt(rules.Path("shared_variables.ticks"), rules.Value(4)),
	}}
	var rec events.Recorder
	bus := &events.Bus{}
	bus.Subscribe(rec.Record, events.GameOver, events.TurnEnded)
	sim := newSim(t, def, 2, WithEvents(bus))

	out, err := sim.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Reason != ReasonEndState || out.FinalState != "GameOver" {
		t.Fatalf("outcome = %+v", out)
	}
	if got := sim.State().SharedVariables["ticks"]; got != 5 {
		t.Errorf("ticks = %v, want 5", got)
	}
	if rec.Count(events.GameOver) != 1 || rec.Count(events.TurnEnded) != 4 {
		t.Errorf("game_over=%d turn_ended=%d", rec.Count(events.GameOver), rec.Count(events.TurnEnded))
	}
}

func TestSimulator_StepWithChooser(t *testing.T) {
	def := phaseDef()
	def.Rules = append(def.Rules, types.RuleDef{
		ID: "end", Trigger: "on.phase.A",
		Effect: []types.EffectAction{{Action: "SET_GAME_STATE", Params: map[string]any{"state": "GameOver"}}},
	})
	sim := newSim(t, def, 1)

	var offered []string
	done, err := sim.StepWith(func(player int, legal []rules.LegalAction) (int, error) {
		for _, la := range legal {
			offered = append(offered, la.RuleID)
		}
		return 1, nil
	})
	if err != nil || done {
		t.Fatalf("done=%v err=%v", done, err)
	}
	if len(offered) != 2 || sim.State().CurrentState != "GameOver" {
		t.Errorf("offered=%v state=%s", offered, sim.State().CurrentState)
	}

	_, err = newSim(t, phaseDef(), 1).StepWith(func(int, []rules.LegalAction) (int, error) { return 9, nil })
	if !errors.Is(err, ErrBadChoice) {
		t.Errorf("err = %v, want ErrBadChoice", err)
	}
}

func TestSimulator_EvaluationErrorPropagates(t *testing.T) {
	def := phaseDef()
	def.Rules = []types.RuleDef{{
		ID: "broken", Trigger: "on.phase.A",
		Condition: rules.Path("shared_variables.missing"),
	}}
	sim := newSim(t, def, 2)

	if _, err := sim.Run(); err == nil {
		t.Fatal("expected evaluation error to halt the run")
	}
}

func TestSimulator_HandlerErrorPropagates(t *testing.T) {
	def := phaseDef()
	def.Rules = []types.RuleDef{{
		ID: "bad_move", Trigger: "on.phase.A",
		Effect: []types.EffectAction{{Action: "MOVE", Params: map[string]any{"from": "nowhere", "to": "pile"}}},
	}}
	sim := newSim(t, def, 2)

	_, err := sim.Run()
	if !errors.Is(err, state.ErrZoneNotFound) {
		t.Errorf("err = %v, want ErrZoneNotFound", err)
	}
}

func TestSimulator_CustomRegistry(t *testing.T) {
	def := phaseDef()
	def.Rules = []types.RuleDef{{ID: "custom", Trigger: "on.phase.A",
		Effect: []types.EffectAction{{Action: "STOP"}}}}

	reg := effects.DefaultRegistry()
	reg["STOP"] = func(gs *state.GameState, ctx *effects.Context, params map[string]any) error {
		gs.CurrentState = gs.EndState()
		return nil
	}
	sim := newSim(t, def, 2, WithRegistry(reg))

	out, err := sim.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Reason != ReasonEndState {
		t.Errorf("reason = %s", out.Reason)
	}
}

func TestNew_RejectsUndeclaredState(t *testing.T) {
	gs, err := state.Build(phaseDef(), 2, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	gs.CurrentState = "Nowhere"
	if _, err := New(gs); err == nil {
		t.Error("expected error for undeclared current state")
	}
}

func TestSimulator_Deterministic(t *testing.T) {
	def := phaseDef()
	def.Rules = append(def.Rules,
		types.RuleDef{ID: "alt_a", Trigger: "on.phase.A", Effect: logAction("alt")},
		types.RuleDef{ID: "alt_b", Trigger: "on.phase.B", Effect: logAction("alt")},
	)
	trace := func() []string {
		var rec events.Recorder
		bus := &events.Bus{}
		bus.Subscribe(rec.Record, events.ActionExecuted)
		sim := newSim(t, def, 2, WithEvents(bus), WithRNG(NewRNG(77)), WithMaxIterations(40))
		if _, err := sim.Run(); err != nil {
			t.Fatalf("Run: %v", err)
		}
		var ids []string
		for _, ev := range rec.Events() {
			ids = append(ids, ev.Data["rule"].(string))
		}
		return ids
	}
	a, b := trace(), trace()
	if len(a) != 40 || len(a) != len(b) {
		t.Fatalf("trace lengths %d, %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("traces diverge at %d: %s vs %s", i, a[i], b[i])
		}
	}
}
