package effects

import (
	"errors"
	"math/rand"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nathoo/cgmlsim/engine/rules"
	"github.com/nathoo/cgmlsim/engine/state"
	"github.com/nathoo/cgmlsim/types"
)

func testGame(t *testing.T) *state.GameState {
	t.Helper()
	def := &types.Definition{
		Meta: types.Meta{Name: "Effects", Players: types.PlayerBounds{Min: 2, Max: 2}},
		Components: types.Components{
			DeckTypes: []types.DeckTypeDef{{
				Name: "small",
				Composition: []types.CompositionEntry{{
					Type: "template", Template: "standard_suits",
					Values: []any{1, 2, 3}, Suits: []string{"S", "H"},
				}},
				RankHierarchy: []string{"1", "2", "3"},
			}},
			Decks: []types.DeckDef{{Name: "main", Type: "small"}},
			Zones: []types.ZoneDef{
				{Name: "deck", Type: "deck", OfDeck: "main"},
				{Name: "discard", Type: "discard"},
				{Name: "hand", Type: "hand", PerPlayer: true},
			},
			Variables: []types.VariableDef{
				{Name: "score", Initial: 0, PerPlayer: true},
				{Name: "round", Initial: 1},
			},
		},
		Flow: types.FlowDef{
			InitialState: "Play",
			States: map[string]types.StateDef{
				"Play":  {Name: "Play", Phases: []string{"Main"}},
				"Score": {Name: "Score", Phases: []string{"Count"}},
			},
		},
	}
	gs, err := state.Build(def, 2, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return gs
}

func newCtx(gs *state.GameState, player int) *Context {
	return &Context{
		Player: player,
		Eval:   rules.NewEvaluator(gs.Def),
		RNG:    rand.New(rand.NewSource(1)),
	}
}

func act(name string, params map[string]any) types.EffectAction {
	return types.EffectAction{Action: name, Params: params}
}

func TestExecute_MoveToActingPlayersHand(t *testing.T) {
	gs := testGame(t)
	x := NewExecutor(nil, nil)
	ctx := newCtx(gs, 1)

	err := x.Execute([]types.EffectAction{
		act(ActionMove, map[string]any{"from": "deck", "to": "hand", "count": 2}),
	}, gs, ctx)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if gs.Players[1].Zones["hand"].Len() != 2 {
		t.Errorf("player 1 hand = %d", gs.Players[1].Zones["hand"].Len())
	}
	if gs.Players[0].Zones["hand"].Len() != 0 {
		t.Error("player 0 hand should be untouched")
	}
	if gs.SharedZones["deck"].Len() != 4 {
		t.Errorf("deck = %d", gs.SharedZones["deck"].Len())
	}
	if len(ctx.Events) != 1 || ctx.Events[0].Type != "cards_moved" || ctx.Events[0].Data["count"] != 2 {
		t.Errorf("events = %+v", ctx.Events)
	}
}

func TestExecute_MoveDefaultsAndPaths(t *testing.T) {
	gs := testGame(t)
	x := NewExecutor(nil, nil)

	err := x.Execute([]types.EffectAction{
		act(ActionMove, map[string]any{"from_": "zones.deck", "to": "players.0.zones.hand"}),
		act(ActionMoveAll, map[string]any{"from": "zones.deck", "to": "discard"}),
	}, gs, newCtx(gs, 0))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gs.Players[0].Zones["hand"].Len() != 1 {
		t.Errorf("default count should move one card, hand = %d", gs.Players[0].Zones["hand"].Len())
	}
	if gs.SharedZones["deck"].Len() != 0 || gs.SharedZones["discard"].Len() != 5 {
		t.Errorf("deck=%d discard=%d", gs.SharedZones["deck"].Len(), gs.SharedZones["discard"].Len())
	}
}

func TestExecute_CountFromExpression(t *testing.T) {
	gs := testGame(t)
	x := NewExecutor(nil, nil)

	err := x.Execute([]types.EffectAction{
		act(ActionMove, map[string]any{
			"from":  "deck",
			"to":    "discard",
			"count": map[string]any{"path": "shared_variables.round"},
		}),
	}, gs, newCtx(gs, 0))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gs.SharedZones["discard"].Len() != 1 {
		t.Errorf("discard = %d, want 1", gs.SharedZones["discard"].Len())
	}
}

func TestExecute_DealAndDealAll(t *testing.T) {
	gs := testGame(t)
	x := NewExecutor(nil, nil)

	err := x.Execute([]types.EffectAction{
		act(ActionDeal, map[string]any{"from": "deck", "to": "hand", "count": 1}),
		act(ActionDealAll, map[string]any{"from": "deck", "to": "zones.hand"}),
	}, gs, newCtx(gs, 0))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gs.Players[0].Zones["hand"].Len() != 3 || gs.Players[1].Zones["hand"].Len() != 3 {
		t.Errorf("hands = %d, %d", gs.Players[0].Zones["hand"].Len(), gs.Players[1].Zones["hand"].Len())
	}
}

func TestExecute_Shuffle(t *testing.T) {
	gs := testGame(t)
	x := NewExecutor(nil, nil)
	before := map[string]bool{}
	for _, c := range gs.SharedZones["deck"].Cards {
		before[c.ID] = true
	}

	if err := x.Execute([]types.EffectAction{act(ActionShuffle, map[string]any{"target": "deck"})}, gs, newCtx(gs, 0)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	deck := gs.SharedZones["deck"]
	if deck.Len() != len(before) {
		t.Fatalf("deck size changed to %d", deck.Len())
	}
	for _, c := range deck.Cards {
		if !before[c.ID] {
			t.Errorf("unexpected card %s", c.ID)
		}
	}
}

func TestExecute_Variables(t *testing.T) {
	gs := testGame(t)
	x := NewExecutor(nil, nil)

	err := x.Execute([]types.EffectAction{
		act(ActionIncVariable, map[string]any{"name": "score", "amount": 3}),
		act(ActionIncVariable, map[string]any{"name": "score"}),
		act(ActionIncVariable, map[string]any{"name": "round", "amount": 2.0}),
		act(ActionSetVariable, map[string]any{"name": "leader", "value": map[string]any{"path": "players.1.name"}, "scope": "shared"}),
		act(ActionSetVariable, map[string]any{"name": "score", "value": 10, "scope": "player"}),
	}, gs, newCtx(gs, 1))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if got := gs.Players[1].Variables["score"]; got != 10 {
		t.Errorf("player 1 score = %v", got)
	}
	if got := gs.Players[0].Variables["score"]; got != 0 {
		t.Errorf("player 0 score = %v", got)
	}
	if got := gs.SharedVariables["round"]; got != 3 {
		t.Errorf("round = %v", got)
	}
	if got := gs.SharedVariables["leader"]; got != "Player 2" {
		t.Errorf("leader = %v", got)
	}
}

func TestExecute_IncVariableNonNumeric(t *testing.T) {
	gs := testGame(t)
	gs.SharedVariables["round"] = "late"
	err := NewExecutor(nil, nil).Execute([]types.EffectAction{
		act(ActionIncVariable, map[string]any{"name": "round"}),
	}, gs, newCtx(gs, 0))
	if !errors.Is(err, ErrBadParam) {
		t.Errorf("err = %v, want ErrBadParam", err)
	}
}

func TestExecute_BindThenRef(t *testing.T) {
	gs := testGame(t)
	x := NewExecutor(nil, nil)
	ctx := newCtx(gs, 0)

	err := x.Execute([]types.EffectAction{
		act(ActionBind, map[string]any{"name": "n", "value": map[string]any{"path": "zones.deck.card_count"}}),
		act(ActionSetVariable, map[string]any{"name": "seen", "value": map[string]any{"ref": "n"}, "scope": "shared"}),
	}, gs, ctx)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if ctx.Bindings["n"] != 6 {
		t.Errorf("binding n = %v", ctx.Bindings["n"])
	}
	if gs.SharedVariables["seen"] != 6 {
		t.Errorf("seen = %v", gs.SharedVariables["seen"])
	}
}

func TestExecute_SetGameState(t *testing.T) {
	gs := testGame(t)
	x := NewExecutor(nil, nil)

	if err := x.Execute([]types.EffectAction{act(ActionSetGameState, map[string]any{"state": "GameOver"})}, gs, newCtx(gs, 0)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gs.CurrentState != "GameOver" {
		t.Errorf("CurrentState = %q", gs.CurrentState)
	}

	err := x.Execute([]types.EffectAction{act(ActionSetGameState, map[string]any{"state": "Limbo"})}, gs, newCtx(gs, 0))
	if !errors.Is(err, ErrUnknownState) {
		t.Errorf("err = %v, want ErrUnknownState", err)
	}
	if gs.CurrentState != "GameOver" {
		t.Error("failed transition must not change state")
	}
}

func TestExecute_UnknownActionContinues(t *testing.T) {
	gs := testGame(t)
	core, logs := observer.New(zap.WarnLevel)
	x := NewExecutor(nil, zap.New(core))

	err := x.Execute([]types.EffectAction{
		act("TELEPORT", map[string]any{"where": "moon"}),
		act(ActionMove, map[string]any{"from": "deck", "to": "discard"}),
	}, gs, newCtx(gs, 0))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gs.SharedZones["discard"].Len() != 1 {
		t.Error("action after unknown one did not run")
	}
	if logs.FilterMessage("unknown effect action").Len() != 1 {
		t.Errorf("warnings = %d", logs.Len())
	}
}

func TestExecute_HandlerErrorStops(t *testing.T) {
	gs := testGame(t)
	x := NewExecutor(nil, nil)

	err := x.Execute([]types.EffectAction{
		act(ActionMove, map[string]any{"from": "graveyard", "to": "discard"}),
		act(ActionMove, map[string]any{"from": "deck", "to": "discard"}),
	}, gs, newCtx(gs, 0))
	if !errors.Is(err, state.ErrZoneNotFound) {
		t.Fatalf("err = %v, want ErrZoneNotFound", err)
	}
	if gs.SharedZones["discard"].Len() != 0 {
		t.Error("actions after a failing one must not run")
	}

	if err := x.Execute([]types.EffectAction{act(ActionMove, map[string]any{"to": "discard"})}, gs, newCtx(gs, 0)); !errors.Is(err, ErrMissingParam) {
		t.Errorf("err = %v, want ErrMissingParam", err)
	}
}

func TestExecute_CustomHandlerAndCleanParams(t *testing.T) {
	gs := testGame(t)
	x := NewExecutor(nil, nil)

	var got map[string]any
	x.Register("PEEK", func(gs *state.GameState, ctx *Context, params map[string]any) error {
		got = params
		return nil
	})
	if !x.Has("PEEK") || x.Has("NOPE") {
		t.Fatal("Has mismatch")
	}

	err := x.Execute([]types.EffectAction{
		act("PEEK", map[string]any{"action": "PEEK", "zone": "deck", "unset": nil}),
	}, gs, newCtx(gs, 0))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(got) != 1 || got["zone"] != "deck" {
		t.Errorf("params = %v", got)
	}
}

func TestExecute_Log(t *testing.T) {
	gs := testGame(t)
	ctx := newCtx(gs, 1)
	err := NewExecutor(nil, nil).Execute([]types.EffectAction{
		act(ActionLog, map[string]any{"message": "hello"}),
	}, gs, ctx)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(ctx.Events) != 1 || ctx.Events[0].Type != "log" || ctx.Events[0].Data["message"] != "hello" {
		t.Errorf("events = %+v", ctx.Events)
	}
}
