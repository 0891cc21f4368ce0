package loader

import (
	"reflect"
	"testing"

	lua "github.com/yuin/gopher-lua"

	"github.com/nathoo/cgmlsim/engine/rules"
	"github.com/nathoo/cgmlsim/types"
)

// newTestVM creates a sandboxed Lua VM with the API registered and a fresh collector.
func newTestVM() (*lua.LState, *collector) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibs(L)
	sandbox(L)
	coll := &collector{}
	registerAPI(L, coll)
	return L, coll
}

// evalLua runs src, which must return one value, and converts the result.
func evalLua(t *testing.T, src string) any {
	t.Helper()
	L, _ := newTestVM()
	defer L.Close()
	if err := L.DoString(src); err != nil {
		t.Fatal(err)
	}
	return toGoValue(L.Get(-1))
}

func TestConditionHelpers(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want *types.Expr
	}{
		{
			"equal path and literal",
			`return Equal(PathOf("current_phase"), "Draw")`,
			rules.Eq(rules.Path("current_phase"), rules.Value("Draw")),
		},
		{
			"not greater",
			`return Not(GreaterThan(Ref("player"), 1))`,
			rules.Not(rules.Gt(rules.Ref("player"), rules.Value(1))),
		},
		{
			"or of and",
			`return Or(And(true, LessThan(1, 2)), false)`,
			rules.Or(rules.And(rules.Value(true), rules.Lt(rules.Value(1), rules.Value(2))), rules.Value(false)),
		},
		{
			"aggregates",
			`return Sum(Max(1, 5), Min(PathOf("a"), 3))`,
			rules.Sum(rules.Max(rules.Value(1), rules.Value(5)), rules.Min(rules.Path("a"), rules.Value(3))),
		},
		{
			"count of path",
			`return Count(PathOf("players.0.zones.hand.cards"))`,
			rules.Count(rules.Path("players.0.zones.hand.cards")),
		},
		{
			"explicit value",
			`return Value("literal")`,
			rules.Value("literal"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rules.ParseExpr(evalLua(t, tt.src))
			if err != nil {
				t.Fatalf("ParseExpr: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEffectHelpers(t *testing.T) {
	tests := []struct {
		src  string
		want map[string]any
	}{
		{`return Move("deck", "hand", 2)`, map[string]any{"action": "MOVE", "from": "deck", "to": "hand", "count": 2}},
		{`return Move { from = "a", to = "b" }`, map[string]any{"action": "MOVE", "from": "a", "to": "b"}},
		{`return MoveAll("a", "b")`, map[string]any{"action": "MOVE_ALL", "from": "a", "to": "b"}},
		{`return Shuffle("zones.deck")`, map[string]any{"action": "SHUFFLE", "target": "zones.deck"}},
		{`return Deal("deck", "zones.hand", 5)`, map[string]any{"action": "DEAL", "from": "deck", "to": "zones.hand", "count": 5}},
		{`return DealAll("main", "zones.hand")`, map[string]any{"action": "DEAL_ALL", "from_deck": "main", "to": "zones.hand"}},
		{`return SetGameState("End")`, map[string]any{"action": "SET_GAME_STATE", "state": "End"}},
		{`return SetVariable("x", 3, "shared")`, map[string]any{"action": "SET_VARIABLE", "name": "x", "value": 3, "scope": "shared"}},
		{`return IncVariable("x")`, map[string]any{"action": "INC_VARIABLE", "name": "x"}},
		{`return Bind("top", PathOf("zones.deck.top_card"))`, map[string]any{"action": "BIND", "name": "top", "value": map[string]any{"path": "zones.deck.top_card"}}},
		{`return Log("hello")`, map[string]any{"action": "LOG", "message": "hello"}},
		{`return Action("DRAW_UNTIL", { n = 7 })`, map[string]any{"action": "DRAW_UNTIL", "n": 7}},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got := evalLua(t, tt.src)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestOnPhase(t *testing.T) {
	if got := evalLua(t, `return OnPhase("Draw")`); got != "on.phase.Draw" {
		t.Errorf("OnPhase = %v", got)
	}
}

func TestCompileMeta(t *testing.T) {
	meta := compileMeta(map[string]any{
		"name":    "Go Fish",
		"version": "2",
		"author":  "someone",
		"players": map[string]any{"min": 2, "max": 6},
	})
	want := types.Meta{Name: "Go Fish", Version: "2", Author: "someone", Players: types.PlayerBounds{Min: 2, Max: 6}}
	if meta != want {
		t.Errorf("meta = %+v, want %+v", meta, want)
	}
}

func TestCompileDeckType_Cards(t *testing.T) {
	dt, err := compileDeckType(entry{name: "uno", body: map[string]any{
		"composition": []any{
			map[string]any{"type": "cards", "cards": []any{
				map[string]any{"id": "skip", "name": "Skip", "count": 2, "properties": map[string]any{"color": "red"}},
			}},
		},
		"rank_hierarchy": []any{1, "Skip"},
	}})
	if err != nil {
		t.Fatalf("compileDeckType: %v", err)
	}
	card := dt.Composition[0].Cards[0]
	if card.ID != "skip" || card.Count != 2 || card.Properties["color"] != "red" {
		t.Errorf("card = %+v", card)
	}
	if !reflect.DeepEqual(dt.RankHierarchy, []string{"1", "Skip"}) {
		t.Errorf("ranks = %v", dt.RankHierarchy)
	}

	if _, err := compileDeckType(entry{name: "bad", body: map[string]any{"composition": []any{"oops"}}}); err == nil {
		t.Error("expected error for non-mapping composition entry")
	}
}

func TestCompileActions(t *testing.T) {
	got, err := compileActions([]map[string]any{{"action": "LOG", "message": "m"}})
	if err != nil {
		t.Fatal(err)
	}
	want := []types.EffectAction{{Action: "LOG", Params: map[string]any{"message": "m"}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}

	if _, err := compileActions([]map[string]any{{"message": "m"}}); err == nil {
		t.Error("expected error for missing action name")
	}
}

func TestCompileRule_DefaultsID(t *testing.T) {
	rule, err := compileRule(entry{body: map[string]any{"trigger": "on.phase.p"}}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if rule.ID != "rule_3" || rule.SourceOrder != 3 {
		t.Errorf("rule = %+v", rule)
	}
}

func TestCompileFlow_DuplicateState(t *testing.T) {
	coll := &collector{states: []entry{
		{name: "A", body: map[string]any{}},
		{name: "A", body: map[string]any{}},
	}}
	if _, err := compileFlow(coll); err == nil {
		t.Error("expected error for duplicate state")
	}
}
