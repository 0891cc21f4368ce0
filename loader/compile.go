package loader

import (
	"errors"
	"fmt"
	"sort"

	"github.com/nathoo/cgmlsim/engine/rules"
	"github.com/nathoo/cgmlsim/types"
)

// compile converts collected raw blocks into a Definition. Expression
// fields are parsed here so a malformed condition fails at load time.
func compile(coll *collector) (*types.Definition, error) {
	if coll.meta == nil {
		return nil, errors.New("no game metadata (meta / Game{}) found")
	}
	def := &types.Definition{Meta: compileMeta(coll.meta)}

	for _, e := range coll.deckTypes {
		dt, err := compileDeckType(e)
		if err != nil {
			return nil, fmt.Errorf("deck type %s: %w", e.name, err)
		}
		def.Components.DeckTypes = append(def.Components.DeckTypes, dt)
	}
	for _, e := range coll.decks {
		def.Components.Decks = append(def.Components.Decks, types.DeckDef{
			Name: e.name,
			Type: getString(e.body, "type"),
		})
	}
	for _, e := range coll.zones {
		def.Components.Zones = append(def.Components.Zones, compileZone(e))
	}
	for _, e := range coll.variables {
		initial, _ := first(e.body, "initial_value", "initial")
		def.Components.Variables = append(def.Components.Variables, types.VariableDef{
			Name:      e.name,
			Initial:   initial,
			PerPlayer: getBool(e.body, "per_player", false),
		})
	}

	for i, e := range coll.rules {
		rule, err := compileRule(e, i+1)
		if err != nil {
			return nil, fmt.Errorf("compiling rule %s: %w", e.name, err)
		}
		def.Rules = append(def.Rules, rule)
	}

	flow, err := compileFlow(coll)
	if err != nil {
		return nil, fmt.Errorf("flow: %w", err)
	}
	def.Flow = flow

	setup, err := compileActions(coll.setup)
	if err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}
	def.Setup = setup
	return def, nil
}

func compileMeta(m map[string]any) types.Meta {
	meta := types.Meta{
		Name:    getString(m, "name"),
		Version: getString(m, "version"),
		Author:  getString(m, "author"),
	}
	switch p := m["players"].(type) {
	case map[string]any:
		meta.Players.Min = getInt(p, "min")
		meta.Players.Max = getInt(p, "max")
	default:
		// A bare number fixes the seat count.
		if n, ok := rules.ToInt(p); ok {
			meta.Players = types.PlayerBounds{Min: n, Max: n}
		}
	}
	return meta
}

func compileDeckType(e entry) (types.DeckTypeDef, error) {
	dt := types.DeckTypeDef{Name: e.name}
	for i, raw := range getList(e.body, "composition") {
		m, ok := raw.(map[string]any)
		if !ok {
			return dt, fmt.Errorf("composition %d: want a mapping, got %T", i, raw)
		}
		ce := types.CompositionEntry{
			Type:     getString(m, "type"),
			Template: getString(m, "template"),
			Values:   getList(m, "values"),
			Suits:    stringList(getList(m, "suits")),
		}
		for j, rc := range getList(m, "cards") {
			cm, ok := rc.(map[string]any)
			if !ok {
				return dt, fmt.Errorf("composition %d card %d: want a mapping, got %T", i, j, rc)
			}
			props, _ := cm["properties"].(map[string]any)
			ce.Cards = append(ce.Cards, types.CardDef{
				ID:         getString(cm, "id"),
				Name:       getString(cm, "name"),
				Properties: props,
				Count:      getInt(cm, "count"),
			})
		}
		dt.Composition = append(dt.Composition, ce)
	}
	dt.RankHierarchy = stringList(getList(e.body, "rank_hierarchy"))
	return dt, nil
}

func compileZone(e entry) types.ZoneDef {
	zd := types.ZoneDef{
		Name:      e.name,
		Type:      getString(e.body, "type"),
		PerPlayer: getBool(e.body, "per_player", false),
		OfDeck:    getString(e.body, "of_deck"),
		Ordering:  getString(e.body, "ordering"),
	}
	if vis, ok := e.body["visibility"].(map[string]any); ok {
		zd.Visibility = make(map[string]string, len(vis))
		for k, v := range vis {
			zd.Visibility[k] = fmt.Sprint(v)
		}
	}
	return zd
}

func compileRule(e entry, order int) (types.RuleDef, error) {
	rule := types.RuleDef{
		ID:          e.name,
		Trigger:     getString(e.body, "trigger"),
		SourceOrder: order,
	}
	if rule.ID == "" {
		rule.ID = fmt.Sprintf("rule_%d", order)
	}
	if raw, ok := e.body["condition"]; ok && raw != nil {
		cond, err := rules.ParseExpr(raw)
		if err != nil {
			return rule, fmt.Errorf("condition: %w", err)
		}
		rule.Condition = cond
	}
	rawEffects, _ := first(e.body, "effect", "effects")
	effects, err := compileActions(maps(rawEffects))
	if err != nil {
		return rule, fmt.Errorf("effect: %w", err)
	}
	rule.Effect = effects
	return rule, nil
}

// compileFlow builds the state graph. A flow that declares no states but a
// turn_structure gets a single state named after initial_state whose
// phases are the turn structure.
func compileFlow(coll *collector) (types.FlowDef, error) {
	flow := types.FlowDef{
		InitialState: getString(coll.flow, "initial_state"),
		EndState:     getString(coll.flow, "end_state"),
		States:       map[string]types.StateDef{},
	}
	for _, e := range coll.states {
		if _, dup := flow.States[e.name]; dup {
			return flow, fmt.Errorf("state %q declared twice", e.name)
		}
		flow.States[e.name] = types.StateDef{
			Name:   e.name,
			Phases: stringList(getList(e.body, "phases")),
		}
		flow.StateOrder = append(flow.StateOrder, e.name)
	}

	if len(flow.StateOrder) == 0 {
		if turn := stringList(getList(coll.flow, "turn_structure")); len(turn) > 0 {
			name := flow.InitialState
			if name == "" {
				name = "Playing"
			}
			flow.States[name] = types.StateDef{Name: name, Phases: turn}
			flow.StateOrder = []string{name}
		}
	}
	if flow.InitialState == "" && len(flow.StateOrder) > 0 {
		flow.InitialState = flow.StateOrder[0]
	}

	for i, t := range coll.transitions {
		td := types.TransitionDef{From: getString(t, "from"), To: getString(t, "to")}
		if raw, ok := t["condition"]; ok && raw != nil {
			cond, err := rules.ParseExpr(raw)
			if err != nil {
				return flow, fmt.Errorf("transition %d condition: %w", i, err)
			}
			td.Condition = cond
		}
		flow.Transitions = append(flow.Transitions, td)
	}
	return flow, nil
}

// compileActions splits each action map into its name and parameters.
// Parameter values stay raw; expressions among them are evaluated when the
// action runs.
func compileActions(list []map[string]any) ([]types.EffectAction, error) {
	var out []types.EffectAction
	for i, m := range list {
		name := getString(m, "action")
		if name == "" {
			return nil, fmt.Errorf("action %d: missing action name", i)
		}
		params := make(map[string]any, len(m))
		for k, v := range m {
			if k != "action" {
				params[k] = v
			}
		}
		out = append(out, types.EffectAction{Action: name, Params: params})
	}
	return out, nil
}

func getString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func getBool(m map[string]any, key string, def bool) bool {
	if b, ok := m[key].(bool); ok {
		return b
	}
	return def
}

func getInt(m map[string]any, key string) int {
	n, _ := rules.ToInt(m[key])
	return n
}

func getList(m map[string]any, key string) []any {
	l, _ := m[key].([]any)
	return l
}

func first(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

// stringList stringifies each element, so rank 10 and "10" agree.
func stringList(l []any) []string {
	if len(l) == 0 {
		return nil
	}
	out := make([]string, len(l))
	for i, v := range l {
		out[i] = fmt.Sprint(v)
	}
	return out
}

// maps keeps the mapping elements of a list. A single mapping counts as a
// one-element list.
func maps(raw any) []map[string]any {
	switch v := raw.(type) {
	case map[string]any:
		return []map[string]any{v}
	case []map[string]any:
		return v
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

// sortedKeys returns the keys of m in order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
