package loader

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/nathoo/cgmlsim/engine/rules"
)

// registerAPI registers all Lua constructors and helpers as globals.
func registerAPI(L *lua.LState, coll *collector) {
	registerConstructors(L, coll)
	registerConditionHelpers(L)
	registerEffectHelpers(L)
}

func registerConstructors(L *lua.LState, coll *collector) {
	// Game { name = "...", players = { min = 2, max = 4 } }
	L.SetGlobal("Game", L.NewFunction(func(L *lua.LState) int {
		coll.meta = tableToMap(L.CheckTable(1))
		return 0
	}))

	// Flow { initial_state = "...", end_state = "...", turn_structure = {...} }
	L.SetGlobal("Flow", L.NewFunction(func(L *lua.LState) int {
		coll.flow = tableToMap(L.CheckTable(1))
		return 0
	}))

	// Named blocks are curried: DeckType "id" { ... }.
	named(L, "DeckType", func(e entry) { coll.deckTypes = append(coll.deckTypes, e) })
	named(L, "Deck", func(e entry) { coll.decks = append(coll.decks, e) })
	named(L, "Zone", func(e entry) { coll.zones = append(coll.zones, e) })
	named(L, "PlayerZone", func(e entry) {
		e.body["per_player"] = true
		coll.zones = append(coll.zones, e)
	})
	named(L, "Variable", func(e entry) { coll.variables = append(coll.variables, e) })
	named(L, "PlayerVariable", func(e entry) {
		e.body["per_player"] = true
		coll.variables = append(coll.variables, e)
	})
	named(L, "State", func(e entry) { coll.states = append(coll.states, e) })
	named(L, "Rule", func(e entry) { coll.rules = append(coll.rules, e) })

	// Transition { from = "A", to = "B", condition = ... }
	L.SetGlobal("Transition", L.NewFunction(func(L *lua.LState) int {
		coll.transitions = append(coll.transitions, tableToMap(L.CheckTable(1)))
		return 0
	}))

	// Setup { Shuffle("deck"), DealAll { from_deck = "main", to = "zones.hand" } }
	L.SetGlobal("Setup", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		for i := 1; i <= tbl.MaxN(); i++ {
			m, ok := toGoValue(tbl.RawGetInt(i)).(map[string]any)
			if !ok {
				L.ArgError(1, "setup entries must be action tables")
				return 0
			}
			coll.setup = append(coll.setup, m)
		}
		return 0
	}))

	// OnPhase("Battle") returns the trigger string "on.phase.Battle".
	L.SetGlobal("OnPhase", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(rules.PhaseTrigger(L.CheckString(1))))
		return 1
	}))
}

// named registers a curried constructor: Name "id" { ... }.
func named(L *lua.LState, global string, add func(entry)) {
	L.SetGlobal(global, L.NewFunction(func(L *lua.LState) int {
		id := L.CheckString(1)
		L.Push(L.NewFunction(func(L *lua.LState) int {
			body := tableToMap(L.OptTable(1, L.NewTable()))
			add(entry{name: id, body: body})
			return 0
		}))
		return 1
	}))
}

// Condition helpers build the same expression tables a YAML file would
// hold, so both formats go through one parser.
func registerConditionHelpers(L *lua.LState) {
	// PathOf("players.0.zones.hand")
	L.SetGlobal("PathOf", L.NewFunction(func(L *lua.LState) int {
		L.Push(single(L, "path", lua.LString(L.CheckString(1))))
		return 1
	}))

	// Ref("player")
	L.SetGlobal("Ref", L.NewFunction(func(L *lua.LState) int {
		L.Push(single(L, "ref", lua.LString(L.CheckString(1))))
		return 1
	}))

	// Value(x) forces x to be a literal.
	L.SetGlobal("Value", L.NewFunction(func(L *lua.LState) int {
		L.Push(single(L, "value", L.CheckAny(1)))
		return 1
	}))

	// Equal(a, b), GreaterThan(a, b), LessThan(a, b)
	for global, op := range map[string]string{
		"Equal":       "equal",
		"GreaterThan": "greaterThan",
		"LessThan":    "lessThan",
	} {
		op := op
		L.SetGlobal(global, L.NewFunction(func(L *lua.LState) int {
			args := L.NewTable()
			args.Append(L.CheckAny(1))
			args.Append(L.CheckAny(2))
			L.Push(single(L, op, args))
			return 1
		}))
	}

	// And(...), Or(...), Sum(...), Max(...), Min(...)
	for global, op := range map[string]string{
		"And": "and",
		"Or":  "or",
		"Sum": "sum",
		"Max": "max",
		"Min": "min",
	} {
		op := op
		L.SetGlobal(global, L.NewFunction(func(L *lua.LState) int {
			args := L.NewTable()
			for i := 1; i <= L.GetTop(); i++ {
				args.Append(L.Get(i))
			}
			L.Push(single(L, op, args))
			return 1
		}))
	}

	// Not(condition)
	L.SetGlobal("Not", L.NewFunction(func(L *lua.LState) int {
		L.Push(single(L, "not", L.CheckAny(1)))
		return 1
	}))

	// Count(expr) counts the evaluated result of expr.
	L.SetGlobal("Count", L.NewFunction(func(L *lua.LState) int {
		L.Push(single(L, "count", L.CheckAny(1)))
		return 1
	}))
}

func registerEffectHelpers(L *lua.LState) {
	// Each helper takes either a parameter table, Move { from = ..., to = ... },
	// or positional arguments in the listed order, Move("deck", "hand", 2).
	helpers := []struct {
		global, action string
		positional     []string
	}{
		{"Move", "MOVE", []string{"from", "to", "count"}},
		{"MoveAll", "MOVE_ALL", []string{"from", "to"}},
		{"Shuffle", "SHUFFLE", []string{"target"}},
		{"Deal", "DEAL", []string{"from", "to", "count"}},
		{"DealAll", "DEAL_ALL", []string{"from_deck", "to"}},
		{"SetGameState", "SET_GAME_STATE", []string{"state"}},
		{"SetVariable", "SET_VARIABLE", []string{"name", "value", "scope"}},
		{"IncVariable", "INC_VARIABLE", []string{"name", "amount", "scope"}},
		{"Bind", "BIND", []string{"name", "value"}},
		{"Log", "LOG", []string{"message"}},
	}
	for _, h := range helpers {
		h := h
		L.SetGlobal(h.global, L.NewFunction(func(L *lua.LState) int {
			L.Push(actionTable(L, h.action, h.positional, 1))
			return 1
		}))
	}

	// Action("CUSTOM", { ... }) builds an action for a handler registered by
	// the host.
	L.SetGlobal("Action", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		L.Push(actionTable(L, name, nil, 2))
		return 1
	}))
}

// actionTable builds { action = name, ... } from the arguments starting at
// index base.
func actionTable(L *lua.LState, name string, positional []string, base int) *lua.LTable {
	tbl := L.NewTable()
	if params, ok := L.Get(base).(*lua.LTable); ok {
		params.ForEach(func(k, v lua.LValue) {
			tbl.RawSet(k, v)
		})
	} else {
		for i, key := range positional {
			if v := L.Get(base + i); v != lua.LNil {
				tbl.RawSetString(key, v)
			}
		}
	}
	tbl.RawSetString("action", lua.LString(name))
	return tbl
}

func single(L *lua.LState, key string, v lua.LValue) *lua.LTable {
	tbl := L.NewTable()
	tbl.RawSetString(key, v)
	return tbl
}

// toGoValue converts a Lua value to a Go value recursively. Tables with a
// sequence part become lists; other tables become maps.
func toGoValue(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		f := float64(val)
		if f == float64(int(f)) {
			return int(f)
		}
		return f
	case lua.LString:
		return string(val)
	case *lua.LTable:
		if n := val.MaxN(); n > 0 {
			arr := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				arr = append(arr, toGoValue(val.RawGetInt(i)))
			}
			return arr
		}
		return tableToMap(val)
	}
	return nil
}

func tableToMap(tbl *lua.LTable) map[string]any {
	m := map[string]any{}
	if tbl == nil {
		return m
	}
	tbl.ForEach(func(k, v lua.LValue) {
		if ks, ok := k.(lua.LString); ok {
			m[string(ks)] = toGoValue(v)
		}
	})
	return m
}
