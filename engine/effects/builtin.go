package effects

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nathoo/cgmlsim/engine/rules"
	"github.com/nathoo/cgmlsim/engine/state"
)

var (
	// ErrMissingParam is returned when a required parameter is absent.
	ErrMissingParam = errors.New("missing parameter")
	// ErrBadParam is returned when a parameter has the wrong type.
	ErrBadParam = errors.New("bad parameter")
	// ErrUnknownState is returned by SET_GAME_STATE for undeclared states.
	ErrUnknownState = errors.New("unknown flow state")
)

// Built-in action names.
const (
	ActionMove         = "MOVE"
	ActionMoveAll      = "MOVE_ALL"
	ActionShuffle      = "SHUFFLE"
	ActionDeal         = "DEAL"
	ActionDealAll      = "DEAL_ALL"
	ActionSetGameState = "SET_GAME_STATE"
	ActionSetVariable  = "SET_VARIABLE"
	ActionIncVariable  = "INC_VARIABLE"
	ActionBind         = "BIND"
	ActionLog          = "LOG"
)

// DefaultRegistry returns a fresh registry holding the built-in actions.
func DefaultRegistry() Registry {
	return Registry{
		ActionMove:         move,
		ActionMoveAll:      moveAll,
		ActionShuffle:      shuffle,
		ActionDeal:         deal,
		ActionDealAll:      dealAll,
		ActionSetGameState: setGameState,
		ActionSetVariable:  setVariable,
		ActionIncVariable:  incVariable,
		ActionBind:         bind,
		ActionLog:          logMessage,
	}
}

func move(gs *state.GameState, ctx *Context, params map[string]any) error {
	from, to, err := zonePair(gs, ctx, params)
	if err != nil {
		return err
	}
	count, err := intParam(gs, ctx, params, "count", 1)
	if err != nil {
		return err
	}
	n := state.Move(from, to, count)
	ctx.Emit("cards_moved", map[string]any{"from": from.Name, "to": to.Name, "count": n})
	return nil
}

func moveAll(gs *state.GameState, ctx *Context, params map[string]any) error {
	from, to, err := zonePair(gs, ctx, params)
	if err != nil {
		return err
	}
	n := state.MoveAll(from, to)
	ctx.Emit("cards_moved", map[string]any{"from": from.Name, "to": to.Name, "count": n})
	return nil
}

func shuffle(gs *state.GameState, ctx *Context, params map[string]any) error {
	raw, ok := firstParam(params, "target", "zone")
	if !ok {
		return fmt.Errorf("target: %w", ErrMissingParam)
	}
	z, err := zoneParam(gs, ctx, raw)
	if err != nil {
		return err
	}
	if ctx.RNG == nil {
		return fmt.Errorf("shuffle %s: no random source", z.Name)
	}
	state.Shuffle(z, ctx.RNG)
	ctx.Emit("zone_shuffled", map[string]any{"zone": z.Name})
	return nil
}

func deal(gs *state.GameState, ctx *Context, params map[string]any) error {
	from, toName, err := dealParams(gs, ctx, params)
	if err != nil {
		return err
	}
	count, err := intParam(gs, ctx, params, "count", 1)
	if err != nil {
		return err
	}
	return state.Deal(from, gs.Players, toName, count)
}

func dealAll(gs *state.GameState, ctx *Context, params map[string]any) error {
	from, toName, err := dealParams(gs, ctx, params)
	if err != nil {
		return err
	}
	return state.DealAll(from, gs.Players, toName)
}

func setGameState(gs *state.GameState, ctx *Context, params map[string]any) error {
	v, err := requireParam(gs, ctx, params, "state")
	if err != nil {
		return err
	}
	name, ok := v.(string)
	if !ok {
		return fmt.Errorf("state %v: %w", v, ErrBadParam)
	}
	if !gs.HasState(name) {
		return fmt.Errorf("%q: %w", name, ErrUnknownState)
	}
	prev := gs.CurrentState
	gs.CurrentState = name
	ctx.Emit("state_set", map[string]any{"from": prev, "to": name})
	return nil
}

func setVariable(gs *state.GameState, ctx *Context, params map[string]any) error {
	vars, name, err := variableTarget(gs, ctx, params)
	if err != nil {
		return err
	}
	v, err := requireParam(gs, ctx, params, "value")
	if err != nil {
		return err
	}
	vars[name] = v
	return nil
}

func incVariable(gs *state.GameState, ctx *Context, params map[string]any) error {
	vars, name, err := variableTarget(gs, ctx, params)
	if err != nil {
		return err
	}
	amount, err := intParam(gs, ctx, params, "amount", 1)
	if err != nil {
		return err
	}
	current := 0
	if v, ok := vars[name]; ok && v != nil {
		n, ok := rules.ToInt(v)
		if !ok {
			return fmt.Errorf("variable %q holds %T: %w", name, v, ErrBadParam)
		}
		current = n
	}
	vars[name] = current + amount
	return nil
}

func bind(gs *state.GameState, ctx *Context, params map[string]any) error {
	name, ok := params["name"].(string)
	if !ok || name == "" {
		return fmt.Errorf("name: %w", ErrMissingParam)
	}
	v, err := ctx.Resolve(gs, params["value"])
	if err != nil {
		return err
	}
	ctx.Bindings[name] = v
	return nil
}

func logMessage(gs *state.GameState, ctx *Context, params map[string]any) error {
	v, err := ctx.Resolve(gs, params["message"])
	if err != nil {
		return err
	}
	msg := fmt.Sprint(v)
	ctx.Log.Debug("effect log", zap.String("message", msg), zap.Int("player", ctx.Player))
	ctx.Emit("log", map[string]any{"message": msg, "player": ctx.Player})
	return nil
}

// variableTarget picks the map holding the named variable. scope "player"
// or "shared" is explicit; otherwise the acting player's variable wins when
// it exists.
func variableTarget(gs *state.GameState, ctx *Context, params map[string]any) (map[string]any, string, error) {
	name, ok := params["name"].(string)
	if !ok || name == "" {
		return nil, "", fmt.Errorf("name: %w", ErrMissingParam)
	}
	scope, _ := params["scope"].(string)
	p := gs.Player(ctx.Player)
	switch scope {
	case "shared":
		return gs.SharedVariables, name, nil
	case "player":
		if p == nil {
			return nil, "", fmt.Errorf("no acting player %d", ctx.Player)
		}
		return p.Variables, name, nil
	case "":
		if p != nil {
			if _, ok := p.Variables[name]; ok {
				return p.Variables, name, nil
			}
		}
		return gs.SharedVariables, name, nil
	}
	return nil, "", fmt.Errorf("scope %q: %w", scope, ErrBadParam)
}

func zonePair(gs *state.GameState, ctx *Context, params map[string]any) (*state.Zone, *state.Zone, error) {
	rawFrom, ok := firstParam(params, "from", "from_")
	if !ok {
		return nil, nil, fmt.Errorf("from: %w", ErrMissingParam)
	}
	rawTo, ok := params["to"]
	if !ok {
		return nil, nil, fmt.Errorf("to: %w", ErrMissingParam)
	}
	from, err := zoneParam(gs, ctx, rawFrom)
	if err != nil {
		return nil, nil, err
	}
	to, err := zoneParam(gs, ctx, rawTo)
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func dealParams(gs *state.GameState, ctx *Context, params map[string]any) (*state.Zone, string, error) {
	rawFrom, ok := firstParam(params, "from", "from_")
	if !ok {
		return nil, "", fmt.Errorf("from: %w", ErrMissingParam)
	}
	from, err := zoneParam(gs, ctx, rawFrom)
	if err != nil {
		return nil, "", err
	}
	to, ok := params["to"].(string)
	if !ok || to == "" {
		return nil, "", fmt.Errorf("to: %w", ErrMissingParam)
	}
	return from, state.ZoneName(to), nil
}

// zoneParam resolves a zone reference: a zone path string, or an
// expression yielding a zone or a zone path.
func zoneParam(gs *state.GameState, ctx *Context, raw any) (*state.Zone, error) {
	v, err := ctx.Resolve(gs, raw)
	if err != nil {
		return nil, err
	}
	switch z := v.(type) {
	case *state.Zone:
		return z, nil
	case string:
		return state.FindZone(gs, z, gs.Player(ctx.Player))
	}
	return nil, fmt.Errorf("zone reference %v (%T): %w", raw, v, ErrBadParam)
}

func intParam(gs *state.GameState, ctx *Context, params map[string]any, key string, def int) (int, error) {
	raw, ok := params[key]
	if !ok {
		return def, nil
	}
	v, err := ctx.Resolve(gs, raw)
	if err != nil {
		return 0, err
	}
	n, ok := rules.ToInt(v)
	if !ok {
		return 0, fmt.Errorf("%s %v: %w", key, v, ErrBadParam)
	}
	return n, nil
}

func requireParam(gs *state.GameState, ctx *Context, params map[string]any, key string) (any, error) {
	raw, ok := params[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrMissingParam)
	}
	return ctx.Resolve(gs, raw)
}

func firstParam(params map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := params[k]; ok {
			return v, true
		}
	}
	return nil, false
}
