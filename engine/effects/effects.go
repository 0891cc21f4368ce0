// Package effects executes effect lists. Every mutation of game state made
// by a rule goes through a registered handler.
package effects

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/nathoo/cgmlsim/engine/rules"
	"github.com/nathoo/cgmlsim/engine/state"
	"github.com/nathoo/cgmlsim/types"
)

// Handler performs one effect action. params excludes the action name and
// any nil values.
type Handler func(gs *state.GameState, ctx *Context, params map[string]any) error

// Registry maps action names to handlers. It is open: hosts may add their
// own actions.
type Registry map[string]Handler

// Context is shared by every action of one effect list.
type Context struct {
	Player   int            // acting player id
	Bindings map[string]any // written by BIND, read through ref expressions
	Eval     *rules.Evaluator
	RNG      state.Rand
	Log      *zap.Logger

	// Events collects what handlers report, in order.
	Events []types.Event
}

// Emit records an event for the caller of Execute.
func (c *Context) Emit(typ string, data map[string]any) {
	c.Events = append(c.Events, types.Event{Type: typ, Data: data})
}

// Resolve turns a raw parameter into a value. Expression maps and parsed
// expressions are evaluated; anything else is returned verbatim.
func (c *Context) Resolve(gs *state.GameState, raw any) (any, error) {
	var expr *types.Expr
	switch v := raw.(type) {
	case *types.Expr:
		expr = v
	case map[string]any:
		parsed, err := rules.ParseExpr(v)
		if err != nil {
			return nil, err
		}
		expr = parsed
	default:
		return raw, nil
	}
	ev := c.Eval
	if ev == nil {
		ev = rules.NewEvaluator(gs.Def)
	}
	return ev.Operand(expr, gs, c.Bindings)
}

// Executor dispatches effect actions to handlers.
type Executor struct {
	registry Registry
	log      *zap.Logger
}

// NewExecutor creates an executor over reg. A nil registry means the
// built-in actions only.
func NewExecutor(reg Registry, log *zap.Logger) *Executor {
	if reg == nil {
		reg = DefaultRegistry()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{registry: reg, log: log}
}

// Register adds or replaces a handler.
func (x *Executor) Register(name string, h Handler) {
	x.registry[name] = h
}

// Has reports whether name is a registered action.
func (x *Executor) Has(name string) bool {
	_, ok := x.registry[name]
	return ok
}

// Execute runs actions in order against gs. An unregistered action is
// logged and skipped. A handler error stops the list.
func (x *Executor) Execute(actions []types.EffectAction, gs *state.GameState, ctx *Context) error {
	if ctx.Bindings == nil {
		ctx.Bindings = map[string]any{}
	}
	if ctx.Log == nil {
		ctx.Log = x.log
	}
	for i, a := range actions {
		h, ok := x.registry[a.Action]
		if !ok {
			x.log.Warn("unknown effect action",
				zap.String("action", a.Action), zap.Int("index", i))
			continue
		}
		if err := h(gs, ctx, cleanParams(a.Params)); err != nil {
			return fmt.Errorf("effect %d (%s): %w", i, a.Action, err)
		}
	}
	return nil
}

// cleanParams drops the action key and unset values.
func cleanParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if k == "action" || v == nil {
			continue
		}
		out[k] = v
	}
	return out
}
