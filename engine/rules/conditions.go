// Package rules evaluates expression trees against game state and collects
// the rules that are legal in a phase.
package rules

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/nathoo/cgmlsim/engine/resolve"
	"github.com/nathoo/cgmlsim/engine/state"
	"github.com/nathoo/cgmlsim/types"
)

var (
	// ErrIncomparable is returned when two values have no ordering.
	ErrIncomparable = errors.New("values are not comparable")
	// ErrNotNumeric is returned when an aggregate meets a non-number.
	ErrNotNumeric = errors.New("value is not numeric")
	// ErrUncountable is returned when count meets a value without a length.
	ErrUncountable = errors.New("value has no length")
)

// Evaluator evaluates expressions. It never mutates the state it reads.
type Evaluator struct {
	Def *types.Definition

	// ranks maps a stringified rank label to its position in the first
	// declared deck type's hierarchy. Nil when there is none.
	ranks map[string]int
}

// NewEvaluator creates an evaluator for def. Only the first declared deck
// type's rank hierarchy is used for rank-aware comparison.
func NewEvaluator(def *types.Definition) *Evaluator {
	e := &Evaluator{Def: def}
	if def != nil && len(def.Components.DeckTypes) > 0 {
		h := def.Components.DeckTypes[0].RankHierarchy
		if len(h) > 0 {
			e.ranks = make(map[string]int, len(h))
			for i, r := range h {
				if _, dup := e.ranks[r]; !dup {
					e.ranks[r] = i
				}
			}
		}
	}
	return e
}

// Operand evaluates expr to a value. Comparisons and boolean combinators
// yield bools.
func (e *Evaluator) Operand(expr *types.Expr, gs *state.GameState, bindings map[string]any) (any, error) {
	if expr == nil {
		return nil, nil
	}
	switch expr.Op {
	case types.OpValue:
		return expr.Value, nil

	case types.OpPath:
		var root any
		if gs != nil {
			root = gs
		}
		return resolve.Path(root, expr.Path)

	case types.OpRef:
		return bindings[expr.Ref], nil

	case types.OpEqual, types.OpGreaterThan, types.OpLessThan,
		types.OpAnd, types.OpOr, types.OpNot:
		return e.Condition(expr, gs, bindings)

	case types.OpMax, types.OpMin:
		return e.extreme(expr, gs, bindings)

	case types.OpSum:
		return e.sum(expr, gs, bindings)

	case types.OpCount:
		if len(expr.Args) == 1 {
			v, err := e.Operand(expr.Args[0], gs, bindings)
			if err != nil {
				return nil, err
			}
			return length(v)
		}
		return length(expr.Value)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownOperator, expr.Op)
}

// Condition evaluates expr as a boolean. A nil expression holds. Values that
// are not comparisons or combinators are reduced by truthiness.
func (e *Evaluator) Condition(expr *types.Expr, gs *state.GameState, bindings map[string]any) (bool, error) {
	if expr == nil {
		return true, nil
	}
	switch expr.Op {
	case types.OpAnd:
		for i, sub := range expr.Args {
			ok, err := e.Condition(sub, gs, bindings)
			if err != nil {
				return false, fmt.Errorf("and[%d]: %w", i, err)
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil

	case types.OpOr:
		for i, sub := range expr.Args {
			ok, err := e.Condition(sub, gs, bindings)
			if err != nil {
				return false, fmt.Errorf("or[%d]: %w", i, err)
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case types.OpNot:
		if len(expr.Args) != 1 {
			return false, fmt.Errorf("not: %w", ErrMalformedExpr)
		}
		ok, err := e.Condition(expr.Args[0], gs, bindings)
		return !ok, err

	case types.OpEqual, types.OpGreaterThan, types.OpLessThan:
		if len(expr.Args) != 2 {
			return false, fmt.Errorf("%s: want two operands: %w", expr.Op, ErrMalformedExpr)
		}
		a, err := e.Operand(expr.Args[0], gs, bindings)
		if err != nil {
			return false, err
		}
		b, err := e.Operand(expr.Args[1], gs, bindings)
		if err != nil {
			return false, err
		}
		return e.Compare(expr.Op, a, b)
	}

	v, err := e.Operand(expr, gs, bindings)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

// Compare applies a comparison operator after rank coercion.
func (e *Evaluator) Compare(op types.Op, a, b any) (bool, error) {
	a, b = e.rankCoerce(a, b)
	switch op {
	case types.OpEqual:
		return equal(a, b), nil
	case types.OpGreaterThan, types.OpLessThan:
		c, err := order(a, b)
		if err != nil {
			return false, fmt.Errorf("%s(%v, %v): %w", op, a, b, err)
		}
		if op == types.OpGreaterThan {
			return c > 0, nil
		}
		return c < 0, nil
	}
	return false, fmt.Errorf("%w: %s is not a comparison", ErrUnknownOperator, op)
}

// rankCoerce replaces a and b by their hierarchy positions when both,
// stringified, are rank labels.
func (e *Evaluator) rankCoerce(a, b any) (any, any) {
	if e.ranks == nil {
		return a, b
	}
	sa, ok := stringify(a)
	if !ok {
		return a, b
	}
	sb, ok := stringify(b)
	if !ok {
		return a, b
	}
	ia, okA := e.ranks[sa]
	ib, okB := e.ranks[sb]
	if !okA || !okB {
		return a, b
	}
	return ia, ib
}

func (e *Evaluator) extreme(expr *types.Expr, gs *state.GameState, bindings map[string]any) (any, error) {
	if len(expr.Args) == 0 {
		return nil, fmt.Errorf("%s of no operands: %w", expr.Op, ErrMalformedExpr)
	}
	var best float64
	allInt := true
	for i, arg := range expr.Args {
		v, err := e.Operand(arg, gs, bindings)
		if err != nil {
			return nil, err
		}
		n, isInt, ok := toNumber(v)
		if !ok {
			return nil, fmt.Errorf("%s[%d] = %v: %w", expr.Op, i, v, ErrNotNumeric)
		}
		allInt = allInt && isInt
		switch {
		case i == 0:
			best = n
		case expr.Op == types.OpMax && n > best:
			best = n
		case expr.Op == types.OpMin && n < best:
			best = n
		}
	}
	return numberResult(best, allInt), nil
}

func (e *Evaluator) sum(expr *types.Expr, gs *state.GameState, bindings map[string]any) (any, error) {
	var total float64
	allInt := true
	add := func(v any) error {
		n, isInt, ok := toNumber(v)
		if !ok {
			return fmt.Errorf("sum over %v: %w", v, ErrNotNumeric)
		}
		total += n
		allInt = allInt && isInt
		return nil
	}
	for _, arg := range expr.Args {
		v, err := e.Operand(arg, gs, bindings)
		if err != nil {
			return nil, err
		}
		if items, ok := sequence(v); ok {
			for _, item := range items {
				if err := add(item); err != nil {
					return nil, err
				}
			}
			continue
		}
		if err := add(v); err != nil {
			return nil, err
		}
	}
	return numberResult(total, allInt), nil
}

// Truthy reduces a value to a boolean: nil, false, zero numbers, empty
// strings and empty collections are false.
func Truthy(v any) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	if n, _, ok := toNumber(v); ok {
		return n != 0
	}
	if z, ok := v.(*state.Zone); ok {
		return z != nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

func equal(a, b any) bool {
	if na, _, ok := toNumber(a); ok {
		if nb, _, ok := toNumber(b); ok {
			return na == nb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func order(a, b any) (int, error) {
	if na, _, ok := toNumber(a); ok {
		if nb, _, ok := toNumber(b); ok {
			switch {
			case na < nb:
				return -1, nil
			case na > nb:
				return 1, nil
			}
			return 0, nil
		}
		return 0, ErrIncomparable
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return strings.Compare(sa, sb), nil
	}
	return 0, ErrIncomparable
}

// length returns the number of elements of a collection. Zones count their
// cards.
func length(v any) (int, error) {
	if v == nil {
		return 0, nil
	}
	if z, ok := v.(*state.Zone); ok {
		return z.Len(), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return rv.Len(), nil
	}
	return 0, fmt.Errorf("count of %T: %w", v, ErrUncountable)
}

// sequence returns the elements of a slice or array value.
func sequence(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if l, ok := v.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// toNumber converts any Go numeric to float64, reporting whether it was an
// integer type. Bools are not numbers.
func toNumber(v any) (float64, bool, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true, true
	case int8:
		return float64(n), true, true
	case int16:
		return float64(n), true, true
	case int32:
		return float64(n), true, true
	case int64:
		return float64(n), true, true
	case uint:
		return float64(n), true, true
	case uint8:
		return float64(n), true, true
	case uint16:
		return float64(n), true, true
	case uint32:
		return float64(n), true, true
	case uint64:
		return float64(n), true, true
	case float32:
		return float64(n), false, true
	case float64:
		return n, false, true
	}
	return 0, false, false
}

// numberResult returns an int when every input was an integer, or when a
// float result is integral. Lua numbers decode as float64, so this keeps
// counters integral across the loaders.
func numberResult(n float64, allInt bool) any {
	if allInt || (n == math.Trunc(n) && math.Abs(n) < 1<<53) {
		return int(n)
	}
	return n
}

// stringify renders scalars the way rank labels are written.
func stringify(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case bool:
		return strconv.FormatBool(s), true
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	}
	if n, isInt, ok := toNumber(v); ok && isInt {
		if u, isUint := v.(uint64); isUint {
			return strconv.FormatUint(u, 10), true
		}
		return strconv.FormatInt(int64(n), 10), true
	}
	return "", false
}

// ToInt converts a numeric value to int. Used by effect handlers for
// counts and amounts.
func ToInt(v any) (int, bool) {
	n, _, ok := toNumber(v)
	if !ok {
		return 0, false
	}
	return int(n), true
}
