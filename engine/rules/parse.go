package rules

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nathoo/cgmlsim/types"
)

var (
	// ErrUnknownOperator marks an expression map with an unrecognised key.
	ErrUnknownOperator = errors.New("unknown expression operator")
	// ErrAmbiguousExpr marks an expression map carrying more than one operator.
	ErrAmbiguousExpr = errors.New("ambiguous expression")
	// ErrMalformedExpr marks an operator with the wrong operand shape.
	ErrMalformedExpr = errors.New("malformed expression")
)

// operatorKeys maps every accepted spelling to its operator.
var operatorKeys = map[string]types.Op{
	"value":         types.OpValue,
	"path":          types.OpPath,
	"ref":           types.OpRef,
	"equal":         types.OpEqual,
	"isEqual":       types.OpEqual,
	"greaterThan":   types.OpGreaterThan,
	"isGreaterThan": types.OpGreaterThan,
	"lessThan":      types.OpLessThan,
	"isLessThan":    types.OpLessThan,
	"and":           types.OpAnd,
	"and_":          types.OpAnd,
	"or":            types.OpOr,
	"or_":           types.OpOr,
	"not":           types.OpNot,
	"not_":          types.OpNot,
	"max":           types.OpMax,
	"max_":          types.OpMax,
	"min":           types.OpMin,
	"min_":          types.OpMin,
	"sum":           types.OpSum,
	"sum_":          types.OpSum,
	"count":         types.OpCount,
}

// ParseExpr converts a loosely typed expression (as decoded from YAML or
// Lua) into an expression tree. Maps must carry exactly one operator key.
// Any other value becomes a literal.
func ParseExpr(raw any) (*types.Expr, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return Value(raw), nil
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("empty expression map: %w", ErrMalformedExpr)
	}

	var unknown []string
	for k := range m {
		if _, ok := operatorKeys[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperator, strings.Join(unknown, ", "))
	}
	if len(m) > 1 {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("%w: keys %s", ErrAmbiguousExpr, strings.Join(keys, ", "))
	}

	var key string
	var arg any
	for k, v := range m {
		key, arg = k, v
	}
	op := operatorKeys[key]

	switch op {
	case types.OpValue:
		return Value(arg), nil

	case types.OpPath:
		p, ok := arg.(string)
		if !ok {
			return nil, fmt.Errorf("%s: want string, got %T: %w", key, arg, ErrMalformedExpr)
		}
		return Path(p), nil

	case types.OpRef:
		r, ok := arg.(string)
		if !ok {
			return nil, fmt.Errorf("%s: want string, got %T: %w", key, arg, ErrMalformedExpr)
		}
		return Ref(r), nil

	case types.OpEqual, types.OpGreaterThan, types.OpLessThan:
		items, ok := asList(arg)
		if !ok || len(items) != 2 {
			return nil, fmt.Errorf("%s: want two operands: %w", key, ErrMalformedExpr)
		}
		args, err := parseAll(key, items)
		if err != nil {
			return nil, err
		}
		return &types.Expr{Op: op, Args: args}, nil

	case types.OpAnd, types.OpOr, types.OpMax, types.OpMin, types.OpSum:
		items, ok := asList(arg)
		if !ok {
			return nil, fmt.Errorf("%s: want a list, got %T: %w", key, arg, ErrMalformedExpr)
		}
		args, err := parseAll(key, items)
		if err != nil {
			return nil, err
		}
		return &types.Expr{Op: op, Args: args}, nil

	case types.OpNot:
		if _, isList := asList(arg); isList {
			return nil, fmt.Errorf("%s: want one expression, got a list: %w", key, ErrMalformedExpr)
		}
		inner, err := ParseExpr(arg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return Not(inner), nil

	case types.OpCount:
		return parseCount(arg)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownOperator, key)
}

// parseCount handles the three count shapes: a one-element list holding an
// expression map, a literal list, or a bare value or expression map.
func parseCount(arg any) (*types.Expr, error) {
	if items, ok := asList(arg); ok {
		if len(items) == 1 {
			if _, isNode := items[0].(map[string]any); isNode {
				inner, err := ParseExpr(items[0])
				if err != nil {
					return nil, fmt.Errorf("count: %w", err)
				}
				return Count(inner), nil
			}
		}
		return CountList(items), nil
	}
	if _, isNode := arg.(map[string]any); isNode {
		inner, err := ParseExpr(arg)
		if err != nil {
			return nil, fmt.Errorf("count: %w", err)
		}
		return Count(inner), nil
	}
	return &types.Expr{Op: types.OpCount, Value: arg}, nil
}

func parseAll(key string, items []any) ([]*types.Expr, error) {
	args := make([]*types.Expr, 0, len(items))
	for i, item := range items {
		e, err := ParseExpr(item)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
		}
		args = append(args, e)
	}
	return args, nil
}

// asList accepts a list, or an empty map (an empty Lua table decodes as one).
func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case map[string]any:
		if len(l) == 0 {
			return nil, true
		}
	}
	return nil, false
}

// Constructors, one per operator.

func Value(v any) *types.Expr   { return &types.Expr{Op: types.OpValue, Value: v} }
func Path(p string) *types.Expr { return &types.Expr{Op: types.OpPath, Path: p} }
func Ref(name string) *types.Expr {
	return &types.Expr{Op: types.OpRef, Ref: name}
}
func Eq(a, b *types.Expr) *types.Expr { return &types.Expr{Op: types.OpEqual, Args: []*types.Expr{a, b}} }
func Gt(a, b *types.Expr) *types.Expr {
	return &types.Expr{Op: types.OpGreaterThan, Args: []*types.Expr{a, b}}
}
func Lt(a, b *types.Expr) *types.Expr {
	return &types.Expr{Op: types.OpLessThan, Args: []*types.Expr{a, b}}
}
func And(args ...*types.Expr) *types.Expr { return &types.Expr{Op: types.OpAnd, Args: args} }
func Or(args ...*types.Expr) *types.Expr  { return &types.Expr{Op: types.OpOr, Args: args} }
func Not(e *types.Expr) *types.Expr       { return &types.Expr{Op: types.OpNot, Args: []*types.Expr{e}} }
func Max(args ...*types.Expr) *types.Expr { return &types.Expr{Op: types.OpMax, Args: args} }
func Min(args ...*types.Expr) *types.Expr { return &types.Expr{Op: types.OpMin, Args: args} }
func Sum(args ...*types.Expr) *types.Expr { return &types.Expr{Op: types.OpSum, Args: args} }

// Count counts the evaluated result of e.
func Count(e *types.Expr) *types.Expr {
	return &types.Expr{Op: types.OpCount, Args: []*types.Expr{e}}
}

// CountList counts a literal list.
func CountList(items []any) *types.Expr {
	if items == nil {
		items = []any{}
	}
	return &types.Expr{Op: types.OpCount, Value: items}
}
