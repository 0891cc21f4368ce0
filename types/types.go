// Package types defines the shared data structures for the cgmlsim engine.
// The package holds type definitions only; Op.String is its one method.
package types

import "fmt"

// DefaultEndState is the reserved terminal state name used when a flow does
// not declare its own.
const DefaultEndState = "GameOver"

// Definition is a loaded, validated game definition. It is never mutated
// once built.
type Definition struct {
	Meta       Meta
	Components Components
	Rules      []RuleDef
	Flow       FlowDef
	Setup      []EffectAction
}

// Meta holds game metadata.
type Meta struct {
	Name    string
	Version string
	Author  string
	Players PlayerBounds
}

// PlayerBounds is the allowed player count range. Zero means unbounded.
type PlayerBounds struct {
	Min int
	Max int
}

// Components groups deck types, deck instances, zones and variables.
type Components struct {
	DeckTypes []DeckTypeDef // declaration order is significant
	Decks     []DeckDef
	Zones     []ZoneDef
	Variables []VariableDef
}

// DeckTypeDef describes how to generate the cards of a deck.
type DeckTypeDef struct {
	Name          string
	Composition   []CompositionEntry
	RankHierarchy []string // lowest first, stringified
}

// CompositionEntry is one block of a deck type's composition.
// Type "template" uses Template + Values (+ optional Suits);
// type "cards" lists explicit cards.
type CompositionEntry struct {
	Type     string
	Template string
	Values   []any
	Suits    []string
	Cards    []CardDef
}

// CardDef is an explicitly declared card.
type CardDef struct {
	ID         string
	Name       string
	Properties map[string]any
	Count      int // copies; 0 means 1
}

// DeckDef is a deck instance of a deck type.
type DeckDef struct {
	Name string
	Type string
}

// ZoneDef declares a zone, shared or per player.
type ZoneDef struct {
	Name       string
	Type       string
	PerPlayer  bool
	OfDeck     string
	Ordering   string
	Visibility map[string]string
}

// VariableDef declares a variable with its initial value.
type VariableDef struct {
	Name      string
	Initial   any
	PerPlayer bool
}

// RuleDef is a trigger + optional condition + effect list.
type RuleDef struct {
	ID          string
	Trigger     string // "on.phase.<phase>"
	Condition   *Expr  // nil means always
	Effect      []EffectAction
	SourceOrder int
}

// EffectAction is a single named action with its raw parameters.
// Parameter values may be literals or raw expression maps.
type EffectAction struct {
	Action string
	Params map[string]any
}

// FlowDef is the state/phase/transition graph.
type FlowDef struct {
	InitialState string
	EndState     string // empty means DefaultEndState
	States       map[string]StateDef
	StateOrder   []string
	Transitions  []TransitionDef
}

// StateDef is a named flow state and its ordered phases.
type StateDef struct {
	Name   string
	Phases []string
}

// TransitionDef moves the flow From one state To another when Condition
// holds (nil condition always holds).
type TransitionDef struct {
	From      string
	To        string
	Condition *Expr
}

// Op identifies an expression node variant.
type Op int

const (
	OpValue Op = iota
	OpPath
	OpRef
	OpEqual
	OpGreaterThan
	OpLessThan
	OpAnd
	OpOr
	OpNot
	OpMax
	OpMin
	OpSum
	OpCount
)

var opNames = map[Op]string{
	OpValue:       "value",
	OpPath:        "path",
	OpRef:         "ref",
	OpEqual:       "equal",
	OpGreaterThan: "greaterThan",
	OpLessThan:    "lessThan",
	OpAnd:         "and",
	OpOr:          "or",
	OpNot:         "not",
	OpMax:         "max",
	OpMin:         "min",
	OpSum:         "sum",
	OpCount:       "count",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("OP_%d", int(o))
}

// Expr is an expression tree node. Exactly one variant is set, selected by Op:
//
//	OpValue        Value
//	OpPath         Path
//	OpRef          Ref
//	OpEqual..OpLessThan, OpAnd, OpOr, OpMax, OpMin, OpSum   Args
//	OpNot          Args[0]
//	OpCount        Args[0] when counting an evaluated node, else Value
type Expr struct {
	Op    Op
	Value any
	Path  string
	Ref   string
	Args  []*Expr
}

// Event is emitted by the simulator as play progresses.
type Event struct {
	Type string
	Data map[string]any
}
