// Package state holds the mutable game model (cards, zones, players, game
// state) and the zone primitives effects and setup build on.
package state

import (
	"github.com/nathoo/cgmlsim/types"
)

// Rand is the random source used for shuffles and action selection.
// *math/rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
	Shuffle(n int, swap func(i, j int))
}

// Card is a single card. Only Owner changes after creation.
type Card struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties"`
	Owner      *int           `json:"owner,omitempty"`
}

// Field exposes card fields to paths.
func (c *Card) Field(name string) (any, bool) {
	switch name {
	case "id":
		return c.ID, true
	case "name":
		return c.Name, true
	case "properties":
		return c.Properties, true
	case "owner":
		if c.Owner == nil {
			return nil, true
		}
		return *c.Owner, true
	}
	return nil, false
}

// Lookup falls back to card properties, so "top_card.rank" resolves.
func (c *Card) Lookup(key string) (any, bool) {
	v, ok := c.Properties[key]
	return v, ok
}

// Zone is an ordered container of cards. Index 0 is the front.
type Zone struct {
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	OfDeck     string            `json:"of_deck,omitempty"`
	Owner      *int              `json:"owner,omitempty"`
	Ordering   string            `json:"ordering,omitempty"`
	Visibility map[string]string `json:"visibility,omitempty"`
	Cards      []*Card           `json:"cards"`
}

// Len returns the number of cards in the zone.
func (z *Zone) Len() int { return len(z.Cards) }

// TopCard returns the last card in the zone, or nil if empty.
func (z *Zone) TopCard() *Card {
	if len(z.Cards) == 0 {
		return nil
	}
	return z.Cards[len(z.Cards)-1]
}

// Field exposes zone fields to paths.
func (z *Zone) Field(name string) (any, bool) {
	switch name {
	case "name":
		return z.Name, true
	case "type":
		return z.Type, true
	case "of_deck":
		return z.OfDeck, true
	case "owner":
		if z.Owner == nil {
			return nil, true
		}
		return *z.Owner, true
	case "ordering":
		return z.Ordering, true
	case "visibility":
		return z.Visibility, true
	case "cards":
		return z.Cards, true
	case "card_count":
		return len(z.Cards), true
	case "top_card":
		if top := z.TopCard(); top != nil {
			return top, true
		}
		return nil, true
	}
	return nil, false
}

// Player is a seat at the table. ID equals its index in GameState.Players.
type Player struct {
	ID        int              `json:"id"`
	Name      string           `json:"name"`
	Variables map[string]any   `json:"variables"`
	Zones     map[string]*Zone `json:"zones"`
}

// Field exposes player fields to paths.
func (p *Player) Field(name string) (any, bool) {
	switch name {
	case "id":
		return p.ID, true
	case "name":
		return p.Name, true
	case "variables":
		return p.Variables, true
	case "zones":
		return p.Zones, true
	}
	return nil, false
}

// GameState is the complete mutable state of one game.
type GameState struct {
	Players         []*Player
	SharedZones     map[string]*Zone
	SharedVariables map[string]any
	Decks           map[string][]*Card // as generated; not mutated after setup

	// CurrentState names the active flow state. Effects may set it directly.
	CurrentState  string
	CurrentPhase  string
	CurrentPlayer int

	Def *types.Definition
}

// Field exposes game state fields to paths.
func (s *GameState) Field(name string) (any, bool) {
	switch name {
	case "players":
		return s.Players, true
	case "shared_zones", "zones":
		return s.SharedZones, true
	case "shared_variables", "variables":
		return s.SharedVariables, true
	case "decks":
		return s.Decks, true
	case "current_state":
		return s.CurrentState, true
	case "current_phase":
		return s.CurrentPhase, true
	case "current_player":
		if p := s.Player(s.CurrentPlayer); p != nil {
			return p, true
		}
		return nil, true
	}
	return nil, false
}

// Player returns the player with the given id, or nil.
func (s *GameState) Player(id int) *Player {
	if id < 0 || id >= len(s.Players) {
		return nil
	}
	return s.Players[id]
}

// EndState returns the reserved terminal state name for this game.
func (s *GameState) EndState() string {
	if s.Def != nil && s.Def.Flow.EndState != "" {
		return s.Def.Flow.EndState
	}
	return types.DefaultEndState
}

// IsTerminal reports whether the flow has reached the end state.
func (s *GameState) IsTerminal() bool {
	return s.CurrentState == s.EndState()
}

// HasState reports whether name is a declared flow state or the end state.
func (s *GameState) HasState(name string) bool {
	if name == s.EndState() {
		return true
	}
	if s.Def == nil {
		return false
	}
	_, ok := s.Def.Flow.States[name]
	return ok
}

// AllZones returns every zone: shared first, then each player's in id order.
// Map iteration order within a group is not stable.
func (s *GameState) AllZones() []*Zone {
	var zones []*Zone
	for _, z := range s.SharedZones {
		zones = append(zones, z)
	}
	for _, p := range s.Players {
		for _, z := range p.Zones {
			zones = append(zones, z)
		}
	}
	return zones
}

// CardCount returns the number of cards across all zones.
func (s *GameState) CardCount() int {
	n := 0
	for _, z := range s.AllZones() {
		n += z.Len()
	}
	return n
}
