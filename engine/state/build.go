package state

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/nathoo/cgmlsim/types"
)

// standardSuits is the suit set of the "standard_suits" template.
var standardSuits = []string{"♠", "♥", "♦", "♣"}

// Build constructs a GameState from a definition: decks are generated,
// players and zones scaffolded, and each deck's cards placed into every zone
// that declares of_deck for it. playerCount 0 means meta.players.max.
func Build(def *types.Definition, playerCount int, log *zap.Logger) (*GameState, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if playerCount == 0 {
		playerCount = def.Meta.Players.Max
	}
	if playerCount <= 0 {
		return nil, fmt.Errorf("player count must be positive, got %d", playerCount)
	}
	bounds := def.Meta.Players
	if (bounds.Min > 0 && playerCount < bounds.Min) || (bounds.Max > 0 && playerCount > bounds.Max) {
		return nil, fmt.Errorf("player count %d outside allowed range [%d, %d]", playerCount, bounds.Min, bounds.Max)
	}

	// Decks.
	deckTypes := map[string]types.DeckTypeDef{}
	for _, dt := range def.Components.DeckTypes {
		deckTypes[dt.Name] = dt
	}
	decks := map[string][]*Card{}
	for _, d := range def.Components.Decks {
		dt, ok := deckTypes[d.Type]
		if !ok {
			return nil, fmt.Errorf("deck %q: unknown deck type %q", d.Name, d.Type)
		}
		cards, err := GenerateDeck(d.Name, dt)
		if err != nil {
			return nil, fmt.Errorf("deck %q: %w", d.Name, err)
		}
		decks[d.Name] = cards
	}

	s := &GameState{
		SharedZones:     map[string]*Zone{},
		SharedVariables: map[string]any{},
		Decks:           decks,
		CurrentState:    def.Flow.InitialState,
		Def:             def,
	}

	// Variables.
	perPlayerVars := map[string]any{}
	for _, v := range def.Components.Variables {
		if v.PerPlayer {
			perPlayerVars[v.Name] = v.Initial
		} else {
			s.SharedVariables[v.Name] = v.Initial
		}
	}

	// Players and their zones.
	for id := 0; id < playerCount; id++ {
		p := &Player{
			ID:        id,
			Name:      fmt.Sprintf("Player %d", id+1),
			Variables: make(map[string]any, len(perPlayerVars)),
			Zones:     map[string]*Zone{},
		}
		for k, v := range perPlayerVars {
			p.Variables[k] = v
		}
		for _, zd := range def.Components.Zones {
			if zd.PerPlayer {
				owner := id
				p.Zones[zd.Name] = newZone(zd, &owner)
			}
		}
		s.Players = append(s.Players, p)
	}

	// Shared zones.
	for _, zd := range def.Components.Zones {
		if !zd.PerPlayer {
			s.SharedZones[zd.Name] = newZone(zd, nil)
		}
	}

	// Seed zones from their decks. A card lives in exactly one zone, so a
	// deck seeds only the first zone claiming it, and a per-player zone gets
	// a private copy of the deck for each player.
	for _, d := range def.Components.Decks {
		zd, ok := claimingZone(def.Components.Zones, d.Name)
		if !ok {
			log.Warn("deck generated but not assigned to any zone", zap.String("deck", d.Name))
			continue
		}
		if !zd.PerPlayer {
			z := s.SharedZones[zd.Name]
			z.Cards = append(z.Cards, decks[d.Name]...)
			continue
		}
		for _, p := range s.Players {
			cards := decks[d.Name]
			if p.ID > 0 {
				var err error
				name := fmt.Sprintf("%s.p%d", d.Name, p.ID)
				cards, err = GenerateDeck(name, deckTypes[d.Type])
				if err != nil {
					return nil, fmt.Errorf("deck %q: %w", d.Name, err)
				}
				s.Decks[name] = cards
			}
			owner := p.ID
			for _, c := range cards {
				c.Owner = &owner
			}
			z := p.Zones[zd.Name]
			z.Cards = append(z.Cards, cards...)
		}
	}

	return s, nil
}

// claimingZone returns the first zone declaring of_deck for deck. Later
// claimants are ignored.
func claimingZone(zones []types.ZoneDef, deck string) (types.ZoneDef, bool) {
	for _, zd := range zones {
		if zd.OfDeck == deck {
			return zd, true
		}
	}
	return types.ZoneDef{}, false
}

func newZone(zd types.ZoneDef, owner *int) *Zone {
	return &Zone{
		Name:       zd.Name,
		Type:       zd.Type,
		OfDeck:     zd.OfDeck,
		Owner:      owner,
		Ordering:   zd.Ordering,
		Visibility: zd.Visibility,
		Cards:      []*Card{},
	}
}

// GenerateDeck produces the cards of one deck instance from its type's
// composition. Card ids are unique within the deck and prefixed by its name.
func GenerateDeck(deckName string, dt types.DeckTypeDef) ([]*Card, error) {
	var cards []*Card
	idx := 0
	for i, entry := range dt.Composition {
		switch entry.Type {
		case "template", "":
			if entry.Template != "standard_suits" {
				return nil, fmt.Errorf("composition %d: unknown template %q", i, entry.Template)
			}
			suits := entry.Suits
			if len(suits) == 0 {
				suits = standardSuits
			}
			for _, suit := range suits {
				for _, rank := range entry.Values {
					idx++
					cards = append(cards, &Card{
						ID:         fmt.Sprintf("%s-%s-%v-%d", deckName, suit, rank, idx),
						Name:       fmt.Sprintf("%v%s", rank, suit),
						Properties: map[string]any{"rank": rank, "suit": suit},
					})
				}
			}

		case "cards":
			for _, cd := range entry.Cards {
				copies := cd.Count
				if copies <= 0 {
					copies = 1
				}
				for c := 0; c < copies; c++ {
					idx++
					id := cd.ID
					if id == "" || copies > 1 {
						id = fmt.Sprintf("%s-%s-%d", deckName, cd.Name, idx)
					}
					props := make(map[string]any, len(cd.Properties))
					for k, v := range cd.Properties {
						props[k] = v
					}
					cards = append(cards, &Card{ID: id, Name: cd.Name, Properties: props})
				}
			}

		default:
			return nil, fmt.Errorf("composition %d: unknown entry type %q", i, entry.Type)
		}
	}
	return cards, nil
}
