package state

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nathoo/cgmlsim/engine/resolve"
)

// ErrZoneNotFound is returned when a zone reference matches nothing.
var ErrZoneNotFound = errors.New("zone not found")

// Move transfers up to count cards from the front of from to the back of to,
// keeping their relative order. Moving more than available is not an error.
func Move(from, to *Zone, count int) int {
	if count > len(from.Cards) {
		count = len(from.Cards)
	}
	if count <= 0 {
		return 0
	}
	to.Cards = append(to.Cards, from.Cards[:count]...)
	from.Cards = append(from.Cards[:0:0], from.Cards[count:]...)
	return count
}

// MoveAll transfers every card from from to the back of to.
func MoveAll(from, to *Zone) int {
	return Move(from, to, len(from.Cards))
}

// Shuffle permutes the zone's cards uniformly in place.
func Shuffle(z *Zone, rng Rand) {
	rng.Shuffle(len(z.Cards), func(i, j int) {
		z.Cards[i], z.Cards[j] = z.Cards[j], z.Cards[i]
	})
}

// Deal gives one card per player per round from the front of from into each
// player's toZone, for count rounds, stopping once from is empty. Every
// player must have toZone before any card moves.
func Deal(from *Zone, players []*Player, toZone string, count int) error {
	dsts, err := playerZones(players, toZone)
	if err != nil {
		return err
	}
	for round := 0; round < count; round++ {
		for _, dst := range dsts {
			if len(from.Cards) == 0 {
				return nil
			}
			Move(from, dst, 1)
		}
	}
	return nil
}

// DealAll distributes every card in from round-robin over players.
func DealAll(from *Zone, players []*Player, toZone string) error {
	if len(players) == 0 {
		return nil
	}
	dsts, err := playerZones(players, toZone)
	if err != nil {
		return err
	}
	for i := 0; len(from.Cards) > 0; i++ {
		Move(from, dsts[i%len(dsts)], 1)
	}
	return nil
}

func playerZones(players []*Player, name string) ([]*Zone, error) {
	dsts := make([]*Zone, 0, len(players))
	for _, p := range players {
		z, err := playerZone(p, name)
		if err != nil {
			return nil, err
		}
		dsts = append(dsts, z)
	}
	return dsts, nil
}

func playerZone(p *Player, name string) (*Zone, error) {
	z, ok := p.Zones[name]
	if !ok {
		return nil, fmt.Errorf("player %d has no zone %q: %w", p.ID, name, ErrZoneNotFound)
	}
	return z, nil
}

// FindZone resolves a zone reference. A bare name is looked up in the acting
// player's zones (when player is non-nil), then shared zones, then any
// player's zones. A dotted path is resolved from a root exposing players,
// zones, shared_zones and player.
func FindZone(s *GameState, ref string, player *Player) (*Zone, error) {
	if ref == "" {
		return nil, fmt.Errorf("empty zone reference: %w", ErrZoneNotFound)
	}
	if !strings.Contains(ref, ".") {
		if player != nil {
			if z, ok := player.Zones[ref]; ok {
				return z, nil
			}
		}
		if z, ok := s.SharedZones[ref]; ok {
			return z, nil
		}
		for _, p := range s.Players {
			if z, ok := p.Zones[ref]; ok {
				return z, nil
			}
		}
		return nil, fmt.Errorf("zone %q: %w", ref, ErrZoneNotFound)
	}

	root := map[string]any{
		"players":      s.Players,
		"zones":        s.SharedZones,
		"shared_zones": s.SharedZones,
	}
	if player != nil {
		root["player"] = player
	}
	v, err := resolve.Path(root, ref)
	if err != nil {
		return nil, fmt.Errorf("zone %q: %w", ref, err)
	}
	z, ok := v.(*Zone)
	if !ok {
		return nil, fmt.Errorf("zone %q resolves to %T, not a zone: %w", ref, v, ErrZoneNotFound)
	}
	return z, nil
}

// ZoneName returns the last segment of a zone path ("zones.hand" → "hand").
func ZoneName(ref string) string {
	if i := strings.LastIndexByte(ref, '.'); i >= 0 {
		return ref[i+1:]
	}
	return ref
}
