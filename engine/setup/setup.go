// Package setup runs a definition's setup actions against a freshly built
// game state.
package setup

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/nathoo/cgmlsim/engine/state"
	"github.com/nathoo/cgmlsim/types"
)

var (
	// ErrDeckZoneNotFound is fatal: DEAL_ALL has nothing to deal from.
	ErrDeckZoneNotFound = errors.New("deck zone not found")
	// ErrUnknownAction is returned for setup actions other than the five
	// supported ones.
	ErrUnknownAction = errors.New("unknown setup action")
	// ErrNoRandomSource is returned when SHUFFLE runs without an RNG.
	ErrNoRandomSource = errors.New("no random source")
)

// Actions lists the setup action names Run understands.
var Actions = []string{"SHUFFLE", "DEAL", "MOVE", "MOVE_ALL", "DEAL_ALL"}

// Supported reports whether action is a setup action.
func Supported(action string) bool {
	for _, a := range Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Run executes gs.Def.Setup in order. Zone references are resolved without
// an acting player.
func Run(gs *state.GameState, rng state.Rand, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if gs.Def == nil {
		return nil
	}
	for i, a := range gs.Def.Setup {
		if err := perform(gs, a, rng); err != nil {
			return fmt.Errorf("setup %d (%s): %w", i, a.Action, err)
		}
		log.Debug("setup action", zap.Int("index", i), zap.String("action", a.Action))
	}
	return nil
}

func perform(gs *state.GameState, a types.EffectAction, rng state.Rand) error {
	p := a.Params
	switch a.Action {
	case "SHUFFLE":
		if rng == nil {
			return fmt.Errorf("shuffle: %w", ErrNoRandomSource)
		}
		target := str(p, "target")
		zones, err := shuffleTargets(gs, target)
		if err != nil {
			return err
		}
		for _, z := range zones {
			state.Shuffle(z, rng)
		}
		return nil

	case "DEAL":
		from, err := state.FindZone(gs, str(p, "from"), nil)
		if err != nil {
			return err
		}
		return state.Deal(from, gs.Players, state.ZoneName(str(p, "to")), count(p, 1))

	case "MOVE", "MOVE_ALL":
		from, err := state.FindZone(gs, str(p, "from"), nil)
		if err != nil {
			return err
		}
		to, err := state.FindZone(gs, str(p, "to"), nil)
		if err != nil {
			return err
		}
		if a.Action == "MOVE_ALL" {
			state.MoveAll(from, to)
		} else {
			state.Move(from, to, count(p, 1))
		}
		return nil

	case "DEAL_ALL":
		from, err := dealAllSource(gs, p)
		if err != nil {
			return err
		}
		return state.DealAll(from, gs.Players, state.ZoneName(str(p, "to")))
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, a.Action)
}

// shuffleTargets resolves a SHUFFLE target. "zones.<name>" shuffles every
// zone of that name, shared and per player; anything else names one zone.
func shuffleTargets(gs *state.GameState, target string) ([]*state.Zone, error) {
	if name, ok := strings.CutPrefix(target, "zones."); ok && !strings.Contains(name, ".") {
		var zones []*state.Zone
		if z, ok := gs.SharedZones[name]; ok {
			zones = append(zones, z)
		}
		for _, pl := range gs.Players {
			if z, ok := pl.Zones[name]; ok {
				zones = append(zones, z)
			}
		}
		if len(zones) == 0 {
			return nil, fmt.Errorf("zone %q: %w", target, state.ErrZoneNotFound)
		}
		return zones, nil
	}
	z, err := state.FindZone(gs, target, nil)
	if err != nil {
		return nil, err
	}
	return []*state.Zone{z}, nil
}

// dealAllSource finds the zone seeded from from_deck: shared zones first,
// then each player's in id order. A plain from zone reference is also
// accepted.
func dealAllSource(gs *state.GameState, p map[string]any) (*state.Zone, error) {
	deck := str(p, "from_deck")
	if deck == "" {
		if from := str(p, "from"); from != "" {
			z, err := state.FindZone(gs, from, nil)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrDeckZoneNotFound, err)
			}
			return z, nil
		}
		return nil, fmt.Errorf("no from_deck given: %w", ErrDeckZoneNotFound)
	}
	if z := zoneOfDeck(gs.SharedZones, deck); z != nil {
		return z, nil
	}
	for _, pl := range gs.Players {
		if z := zoneOfDeck(pl.Zones, deck); z != nil {
			return z, nil
		}
	}
	return nil, fmt.Errorf("deck %q: %w", deck, ErrDeckZoneNotFound)
}

func zoneOfDeck(zones map[string]*state.Zone, deck string) *state.Zone {
	names := make([]string, 0, len(zones))
	for name := range zones {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if zones[name].OfDeck == deck {
			return zones[name]
		}
	}
	return nil
}

func str(p map[string]any, key string) string {
	s, _ := p[key].(string)
	return s
}

// count reads an integer parameter. YAML yields int, Lua yields float64.
func count(p map[string]any, def int) int {
	switch n := p["count"].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}
