// Package snapshot builds a JSON-serialisable, read-only view of a game
// state for reports and front ends.
package snapshot

import (
	"encoding/json"
	"sort"

	"github.com/nathoo/cgmlsim/engine/state"
)

// Omniscient is the viewer that sees every card.
const Omniscient = -1

// Hidden visibility values. A zone whose visibility for "others" is one of
// these shows only its card count to non-owners.
var hiddenValues = map[string]bool{"hidden": true, "count_only": true, "none": true}

// Snapshot is the report format.
type Snapshot struct {
	Game            string         `json:"game"`
	Version         string         `json:"version,omitempty"`
	RunID           string         `json:"run_id,omitempty"`
	Seed            int64          `json:"seed"`
	RNGPosition     int64          `json:"rng_position"`
	CurrentState    string         `json:"current_state"`
	CurrentPhase    string         `json:"current_phase,omitempty"`
	CurrentPlayer   int            `json:"current_player"`
	Players         []Player       `json:"players"`
	SharedZones     []Zone         `json:"shared_zones"`
	SharedVariables map[string]any `json:"shared_variables"`
	Outcome         any            `json:"outcome,omitempty"`
}

// Player is one seat.
type Player struct {
	ID        int            `json:"id"`
	Name      string         `json:"name"`
	Variables map[string]any `json:"variables"`
	Zones     []Zone         `json:"zones"`
}

// Zone lists card names front to back. Hidden reports whether the cards
// were withheld from the viewer.
type Zone struct {
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	Count  int      `json:"count"`
	Cards  []string `json:"cards,omitempty"`
	Hidden bool     `json:"hidden,omitempty"`
}

// Options controls what a snapshot includes.
type Options struct {
	Viewer      int // player id, or Omniscient
	RunID       string
	Seed        int64
	RNGPosition int64
	Outcome     any
}

// Take captures gs as seen by opts.Viewer. Zones are sorted by name.
func Take(gs *state.GameState, opts Options) *Snapshot {
	snap := &Snapshot{
		RunID:           opts.RunID,
		Seed:            opts.Seed,
		RNGPosition:     opts.RNGPosition,
		CurrentState:    gs.CurrentState,
		CurrentPhase:    gs.CurrentPhase,
		CurrentPlayer:   gs.CurrentPlayer,
		SharedVariables: copyVars(gs.SharedVariables),
		SharedZones:     zones(gs.SharedZones, opts.Viewer),
		Outcome:         opts.Outcome,
	}
	if gs.Def != nil {
		snap.Game = gs.Def.Meta.Name
		snap.Version = gs.Def.Meta.Version
	}
	for _, p := range gs.Players {
		snap.Players = append(snap.Players, Player{
			ID:        p.ID,
			Name:      p.Name,
			Variables: copyVars(p.Variables),
			Zones:     zones(p.Zones, opts.Viewer),
		})
	}
	return snap
}

// JSON renders the snapshot as indented JSON.
func (s *Snapshot) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Player returns the seat with the given id, or nil.
func (s *Snapshot) Player(id int) *Player {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i]
		}
	}
	return nil
}

// Zone returns the named zone of the player, or nil.
func (p *Player) Zone(name string) *Zone {
	for i := range p.Zones {
		if p.Zones[i].Name == name {
			return &p.Zones[i]
		}
	}
	return nil
}

func zones(m map[string]*state.Zone, viewer int) []Zone {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Zone, 0, len(names))
	for _, name := range names {
		z := m[name]
		v := Zone{Name: z.Name, Type: z.Type, Count: z.Len()}
		if hiddenFrom(z, viewer) {
			v.Hidden = true
		} else {
			v.Cards = make([]string, 0, z.Len())
			for _, c := range z.Cards {
				v.Cards = append(v.Cards, c.Name)
			}
		}
		out = append(out, v)
	}
	return out
}

// hiddenFrom reports whether viewer may not see the zone's cards. Owners
// always see their own zones; shared zones use the "all" key.
func hiddenFrom(z *state.Zone, viewer int) bool {
	if viewer == Omniscient || len(z.Visibility) == 0 {
		return false
	}
	if z.Owner != nil {
		if *z.Owner == viewer {
			return hiddenValues[z.Visibility["owner"]]
		}
		return hiddenValues[z.Visibility["others"]]
	}
	return hiddenValues[z.Visibility["all"]]
}

func copyVars(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
