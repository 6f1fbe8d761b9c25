// Package engine implements the turn-resolution engine the game server
// delegates to. The server treats the game state as an opaque blob; only
// this package looks inside it.
package engine

// Combatant is one participant in a running game.
type Combatant struct {
	// Name is the combatant's display name, unique within its side.
	Name string `json:"name"`
	// MaxHP is the combatant's full hit point total.
	MaxHP int `json:"max_hp"`
	// CurrentHP is the remaining hit points; 0 means defeated.
	CurrentHP int `json:"current_hp"`
	// Attacks lists the attack names this combatant may use.
	Attacks []string `json:"attacks"`
}

// Defeated reports whether the combatant is out of the fight.
func (c *Combatant) Defeated() bool {
	return c.CurrentHP <= 0
}

// TargetRequest records that a launcher is choosing a target for an action.
type TargetRequest struct {
	Launcher string `json:"launcher"`
	Action   string `json:"action"`
	Target   string `json:"target,omitempty"`
}

// State is the serializable game state for one session. Turn order is all
// heroes in roster order followed by all enemies, repeating each round.
type State struct {
	// Round is the current round number, starting at 1 when the game starts.
	Round int `json:"round"`
	// TurnIndex points at the current actor in the hero-then-enemy order.
	TurnIndex int `json:"turn_index"`
	// Heroes are the player-controlled combatants, derived from the roster's
	// character selections.
	Heroes []*Combatant `json:"heroes"`
	// Enemies are the automated combatants.
	Enemies []*Combatant `json:"enemies"`
	// Ended is set when either side is wiped out.
	Ended bool `json:"ended"`
	// Targeting holds an in-progress target selection, if any.
	Targeting *TargetRequest `json:"targeting,omitempty"`
}

// combatants returns the full turn order: heroes first, then enemies.
func (s *State) combatants() []*Combatant {
	out := make([]*Combatant, 0, len(s.Heroes)+len(s.Enemies))
	out = append(out, s.Heroes...)
	out = append(out, s.Enemies...)
	return out
}

// isEnemyIndex reports whether position i in the turn order is an enemy slot.
func (s *State) isEnemyIndex(i int) bool {
	return i >= len(s.Heroes)
}

// currentActor returns the living combatant whose turn it is, advancing
// TurnIndex past defeated combatants. Returns nil when nobody is left.
func (s *State) currentActor() *Combatant {
	order := s.combatants()
	if len(order) == 0 {
		return nil
	}
	for range order {
		c := order[s.TurnIndex%len(order)]
		if !c.Defeated() {
			s.TurnIndex = s.TurnIndex % len(order)
			return c
		}
		s.TurnIndex = (s.TurnIndex + 1) % len(order)
	}
	return nil
}

// advanceTurn moves TurnIndex to the next living combatant, bumping Round
// when the order wraps.
func (s *State) advanceTurn() {
	order := s.combatants()
	if len(order) == 0 {
		return
	}
	for range order {
		next := (s.TurnIndex + 1) % len(order)
		if next <= s.TurnIndex {
			s.Round++
		}
		s.TurnIndex = next
		if !order[s.TurnIndex].Defeated() {
			return
		}
	}
}

// sideDefeated reports whether every combatant in the slice is defeated.
func sideDefeated(side []*Combatant) bool {
	for _, c := range side {
		if !c.Defeated() {
			return false
		}
	}
	return true
}

// firstLiving returns the first living combatant in the slice, or nil.
func firstLiving(side []*Combatant) *Combatant {
	for _, c := range side {
		if !c.Defeated() {
			return c
		}
	}
	return nil
}

// findByName returns the combatant with the given name, or nil.
func findByName(side []*Combatant, name string) *Combatant {
	for _, c := range side {
		if c.Name == name {
			return c
		}
	}
	return nil
}
