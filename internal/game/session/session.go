// Package session provides the in-memory store of live game sessions:
// one record per session holding its opaque game state, owning player,
// and roster of participating players with their chosen characters and
// connection ids. All mutation happens under a single store-wide lock.
package session

// Phase is the coarse lifecycle stage of a session.
type Phase string

const (
	// PhaseDefault is the zero phase before initialization.
	PhaseDefault Phase = "default"
	// PhaseInitGame is the lobby phase where players pick characters.
	PhaseInitGame Phase = "init_game"
	// PhaseRunning means turns are being played.
	PhaseRunning Phase = "running"
	// PhaseEnded means the game has concluded.
	PhaseEnded Phase = "ended"
)

// RosterEntry tracks one player's participation in a session.
type RosterEntry struct {
	// Characters is the player's current character selection. Assigning a
	// character replaces the previous selection rather than accumulating.
	Characters []string
	// ConnIDs is the set of live connection ids acting as this player.
	ConnIDs map[uint64]struct{}
}

// Session is one live game instance.
type Session struct {
	// Name uniquely identifies the session (the creator's identity in the
	// common case).
	Name string
	// Owner is the player identity that created the session. The owner's
	// full disconnect tears the session down.
	Owner string
	// Phase is the session's lifecycle stage. It only advances forward,
	// except for the explicit replay transition back to PhaseRunning.
	Phase Phase
	// GameState is the opaque state blob owned exclusively by this session.
	// It is mutated only by the combat engine or the initialization routine,
	// always under the store lock.
	GameState any
	// SavePath is the saved-game directory backing this session.
	SavePath string
	// Roster maps player identity to that player's roster entry.
	Roster map[string]*RosterEntry
}

// RosterSnapshot is an immutable copy of one roster entry.
type RosterSnapshot struct {
	Characters []string `json:"characters"`
	ConnIDs    []uint64 `json:"connection_ids"`
}

// Snapshot is an immutable copy of a session taken under the store lock.
// Broadcast and persistence operate on snapshots so that no session state
// is read after the lock is released.
type Snapshot struct {
	Name     string                    `json:"name"`
	Owner    string                    `json:"owner"`
	Phase    Phase                     `json:"phase"`
	SavePath string                    `json:"save_path"`
	Roster   map[string]RosterSnapshot `json:"roster"`
}

// ConnIDs returns every live connection id across all roster entries.
// This is the recipient set for a session broadcast.
func (s Snapshot) ConnIDs() []uint64 {
	var ids []uint64
	for _, entry := range s.Roster {
		ids = append(ids, entry.ConnIDs...)
	}
	return ids
}

// snapshot clones the session's roster and metadata. The opaque GameState is
// deliberately excluded; callers needing it encode it under the same lock.
func (s *Session) snapshot() Snapshot {
	roster := make(map[string]RosterSnapshot, len(s.Roster))
	for player, entry := range s.Roster {
		chars := make([]string, len(entry.Characters))
		copy(chars, entry.Characters)
		ids := make([]uint64, 0, len(entry.ConnIDs))
		for id := range entry.ConnIDs {
			ids = append(ids, id)
		}
		roster[player] = RosterSnapshot{Characters: chars, ConnIDs: ids}
	}
	return Snapshot{
		Name:     s.Name,
		Owner:    s.Owner,
		Phase:    s.Phase,
		SavePath: s.SavePath,
		Roster:   roster,
	}
}

// Clone returns an immutable copy of the session. Store closures use it to
// capture a consistent view while the lock is held.
func (s *Session) Clone() Snapshot {
	return s.snapshot()
}

// CharacterSelections returns every roster entry's current character
// selection, for re-deriving the active combatant list after a character
// assignment.
func (s *Session) CharacterSelections() []string {
	var chars []string
	for _, entry := range s.Roster {
		chars = append(chars, entry.Characters...)
	}
	return chars
}
