package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrSessionExists is returned when creating a session whose name is already live.
var ErrSessionExists = errors.New("session already exists")

// ErrSessionNotFound is returned when an operation references an unknown session.
var ErrSessionNotFound = errors.New("session not found")

// ErrPlayerNotFound is returned when an operation references a player absent
// from a session's roster.
var ErrPlayerNotFound = errors.New("player not in session")

// ErrWrongPhase is returned when an operation is not allowed in the
// session's current lifecycle phase.
var ErrWrongPhase = errors.New("operation not allowed in this phase")

// Membership identifies one (session, player) pair a connection belongs to.
type Membership struct {
	Session string
	Player  string
}

// Store tracks all live sessions. One mutex protects every session and the
// derived player directory: two concurrent mutations, whether to the same or
// different sessions, are fully serialized, so a snapshot taken inside a
// mutation always reflects a complete, non-interleaved change.
//
// The lock is never held across persistence calls or network sends; those
// operate on snapshots taken under the lock.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Create registers a new session with the given owner already on the roster.
//
// Precondition: name and owner must be non-empty; state is the initialized
// opaque game state.
// Postcondition: Returns a snapshot of the created session, or ErrSessionExists
// if a session of that name is already live. Replacing a live session requires
// an explicit teardown first.
func (s *Store) Create(name, owner string, state any, savePath string, phase Phase) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[name]; exists {
		return Snapshot{}, fmt.Errorf("creating session %q: %w", name, ErrSessionExists)
	}

	sess := &Session{
		Name:      name,
		Owner:     owner,
		Phase:     phase,
		GameState: state,
		SavePath:  savePath,
		Roster:    make(map[string]*RosterEntry),
	}
	sess.Roster[owner] = &RosterEntry{ConnIDs: make(map[uint64]struct{})}
	s.sessions[name] = sess

	return sess.snapshot(), nil
}

// AddPlayer appends a player/connection pair to a session's roster. It is
// idempotent and serves first joins and reconnections alike: a returning
// player keeps their existing roster entry (and character selection) and
// simply gains the new connection id.
//
// Postcondition: Returns the post-mutation snapshot or ErrSessionNotFound.
func (s *Store) AddPlayer(sessionName, player string, connID uint64) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionName]
	if !ok {
		return Snapshot{}, fmt.Errorf("adding player to %q: %w", sessionName, ErrSessionNotFound)
	}

	entry, ok := sess.Roster[player]
	if !ok {
		entry = &RosterEntry{ConnIDs: make(map[uint64]struct{})}
		sess.Roster[player] = entry
	}
	entry.ConnIDs[connID] = struct{}{}

	return sess.snapshot(), nil
}

// RemoveConnection prunes one connection id from a player's roster entry.
// When the player's id set becomes empty the roster entry is removed entirely.
//
// Postcondition: Returns the post-mutation snapshot, whether the player's
// entry was fully removed, and whether that player was the session owner.
func (s *Store) RemoveConnection(sessionName, player string, connID uint64) (snap Snapshot, entryGone bool, ownerGone bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionName]
	if !ok {
		return Snapshot{}, false, false, fmt.Errorf("removing connection from %q: %w", sessionName, ErrSessionNotFound)
	}
	entry, ok := sess.Roster[player]
	if !ok {
		return Snapshot{}, false, false, fmt.Errorf("removing connection for %q: %w", player, ErrPlayerNotFound)
	}

	delete(entry.ConnIDs, connID)
	if len(entry.ConnIDs) == 0 {
		delete(sess.Roster, player)
		entryGone = true
	}
	ownerGone = entryGone && player == sess.Owner

	return sess.snapshot(), entryGone, ownerGone, nil
}

// Teardown removes a session from the store.
//
// Postcondition: Returns the final snapshot of the removed session or
// ErrSessionNotFound.
func (s *Store) Teardown(name string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[name]
	if !ok {
		return Snapshot{}, fmt.Errorf("tearing down %q: %w", name, ErrSessionNotFound)
	}
	delete(s.sessions, name)
	return sess.snapshot(), nil
}

// Update runs fn on the named session under the store lock and returns the
// post-mutation snapshot. This is the single mutation path for everything
// that touches the opaque game state: the closure may call into the combat
// engine, and because the lock is held, no other mutation interleaves.
//
// The closure must not perform persistence or network sends; it should stay
// in-memory and fast.
//
// Postcondition: Returns ErrSessionNotFound if the session is absent; any
// error from fn aborts the update and is returned unwrapped.
func (s *Store) Update(name string, fn func(*Session) error) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[name]
	if !ok {
		return Snapshot{}, fmt.Errorf("updating %q: %w", name, ErrSessionNotFound)
	}
	if err := fn(sess); err != nil {
		return Snapshot{}, err
	}
	return sess.snapshot(), nil
}

// View runs fn on the named session under the store lock without treating it
// as a mutation. fn must not retain references to session internals.
func (s *Store) View(name string, fn func(*Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[name]
	if !ok {
		return fmt.Errorf("viewing %q: %w", name, ErrSessionNotFound)
	}
	return fn(sess)
}

// AssignCharacter replaces the player's character selection with the given
// character and returns the re-derived list of every roster entry's current
// selection. Re-derivation, not incremental patching: reassignment cheaply
// invalidates whatever was derived before.
//
// Precondition: the session must be in PhaseInitGame or PhaseRunning.
// Postcondition: Returns the post-mutation snapshot and the full character
// selection list, or an error if session or player is unknown or the phase
// disallows reassignment.
func (s *Store) AssignCharacter(sessionName, player, character string) (Snapshot, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionName]
	if !ok {
		return Snapshot{}, nil, fmt.Errorf("assigning character in %q: %w", sessionName, ErrSessionNotFound)
	}
	if sess.Phase != PhaseInitGame && sess.Phase != PhaseRunning {
		return Snapshot{}, nil, fmt.Errorf("assigning character in %q phase %s: %w", sessionName, sess.Phase, ErrWrongPhase)
	}
	entry, ok := sess.Roster[player]
	if !ok {
		return Snapshot{}, nil, fmt.Errorf("assigning character for %q: %w", player, ErrPlayerNotFound)
	}

	entry.Characters = []string{character}
	return sess.snapshot(), sess.CharacterSelections(), nil
}

// Snapshot returns an immutable copy of the named session.
func (s *Store) Snapshot(name string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[name]
	if !ok {
		return Snapshot{}, fmt.Errorf("snapshotting %q: %w", name, ErrSessionNotFound)
	}
	return sess.snapshot(), nil
}

// Has reports whether a session of the given name is live.
func (s *Store) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[name]
	return ok
}

// Names returns the names of all live sessions in sorted order.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.sessions))
	for name := range s.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FindByConnection returns every (session, player) pair whose roster entry
// holds the given connection id. This is the derived player directory: the
// roster entries are the single source of truth, and this reverse index is
// recomputed on demand rather than maintained independently.
func (s *Store) FindByConnection(connID uint64) []Membership {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Membership
	for name, sess := range s.sessions {
		for player, entry := range sess.Roster {
			if _, ok := entry.ConnIDs[connID]; ok {
				out = append(out, Membership{Session: name, Player: player})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Session < out[j].Session })
	return out
}

// SessionsForPlayer returns the names of every session whose roster contains
// the given player identity, in sorted order.
func (s *Store) SessionsForPlayer(player string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for name, sess := range s.sessions {
		if _, ok := sess.Roster[player]; ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
