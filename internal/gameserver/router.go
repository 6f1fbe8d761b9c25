package gameserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lmercier/crucible/internal/game/engine"
	"github.com/lmercier/crucible/internal/game/session"
	"github.com/lmercier/crucible/internal/storage/disk"
)

// stateFileName is the file inside each saved-game directory holding the
// serialized session.
const stateFileName = "state.json"

// welcomeMessage greets every new connection.
const welcomeMessage = "welcome, adventurer"

// errOutOfPhase marks an inbound event that is valid JSON but not allowed in
// the session's current phase. Logged and ignored, never broadcast.
var errOutOfPhase = errors.New("event out of phase")

// errNotOwner marks an owner-only event sent by a non-owner.
var errNotOwner = errors.New("requester is not the session owner")

// GameEngine is the combat-engine collaborator. The router treats the game
// state as opaque beyond these calls.
type GameEngine interface {
	NewGame() any
	SetActiveCharacters(state any, characters []string) error
	StartGame(state any) error
	ResolveAttack(state any, action string) (engine.Outcome, error)
	AutomatedTurns(state any) int
	GameEnded(state any) bool
	Targets(state any, launcher, action string) ([]string, error)
	BeginTargeting(state any, launcher, action string) error
	SetTarget(state any, launcher, action, target string) error
	EncodeState(state any) ([]byte, error)
	DecodeState(data []byte) (any, error)
}

// Persistence is the durable-storage collaborator. The router only hands it
// already-serialized blobs and never interprets their format.
type Persistence interface {
	Save(path string, data []byte) error
	CreateDir(path string) error
	Load(path string) ([]byte, error)
	ListSubdirectories(root string) ([]string, error)
	DeleteDirectory(path string) error
}

// CredentialVerifier is the credential collaborator behind LoginAllSessions.
type CredentialVerifier interface {
	Verify(ctx context.Context, username string, accountID int64) error
}

// savedGame is the on-disk wrapper around an encoded game state. The phase
// travels with the state so a loaded session resumes where it was saved.
type savedGame struct {
	SessionName string          `json:"session_name"`
	Owner       string          `json:"owner"`
	Phase       session.Phase   `json:"phase"`
	State       json.RawMessage `json:"state"`
}

// RouterConfig carries the Router's collaborators.
type RouterConfig struct {
	Store         *session.Store
	Registry      *Registry
	Engine        GameEngine
	Persistence   Persistence
	Index         *disk.Index
	Credentials   CredentialVerifier
	StorageRoot   string
	AutoTurnDelay time.Duration
	Logger        *zap.Logger
}

// Router is the protocol state machine. Every inbound event lands here; the
// router validates it against the session phase, mutates through the store's
// exclusion-protected paths, then persists and broadcasts snapshots taken
// under the lock. No other component mutates session state directly; the
// scheduler only triggers mutation through runAutomatedTurn.
type Router struct {
	store     *session.Store
	registry  *Registry
	engine    GameEngine
	persist   Persistence
	index     *disk.Index
	creds     CredentialVerifier
	root      string
	scheduler *Scheduler
	logger    *zap.Logger

	identity *identityMap
}

// NewRouter wires a Router and its automated-turn scheduler.
//
// Precondition: every RouterConfig field must be set.
func NewRouter(cfg RouterConfig) *Router {
	r := &Router{
		store:    cfg.Store,
		registry: cfg.Registry,
		engine:   cfg.Engine,
		persist:  cfg.Persistence,
		index:    cfg.Index,
		creds:    cfg.Credentials,
		root:     cfg.StorageRoot,
		logger:   cfg.Logger,
		identity: newIdentityMap(),
	}
	r.scheduler = NewScheduler(cfg.AutoTurnDelay, r.runAutomatedTurn, cfg.Logger)
	return r
}

// Stop cancels all automated-turn sequences and waits for them.
func (r *Router) Stop() {
	r.scheduler.Stop()
}

// HandleConnect greets a freshly registered connection.
//
// Postcondition: the connection has been sent AssignConnectionId followed by
// Welcome.
func (r *Router) HandleConnect(connID uint64) {
	r.send(connID, EventAssignConnectionID, AssignConnectionID{ID: connID})
	r.send(connID, EventWelcome, Welcome{Message: welcomeMessage, ConnectionID: connID})
}

// HandleDisconnect runs full cleanup for a closed connection. Graceful and
// abrupt closes take the identical path.
func (r *Router) HandleDisconnect(connID uint64) {
	for _, m := range r.store.FindByConnection(connID) {
		r.removeConnection(m.Session, m.Player, connID)
	}
	r.identity.clear(connID)
}

// HandleMessage decodes and dispatches one inbound wire message. Malformed
// messages and collaborator failures are logged and ignored; they never
// abort the connection's loop or leak to other connections.
func (r *Router) HandleMessage(ctx context.Context, connID uint64, raw []byte) {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		r.logger.Warn("malformed inbound event", zap.Uint64("conn_id", connID), zap.Error(err))
		return
	}

	switch env.Type {
	case EventLoginAllSessions:
		var p LoginAllSessions
		if r.decode(connID, env, &p) {
			r.handleLogin(ctx, connID, p)
		}
	case EventLogOut:
		var p LogOut
		if r.decode(connID, env, &p) {
			r.handleLogOut(connID, p)
		}
	case EventInitializeGame:
		var p InitializeGame
		if r.decode(connID, env, &p) {
			r.handleInitializeGame(connID, p)
		}
	case EventAddCharacter:
		var p AddCharacter
		if r.decode(connID, env, &p) {
			r.handleAddCharacter(p)
		}
	case EventStartGame:
		var p StartGame
		if r.decode(connID, env, &p) {
			r.handleStartGame(p)
		}
	case EventLaunchAttack:
		var p LaunchAttack
		if r.decode(connID, env, &p) {
			r.handleLaunchAttack(p)
		}
	case EventJoinSession:
		var p JoinSession
		if r.decode(connID, env, &p) {
			r.handleJoinSession(connID, p)
		}
	case EventRequestSessionList:
		r.handleRequestSessionList(connID)
	case EventRequestOngoingGamesList:
		r.handleRequestOngoingGames(connID)
	case EventLoadGame:
		var p LoadGame
		if r.decode(connID, env, &p) {
			r.handleLoadGame(connID, p)
		}
	case EventReplayGame:
		var p ReplayGame
		if r.decode(connID, env, &p) {
			r.handleReplayGame(connID, p)
		}
	case EventDisconnectFromSession:
		var p DisconnectFromSession
		if r.decode(connID, env, &p) {
			r.removeConnection(p.SessionName, p.Player, connID)
		}
	case EventRequestTarget:
		var p RequestTarget
		if r.decode(connID, env, &p) {
			r.handleRequestTarget(p)
		}
	case EventRequestSetOneTarget:
		var p RequestSetOneTarget
		if r.decode(connID, env, &p) {
			r.handleRequestSetOneTarget(p)
		}
	case EventSaveGame:
		var p SaveGame
		if r.decode(connID, env, &p) {
			r.handleSaveGame(p)
		}
	default:
		r.logger.Warn("unknown inbound event type",
			zap.Uint64("conn_id", connID),
			zap.String("type", string(env.Type)),
		)
	}
}

func (r *Router) decode(connID uint64, env Envelope, out any) bool {
	if err := env.DecodePayload(out); err != nil {
		r.logger.Warn("malformed event payload", zap.Uint64("conn_id", connID), zap.Error(err))
		return false
	}
	return true
}

// handleLogin verifies credentials, binds the connection to the player
// identity, and reattaches it to every live session the player is part of.
func (r *Router) handleLogin(ctx context.Context, connID uint64, p LoginAllSessions) {
	if err := r.creds.Verify(ctx, p.Username, p.AccountID); err != nil {
		r.logger.Warn("login rejected",
			zap.Uint64("conn_id", connID),
			zap.String("username", p.Username),
			zap.Error(err),
		)
		return
	}
	r.identity.set(connID, p.Username)

	for _, name := range r.store.SessionsForPlayer(p.Username) {
		if _, err := r.store.AddPlayer(name, p.Username, connID); err != nil {
			r.logger.Warn("reattach failed", zap.String("session", name), zap.Error(err))
			continue
		}
		r.send(connID, EventSessionReconnected, SessionReconnected{
			Username:     p.Username,
			ConnectionID: connID,
			SessionName:  name,
		})
		r.broadcastView(EventSessionDataUpdated, name)
	}

	r.send(connID, EventOngoingGamesUpdated, OngoingGamesUpdated{Games: r.savedGames()})
	r.logger.Info("player logged in",
		zap.Uint64("conn_id", connID),
		zap.String("username", p.Username),
	)
}

// handleLogOut detaches this connection from every session it occupies under
// the given player identity.
func (r *Router) handleLogOut(connID uint64, p LogOut) {
	for _, m := range r.store.FindByConnection(connID) {
		if m.Player == p.Username {
			r.removeConnection(m.Session, m.Player, connID)
		}
	}
	r.identity.clear(connID)
	r.logger.Info("player logged out",
		zap.Uint64("conn_id", connID),
		zap.String("username", p.Username),
	)
}

// handleInitializeGame creates a session with a fresh game state, owned by
// the sending player.
func (r *Router) handleInitializeGame(connID uint64, p InitializeGame) {
	savePath := filepath.Join(r.root, uuid.NewString())
	if _, err := r.store.Create(p.SessionName, p.Player, r.engine.NewGame(), savePath, session.PhaseInitGame); err != nil {
		r.logger.Warn("initialize rejected", zap.String("session", p.SessionName), zap.Error(err))
		return
	}
	if _, err := r.store.AddPlayer(p.SessionName, p.Player, connID); err != nil {
		r.logger.Warn("attaching owner connection", zap.String("session", p.SessionName), zap.Error(err))
	}
	if err := r.persist.CreateDir(savePath); err != nil {
		r.logger.Error("creating saved-game directory", zap.String("path", savePath), zap.Error(err))
	}

	r.broadcastView(EventSessionDataUpdated, p.SessionName)
	r.logger.Info("session initialized",
		zap.String("session", p.SessionName),
		zap.String("owner", p.Player),
	)
}

// handleAddCharacter replaces the player's character selection and rebuilds
// the engine's active combatant list from every roster entry's current
// selection.
func (r *Router) handleAddCharacter(p AddCharacter) {
	if _, _, err := r.store.AssignCharacter(p.SessionName, p.Player, p.Character); err != nil {
		r.logger.Warn("character assignment rejected",
			zap.String("session", p.SessionName),
			zap.String("player", p.Player),
			zap.Error(err),
		)
		return
	}

	// Re-derive under the lock so the engine list always matches the roster,
	// even when assignments interleave.
	_, err := r.store.Update(p.SessionName, func(s *session.Session) error {
		return r.engine.SetActiveCharacters(s.GameState, s.CharacterSelections())
	})
	if err != nil {
		r.logger.Warn("deriving active combatants", zap.String("session", p.SessionName), zap.Error(err))
		return
	}

	r.broadcastView(EventSessionDataUpdated, p.SessionName)
}

// handleStartGame begins play: engine reset, phase Running, snapshot
// persisted.
func (r *Router) handleStartGame(p StartGame) {
	var blob []byte
	var pending int
	snap, err := r.store.Update(p.SessionName, func(s *session.Session) error {
		if err := r.engine.StartGame(s.GameState); err != nil {
			return err
		}
		s.Phase = session.PhaseRunning
		pending = r.engine.AutomatedTurns(s.GameState)
		var encErr error
		blob, encErr = r.engine.EncodeState(s.GameState)
		return encErr
	})
	if err != nil {
		r.logger.Warn("start game rejected", zap.String("session", p.SessionName), zap.Error(err))
		return
	}

	r.persistSnapshot(snap, blob)
	r.broadcast(snap.ConnIDs(), EventApplicationUpdated, ApplicationUpdated{SessionView{Session: snap, State: blob}})
	r.scheduler.Schedule(p.SessionName, pending)
	r.logger.Info("game started", zap.String("session", p.SessionName))
}

// handleLaunchAttack resolves one player turn, then schedules any automated
// turns the engine reports pending.
func (r *Router) handleLaunchAttack(p LaunchAttack) {
	snap, blob, pending, err := r.resolveTurn(p.SessionName, p.Action)
	if err != nil {
		r.logger.Warn("attack rejected",
			zap.String("session", p.SessionName),
			zap.String("action", p.Action),
			zap.Error(err),
		)
		return
	}

	r.persistSnapshot(snap, blob)
	r.broadcast(snap.ConnIDs(), EventApplicationUpdated, ApplicationUpdated{SessionView{Session: snap, State: blob}})
	r.scheduler.Schedule(p.SessionName, pending)
}

// resolveTurn is the single attack-resolution path, shared by player attacks
// and automated turns. The engine mutation, phase bookkeeping, and state
// encoding all happen under one lock acquisition.
func (r *Router) resolveTurn(sessionName, action string) (session.Snapshot, []byte, int, error) {
	var blob []byte
	var pending int
	snap, err := r.store.Update(sessionName, func(s *session.Session) error {
		if s.Phase != session.PhaseRunning || r.engine.GameEnded(s.GameState) {
			return errOutOfPhase
		}
		outcome, err := r.engine.ResolveAttack(s.GameState, action)
		if err != nil {
			return err
		}
		if outcome.Ended {
			s.Phase = session.PhaseEnded
		}
		r.logger.Debug("attack resolved",
			zap.String("session", sessionName),
			zap.String("attacker", outcome.Attacker),
			zap.String("action", outcome.Action),
			zap.String("target", outcome.Target),
			zap.Int("damage", outcome.Damage),
			zap.Bool("ended", outcome.Ended),
		)
		pending = r.engine.AutomatedTurns(s.GameState)
		var encErr error
		blob, encErr = r.engine.EncodeState(s.GameState)
		return encErr
	})
	return snap, blob, pending, err
}

// runAutomatedTurn is the scheduler's callback: one engine-picked turn
// through the same mutation-and-broadcast path as LaunchAttack. Returns
// false when the sequence should stop because the session is gone, out of
// phase, or the game ended.
func (r *Router) runAutomatedTurn(sessionName string) bool {
	snap, blob, _, err := r.resolveTurn(sessionName, "")
	if err != nil {
		r.logger.Debug("automated turn skipped", zap.String("session", sessionName), zap.Error(err))
		return false
	}

	r.persistSnapshot(snap, blob)
	r.broadcast(snap.ConnIDs(), EventApplicationUpdated, ApplicationUpdated{SessionView{Session: snap, State: blob}})
	return snap.Phase == session.PhaseRunning
}

// handleJoinSession adds the player to the roster; first join and
// reconnection take the same path.
func (r *Router) handleJoinSession(connID uint64, p JoinSession) {
	if _, err := r.store.AddPlayer(p.SessionName, p.Player, connID); err != nil {
		r.logger.Warn("join rejected",
			zap.String("session", p.SessionName),
			zap.String("player", p.Player),
			zap.Error(err),
		)
		return
	}
	r.broadcastView(EventSessionDataUpdated, p.SessionName)
}

func (r *Router) handleRequestSessionList(connID uint64) {
	r.send(connID, EventSessionListAnswer, SessionListAnswer{Sessions: r.store.Names()})
}

func (r *Router) handleRequestOngoingGames(connID uint64) {
	r.send(connID, EventOngoingGamesUpdated, OngoingGamesUpdated{Games: r.savedGames()})
}

// handleLoadGame restores a saved session from disk, replacing any live
// session of the same name.
func (r *Router) handleLoadGame(connID uint64, p LoadGame) {
	savePath, err := r.resolveSavePath(p.Path)
	if err != nil {
		r.logger.Warn("load path rejected", zap.String("path", p.Path), zap.Error(err))
		return
	}
	data, err := r.persist.Load(filepath.Join(savePath, stateFileName))
	if err != nil {
		r.logger.Error("loading saved game", zap.String("path", savePath), zap.Error(err))
		return
	}
	var saved savedGame
	if err := json.Unmarshal(data, &saved); err != nil {
		r.logger.Error("decoding saved game", zap.String("path", savePath), zap.Error(err))
		return
	}
	state, err := r.engine.DecodeState(saved.State)
	if err != nil {
		r.logger.Error("decoding saved game state", zap.String("path", savePath), zap.Error(err))
		return
	}

	name := saved.SessionName
	if name == "" {
		name = p.Player
	}
	owner := saved.Owner
	if owner == "" {
		owner = p.Player
	}
	phase := saved.Phase
	if phase == "" {
		phase = session.PhaseInitGame
	}

	// Loading replaces a live session of the same name; the replacement is
	// explicit, unlike InitializeGame which refuses duplicates.
	if r.store.Has(name) {
		r.scheduler.Cancel(name)
		if _, err := r.store.Teardown(name); err != nil {
			r.logger.Warn("tearing down replaced session", zap.String("session", name), zap.Error(err))
		}
	}

	if _, err := r.store.Create(name, owner, state, savePath, phase); err != nil {
		r.logger.Error("restoring session", zap.String("session", name), zap.Error(err))
		return
	}
	if _, err := r.store.AddPlayer(name, p.Player, connID); err != nil {
		r.logger.Warn("attaching loader connection", zap.String("session", name), zap.Error(err))
	}

	r.broadcastView(EventApplicationUpdated, name)
	r.logger.Info("saved game loaded",
		zap.String("session", name),
		zap.String("path", savePath),
		zap.String("phase", string(phase)),
	)
}

// resolveSavePath confines a client-supplied saved-game path to the storage
// root. Load payloads echo paths the server previously published; anything
// resolving outside the root is a protocol error.
func (r *Router) resolveSavePath(path string) (string, error) {
	root, err := filepath.Abs(r.root)
	if err != nil {
		return "", fmt.Errorf("resolving storage root: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving saved-game path: %w", err)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the storage root", path)
	}
	return abs, nil
}

// handleReplayGame restarts an ended or running session. Owner only.
func (r *Router) handleReplayGame(connID uint64, p ReplayGame) {
	requester, _ := r.identity.get(connID)

	var blob []byte
	var pending int
	snap, err := r.store.Update(p.SessionName, func(s *session.Session) error {
		if requester == "" || s.Owner != requester {
			return errNotOwner
		}
		if s.Phase != session.PhaseRunning && s.Phase != session.PhaseEnded {
			return errOutOfPhase
		}
		if err := r.engine.StartGame(s.GameState); err != nil {
			return err
		}
		s.Phase = session.PhaseRunning
		pending = r.engine.AutomatedTurns(s.GameState)
		var encErr error
		blob, encErr = r.engine.EncodeState(s.GameState)
		return encErr
	})
	if err != nil {
		r.logger.Warn("replay rejected", zap.String("session", p.SessionName), zap.Error(err))
		return
	}

	r.persistSnapshot(snap, blob)
	r.broadcast(snap.ConnIDs(), EventApplicationUpdated, ApplicationUpdated{SessionView{Session: snap, State: blob}})
	r.scheduler.Schedule(p.SessionName, pending)
	r.logger.Info("game replayed", zap.String("session", p.SessionName))
}

// handleRequestTarget opens target selection for the launcher's action.
func (r *Router) handleRequestTarget(p RequestTarget) {
	var blob []byte
	snap, err := r.store.Update(p.SessionName, func(s *session.Session) error {
		if s.Phase != session.PhaseRunning {
			return errOutOfPhase
		}
		if _, err := r.engine.Targets(s.GameState, p.Launcher, p.Action); err != nil {
			return err
		}
		if err := r.engine.BeginTargeting(s.GameState, p.Launcher, p.Action); err != nil {
			return err
		}
		var encErr error
		blob, encErr = r.engine.EncodeState(s.GameState)
		return encErr
	})
	if err != nil {
		r.logger.Warn("target request rejected",
			zap.String("session", p.SessionName),
			zap.String("launcher", p.Launcher),
			zap.Error(err),
		)
		return
	}

	r.broadcast(snap.ConnIDs(), EventApplicationUpdated, ApplicationUpdated{SessionView{Session: snap, State: blob}})
}

// handleRequestSetOneTarget records the chosen target in the game state.
func (r *Router) handleRequestSetOneTarget(p RequestSetOneTarget) {
	var blob []byte
	snap, err := r.store.Update(p.SessionName, func(s *session.Session) error {
		if s.Phase != session.PhaseRunning {
			return errOutOfPhase
		}
		if err := r.engine.SetTarget(s.GameState, p.Launcher, p.Action, p.Target); err != nil {
			return err
		}
		var encErr error
		blob, encErr = r.engine.EncodeState(s.GameState)
		return encErr
	})
	if err != nil {
		r.logger.Warn("target selection rejected",
			zap.String("session", p.SessionName),
			zap.String("launcher", p.Launcher),
			zap.String("target", p.Target),
			zap.Error(err),
		)
		return
	}

	r.broadcast(snap.ConnIDs(), EventApplicationUpdated, ApplicationUpdated{SessionView{Session: snap, State: blob}})
}

// handleSaveGame persists the session's current state on demand. The saved
// list changes for everyone, so the refresh goes to every open connection,
// not just the saving session's roster.
func (r *Router) handleSaveGame(p SaveGame) {
	view, err := r.sessionView(p.SessionName)
	if err != nil {
		r.logger.Warn("save rejected", zap.String("session", p.SessionName), zap.Error(err))
		return
	}

	r.persistSnapshot(view.Session, view.State)
	r.broadcastAll(EventOngoingGamesUpdated, OngoingGamesUpdated{Games: r.savedGames()})
	r.logger.Info("game saved",
		zap.String("session", p.SessionName),
		zap.String("path", view.Session.SavePath),
	)
}

// removeConnection prunes one connection from a roster entry and, when the
// owner's last connection is gone, ends the session: remaining roster
// connections are notified first, then the store entry, index entry, and
// saved-game directory are removed.
func (r *Router) removeConnection(sessionName, player string, connID uint64) {
	snap, _, ownerGone, err := r.store.RemoveConnection(sessionName, player, connID)
	if err != nil {
		r.logger.Debug("connection removal skipped",
			zap.String("session", sessionName),
			zap.String("player", player),
			zap.Error(err),
		)
		return
	}

	if !ownerGone {
		r.broadcastView(EventSessionDataUpdated, sessionName)
		return
	}

	r.broadcast(snap.ConnIDs(), EventSessionEnded, SessionEnded{SessionName: sessionName})
	r.scheduler.Cancel(sessionName)
	if _, err := r.store.Teardown(sessionName); err != nil {
		r.logger.Warn("tearing down session", zap.String("session", sessionName), zap.Error(err))
	}
	if err := r.index.Remove(sessionName); err != nil {
		r.logger.Error("removing index entry", zap.String("session", sessionName), zap.Error(err))
	}
	if err := r.persist.DeleteDirectory(snap.SavePath); err != nil {
		r.logger.Error("deleting saved-game directory", zap.String("path", snap.SavePath), zap.Error(err))
	}
	r.logger.Info("session ended",
		zap.String("session", sessionName),
		zap.String("owner", player),
	)
}

// persistSnapshot writes the encoded state wrapped with its phase to the
// session's save path and keeps the index entry current. Persistence
// failures are logged and never roll back the in-memory mutation.
func (r *Router) persistSnapshot(snap session.Snapshot, blob []byte) {
	saved := savedGame{
		SessionName: snap.Name,
		Owner:       snap.Owner,
		Phase:       snap.Phase,
		State:       blob,
	}
	data, err := json.Marshal(saved)
	if err != nil {
		r.logger.Error("encoding saved game", zap.String("session", snap.Name), zap.Error(err))
		return
	}
	if err := r.persist.Save(filepath.Join(snap.SavePath, stateFileName), data); err != nil {
		r.logger.Error("persisting game state",
			zap.String("session", snap.Name),
			zap.String("path", snap.SavePath),
			zap.Error(err),
		)
		return
	}
	if err := r.index.Add(disk.IndexEntry{Path: snap.SavePath, SessionName: snap.Name}); err != nil {
		r.logger.Error("updating session index", zap.String("session", snap.Name), zap.Error(err))
	}
}

// savedGames returns the current session index as outbound refs.
func (r *Router) savedGames() []SavedGameRef {
	entries := r.index.Entries()
	refs := make([]SavedGameRef, 0, len(entries))
	for _, e := range entries {
		refs = append(refs, SavedGameRef{Path: e.Path, SessionName: e.SessionName})
	}
	return refs
}

// sessionView captures the session snapshot and its encoded state under one
// lock acquisition.
func (r *Router) sessionView(name string) (SessionView, error) {
	var view SessionView
	err := r.store.View(name, func(s *session.Session) error {
		blob, err := r.engine.EncodeState(s.GameState)
		if err != nil {
			return err
		}
		view = SessionView{Session: s.Clone(), State: blob}
		return nil
	})
	return view, err
}

// broadcastView broadcasts the session's current view to its roster
// connections.
func (r *Router) broadcastView(t EventType, name string) {
	view, err := r.sessionView(name)
	if err != nil {
		r.logger.Warn("broadcast view unavailable", zap.String("session", name), zap.Error(err))
		return
	}
	switch t {
	case EventSessionDataUpdated:
		r.broadcast(view.Session.ConnIDs(), t, SessionDataUpdated{view})
	default:
		r.broadcast(view.Session.ConnIDs(), t, ApplicationUpdated{view})
	}
}

func (r *Router) send(connID uint64, t EventType, payload any) {
	data, err := EncodeEvent(t, payload)
	if err != nil {
		r.logger.Error("encoding outbound event", zap.String("type", string(t)), zap.Error(err))
		return
	}
	r.registry.Send(connID, data)
}

func (r *Router) broadcast(ids []uint64, t EventType, payload any) {
	data, err := EncodeEvent(t, payload)
	if err != nil {
		r.logger.Error("encoding broadcast event", zap.String("type", string(t)), zap.Error(err))
		return
	}
	r.registry.Broadcast(ids, data)
}

func (r *Router) broadcastAll(t EventType, payload any) {
	data, err := EncodeEvent(t, payload)
	if err != nil {
		r.logger.Error("encoding broadcast event", zap.String("type", string(t)), zap.Error(err))
		return
	}
	r.registry.BroadcastAll(data)
}
