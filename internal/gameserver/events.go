// Package gameserver implements the protocol layer of the game server: the
// JSON event vocabulary, the connection registry, the event router that
// drives the session state machine, and the automated-turn scheduler.
package gameserver

import (
	"encoding/json"
	"fmt"

	"github.com/lmercier/crucible/internal/game/session"
)

// EventType discriminates the JSON event envelope.
type EventType string

// Inbound event types (client to server).
const (
	EventLoginAllSessions        EventType = "LoginAllSessions"
	EventLogOut                  EventType = "LogOut"
	EventInitializeGame          EventType = "InitializeGame"
	EventAddCharacter            EventType = "AddCharacter"
	EventStartGame               EventType = "StartGame"
	EventLaunchAttack            EventType = "LaunchAttack"
	EventJoinSession             EventType = "JoinSession"
	EventRequestSessionList      EventType = "RequestSessionList"
	EventRequestOngoingGamesList EventType = "RequestOngoingGamesList"
	EventLoadGame                EventType = "LoadGame"
	EventReplayGame              EventType = "ReplayGame"
	EventDisconnectFromSession   EventType = "DisconnectFromSession"
	EventRequestTarget           EventType = "RequestTarget"
	EventRequestSetOneTarget     EventType = "RequestSetOneTarget"
	EventSaveGame                EventType = "SaveGame"
)

// Outbound event types (server to client).
const (
	EventWelcome             EventType = "Welcome"
	EventAssignConnectionID  EventType = "AssignConnectionId"
	EventApplicationUpdated  EventType = "ApplicationUpdated"
	EventSessionReconnected  EventType = "SessionReconnected"
	EventSessionDataUpdated  EventType = "SessionDataUpdated"
	EventOngoingGamesUpdated EventType = "OngoingGamesUpdated"
	EventSessionListAnswer   EventType = "SessionListAnswer"
	EventSessionEnded        EventType = "SessionEnded"
)

// Envelope is the wire framing for every event in both directions.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeEnvelope parses one wire message.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decoding event envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("event envelope missing type")
	}
	return env, nil
}

// DecodePayload unmarshals the envelope's payload into out.
func (e Envelope) DecodePayload(out any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has no payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, out); err != nil {
		return fmt.Errorf("decoding %s payload: %w", e.Type, err)
	}
	return nil
}

// EncodeEvent marshals an event for the wire. A nil payload produces an
// envelope with no payload field.
func EncodeEvent(t EventType, payload any) ([]byte, error) {
	env := Envelope{Type: t}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", t, err)
		}
		env.Payload = raw
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding %s envelope: %w", t, err)
	}
	return data, nil
}

// LoginAllSessions authenticates a connection and reattaches it to every
// live session its player is part of.
type LoginAllSessions struct {
	Username  string `json:"username"`
	AccountID int64  `json:"id"`
}

// LogOut detaches the connection from its player identity and from all of
// that player's sessions.
type LogOut struct {
	Username string `json:"username"`
}

// InitializeGame creates a new session owned by the sending player.
type InitializeGame struct {
	SessionName string `json:"session_name"`
	Player      string `json:"player"`
}

// AddCharacter sets the player's character selection within a session.
type AddCharacter struct {
	SessionName string `json:"session_name"`
	Player      string `json:"player"`
	Character   string `json:"character"`
}

// StartGame begins play for a session.
type StartGame struct {
	SessionName string `json:"session_name"`
}

// LaunchAttack resolves one player turn. An empty Action lets the engine
// pick the actor's default attack.
type LaunchAttack struct {
	SessionName string `json:"session_name"`
	Action      string `json:"action,omitempty"`
}

// JoinSession adds the sending connection's player to a session's roster.
type JoinSession struct {
	SessionName string `json:"session_name"`
	Player      string `json:"player"`
}

// LoadGame restores a saved session from a saved-game directory.
type LoadGame struct {
	Path   string `json:"path"`
	Player string `json:"player"`
}

// ReplayGame restarts an ended or running session. Owner only.
type ReplayGame struct {
	SessionName string `json:"session_name"`
}

// DisconnectFromSession removes one connection from a session's roster.
type DisconnectFromSession struct {
	SessionName string `json:"session_name"`
	Player      string `json:"player"`
}

// RequestTarget opens target selection for a launcher's action.
type RequestTarget struct {
	SessionName string `json:"session_name"`
	Launcher    string `json:"launcher"`
	Action      string `json:"action"`
}

// RequestSetOneTarget records the chosen target for a pending selection.
type RequestSetOneTarget struct {
	SessionName string `json:"session_name"`
	Launcher    string `json:"launcher"`
	Action      string `json:"action"`
	Target      string `json:"target"`
}

// SaveGame persists a session's current state on demand.
type SaveGame struct {
	SessionName string `json:"session_name"`
}

// Welcome is pushed to a connection right after AssignConnectionId.
type Welcome struct {
	Message      string `json:"message"`
	ConnectionID uint64 `json:"connection_id"`
}

// AssignConnectionID tells a new connection its server-assigned id.
type AssignConnectionID struct {
	ID uint64 `json:"id"`
}

// SessionView is the outbound representation of a session: the roster
// snapshot plus the serialized game state.
type SessionView struct {
	Session session.Snapshot `json:"session"`
	State   json.RawMessage  `json:"state,omitempty"`
}

// ApplicationUpdated broadcasts the post-mutation view after a game-state
// change (start, attack, targeting, replay, load).
type ApplicationUpdated struct {
	SessionView
}

// SessionDataUpdated broadcasts the post-mutation view after a lobby or
// roster change (initialize, join, character selection).
type SessionDataUpdated struct {
	SessionView
}

// SessionReconnected tells a connection it was reattached to a session it
// already belonged to.
type SessionReconnected struct {
	Username     string `json:"username"`
	ConnectionID uint64 `json:"id"`
	SessionName  string `json:"session_name"`
}

// SavedGameRef points at one saved-game directory.
type SavedGameRef struct {
	Path        string `json:"path"`
	SessionName string `json:"session_name"`
}

// OngoingGamesUpdated carries the current saved-game index.
type OngoingGamesUpdated struct {
	Games []SavedGameRef `json:"games"`
}

// SessionListAnswer carries the names of all live sessions.
type SessionListAnswer struct {
	Sessions []string `json:"sessions"`
}

// SessionEnded tells roster connections their session was torn down.
type SessionEnded struct {
	SessionName string `json:"session_name"`
}
