package engine

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrGameEnded is returned when an attack is resolved against a finished game.
var ErrGameEnded = errors.New("game already ended")

// ErrNoActiveHeroes is returned when a game starts with an empty hero list.
var ErrNoActiveHeroes = errors.New("no active heroes")

// ErrUnknownAction is returned when an attack name is not available to the actor.
var ErrUnknownAction = errors.New("unknown action")

// ErrUnknownCombatant is returned when a named combatant is not in the state.
var ErrUnknownCombatant = errors.New("unknown combatant")

// ErrInvalidState is returned when a decoded game state violates the
// combatant invariants a running game guarantees.
var ErrInvalidState = errors.New("invalid game state")

// Outcome summarizes what one resolved attack changed.
type Outcome struct {
	Attacker       string `json:"attacker"`
	Action         string `json:"action"`
	Target         string `json:"target"`
	Damage         int    `json:"damage"`
	TargetDefeated bool   `json:"target_defeated"`
	Ended          bool   `json:"ended"`
}

// Engine resolves turns against opaque game states. It is stateless apart
// from its loaded catalog and formula scripts; all per-game data lives in
// the State it is handed.
type Engine struct {
	catalog *Catalog
	scripts *Scripts
	logger  *zap.Logger
}

// New creates an Engine over the given catalog and formula scripts.
//
// Precondition: catalog and logger must be non-nil; scripts may be nil when
// no formulas are used.
func New(catalog *Catalog, scripts *Scripts, logger *zap.Logger) *Engine {
	return &Engine{catalog: catalog, scripts: scripts, logger: logger}
}

// NewGame builds a fresh opaque state with the catalog's enemies and no
// heroes; heroes are derived later from the roster's character selections.
func (e *Engine) NewGame() any {
	st := &State{}
	for _, def := range e.catalog.enemies {
		st.Enemies = append(st.Enemies, &Combatant{
			Name:      def.Name,
			MaxHP:     def.MaxHP,
			CurrentHP: def.MaxHP,
			Attacks:   append([]string(nil), def.Attacks...),
		})
	}
	return st
}

// SetActiveCharacters rebuilds the hero list from the given character names,
// in order. Unknown names are skipped with a log entry so one bad selection
// does not invalidate the rest of the lobby.
func (e *Engine) SetActiveCharacters(state any, names []string) error {
	st, err := e.asState(state)
	if err != nil {
		return err
	}

	st.Heroes = st.Heroes[:0]
	for _, name := range names {
		def, ok := e.catalog.Hero(name)
		if !ok {
			e.logger.Warn("character not in catalog, skipping",
				zap.String("character", name),
			)
			continue
		}
		st.Heroes = append(st.Heroes, &Combatant{
			Name:      def.Name,
			MaxHP:     def.MaxHP,
			CurrentHP: def.MaxHP,
			Attacks:   append([]string(nil), def.Attacks...),
		})
	}
	return nil
}

// StartGame resets the state for a fresh run: full hit points on both sides,
// round 1, heroes act first.
//
// Postcondition: Returns ErrNoActiveHeroes if no characters were selected.
func (e *Engine) StartGame(state any) error {
	st, err := e.asState(state)
	if err != nil {
		return err
	}
	if len(st.Heroes) == 0 {
		return ErrNoActiveHeroes
	}

	for _, c := range st.combatants() {
		c.CurrentHP = c.MaxHP
	}
	st.Round = 1
	st.TurnIndex = 0
	st.Ended = false
	st.Targeting = nil
	return nil
}

// ResolveAttack resolves one turn for the current actor. An empty action
// name lets the engine pick, which is how automated turns are driven.
//
// Postcondition: Returns the outcome, or ErrGameEnded / ErrUnknownAction
// without mutating the state.
func (e *Engine) ResolveAttack(state any, action string) (Outcome, error) {
	st, err := e.asState(state)
	if err != nil {
		return Outcome{}, err
	}
	if st.Ended {
		return Outcome{}, ErrGameEnded
	}

	actor := st.currentActor()
	if actor == nil {
		st.Ended = true
		return Outcome{}, ErrGameEnded
	}
	enemyTurn := st.isEnemyIndex(st.TurnIndex)

	if action == "" {
		if len(actor.Attacks) == 0 {
			return Outcome{}, fmt.Errorf("actor %q has no attacks: %w", actor.Name, ErrUnknownAction)
		}
		action = actor.Attacks[0]
	} else if !containsString(actor.Attacks, action) {
		return Outcome{}, fmt.Errorf("actor %q has no attack %q: %w", actor.Name, action, ErrUnknownAction)
	}

	target := e.pickTarget(st, actor, enemyTurn)
	if target == nil {
		st.Ended = true
		return Outcome{Attacker: actor.Name, Action: action, Ended: true}, nil
	}

	damage := e.computeDamage(action, actor, target)
	target.CurrentHP -= damage
	if target.CurrentHP < 0 {
		target.CurrentHP = 0
	}

	st.Ended = sideDefeated(st.Heroes) || sideDefeated(st.Enemies)
	if !st.Ended {
		st.advanceTurn()
	}

	return Outcome{
		Attacker:       actor.Name,
		Action:         action,
		Target:         target.Name,
		Damage:         damage,
		TargetDefeated: target.Defeated(),
		Ended:          st.Ended,
	}, nil
}

// pickTarget chooses the attack target: a hero's explicit selection when one
// is pending, otherwise the first living combatant on the opposing side.
func (e *Engine) pickTarget(st *State, actor *Combatant, enemyTurn bool) *Combatant {
	if enemyTurn {
		return firstLiving(st.Heroes)
	}
	if st.Targeting != nil && st.Targeting.Launcher == actor.Name && st.Targeting.Target != "" {
		chosen := findByName(st.Enemies, st.Targeting.Target)
		st.Targeting = nil
		if chosen != nil && !chosen.Defeated() {
			return chosen
		}
	}
	return firstLiving(st.Enemies)
}

// computeDamage applies the attack's Lua formula when one is configured,
// falling back to the base damage on any formula error.
func (e *Engine) computeDamage(action string, actor, target *Combatant) int {
	def, ok := e.catalog.Attack(action)
	if !ok {
		return 0
	}
	if def.Formula == "" || e.scripts == nil {
		return def.Damage
	}
	damage, err := e.scripts.Eval(def.Formula, def.Damage, actor.CurrentHP, target.CurrentHP)
	if err != nil {
		e.logger.Warn("damage formula failed, using base damage",
			zap.String("attack", action),
			zap.String("formula", def.Formula),
			zap.Error(err),
		)
		return def.Damage
	}
	return damage
}

// AutomatedTurns reports how many consecutive automated (enemy) turns are
// pending from the current position in the turn order.
func (e *Engine) AutomatedTurns(state any) int {
	st, err := e.asState(state)
	if err != nil || st.Ended {
		return 0
	}

	order := st.combatants()
	if len(order) == 0 {
		return 0
	}

	count := 0
	idx := st.TurnIndex % len(order)
	for range order {
		c := order[idx]
		if !c.Defeated() {
			if !st.isEnemyIndex(idx) {
				break
			}
			count++
		}
		idx = (idx + 1) % len(order)
	}
	return count
}

// GameEnded reports whether the game has concluded.
func (e *Engine) GameEnded(state any) bool {
	st, err := e.asState(state)
	if err != nil {
		return false
	}
	return st.Ended
}

// Targets returns the living opposing combatants the launcher may aim the
// given action at.
func (e *Engine) Targets(state any, launcher, action string) ([]string, error) {
	st, err := e.asState(state)
	if err != nil {
		return nil, err
	}
	hero := findByName(st.Heroes, launcher)
	if hero == nil {
		return nil, fmt.Errorf("launcher %q: %w", launcher, ErrUnknownCombatant)
	}
	if !containsString(hero.Attacks, action) {
		return nil, fmt.Errorf("launcher %q has no attack %q: %w", launcher, action, ErrUnknownAction)
	}

	var names []string
	for _, enemy := range st.Enemies {
		if !enemy.Defeated() {
			names = append(names, enemy.Name)
		}
	}
	return names, nil
}

// BeginTargeting records that launcher is choosing a target for action.
func (e *Engine) BeginTargeting(state any, launcher, action string) error {
	st, err := e.asState(state)
	if err != nil {
		return err
	}
	if findByName(st.Heroes, launcher) == nil {
		return fmt.Errorf("launcher %q: %w", launcher, ErrUnknownCombatant)
	}
	st.Targeting = &TargetRequest{Launcher: launcher, Action: action}
	return nil
}

// SetTarget records the chosen target for a pending selection. It is valid
// without a prior BeginTargeting call; the selection is simply created.
func (e *Engine) SetTarget(state any, launcher, action, target string) error {
	st, err := e.asState(state)
	if err != nil {
		return err
	}
	if findByName(st.Heroes, launcher) == nil {
		return fmt.Errorf("launcher %q: %w", launcher, ErrUnknownCombatant)
	}
	if findByName(st.Enemies, target) == nil {
		return fmt.Errorf("target %q: %w", target, ErrUnknownCombatant)
	}
	st.Targeting = &TargetRequest{Launcher: launcher, Action: action, Target: target}
	return nil
}

// EncodeState serializes an opaque state for persistence or broadcast.
func (e *Engine) EncodeState(state any) ([]byte, error) {
	st, err := e.asState(state)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encoding game state: %w", err)
	}
	return data, nil
}

// DecodeState deserializes a previously encoded state. The result is
// validated so a corrupted or hand-edited save is rejected here rather than
// faulting mid-turn.
//
// Postcondition: Returns a state every later engine call can safely resolve
// against, or an error wrapping ErrInvalidState.
func (e *Engine) DecodeState(data []byte) (any, error) {
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decoding game state: %w", err)
	}
	if err := validateState(&st); err != nil {
		return nil, fmt.Errorf("decoding game state: %w", err)
	}
	return &st, nil
}

// validateState checks the invariants NewGame and SetActiveCharacters
// establish for every combatant, so decoded saves meet the same contract as
// states the engine built itself.
func validateState(st *State) error {
	if st.TurnIndex < 0 {
		return fmt.Errorf("turn index %d: %w", st.TurnIndex, ErrInvalidState)
	}
	for _, c := range st.combatants() {
		switch {
		case c == nil:
			return fmt.Errorf("null combatant: %w", ErrInvalidState)
		case c.Name == "":
			return fmt.Errorf("combatant with empty name: %w", ErrInvalidState)
		case c.MaxHP <= 0:
			return fmt.Errorf("combatant %q max hp %d: %w", c.Name, c.MaxHP, ErrInvalidState)
		case c.CurrentHP < 0 || c.CurrentHP > c.MaxHP:
			return fmt.Errorf("combatant %q hp %d outside [0,%d]: %w", c.Name, c.CurrentHP, c.MaxHP, ErrInvalidState)
		case len(c.Attacks) == 0:
			return fmt.Errorf("combatant %q has no attacks: %w", c.Name, ErrInvalidState)
		}
	}
	return nil
}

func (e *Engine) asState(state any) (*State, error) {
	st, ok := state.(*State)
	if !ok {
		return nil, fmt.Errorf("unexpected game state type %T", state)
	}
	return st, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
