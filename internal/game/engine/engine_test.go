package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func testCatalog() *Catalog {
	return &Catalog{
		heroes: map[string]CombatantDef{
			"Knight": {Name: "Knight", MaxHP: 30, Attacks: []string{"slash", "guard_break"}},
			"Mage":   {Name: "Mage", MaxHP: 18, Attacks: []string{"fireball"}},
		},
		enemies: []CombatantDef{
			{Name: "Goblin", MaxHP: 12, Attacks: []string{"claw"}},
			{Name: "Ogre", MaxHP: 25, Attacks: []string{"smash"}},
		},
		attacks: map[string]AttackDef{
			"slash":       {Name: "slash", Damage: 5},
			"guard_break": {Name: "guard_break", Damage: 3},
			"fireball":    {Name: "fireball", Damage: 8},
			"claw":        {Name: "claw", Damage: 4},
			"smash":       {Name: "smash", Damage: 7},
		},
	}
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	return New(testCatalog(), nil, zap.NewNop())
}

func startedGame(t *testing.T, e *Engine, characters ...string) any {
	t.Helper()
	state := e.NewGame()
	require.NoError(t, e.SetActiveCharacters(state, characters))
	require.NoError(t, e.StartGame(state))
	return state
}

func TestEngine_NewGameHasCatalogEnemiesAndNoHeroes(t *testing.T) {
	e := testEngine(t)
	state := e.NewGame()

	st := state.(*State)
	require.Len(t, st.Enemies, 2)
	assert.Equal(t, "Goblin", st.Enemies[0].Name)
	assert.Equal(t, 12, st.Enemies[0].CurrentHP)
	assert.Empty(t, st.Heroes)
	assert.False(t, st.Ended)
}

func TestEngine_SetActiveCharactersRebuildsHeroes(t *testing.T) {
	e := testEngine(t)
	state := e.NewGame()

	require.NoError(t, e.SetActiveCharacters(state, []string{"Knight", "Mage"}))
	st := state.(*State)
	require.Len(t, st.Heroes, 2)
	assert.Equal(t, "Knight", st.Heroes[0].Name)
	assert.Equal(t, 30, st.Heroes[0].CurrentHP)

	// Replacing the selection discards the previous hero list.
	require.NoError(t, e.SetActiveCharacters(state, []string{"Mage"}))
	require.Len(t, st.Heroes, 1)
	assert.Equal(t, "Mage", st.Heroes[0].Name)
}

func TestEngine_SetActiveCharactersSkipsUnknownNames(t *testing.T) {
	e := testEngine(t)
	state := e.NewGame()

	require.NoError(t, e.SetActiveCharacters(state, []string{"Knight", "Nobody"}))
	st := state.(*State)
	require.Len(t, st.Heroes, 1)
	assert.Equal(t, "Knight", st.Heroes[0].Name)
}

func TestEngine_StartGameRequiresHeroes(t *testing.T) {
	e := testEngine(t)
	state := e.NewGame()
	assert.ErrorIs(t, e.StartGame(state), ErrNoActiveHeroes)
}

func TestEngine_StartGameResetsState(t *testing.T) {
	e := testEngine(t)
	state := startedGame(t, e, "Knight")
	st := state.(*State)

	st.Heroes[0].CurrentHP = 1
	st.Enemies[0].CurrentHP = 0
	st.Round = 7
	st.TurnIndex = 2
	st.Ended = true

	require.NoError(t, e.StartGame(state))
	assert.Equal(t, 30, st.Heroes[0].CurrentHP)
	assert.Equal(t, 12, st.Enemies[0].CurrentHP)
	assert.Equal(t, 1, st.Round)
	assert.Equal(t, 0, st.TurnIndex)
	assert.False(t, st.Ended)
	assert.Nil(t, st.Targeting)
}

func TestEngine_ResolveAttackHeroHitsFirstLivingEnemy(t *testing.T) {
	e := testEngine(t)
	state := startedGame(t, e, "Knight")

	out, err := e.ResolveAttack(state, "slash")
	require.NoError(t, err)
	assert.Equal(t, "Knight", out.Attacker)
	assert.Equal(t, "slash", out.Action)
	assert.Equal(t, "Goblin", out.Target)
	assert.Equal(t, 5, out.Damage)
	assert.False(t, out.TargetDefeated)
	assert.False(t, out.Ended)

	st := state.(*State)
	assert.Equal(t, 7, st.Enemies[0].CurrentHP)
	assert.Equal(t, 1, st.TurnIndex, "turn passed to the first enemy")
}

func TestEngine_ResolveAttackUsesPendingTarget(t *testing.T) {
	e := testEngine(t)
	state := startedGame(t, e, "Knight")
	require.NoError(t, e.SetTarget(state, "Knight", "slash", "Ogre"))

	out, err := e.ResolveAttack(state, "slash")
	require.NoError(t, err)
	assert.Equal(t, "Ogre", out.Target)
	assert.Equal(t, 20, state.(*State).Enemies[1].CurrentHP)
	assert.Nil(t, state.(*State).Targeting, "target selection is consumed")
}

func TestEngine_ResolveAttackUnknownAction(t *testing.T) {
	e := testEngine(t)
	state := startedGame(t, e, "Mage")

	before := state.(*State).Enemies[0].CurrentHP
	_, err := e.ResolveAttack(state, "slash")
	assert.ErrorIs(t, err, ErrUnknownAction)
	assert.Equal(t, before, state.(*State).Enemies[0].CurrentHP)
}

func TestEngine_ResolveAttackEmptyActionPicksFirst(t *testing.T) {
	e := testEngine(t)
	state := startedGame(t, e, "Knight")

	out, err := e.ResolveAttack(state, "")
	require.NoError(t, err)
	assert.Equal(t, "slash", out.Action)
}

func TestEngine_ResolveAttackEnemyTurnHitsHero(t *testing.T) {
	e := testEngine(t)
	state := startedGame(t, e, "Knight")
	st := state.(*State)
	st.TurnIndex = 1 // Goblin's slot

	out, err := e.ResolveAttack(state, "")
	require.NoError(t, err)
	assert.Equal(t, "Goblin", out.Attacker)
	assert.Equal(t, "Knight", out.Target)
	assert.Equal(t, 26, st.Heroes[0].CurrentHP)
}

func TestEngine_ResolveAttackEndsGameWhenSideWiped(t *testing.T) {
	e := testEngine(t)
	state := startedGame(t, e, "Knight")
	st := state.(*State)
	st.Enemies[0].CurrentHP = 3
	st.Enemies[1].CurrentHP = 0

	out, err := e.ResolveAttack(state, "slash")
	require.NoError(t, err)
	assert.True(t, out.TargetDefeated)
	assert.True(t, out.Ended)
	assert.True(t, e.GameEnded(state))

	_, err = e.ResolveAttack(state, "slash")
	assert.ErrorIs(t, err, ErrGameEnded)
}

func TestEngine_ResolveAttackRoundAdvancesOnWrap(t *testing.T) {
	e := testEngine(t)
	state := startedGame(t, e, "Knight")
	st := state.(*State)

	// Knight, Goblin, Ogre act once each; the order wraps back to Knight.
	for i := 0; i < 3; i++ {
		_, err := e.ResolveAttack(state, "")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, st.Round)
	assert.Equal(t, 0, st.TurnIndex)
}

func TestEngine_ResolveAttackSkipsDefeatedActors(t *testing.T) {
	e := testEngine(t)
	state := startedGame(t, e, "Knight", "Mage")
	st := state.(*State)
	st.Heroes[0].CurrentHP = 0 // Knight is down, Mage acts first

	out, err := e.ResolveAttack(state, "fireball")
	require.NoError(t, err)
	assert.Equal(t, "Mage", out.Attacker)
}

func TestEngine_AutomatedTurns(t *testing.T) {
	e := testEngine(t)
	state := startedGame(t, e, "Knight")
	st := state.(*State)

	assert.Equal(t, 0, e.AutomatedTurns(state), "hero acts first")

	st.TurnIndex = 1
	assert.Equal(t, 2, e.AutomatedTurns(state), "both enemies act back to back")

	st.Enemies[1].CurrentHP = 0
	assert.Equal(t, 1, e.AutomatedTurns(state), "defeated enemies do not act")

	st.Ended = true
	assert.Equal(t, 0, e.AutomatedTurns(state))
}

func TestEngine_Targets(t *testing.T) {
	e := testEngine(t)
	state := startedGame(t, e, "Knight")
	st := state.(*State)

	targets, err := e.Targets(state, "Knight", "slash")
	require.NoError(t, err)
	assert.Equal(t, []string{"Goblin", "Ogre"}, targets)

	st.Enemies[0].CurrentHP = 0
	targets, err = e.Targets(state, "Knight", "slash")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ogre"}, targets)

	_, err = e.Targets(state, "Nobody", "slash")
	assert.ErrorIs(t, err, ErrUnknownCombatant)

	_, err = e.Targets(state, "Knight", "fireball")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestEngine_SetTargetValidation(t *testing.T) {
	e := testEngine(t)
	state := startedGame(t, e, "Knight")

	assert.ErrorIs(t, e.SetTarget(state, "Nobody", "slash", "Goblin"), ErrUnknownCombatant)
	assert.ErrorIs(t, e.SetTarget(state, "Knight", "slash", "Dragon"), ErrUnknownCombatant)
	assert.NoError(t, e.SetTarget(state, "Knight", "slash", "Goblin"))
}

func TestEngine_EncodeDecodeRoundTrip(t *testing.T) {
	e := testEngine(t)
	state := startedGame(t, e, "Knight", "Mage")
	_, err := e.ResolveAttack(state, "slash")
	require.NoError(t, err)

	data, err := e.EncodeState(state)
	require.NoError(t, err)

	restored, err := e.DecodeState(data)
	require.NoError(t, err)
	assert.Equal(t, state.(*State), restored.(*State))
}

func TestEngine_ResolveAttackActorWithoutAttacks(t *testing.T) {
	e := testEngine(t)
	state := &State{
		Round:   1,
		Heroes:  []*Combatant{{Name: "Husk", MaxHP: 10, CurrentHP: 10}},
		Enemies: []*Combatant{{Name: "Goblin", MaxHP: 12, CurrentHP: 12, Attacks: []string{"claw"}}},
	}

	_, err := e.ResolveAttack(state, "")
	assert.ErrorIs(t, err, ErrUnknownAction)
	assert.Equal(t, 12, state.Enemies[0].CurrentHP)
}

func TestEngine_DecodeStateRejectsInvalidSaves(t *testing.T) {
	e := testEngine(t)

	cases := []struct {
		name string
		data string
	}{
		{"hero without attacks", `{"round":1,"heroes":[{"name":"Knight","max_hp":30,"current_hp":30,"attacks":[]}],"enemies":[]}`},
		{"empty combatant name", `{"round":1,"heroes":[{"name":"","max_hp":30,"current_hp":30,"attacks":["slash"]}],"enemies":[]}`},
		{"non-positive max hp", `{"round":1,"heroes":[{"name":"Knight","max_hp":0,"current_hp":0,"attacks":["slash"]}],"enemies":[]}`},
		{"hp above max", `{"round":1,"heroes":[{"name":"Knight","max_hp":30,"current_hp":99,"attacks":["slash"]}],"enemies":[]}`},
		{"negative hp", `{"round":1,"heroes":[{"name":"Knight","max_hp":30,"current_hp":-1,"attacks":["slash"]}],"enemies":[]}`},
		{"negative turn index", `{"round":1,"turn_index":-2,"heroes":[{"name":"Knight","max_hp":30,"current_hp":30,"attacks":["slash"]}],"enemies":[]}`},
		{"null combatant", `{"round":1,"heroes":[null],"enemies":[]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.DecodeState([]byte(tc.data))
			assert.ErrorIs(t, err, ErrInvalidState)
		})
	}
}

func TestEngine_RejectsForeignStateType(t *testing.T) {
	e := testEngine(t)
	assert.Error(t, e.SetActiveCharacters("not a state", nil))
	_, err := e.ResolveAttack(42, "slash")
	assert.Error(t, err)
	assert.False(t, e.GameEnded(nil))
}

func TestPropertyHitPointsStayInRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e := New(testCatalog(), nil, zap.NewNop())
		state := e.NewGame()
		require.NoError(t, e.SetActiveCharacters(state, []string{"Knight", "Mage"}))
		require.NoError(t, e.StartGame(state))

		turns := rapid.IntRange(1, 60).Draw(t, "turns")
		for i := 0; i < turns; i++ {
			if _, err := e.ResolveAttack(state, ""); err != nil {
				break
			}
		}

		st := state.(*State)
		for _, c := range st.combatants() {
			assert.GreaterOrEqual(t, c.CurrentHP, 0)
			assert.LessOrEqual(t, c.CurrentHP, c.MaxHP)
		}
	})
}
