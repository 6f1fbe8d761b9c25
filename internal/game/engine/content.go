package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// CombatantDef is the catalog definition of a hero or enemy.
type CombatantDef struct {
	Name    string   `yaml:"name"`
	MaxHP   int      `yaml:"max_hp"`
	Attacks []string `yaml:"attacks"`
}

// AttackDef is the catalog definition of an attack.
type AttackDef struct {
	// Name uniquely identifies the attack.
	Name string `yaml:"name"`
	// Damage is the base damage dealt.
	Damage int `yaml:"damage"`
	// Formula optionally names a Lua function that computes the final damage
	// from the base value and combatant hit points.
	Formula string `yaml:"formula"`
}

// Catalog holds every hero, enemy, and attack definition loaded from the
// content directory.
type Catalog struct {
	heroes  map[string]CombatantDef
	enemies []CombatantDef
	attacks map[string]AttackDef
}

// Hero returns the hero definition with the given name.
func (c *Catalog) Hero(name string) (CombatantDef, bool) {
	def, ok := c.heroes[name]
	return def, ok
}

// HeroNames returns the names of all catalog heroes.
func (c *Catalog) HeroNames() []string {
	names := make([]string, 0, len(c.heroes))
	for name := range c.heroes {
		names = append(names, name)
	}
	return names
}

// Attack returns the attack definition with the given name.
func (c *Catalog) Attack(name string) (AttackDef, bool) {
	def, ok := c.attacks[name]
	return def, ok
}

type yamlHeroFile struct {
	Heroes []CombatantDef `yaml:"heroes"`
}

type yamlEnemyFile struct {
	Enemies []CombatantDef `yaml:"enemies"`
}

type yamlAttackFile struct {
	Attacks []AttackDef `yaml:"attacks"`
}

// LoadCatalog reads heroes.yaml, enemies.yaml, and attacks.yaml from dir
// and validates cross-references.
//
// Precondition: dir must contain all three catalog files.
// Postcondition: Returns a validated Catalog or a non-nil error.
func LoadCatalog(dir string) (*Catalog, error) {
	var heroFile yamlHeroFile
	if err := readYAML(filepath.Join(dir, "heroes.yaml"), &heroFile); err != nil {
		return nil, err
	}
	var enemyFile yamlEnemyFile
	if err := readYAML(filepath.Join(dir, "enemies.yaml"), &enemyFile); err != nil {
		return nil, err
	}
	var attackFile yamlAttackFile
	if err := readYAML(filepath.Join(dir, "attacks.yaml"), &attackFile); err != nil {
		return nil, err
	}

	cat := &Catalog{
		heroes:  make(map[string]CombatantDef, len(heroFile.Heroes)),
		enemies: enemyFile.Enemies,
		attacks: make(map[string]AttackDef, len(attackFile.Attacks)),
	}

	for _, atk := range attackFile.Attacks {
		if atk.Name == "" {
			return nil, fmt.Errorf("attack with empty name in %s", dir)
		}
		if atk.Damage < 0 {
			return nil, fmt.Errorf("attack %q has negative damage", atk.Name)
		}
		cat.attacks[atk.Name] = atk
	}

	for _, def := range heroFile.Heroes {
		if err := validateCombatant(cat, def, "hero"); err != nil {
			return nil, err
		}
		cat.heroes[def.Name] = def
	}
	for _, def := range enemyFile.Enemies {
		if err := validateCombatant(cat, def, "enemy"); err != nil {
			return nil, err
		}
	}

	return cat, nil
}

func validateCombatant(cat *Catalog, def CombatantDef, kind string) error {
	if def.Name == "" {
		return fmt.Errorf("%s with empty name", kind)
	}
	if def.MaxHP <= 0 {
		return fmt.Errorf("%s %q must have max_hp > 0, got %d", kind, def.Name, def.MaxHP)
	}
	if len(def.Attacks) == 0 {
		return fmt.Errorf("%s %q has no attacks", kind, def.Name)
	}
	for _, atk := range def.Attacks {
		if _, ok := cat.attacks[atk]; !ok {
			return fmt.Errorf("%s %q references unknown attack %q", kind, def.Name, atk)
		}
	}
	return nil
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
