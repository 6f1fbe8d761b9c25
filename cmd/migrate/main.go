// Command migrate applies schema migrations to the account database.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/lmercier/crucible/internal/config"
)

func main() {
	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	down := flag.Bool("down", false, "roll migrations back instead of applying them")
	steps := flag.Int("steps", 0, "number of migration steps (0 = all)")
	source := flag.String("source", "file://migrations", "migration source URL")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	m, err := migrate.New(*source, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("creating migrator: %v", err)
	}
	defer m.Close()

	began := time.Now()
	err = run(m, *down, *steps)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("migration failed: %v", err)
	}

	version, dirty, _ := m.Version()
	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Printf("already at version %d (dirty=%v)\n", version, dirty)
		return
	}
	fmt.Printf("now at version %d (dirty=%v) [%s]\n", version, dirty, time.Since(began))
}

func run(m *migrate.Migrate, down bool, steps int) error {
	switch {
	case down && steps > 0:
		return m.Steps(-steps)
	case down:
		return m.Down()
	case steps > 0:
		return m.Steps(steps)
	default:
		return m.Up()
	}
}
