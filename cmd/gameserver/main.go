// Command gameserver runs the game coordination server: it terminates
// websocket connections, routes protocol events through the session store,
// and persists saved games to disk.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/lmercier/crucible/internal/config"
	"github.com/lmercier/crucible/internal/frontend/ws"
	"github.com/lmercier/crucible/internal/game/engine"
	"github.com/lmercier/crucible/internal/game/session"
	"github.com/lmercier/crucible/internal/gameserver"
	"github.com/lmercier/crucible/internal/observability"
	"github.com/lmercier/crucible/internal/server"
	"github.com/lmercier/crucible/internal/storage/disk"
	"github.com/lmercier/crucible/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting gameserver",
		zap.String("config", *configPath),
		zap.String("addr", cfg.Server.Addr()),
	)

	ctx := context.Background()

	// Database pool for the account store.
	dbStart := time.Now()
	pool, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database",
			zap.Error(err),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
	}
	accounts := postgres.NewAccountRepository(pool)
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)

	// Combat content and damage-formula scripts.
	contentStart := time.Now()
	catalog, err := engine.LoadCatalog(cfg.Game.ContentDir)
	if err != nil {
		logger.Fatal("failed to load combat catalog",
			zap.String("dir", cfg.Game.ContentDir),
			zap.Error(err),
		)
	}
	scripts, err := engine.LoadScripts(cfg.Game.ScriptDir, cfg.Game.ScriptInstructionLimit)
	if err != nil {
		logger.Fatal("failed to load damage scripts",
			zap.String("dir", cfg.Game.ScriptDir),
			zap.Error(err),
		)
	}
	logger.Info("combat content loaded",
		zap.Int("heroes", len(catalog.HeroNames())),
		zap.Duration("elapsed", time.Since(contentStart)),
	)

	// Saved-game index and persistence root.
	index, err := disk.OpenIndex(cfg.Storage.Root)
	if err != nil {
		logger.Fatal("failed to open saved-game index",
			zap.String("root", cfg.Storage.Root),
			zap.Error(err),
		)
	}

	combat := engine.New(catalog, scripts, logger)
	store := session.NewStore()
	registry := gameserver.NewRegistry(cfg.Server.OutboundQueueSize, logger)

	router := gameserver.NewRouter(gameserver.RouterConfig{
		Store:         store,
		Registry:      registry,
		Engine:        combat,
		Persistence:   disk.Store{},
		Index:         index,
		Credentials:   accounts,
		StorageRoot:   cfg.Storage.Root,
		AutoTurnDelay: cfg.Game.AutoTurnDelay,
		Logger:        logger,
	})

	acceptor := ws.NewAcceptor(cfg.Server, registry, router, logger)

	// Services stop in reverse order: the listener drains first so no new
	// events arrive while the router, scripts, and pool shut down.
	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("database", &server.FuncService{
		StartFn: func() error { return nil },
		StopFn:  pool.Close,
	})
	lifecycle.Add("scripts", &server.FuncService{
		StartFn: func() error { return nil },
		StopFn:  scripts.Close,
	})
	lifecycle.Add("router", &server.FuncService{
		StartFn: func() error { return nil },
		StopFn:  router.Stop,
	})
	lifecycle.Add("websocket", &server.FuncService{
		StartFn: acceptor.ListenAndServe,
		StopFn:  acceptor.Stop,
	})

	if err := lifecycle.Run(ctx); err != nil {
		logger.Error("lifecycle error", zap.Error(err))
		os.Exit(1)
	}
}
