package main

import (
	"sync"

	"locus/internal/config"
	locuserrors "locus/internal/errors"
	"locus/internal/logging"
	"locus/internal/parsers"
	"locus/internal/paths"
	"locus/internal/query"
	"locus/internal/store"
)

var (
	engineOnce   sync.Once
	sharedEngine *query.Engine
	engineErr    error
)

// getEngine wires config, parsers and storage into one shared engine,
// lazily on first use.
func getEngine(root string, logger *logging.Logger) (*query.Engine, error) {
	engineOnce.Do(func() {
		cfg, err := config.LoadConfig(root)
		if err != nil {
			engineErr = err
			return
		}

		registry := parsers.NewRegistry(logger)
		parsers.RegisterDefaults(registry)

		db, err := store.Open(paths.CacheDir(root, cfg.Index.CacheDir), logger)
		if err != nil {
			engineErr = err
			return
		}

		sharedEngine = query.New(root, cfg, registry, db, logger)
	})
	return sharedEngine, engineErr
}

// mustEngine returns the shared engine or exits.
func mustEngine(root string, logger *logging.Logger) *query.Engine {
	engine, err := getEngine(root, logger)
	if err != nil {
		fail(err)
	}
	return engine
}

// mustLoadedEngine returns the shared engine with the persisted snapshot
// resident. A repository that was never indexed exits with the
// SNAPSHOT_MISSING remediation hint.
func mustLoadedEngine(root string, logger *logging.Logger) *query.Engine {
	engine := mustEngine(root, logger)
	if !engine.Loaded() {
		if err := engine.Load(); err != nil {
			fail(err)
		}
	}
	return engine
}

// mustLoadConfig resolves the effective configuration or exits.
func mustLoadConfig(root string) *config.Config {
	cfg, err := config.LoadConfig(root)
	if err != nil {
		fail(err)
	}
	return cfg
}

// loadOrBuild makes sure a snapshot is resident, indexing from scratch when
// the repository was never indexed. Used by commands that keep running.
func loadOrBuild(engine *query.Engine, logger *logging.Logger) error {
	err := engine.Load()
	if err == nil {
		return nil
	}
	if !locuserrors.Is(err, locuserrors.SnapshotMissing) {
		return err
	}
	logger.Info("no snapshot found, building initial index", nil)
	_, err = engine.Rebuild(newContext())
	return err
}
