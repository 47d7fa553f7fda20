package main

import (
	"context"
	"fmt"
	"log"

	"posrecon/internal/domain/businessday"
	"posrecon/internal/domain/reconcile"
	"posrecon/internal/domain/sale"
	"posrecon/internal/infrastructure/postgres"
	"posrecon/internal/infrastructure/sqlite"
	"posrecon/internal/shared/config"
	"posrecon/internal/shared/telemetry"
)

// app bundles what every command needs once configuration is loaded.
type app struct {
	cfg        *config.Config
	store      reconcile.Repository
	normalizer *sale.Normalizer
	close      func()
}

// run calls fn and releases the app's resources before returning, so callers
// may exit on the returned error.
func (a *app) run(fn func(*app) error) error {
	defer a.close()
	return fn(a)
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	clock, err := businessday.LoadClock(cfg.Business.Timezone)
	if err != nil {
		return nil, err
	}

	directory := sale.Directory{}
	if cfg.Business.ProviderDirectory != "" {
		directory, err = sale.LoadDirectory(cfg.Business.ProviderDirectory)
		if err != nil {
			return nil, err
		}
		log.Printf("Loaded %d providers from %s", len(directory), cfg.Business.ProviderDirectory)
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	rt := &app{
		cfg:        cfg,
		store:      store,
		normalizer: sale.NewNormalizer(clock, directory),
		close:      closeStore,
	}

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Environment:  cfg.Telemetry.Environment,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			MetricsPort:  cfg.Telemetry.MetricsPort,
		}, store)
		if err != nil {
			log.Printf("Warning: telemetry disabled: %v", err)
		}
		rt.close = func() {
			if err := shutdown(context.Background()); err != nil {
				log.Printf("Telemetry shutdown: %v", err)
			}
			closeStore()
		}
	}

	return rt, nil
}

// openStore connects to the configured event store.
func openStore(cfg *config.Config) (reconcile.Repository, func(), error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.Database.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		db, err := postgres.New(cfg.Database.ConnectionString())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		log.Println("Connected to database")
		return postgres.NewEventRepository(db), func() { db.Close() }, nil
	}
}
