package main

import (
	"context"
	"fmt"
	"io"

	"gorm.io/gorm"

	"github.com/tphakala/eventlog-migrator/internal/conf"
	"github.com/tphakala/eventlog-migrator/internal/datastore"
	"github.com/tphakala/eventlog-migrator/internal/logger"
)

// loadSettings reads the migrator configuration so the tool talks to the
// same stores as the migrator.
func loadSettings(configPath string) (*conf.Settings, error) {
	settings, err := conf.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return settings, nil
}

func openStore(cfg *conf.StoreSettings) (*gorm.DB, error) {
	db, err := datastore.Open(cfg, logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}
	return db, nil
}

func runSeed(ctx context.Context, settings *conf.Settings, opts SeedOptions) (*SeedStats, error) {
	legacyDB, err := openStore(&settings.Legacy)
	if err != nil {
		return nil, err
	}
	defer func() { _ = datastore.Close(legacyDB) }()

	seeder := &Seeder{LegacyDB: legacyDB, LegacyTable: settings.Legacy.Table}
	if opts.Sagas > 0 {
		targetDB, err := openStore(&settings.Target)
		if err != nil {
			return nil, err
		}
		defer func() { _ = datastore.Close(targetDB) }()
		seeder.SagaDB = targetDB
		seeder.SagaTable = settings.Sagas.SagaTable
		seeder.AssociationTable = settings.Sagas.AssociationTable
	}

	return seeder.Seed(ctx, opts)
}

func runVerify(ctx context.Context, settings *conf.Settings, batchSize int) (*VerifyResult, error) {
	legacyDB, err := openStore(&settings.Legacy)
	if err != nil {
		return nil, err
	}
	defer func() { _ = datastore.Close(legacyDB) }()

	targetDB, err := openStore(&settings.Target)
	if err != nil {
		return nil, err
	}
	defer func() { _ = datastore.Close(targetDB) }()

	verifier := NewVerifier(
		datastore.NewLegacyStore(legacyDB, settings.Legacy.Table, batchSize),
		datastore.NewEventStore(targetDB, settings.Target.Table),
		batchSize,
	)
	return verifier.Verify(ctx)
}
