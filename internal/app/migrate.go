package app

import (
	"context"
	"fmt"

	"github.com/tphakala/eventlog-migrator/internal/conf"
	"github.com/tphakala/eventlog-migrator/internal/datastore"
	"github.com/tphakala/eventlog-migrator/internal/logger"
	"github.com/tphakala/eventlog-migrator/internal/migration"
)

// MigrateOptions are the per-invocation switches of the migrate command.
type MigrateOptions struct {
	// Force marks a run left in the running state by a crashed process as
	// interrupted before starting.
	Force bool
	// CreateTargetTable creates the new event table when it does not exist.
	CreateTargetTable bool
}

// Migrate runs the event store pipeline and prints its report. A nil error
// with an unsuccessful report means the run finished but left work behind.
func (e *Environment) Migrate(ctx context.Context, opts MigrateOptions) (*migration.Report, error) {
	s := e.Settings
	log := e.log.Module("migrate")

	mapping, err := conf.LoadIdentifierMapping(s.Migration.IdentifierMappingFile)
	if err != nil {
		return nil, err
	}
	var schemas map[string][]string
	if s.Migration.AutoResolveIdentifier {
		if schemas, err = conf.LoadSchemaRegistry(s.Migration.SchemaRegistryFile); err != nil {
			return nil, err
		}
	}
	log.Info("identifier mappings loaded",
		logger.Int("mappings", len(mapping)),
		logger.Int("registered_schemas", len(schemas)),
		logger.Bool("auto_resolve", s.Migration.AutoResolveIdentifier))

	legacyDB, err := e.openStore("legacy", &s.Legacy)
	if err != nil {
		return nil, err
	}
	defer e.closeStore("legacy", legacyDB)

	targetDB, err := e.openStore("target", &s.Target)
	if err != nil {
		return nil, err
	}
	defer e.closeStore("target", targetDB)

	state := datastore.NewStateManager(targetDB)
	if err := state.Initialize(ctx); err != nil {
		return nil, err
	}
	if opts.Force {
		recovered, err := state.RecoverStaleRun(ctx)
		if err != nil {
			return nil, err
		}
		if recovered {
			log.Warn("previous run was left running and has been marked interrupted")
		}
	}
	if opts.CreateTargetTable {
		if err := datastore.CreateEventTable(targetDB, s.Target.Table); err != nil {
			return nil, err
		}
	}

	m, stopMetrics, err := e.startMetrics(ctx)
	if err != nil {
		return nil, err
	}
	defer stopMetrics()

	chain := migration.NewChain()
	if s.Migration.LegacyUpcaster {
		chain = migration.NewChain(migration.LegacyUpcaster{})
	}

	pipeline, err := migration.NewPipeline(migration.Config{
		Source:      datastore.NewLegacyStore(legacyDB, s.Legacy.Table, s.Migration.FetchSize),
		Target:      datastore.NewEventStore(targetDB, s.Target.Table),
		Checkpoints: state,
		Runs:        state,
		Failures:    state,
		Chain:       chain,
		Resolver:    migration.NewIdentifierResolver(mapping, schemas, s.Migration.AutoResolveIdentifier),
		Settings:    s.Migration,
		Metrics:     m,
		Logger:      e.log,
	})
	if err != nil {
		return nil, err
	}

	report, err := pipeline.Run(ctx)
	if report != nil {
		_, _ = fmt.Fprint(e.out, report.Summary(s.Target.Table))
	}
	return report, err
}
