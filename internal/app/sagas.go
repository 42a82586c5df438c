package app

import (
	"context"
	"fmt"

	"github.com/tphakala/eventlog-migrator/internal/datastore"
	"github.com/tphakala/eventlog-migrator/internal/logger"
	"github.com/tphakala/eventlog-migrator/internal/sagas"
)

// BackfillSagas assigns a saga type to every saga in the target database
// that has none and returns how many were updated.
func (e *Environment) BackfillSagas(ctx context.Context) (int, error) {
	s := e.Settings
	log := e.log.Module("sagas")

	db, err := e.openStore("target", &s.Target)
	if err != nil {
		return 0, err
	}
	defer e.closeStore("target", db)

	store := datastore.NewSagaStore(db, s.Sagas.SagaTable, s.Sagas.AssociationTable)
	pending, err := store.CountUntyped(ctx)
	if err != nil {
		return 0, err
	}
	log.Info("sagas without type", logger.Int64("count", pending))

	m, stopMetrics, err := e.startMetrics(ctx)
	if err != nil {
		return 0, err
	}
	defer stopMetrics()

	backfiller := sagas.NewBackfiller(sagas.Config{
		Repository: store,
		PageSize:   s.Sagas.PageSize,
		Metrics:    m,
		Logger:     e.log,
	})

	updated, err := backfiller.Run(ctx)
	_, _ = fmt.Fprintf(e.out, "Assigned a saga type to %d of %d sagas.\n", updated, pending)
	return updated, err
}
