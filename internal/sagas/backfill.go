// Package sagas backfills the saga type column of the saga repository. It
// reads the root element name of every serialized saga without a type and
// writes it to the saga row and to the saga's association values.
package sagas

import (
	"context"
	"fmt"

	"github.com/beevik/etree"

	"github.com/tphakala/eventlog-migrator/internal/datastore"
	"github.com/tphakala/eventlog-migrator/internal/datastore/entities"
	"github.com/tphakala/eventlog-migrator/internal/errors"
	"github.com/tphakala/eventlog-migrator/internal/logger"
	"github.com/tphakala/eventlog-migrator/internal/observability/metrics"
)

const (
	componentSagas  = "sagas"
	defaultPageSize = 1000
)

// Repository is the saga storage the backfill needs.
type Repository interface {
	UntypedPage(ctx context.Context, limit int) ([]entities.SagaEntry, error)
	AssignTypes(ctx context.Context, assignments []datastore.SagaTypeAssignment) error
}

// Config configures a Backfiller.
type Config struct {
	Repository Repository
	PageSize   int
	Metrics    *metrics.MigrationMetrics
	Logger     logger.Logger
}

// Backfiller assigns saga types page by page.
type Backfiller struct {
	repo     Repository
	pageSize int
	metrics  *metrics.MigrationMetrics
	log      logger.Logger
}

// NewBackfiller creates a backfiller.
func NewBackfiller(cfg Config) *Backfiller {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
	}
	return &Backfiller{
		repo:     cfg.Repository,
		pageSize: pageSize,
		metrics:  cfg.Metrics,
		log:      log.Module(componentSagas),
	}
}

// Run processes pages until no saga without a type remains and returns the
// number of sagas updated. A saga whose serialized form cannot be read
// stops the job; the sagas before it in the same page are still written.
func (b *Backfiller) Run(ctx context.Context) (int, error) {
	total := 0
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return total, errors.New(err).
				Component(componentSagas).
				Context("typed", total).
				Build()
		}

		entries, err := b.repo.UntypedPage(ctx, b.pageSize)
		if err != nil {
			return total, err
		}
		if len(entries) == 0 {
			b.log.Info("saga type backfill finished", logger.Int("typed", total))
			return total, nil
		}

		assignments, parseErr := sagaTypes(entries)
		if len(assignments) > 0 {
			if err := b.repo.AssignTypes(ctx, assignments); err != nil {
				return total, err
			}
			total += len(assignments)
			b.metrics.RecordSagasTyped(len(assignments))
		}
		if parseErr != nil {
			b.log.Error("unreadable saga, stopping backfill", logger.Int("typed", total), logger.Error(parseErr))
			return total, parseErr
		}

		b.log.Debug("saga page typed", logger.Int("page", page), logger.Int("count", len(assignments)))
	}
}

// sagaTypes returns the assignments for entries up to the first saga that
// cannot be parsed, and the parse error for that saga.
func sagaTypes(entries []entities.SagaEntry) ([]datastore.SagaTypeAssignment, error) {
	assignments := make([]datastore.SagaTypeAssignment, 0, len(entries))
	for i := range entries {
		name, err := RootName(entries[i].SerializedSaga)
		if err != nil {
			return assignments, errors.New(fmt.Errorf("saga %s: %w", entries[i].SagaID, err)).
				Component(componentSagas).
				Category(errors.CategoryTransform).
				Context("saga_id", entries[i].SagaID).
				Build()
		}
		assignments = append(assignments, datastore.SagaTypeAssignment{SagaID: entries[i].SagaID, SagaType: name})
	}
	return assignments, nil
}

// RootName returns the local name of the root element of a serialized saga.
func RootName(serialized []byte) (string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(serialized); err != nil {
		return "", err
	}
	root := doc.Root()
	if root == nil {
		return "", errors.NewStd("no root element")
	}
	return root.Tag, nil
}
