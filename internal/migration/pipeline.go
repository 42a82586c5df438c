// Package migration moves events from the legacy event table to the new
// event table. A Reader pages through the legacy store, a Dispatcher runs
// sub-batches on a bounded worker pool, and each sub-batch is checked for
// duplicates, transformed and written by a Processor.
package migration

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/eventlog-migrator/internal/conf"
	"github.com/tphakala/eventlog-migrator/internal/datastore"
	"github.com/tphakala/eventlog-migrator/internal/datastore/entities"
	"github.com/tphakala/eventlog-migrator/internal/errors"
	"github.com/tphakala/eventlog-migrator/internal/logger"
	"github.com/tphakala/eventlog-migrator/internal/observability/metrics"
)

const progressInterval = 10000

// CheckpointStore persists the resume cursor between runs.
type CheckpointStore interface {
	LoadCheckpoint(ctx context.Context) (int64, error)
	StoreCheckpoint(ctx context.Context, id int64) error
}

// RunRecorder tracks the lifecycle of a run.
type RunRecorder interface {
	BeginRun(ctx context.Context, runID string) error
	FinishRun(ctx context.Context, summary *datastore.RunSummary) error
}

// Config wires a Pipeline. Runs, Failures and Metrics are optional.
type Config struct {
	Source      LegacySource
	Target      TargetStore
	Checkpoints CheckpointStore
	Runs        RunRecorder
	Failures    FailureRecorder
	Chain       *Chain
	Resolver    *IdentifierResolver
	Settings    conf.MigrationSettings
	Metrics     *metrics.MigrationMetrics
	Logger      logger.Logger
}

// Pipeline runs one migration of the event store.
type Pipeline struct {
	cfg Config
	log logger.Logger
}

// NewPipeline validates cfg and creates a pipeline.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.Source == nil || cfg.Target == nil || cfg.Checkpoints == nil {
		return nil, errors.Newf("pipeline requires a legacy source, a target store and a checkpoint store").
			Component(componentMigration).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.Settings.PageSize <= 0 || cfg.Settings.SubBatchSize <= 0 {
		return nil, errors.Newf("page size %d and sub-batch size %d must be positive",
			cfg.Settings.PageSize, cfg.Settings.SubBatchSize).
			Component(componentMigration).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.Chain == nil {
		cfg.Chain = NewChain()
	}
	if cfg.Resolver == nil {
		cfg.Resolver = NewIdentifierResolver(nil, nil, cfg.Settings.AutoResolveIdentifier)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
	}
	return &Pipeline{cfg: cfg, log: log.Module(componentMigration)}, nil
}

// Run migrates every legacy record after the start cursor. Per-item
// problems are reported in the Report; the error is only set when the run
// could not start, a page could not be read, or bookkeeping failed.
// Cancelling ctx stops the run at the next page boundary.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	runID := uuid.NewString()
	ctx = logger.WithTraceID(ctx, runID)
	log := p.log.With(logger.String("run_id", runID)).WithContext(ctx)
	settings := p.cfg.Settings
	started := time.Now()

	start, err := p.startCursor(ctx)
	if err != nil {
		return nil, err
	}
	if p.cfg.Runs != nil {
		if err := p.cfg.Runs.BeginRun(ctx, runID); err != nil {
			return nil, err
		}
	}

	acct := NewAccounting()
	tracker := NewCheckpointTracker(settings.CheckpointMode, start)
	processor := NewProcessor(ProcessorConfig{
		Source: p.cfg.Source,
		Target: p.cfg.Target,
		Transformer: NewTransformer(TransformerConfig{
			Resolver:   p.cfg.Resolver,
			Accounting: acct,
			Logger:     log.Module("transform"),
		}),
		Chain:      p.cfg.Chain,
		Accounting: acct,
		TxScope:    settings.TxScope,
		RunID:      runID,
		Failures:   p.cfg.Failures,
		Metrics:    p.cfg.Metrics,
		Logger:     log.Module("processor"),
	})

	var processed atomic.Int64
	dispatcher := NewDispatcher(DispatcherConfig{
		Workers:       settings.Workers,
		MaxWorkers:    settings.MaxWorkers,
		QueueCapacity: p.queueCapacity(),
		Metrics:       p.cfg.Metrics,
		Logger:        log.Module("dispatcher"),
		Handler: func(ctx context.Context, batch SubBatch) {
			res := processor.Process(ctx, batch)
			tracker.Complete(batch.Seq, res.SettledThrough)

			n := int64(len(batch.Items))
			total := processed.Add(n)
			if total/progressInterval != (total-n)/progressInterval {
				log.Info("progress", logger.Int64("processed", total), logger.Int64("converted", acct.Converted()))
			}
		},
	})

	reader := NewReader(ReaderConfig{
		Source:       p.cfg.Source,
		Start:        start,
		PageSize:     settings.PageSize,
		SubBatchSize: settings.SubBatchSize,
		PageInterval: settings.PageInterval,
		Metrics:      p.cfg.Metrics,
		Logger:       log.Module("reader"),
	})

	log.Info("starting event store migration",
		logger.Int64("start_after", start),
		logger.Int("page_size", settings.PageSize),
		logger.Int("sub_batch_size", settings.SubBatchSize),
		logger.String("checkpoint_mode", settings.CheckpointMode),
		logger.String("tx_scope", settings.TxScope))

	runErr := p.readLoop(ctx, log, reader, dispatcher, tracker)

	drainErr := dispatcher.Shutdown(settings.DrainTimeout)
	if drainErr != nil {
		log.Warn("migration stopped with unfinished work", logger.Error(drainErr))
	}

	// Bookkeeping must still reach the store when the run was cancelled.
	bookCtx := context.WithoutCancel(ctx)
	checkpoint := tracker.Value()
	if err := p.persistCheckpoint(bookCtx, checkpoint); err != nil && runErr == nil {
		runErr = err
	}

	report := &Report{
		RunID:          runID,
		StartedAfter:   start,
		Checkpoint:     checkpoint,
		ReadCursor:     reader.Cursor(),
		Counts:         acct.Snapshot(),
		Cancelled:      reader.Cancelled(),
		Abandoned:      dispatcher.Abandoned(),
		CallerRuns:     dispatcher.CallerRuns(),
		NoMappingTypes: acct.SilencedTypes(),
		Duration:       time.Since(started),
		Err:            runErr,
	}
	report.Success = acct.Success() && runErr == nil

	if p.cfg.Runs != nil {
		summary := &datastore.RunSummary{
			RunID:            runID,
			Status:           report.Status(),
			Converted:        report.Counts.Converted,
			SkippedNoMapping: report.Counts.SkippedNoMapping,
			Failed:           report.Counts.Failed,
			Duplicates:       report.Counts.Duplicates,
			Err:              runErr,
		}
		if err := p.cfg.Runs.FinishRun(bookCtx, summary); err != nil {
			log.Error("failed to record run outcome", logger.Error(err))
		}
	}

	log.Info("event store migration finished",
		logger.String("status", string(report.Status())),
		logger.Int64("converted", report.Counts.Converted),
		logger.Int64("skipped_no_mapping", report.Counts.SkippedNoMapping),
		logger.Int64("failed", report.Counts.Failed),
		logger.Int64("duplicates", report.Counts.Duplicates),
		logger.Int64("checkpoint", checkpoint),
		logger.Duration("elapsed", report.Duration))

	return report, runErr
}

// readLoop feeds the dispatcher until the reader is exhausted. It returns
// the first read-phase error, which aborts the run.
func (p *Pipeline) readLoop(ctx context.Context, log logger.Logger, reader *Reader, dispatcher *Dispatcher, tracker *CheckpointTracker) error {
	workCtx := context.WithoutCancel(ctx)
	subBatchSize := p.cfg.Settings.SubBatchSize

	for page, err := range reader.Pages(ctx) {
		if err != nil {
			return err
		}
		log.Debug("fetching page", logger.Int("page", page.Number), logger.Int64("after", page.After))

		for batch, err := range page.Batches {
			if err != nil {
				log.Error("failed to read legacy page, aborting run",
					logger.Int("page", page.Number),
					logger.Int64("cursor", reader.Cursor()),
					logger.Error(err))
				return err
			}
			batch.Seq = tracker.Register(batch.LastID())
			if err := dispatcher.Submit(workCtx, batch); err != nil {
				tracker.Complete(batch.Seq, entities.NoCheckpoint)
				return err
			}
		}

		if err := p.persistCheckpoint(ctx, tracker.Value()); err != nil {
			return err
		}
		log.Info("reading next page",
			logger.Int64("next_start_id", reader.Cursor()),
			logger.Int("estimated_backlog", dispatcher.QueueLen()*subBatchSize))
	}
	return nil
}

func (p *Pipeline) startCursor(ctx context.Context) (int64, error) {
	if override := p.cfg.Settings.LastProcessedID; override != entities.NoCheckpoint {
		p.log.Info("starting from configured cursor", logger.Int64("last_processed_id", override))
		return override, nil
	}
	return p.cfg.Checkpoints.LoadCheckpoint(ctx)
}

func (p *Pipeline) persistCheckpoint(ctx context.Context, id int64) error {
	if !HasCheckpoint(id) {
		return nil
	}
	if err := p.cfg.Checkpoints.StoreCheckpoint(context.WithoutCancel(ctx), id); err != nil {
		return err
	}
	p.cfg.Metrics.SetCheckpoint(id)
	return nil
}

func (p *Pipeline) queueCapacity() int {
	s := p.cfg.Settings
	if s.QueueCapacity > 0 {
		return s.QueueCapacity
	}
	return max(s.PageSize/s.SubBatchSize, 1)
}
