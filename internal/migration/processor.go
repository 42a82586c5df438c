package migration

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/tphakala/eventlog-migrator/internal/conf"
	"github.com/tphakala/eventlog-migrator/internal/datastore"
	"github.com/tphakala/eventlog-migrator/internal/datastore/entities"
	"github.com/tphakala/eventlog-migrator/internal/errors"
	"github.com/tphakala/eventlog-migrator/internal/logger"
	"github.com/tphakala/eventlog-migrator/internal/observability/metrics"
)

// LegacySource is the read side of the legacy event store.
type LegacySource interface {
	FetchPage(ctx context.Context, after int64, limit int) iter.Seq2[entities.ConversionItem, error]
	FetchRecord(ctx context.Context, id int64) (*entities.LegacyEventEntry, error)
}

// TargetStore is the write side of the new event store.
type TargetStore interface {
	datastore.EventWriter
	InTransaction(ctx context.Context, fn func(datastore.EventWriter) error) error
}

// FailureRecorder persists records that could not be migrated.
type FailureRecorder interface {
	RecordFailures(ctx context.Context, failures []entities.MigrationFailure) error
}

// SubBatch is a group of items processed together by one worker.
type SubBatch struct {
	Seq   uint64 // submission order within the run
	Items []entities.ConversionItem
}

// LastID returns the highest record id in the sub-batch.
func (b SubBatch) LastID() int64 {
	if len(b.Items) == 0 {
		return entities.NoCheckpoint
	}
	return b.Items[len(b.Items)-1].RecordID
}

// BatchResult reports how a sub-batch ended. Completed is false when a store
// error prevented any item from being written. SettledThrough is the id of
// the last item of the longest prefix of settled items, or NoCheckpoint.
type BatchResult struct {
	Completed      bool
	SettledThrough int64
	Outcomes       map[Outcome]int
	Err            error
}

// ProcessorConfig configures a Processor.
type ProcessorConfig struct {
	Source      LegacySource
	Target      TargetStore
	Transformer *Transformer
	Chain       *Chain
	Accounting  *Accounting
	TxScope     string // conf.TxScopeSubBatch or conf.TxScopeItem
	RunID       string
	Failures    FailureRecorder
	Metrics     *metrics.MigrationMetrics
	Logger      logger.Logger
}

// Processor runs the idempotency check, the transformation and the write
// for each item of a sub-batch.
type Processor struct {
	source      LegacySource
	target      TargetStore
	transformer *Transformer
	chain       *Chain
	acct        *Accounting
	perItem     bool
	runID       string
	failures    FailureRecorder
	metrics     *metrics.MigrationMetrics
	log         logger.Logger
}

// NewProcessor creates a processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	log := cfg.Logger
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
	}
	return &Processor{
		source:      cfg.Source,
		target:      cfg.Target,
		transformer: cfg.Transformer,
		chain:       cfg.Chain,
		acct:        cfg.Accounting,
		perItem:     cfg.TxScope == conf.TxScopeItem,
		runID:       cfg.RunID,
		failures:    cfg.Failures,
		metrics:     cfg.Metrics,
		log:         log,
	}
}

// itemResult is the outcome of one item before it is accounted.
type itemResult struct {
	item    entities.ConversionItem
	outcome Outcome
	reason  error
}

// Process handles one sub-batch. In sub-batch scope all items share one
// transaction and a store error rolls back every item, which are then all
// counted as failed. In item scope each item commits on its own.
func (p *Processor) Process(ctx context.Context, batch SubBatch) BatchResult {
	if len(batch.Items) == 0 {
		return BatchResult{Completed: true, SettledThrough: entities.NoCheckpoint, Outcomes: map[Outcome]int{}}
	}
	start := time.Now()

	var results []itemResult
	var err error
	if p.perItem {
		results, err = p.processItems(ctx, batch)
	} else {
		results, err = p.processTransaction(ctx, batch)
		if err != nil {
			results = results[:0]
			for _, item := range batch.Items {
				results = append(results, itemResult{item: item, outcome: OutcomeFailed, reason: err})
			}
			p.log.Error("sub-batch rolled back",
				logger.Uint64("seq", batch.Seq),
				logger.Int64("first_id", batch.Items[0].RecordID),
				logger.Int64("last_id", batch.LastID()),
				logger.Error(err))
		}
	}

	res := BatchResult{
		Completed:      err == nil,
		SettledThrough: entities.NoCheckpoint,
		Outcomes:       make(map[Outcome]int),
		Err:            err,
	}

	var failed []entities.MigrationFailure
	settling := true
	for _, r := range results {
		p.acct.Record(r.outcome)
		p.metrics.RecordOutcome(r.outcome.String())
		res.Outcomes[r.outcome]++
		if r.outcome == OutcomeMalformed || r.outcome == OutcomeFailed {
			failed = append(failed, p.failureRow(r))
		}
		if settling && r.outcome.Settled() {
			res.SettledThrough = r.item.RecordID
		} else {
			settling = false
		}
	}
	p.recordFailures(failed)

	status := "ok"
	if !res.Completed {
		status = "failed"
	}
	p.metrics.ObserveSubBatch(status, time.Since(start))
	return res
}

func (p *Processor) processTransaction(ctx context.Context, batch SubBatch) ([]itemResult, error) {
	results := make([]itemResult, 0, len(batch.Items))
	err := p.target.InTransaction(ctx, func(w datastore.EventWriter) error {
		for _, item := range batch.Items {
			r, err := p.processItem(ctx, w, item)
			if err != nil {
				return err
			}
			results = append(results, r)
		}
		return nil
	})
	return results, err
}

// processItems commits each item separately and returns the first store
// error alongside the results of every item.
func (p *Processor) processItems(ctx context.Context, batch SubBatch) ([]itemResult, error) {
	results := make([]itemResult, 0, len(batch.Items))
	var firstErr error
	for _, item := range batch.Items {
		var r itemResult
		err := p.target.InTransaction(ctx, func(w datastore.EventWriter) error {
			var err error
			r, err = p.processItem(ctx, w, item)
			return err
		})
		if err != nil {
			p.log.Error("item failed",
				logger.Int64("record_id", item.RecordID),
				logger.String("key", item.String()),
				logger.Error(err))
			r = itemResult{item: item, outcome: OutcomeFailed, reason: err}
			if firstErr == nil {
				firstErr = err
			}
		}
		results = append(results, r)
	}
	return results, firstErr
}

// processItem returns an error only for store failures, which abort the
// surrounding transaction.
func (p *Processor) processItem(ctx context.Context, w datastore.EventWriter, item entities.ConversionItem) (itemResult, error) {
	exists, err := w.Exists(ctx, item.EventKey)
	if err != nil {
		return itemResult{}, err
	}
	if exists {
		return itemResult{item: item, outcome: OutcomeDuplicate, reason: ErrDuplicate}, nil
	}

	record, err := p.source.FetchRecord(ctx, item.RecordID)
	if err != nil {
		return itemResult{}, err
	}

	res, err := p.transformer.Transform(LegacyEvent{
		Key:       item.EventKey,
		TimeStamp: record.TimeStamp,
		Payload:   record.SerializedEvent,
	}, p.chain)
	if err != nil || res.Outcome != OutcomeConverted {
		if res.Outcome == OutcomeMalformed {
			p.log.Warn("malformed payload",
				logger.Int64("record_id", item.RecordID),
				logger.String("key", item.String()),
				logger.Error(res.Err))
		}
		return itemResult{item: item, outcome: res.Outcome, reason: res.Err}, nil
	}

	inserted, err := w.Persist(ctx, res.Entry)
	if err != nil {
		return itemResult{}, err
	}
	if !inserted {
		return itemResult{item: item, outcome: OutcomeDuplicate, reason: ErrDuplicate}, nil
	}
	return itemResult{item: item, outcome: OutcomeConverted}, nil
}

func (p *Processor) failureRow(r itemResult) entities.MigrationFailure {
	reason := ""
	if r.reason != nil {
		reason = r.reason.Error()
	}
	return entities.MigrationFailure{
		RunID:               p.runID,
		RecordID:            r.item.RecordID,
		Type:                r.item.Type,
		AggregateIdentifier: r.item.AggregateIdentifier,
		SequenceNumber:      r.item.SequenceNumber,
		Outcome:             r.outcome.String(),
		Reason:              reason,
	}
}

// recordFailures stores failure rows outside the sub-batch transaction so
// they survive a rollback. A write error is logged and otherwise ignored.
func (p *Processor) recordFailures(failed []entities.MigrationFailure) {
	if p.failures == nil || len(failed) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.failures.RecordFailures(ctx, failed); err != nil {
		p.log.Warn("failed to record migration failures",
			logger.Int("count", len(failed)),
			logger.Error(errors.New(fmt.Errorf("record failures: %w", err)).
				Component(componentMigration).
				Category(errors.CategoryDatabase).
				Build()))
	}
}
