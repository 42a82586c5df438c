package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/tphakala/eventlog-migrator/internal/datastore"
	"github.com/tphakala/eventlog-migrator/internal/datastore/entities"
)

const aggregateType = "Order"

// SeedOptions controls what Seed generates.
type SeedOptions struct {
	Events         int
	Aggregates     int
	PayloadTypes   []string
	OldFormatEvery int
	MalformedEvery int
	Sagas          int
	BatchSize      int
	Clean          bool
	MappingFile    string
}

// DefaultSeedOptions returns the flag defaults.
func DefaultSeedOptions() SeedOptions {
	return SeedOptions{
		Events:       10000,
		Aggregates:   100,
		PayloadTypes: []string{"OrderPlaced", "OrderShipped", "OrderCancelled"},
		BatchSize:    500,
	}
}

func (o *SeedOptions) validate() error {
	switch {
	case o.Events < 0 || o.Sagas < 0:
		return fmt.Errorf("event and saga counts must not be negative")
	case o.Aggregates < 1:
		return fmt.Errorf("aggregates must be at least 1")
	case len(o.PayloadTypes) == 0:
		return fmt.Errorf("at least one payload type is required")
	case o.BatchSize < 1 || o.BatchSize > 10000:
		return fmt.Errorf("batch-size must be between 1 and 10000")
	}
	return nil
}

// SeedStats reports what Seed inserted.
type SeedStats struct {
	Events    int
	OldFormat int
	Malformed int
	Sagas     int
	Duration  time.Duration
}

// Print outputs the seeding statistics.
func (s *SeedStats) Print(out io.Writer) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Events:\t%d\n", s.Events)
	fmt.Fprintf(w, "  oldest format:\t%d\n", s.OldFormat)
	fmt.Fprintf(w, "  malformed:\t%d\n", s.Malformed)
	fmt.Fprintf(w, "Sagas:\t%d\n", s.Sagas)
	fmt.Fprintf(w, "Duration:\t%s\n", s.Duration.Round(time.Millisecond))
	_ = w.Flush()
}

// Seeder writes generated fixtures. SagaDB is only needed when sagas are seeded.
type Seeder struct {
	LegacyDB         *gorm.DB
	LegacyTable      string
	SagaDB           *gorm.DB
	SagaTable        string
	AssociationTable string
}

// Seed inserts opts.Events legacy events spread over opts.Aggregates fresh
// aggregates, so repeated runs never collide on the event key.
func (s *Seeder) Seed(ctx context.Context, opts SeedOptions) (*SeedStats, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	started := time.Now()
	stats := &SeedStats{}

	if err := datastore.CreateLegacyTable(s.LegacyDB, s.LegacyTable); err != nil {
		return nil, err
	}
	if opts.Clean {
		if err := s.LegacyDB.WithContext(ctx).Table(s.LegacyTable).
			Where("1 = 1").Delete(&entities.LegacyEventEntry{}).Error; err != nil {
			return nil, fmt.Errorf("failed to clean %s: %w", s.LegacyTable, err)
		}
	}

	if err := s.seedEvents(ctx, opts, stats); err != nil {
		return nil, err
	}
	if opts.Sagas > 0 {
		if err := s.seedSagas(ctx, opts, stats); err != nil {
			return nil, err
		}
	}
	if opts.MappingFile != "" {
		if err := writeMapping(opts.MappingFile, opts.PayloadTypes); err != nil {
			return nil, err
		}
	}

	stats.Duration = time.Since(started)
	return stats, nil
}

func (s *Seeder) seedEvents(ctx context.Context, opts SeedOptions, stats *SeedStats) error {
	runPrefix := uuid.NewString()[:8]
	sequences := make([]int64, opts.Aggregates)
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	batch := make([]entities.LegacyEventEntry, 0, opts.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.LegacyDB.WithContext(ctx).Table(s.LegacyTable).Create(&batch).Error; err != nil {
			return fmt.Errorf("failed to insert legacy events: %w", err)
		}
		stats.Events += len(batch)
		batch = batch[:0]
		return nil
	}

	for i := range opts.Events {
		agg := i % opts.Aggregates
		ev := generatedEvent{
			PayloadType: opts.PayloadTypes[i%len(opts.PayloadTypes)],
			AggregateID: fmt.Sprintf("%s-%d", runPrefix, agg),
			Sequence:    sequences[agg],
			EventID:     uuid.NewString(),
			Timestamp:   base.Add(time.Duration(i) * time.Second),
			Amount:      i % 1000,
		}
		sequences[agg]++

		serialized, err := s.serialize(ev, i+1, opts, stats)
		if err != nil {
			return err
		}
		batch = append(batch, entities.LegacyEventEntry{
			Type:                aggregateType,
			AggregateIdentifier: ev.AggregateID,
			SequenceNumber:      ev.Sequence,
			TimeStamp:           ev.Timestamp.Format(time.RFC3339Nano),
			PayloadType:         &ev.PayloadType,
			SerializedEvent:     serialized,
		})

		if len(batch) == opts.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// serialize picks the format of the nth event (1-based).
func (s *Seeder) serialize(ev generatedEvent, n int, opts SeedOptions, stats *SeedStats) ([]byte, error) {
	switch {
	case opts.MalformedEvery > 0 && n%opts.MalformedEvery == 0:
		stats.Malformed++
		return []byte("<<" + ev.PayloadType + ">"), nil
	case opts.OldFormatEvery > 0 && n%opts.OldFormatEvery == 0:
		stats.OldFormat++
		return oldFormat(ev)
	default:
		return currentFormat(ev)
	}
}

func (s *Seeder) seedSagas(ctx context.Context, opts SeedOptions, stats *SeedStats) error {
	if s.SagaDB == nil {
		return fmt.Errorf("sagas requested but no saga database configured")
	}
	if err := datastore.CreateSagaTables(s.SagaDB, s.SagaTable, s.AssociationTable); err != nil {
		return err
	}

	sagaTypes := []string{"OrderManagementSaga", "PaymentSaga"}
	sagas := make([]entities.SagaEntry, 0, opts.Sagas)
	assocs := make([]entities.AssociationValueEntry, 0, opts.Sagas)
	for i := range opts.Sagas {
		id := uuid.NewString()
		serialized, err := sagaDocument(sagaTypes[i%len(sagaTypes)], id)
		if err != nil {
			return err
		}
		sagas = append(sagas, entities.SagaEntry{SagaID: id, SerializedSaga: serialized})
		assocs = append(assocs, entities.AssociationValueEntry{
			SagaID:           id,
			AssociationKey:   "orderId",
			AssociationValue: fmt.Sprintf("order-%d", i),
		})
	}

	return s.SagaDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(s.SagaTable).CreateInBatches(&sagas, opts.BatchSize).Error; err != nil {
			return fmt.Errorf("failed to insert sagas: %w", err)
		}
		if err := tx.Table(s.AssociationTable).CreateInBatches(&assocs, opts.BatchSize).Error; err != nil {
			return fmt.Errorf("failed to insert association values: %w", err)
		}
		stats.Sagas = len(sagas)
		return nil
	})
}

// writeMapping writes an identifier mapping the migrator can load.
func writeMapping(path string, payloadTypes []string) error {
	mapping := make(map[string]string, len(payloadTypes))
	for _, t := range payloadTypes {
		mapping[t] = identifierField
	}
	data, err := yaml.Marshal(mapping)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write mapping file: %w", err)
	}
	return nil
}
