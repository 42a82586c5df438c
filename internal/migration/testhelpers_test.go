package migration

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/tphakala/eventlog-migrator/internal/conf"
	"github.com/tphakala/eventlog-migrator/internal/datastore"
	"github.com/tphakala/eventlog-migrator/internal/datastore/entities"
	"github.com/tphakala/eventlog-migrator/internal/errors"
	"github.com/tphakala/eventlog-migrator/internal/testutil"
)

var quietLogger = testutil.QuietLogger

// syncBuffer is a bytes.Buffer safe for concurrent log writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// eventXML builds a legacy payload in the current serializer shape.
func eventXML(payloadType, aggregateID string, seq int64, eventID, body string) []byte {
	return fmt.Appendf(nil, `<%[1]s eventRevision="2">`+
		`<metaData><values>`+
		`<entry><string>_timestamp</string><localDateTime>2020-01-01T00:00:00</localDateTime></entry>`+
		`<entry><string>_identifier</string><uuid>%[4]s</uuid></entry>`+
		`</values></metaData>`+
		`<sequenceNumber>%[3]d</sequenceNumber>`+
		`<aggregateIdentifier>%[2]s</aggregateIdentifier>%[5]s</%[1]s>`,
		payloadType, aggregateID, seq, eventID, body)
}

func legacyRecord(id int64, payloadType, aggregateID string, seq int64) entities.LegacyEventEntry {
	return entities.LegacyEventEntry{
		ID:                  id,
		Type:                "Order",
		AggregateIdentifier: aggregateID,
		SequenceNumber:      seq,
		TimeStamp:           "2020-01-01T00:00:00.000Z",
		SerializedEvent:     eventXML(payloadType, aggregateID, seq, fmt.Sprintf("evt-%d", id), "<amount>10</amount>"),
	}
}

// fakeSource is an in-memory legacy store ordered by id.
type fakeSource struct {
	mu        sync.Mutex
	records   []entities.LegacyEventEntry
	failAfter int64 // FetchPage fails for cursors >= failAfter when > 0
	fetchErrs int   // FetchPage calls that observed a cancelled context
	pages     int
}

func newFakeSource(records ...entities.LegacyEventEntry) *fakeSource {
	return &fakeSource{records: records}
}

func (s *fakeSource) FetchPage(ctx context.Context, after int64, limit int) iter.Seq2[entities.ConversionItem, error] {
	return func(yield func(entities.ConversionItem, error) bool) {
		s.mu.Lock()
		s.pages++
		if s.failAfter > 0 && after >= s.failAfter {
			s.mu.Unlock()
			yield(entities.ConversionItem{}, errors.NewStd("connection reset"))
			return
		}
		records := append([]entities.LegacyEventEntry(nil), s.records...)
		s.mu.Unlock()

		n := 0
		for i := range records {
			if records[i].ID <= after {
				continue
			}
			if n == limit {
				return
			}
			if ctx.Err() != nil {
				s.mu.Lock()
				s.fetchErrs++
				s.mu.Unlock()
			}
			n++
			item := entities.ConversionItem{EventKey: records[i].Key(), RecordID: records[i].ID}
			if !yield(item, nil) {
				return
			}
		}
	}
}

func (s *fakeSource) FetchRecord(_ context.Context, id int64) (*entities.LegacyEventEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id {
			rec := s.records[i]
			return &rec, nil
		}
	}
	return nil, errors.Newf("legacy record %d not found", id).Category(errors.CategoryNotFound).Build()
}

func (s *fakeSource) pageCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages
}

// fakeTarget is an in-memory new event store with transactional staging.
type fakeTarget struct {
	mu      sync.Mutex
	entries map[entities.EventKey]entities.EventEntry
	failOn  map[entities.EventKey]bool // Persist fails for these keys
	commits int
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		entries: make(map[entities.EventKey]entities.EventEntry),
		failOn:  make(map[entities.EventKey]bool),
	}
}

func (t *fakeTarget) Exists(_ context.Context, key entities.EventKey) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[key]
	return ok, nil
}

func (t *fakeTarget) Persist(ctx context.Context, entry *entities.EventEntry) (bool, error) {
	var inserted bool
	err := t.InTransaction(ctx, func(w datastore.EventWriter) error {
		var err error
		inserted, err = w.Persist(ctx, entry)
		return err
	})
	return inserted, err
}

func (t *fakeTarget) InTransaction(_ context.Context, fn func(datastore.EventWriter) error) error {
	tx := &fakeTx{target: t, staged: make(map[entities.EventKey]entities.EventEntry)}
	if err := fn(tx); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	maps.Copy(t.entries, tx.staged)
	t.commits++
	return nil
}

func (t *fakeTarget) snapshot() map[entities.EventKey]entities.EventEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return maps.Clone(t.entries)
}

type fakeTx struct {
	target *fakeTarget
	staged map[entities.EventKey]entities.EventEntry
}

func (tx *fakeTx) Exists(ctx context.Context, key entities.EventKey) (bool, error) {
	if _, ok := tx.staged[key]; ok {
		return true, nil
	}
	return tx.target.Exists(ctx, key)
}

func (tx *fakeTx) Persist(ctx context.Context, entry *entities.EventEntry) (bool, error) {
	key := entry.Key()
	tx.target.mu.Lock()
	fail := tx.target.failOn[key]
	tx.target.mu.Unlock()
	if fail {
		return false, errors.Newf("write failed for %s", key).Category(errors.CategoryDatabase).Build()
	}
	exists, _ := tx.Exists(ctx, key)
	if exists {
		return false, nil
	}
	tx.staged[key] = *entry
	return true, nil
}

// fakeState implements CheckpointStore, RunRecorder and FailureRecorder.
type fakeState struct {
	mu         sync.Mutex
	checkpoint int64
	stored     []int64
	summaries  []datastore.RunSummary
	failures   []entities.MigrationFailure
}

func newFakeState() *fakeState {
	return &fakeState{checkpoint: entities.NoCheckpoint}
}

func (s *fakeState) LoadCheckpoint(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoint, nil
}

func (s *fakeState) StoreCheckpoint(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored = append(s.stored, id)
	if id > s.checkpoint {
		s.checkpoint = id
	}
	return nil
}

func (s *fakeState) BeginRun(context.Context, string) error { return nil }

func (s *fakeState) FinishRun(_ context.Context, summary *datastore.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, *summary)
	return nil
}

func (s *fakeState) RecordFailures(_ context.Context, failures []entities.MigrationFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failures...)
	return nil
}

func (s *fakeState) current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoint
}

func testSettings() conf.MigrationSettings {
	return conf.MigrationSettings{
		LastProcessedID: entities.NoCheckpoint,
		Workers:         4,
		MaxWorkers:      6,
		PageSize:        10,
		SubBatchSize:    3,
		DrainTimeout:    10 * time.Second,
		CheckpointMode:  conf.CheckpointConfirmed,
		TxScope:         conf.TxScopeSubBatch,
	}
}

func newTestPipeline(t *testing.T, src *fakeSource, target *fakeTarget, state *fakeState, mapping map[string]string, mutate func(*Config)) *Pipeline {
	t.Helper()
	cfg := Config{
		Source:      src,
		Target:      target,
		Checkpoints: state,
		Runs:        state,
		Failures:    state,
		Resolver:    NewIdentifierResolver(mapping, nil, false),
		Settings:    testSettings(),
		Logger:      quietLogger(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := NewPipeline(cfg)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p
}
