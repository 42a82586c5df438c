package datastore

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/eventlog-migrator/internal/datastore/entities"
	"github.com/tphakala/eventlog-migrator/internal/errors"
)

// EventWriter is the per-item surface of the new event store, valid both
// on the store itself and inside a transaction.
type EventWriter interface {
	// Exists reports whether an event with key was already migrated.
	Exists(ctx context.Context, key entities.EventKey) (bool, error)
	// Persist inserts entry. It returns false without error when the key
	// already exists, so a concurrent writer never produces a duplicate.
	Persist(ctx context.Context, entry *entities.EventEntry) (bool, error)
}

// EventStore writes the new event table.
type EventStore struct {
	db    *gorm.DB
	table string
}

// NewEventStore creates a store for table.
func NewEventStore(db *gorm.DB, table string) *EventStore {
	return &EventStore{db: db, table: table}
}

var eventKeyColumns = []clause.Column{
	{Name: "type"},
	{Name: "aggregateIdentifier"},
	{Name: "sequenceNumber"},
}

func (s *EventStore) byKey(ctx context.Context, key entities.EventKey) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.table).
		Where("type = ? AND aggregateIdentifier = ? AND sequenceNumber = ?",
			key.Type, key.AggregateIdentifier, key.SequenceNumber)
}

func (s *EventStore) Exists(ctx context.Context, key entities.EventKey) (bool, error) {
	var n int64
	if err := s.byKey(ctx, key).Count(&n).Error; err != nil {
		return false, dbError(err, "exists").Context("key", key.String()).Build()
	}
	return n > 0, nil
}

func (s *EventStore) Persist(ctx context.Context, entry *entities.EventEntry) (bool, error) {
	result := s.db.WithContext(ctx).Table(s.table).
		Clauses(clause.OnConflict{Columns: eventKeyColumns, DoNothing: true}).
		Create(entry)
	if result.Error != nil {
		return false, dbError(result.Error, "persist").Context("key", entry.Key().String()).Build()
	}
	return result.RowsAffected > 0, nil
}

// InTransaction runs fn with a writer bound to one database transaction.
// Any error returned by fn rolls back everything fn wrote.
func (s *EventStore) InTransaction(ctx context.Context, fn func(EventWriter) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&EventStore{db: tx, table: s.table})
	})
}

// Get loads the event with key.
func (s *EventStore) Get(ctx context.Context, key entities.EventKey) (*entities.EventEntry, error) {
	var entry entities.EventEntry
	if err := s.byKey(ctx, key).Take(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(fmt.Errorf("event %s not found: %w", key, err)).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, dbError(err, "get_event").Context("key", key.String()).Build()
	}
	return &entry, nil
}

// Count returns the number of migrated events.
func (s *EventStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Table(s.table).Count(&n).Error; err != nil {
		return 0, dbError(err, "count_events").Build()
	}
	return n, nil
}

var _ EventWriter = (*EventStore)(nil)
