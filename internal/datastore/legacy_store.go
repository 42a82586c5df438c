package datastore

import (
	"context"
	"fmt"
	"iter"

	"gorm.io/gorm"

	"github.com/tphakala/eventlog-migrator/internal/datastore/entities"
	"github.com/tphakala/eventlog-migrator/internal/errors"
)

const defaultFetchSize = 1000

// LegacyStore reads the legacy event table.
type LegacyStore struct {
	db        *gorm.DB
	table     string
	fetchSize int
}

// NewLegacyStore creates a reader for table. fetchSize bounds the rows
// materialized per round trip while a page is streamed.
func NewLegacyStore(db *gorm.DB, table string, fetchSize int) *LegacyStore {
	if fetchSize <= 0 {
		fetchSize = defaultFetchSize
	}
	return &LegacyStore{db: db, table: table, fetchSize: fetchSize}
}

// itemProjection maps the columns FetchPage selects.
type itemProjection struct {
	ID                  int64  `gorm:"column:id"`
	Type                string `gorm:"column:type"`
	AggregateIdentifier string `gorm:"column:aggregateIdentifier"`
	SequenceNumber      int64  `gorm:"column:sequenceNumber"`
}

// FetchPage streams up to limit items with a record id greater than after,
// in ascending id order. Rows are fetched in keyset chunks of fetchSize, so
// no database cursor stays open while the consumer works on an item.
func (s *LegacyStore) FetchPage(ctx context.Context, after int64, limit int) iter.Seq2[entities.ConversionItem, error] {
	return func(yield func(entities.ConversionItem, error) bool) {
		cursor := after
		remaining := limit

		for remaining > 0 {
			chunk := min(remaining, s.fetchSize)

			var rows []itemProjection
			err := s.db.WithContext(ctx).
				Table(s.table).
				Select("id", "type", "aggregateIdentifier", "sequenceNumber").
				Where("id > ?", cursor).
				Order("id").
				Limit(chunk).
				Find(&rows).Error
			if err != nil {
				yield(entities.ConversionItem{}, dbError(err, "fetch_page").
					Context("table", s.table).
					Context("cursor", cursor).
					Build())
				return
			}

			for i := range rows {
				item := entities.ConversionItem{
					EventKey: entities.EventKey{
						Type:                rows[i].Type,
						AggregateIdentifier: rows[i].AggregateIdentifier,
						SequenceNumber:      rows[i].SequenceNumber,
					},
					RecordID: rows[i].ID,
				}
				if !yield(item, nil) {
					return
				}
				cursor = rows[i].ID
			}

			if len(rows) < chunk {
				return
			}
			remaining -= len(rows)
		}
	}
}

// FetchRecord loads one full legacy row.
func (s *LegacyStore) FetchRecord(ctx context.Context, id int64) (*entities.LegacyEventEntry, error) {
	var entry entities.LegacyEventEntry
	err := s.db.WithContext(ctx).Table(s.table).Where("id = ?", id).Take(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(fmt.Errorf("legacy record %d not found: %w", id, err)).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Context("record_id", id).
				Build()
		}
		return nil, dbError(err, "fetch_record").Context("record_id", id).Build()
	}
	return &entry, nil
}

// CountAfter returns how many legacy rows have an id greater than after.
func (s *LegacyStore) CountAfter(ctx context.Context, after int64) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Table(s.table).Where("id > ?", after).Count(&n).Error; err != nil {
		return 0, dbError(err, "count_legacy").Context("cursor", after).Build()
	}
	return n, nil
}
