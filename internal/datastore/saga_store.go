package datastore

import (
	"context"

	"gorm.io/gorm"

	"github.com/tphakala/eventlog-migrator/internal/datastore/entities"
)

// SagaTypeAssignment sets the type of one saga.
type SagaTypeAssignment struct {
	SagaID   string
	SagaType string
}

// SagaStore reads and updates the saga repository tables.
type SagaStore struct {
	db               *gorm.DB
	sagaTable        string
	associationTable string
}

// NewSagaStore creates a saga store.
func NewSagaStore(db *gorm.DB, sagaTable, associationTable string) *SagaStore {
	return &SagaStore{db: db, sagaTable: sagaTable, associationTable: associationTable}
}

// UntypedPage returns up to limit sagas whose type is still NULL.
func (s *SagaStore) UntypedPage(ctx context.Context, limit int) ([]entities.SagaEntry, error) {
	var sagas []entities.SagaEntry
	err := s.db.WithContext(ctx).Table(s.sagaTable).
		Where("sagaType IS NULL").
		Order("sagaId").
		Limit(limit).
		Find(&sagas).Error
	if err != nil {
		return nil, dbError(err, "fetch_untyped_sagas").Context("table", s.sagaTable).Build()
	}
	return sagas, nil
}

// AssignTypes writes every assignment, to the saga row and to its
// association rows, in one transaction.
func (s *SagaStore) AssignTypes(ctx context.Context, assignments []SagaTypeAssignment) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, a := range assignments {
			if err := tx.Table(s.sagaTable).
				Where("sagaId = ?", a.SagaID).
				Update("sagaType", a.SagaType).Error; err != nil {
				return dbError(err, "update_saga_type").Context("saga_id", a.SagaID).Build()
			}
			if err := tx.Table(s.associationTable).
				Where("sagaId = ?", a.SagaID).
				Update("sagaType", a.SagaType).Error; err != nil {
				return dbError(err, "update_association_type").Context("saga_id", a.SagaID).Build()
			}
		}
		return nil
	})
}

// CountUntyped returns the number of sagas without a type.
func (s *SagaStore) CountUntyped(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Table(s.sagaTable).Where("sagaType IS NULL").Count(&n).Error; err != nil {
		return 0, dbError(err, "count_untyped_sagas").Build()
	}
	return n, nil
}
