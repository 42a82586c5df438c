package datastore

import (
	"gorm.io/gorm"

	"github.com/tphakala/eventlog-migrator/internal/datastore/entities"
)

// The migration never changes event or saga schemas on its own. These helpers
// exist for tests and for the explicit --create-target-table flag.

// CreateLegacyTable creates the legacy event table under the given name.
func CreateLegacyTable(db *gorm.DB, table string) error {
	if err := db.Table(table).AutoMigrate(&entities.LegacyEventEntry{}); err != nil {
		return dbError(err, "create_legacy_table").Context("table", table).Build()
	}
	return nil
}

// CreateEventTable creates the new event table under the given name.
func CreateEventTable(db *gorm.DB, table string) error {
	if err := db.Table(table).AutoMigrate(&entities.EventEntry{}); err != nil {
		return dbError(err, "create_event_table").Context("table", table).Build()
	}
	return nil
}

// CreateSagaTables creates the saga and association tables.
func CreateSagaTables(db *gorm.DB, sagaTable, associationTable string) error {
	if err := db.Table(sagaTable).AutoMigrate(&entities.SagaEntry{}); err != nil {
		return dbError(err, "create_saga_table").Context("table", sagaTable).Build()
	}
	if err := db.Table(associationTable).AutoMigrate(&entities.AssociationValueEntry{}); err != nil {
		return dbError(err, "create_association_table").Context("table", associationTable).Build()
	}
	return nil
}
