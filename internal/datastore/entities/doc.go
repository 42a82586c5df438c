// Package entities defines the GORM models for the event stores and the
// migration bookkeeping tables.
//
// # Event stores
//
//   - LegacyEventEntry: rows of the legacy event table, read only
//   - EventEntry: rows of the new event table
//   - EventKey: (type, aggregateIdentifier, sequenceNumber), the identity shared by both schemas
//   - ConversionItem: the key plus the legacy row id, used to enumerate work
//
// # Migration bookkeeping
//
//   - MigrationState: checkpoint and last run summary (singleton table)
//   - MigrationFailure: records that failed during a run
//
// # Sagas
//
//   - SagaEntry, AssociationValueEntry: saga repository tables backfilled with a saga type
//
// Event and saga table names follow the existing repository schema and are
// configurable; the gorm tags pin the camelCase column names that schema uses.
package entities
