package app

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/eventlog-migrator/internal/buildinfo"
	"github.com/tphakala/eventlog-migrator/internal/conf"
	"github.com/tphakala/eventlog-migrator/internal/datastore"
	"github.com/tphakala/eventlog-migrator/internal/datastore/entities"
	"github.com/tphakala/eventlog-migrator/internal/errors"
	"github.com/tphakala/eventlog-migrator/internal/testutil"
)

var quietLogger = testutil.QuietLogger

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	dir := t.TempDir()

	mappingFile := filepath.Join(dir, "identifiers.yaml")
	require.NoError(t, os.WriteFile(mappingFile, []byte("OrderPlaced: orderId\n"), 0o600))

	return &conf.Settings{
		Legacy: conf.StoreSettings{Driver: conf.DriverSQLite, Path: filepath.Join(dir, "legacy.db"), Table: "DomainEventEntry"},
		Target: conf.StoreSettings{Driver: conf.DriverSQLite, Path: filepath.Join(dir, "target.db"), Table: "DomainEventEntry_new"},
		Migration: conf.MigrationSettings{
			LastProcessedID:       entities.NoCheckpoint,
			IdentifierMappingFile: mappingFile,
			Workers:               2,
			MaxWorkers:            4,
			PageSize:              10,
			SubBatchSize:          3,
			FetchSize:             4,
			DrainTimeout:          10 * time.Second,
			CheckpointMode:        conf.CheckpointConfirmed,
			TxScope:               conf.TxScopeSubBatch,
			LegacyUpcaster:        true,
		},
		Sagas: conf.SagaSettings{PageSize: 2, SagaTable: "SagaEntry", AssociationTable: "AssociationValueEntry"},
	}
}

func newTestEnvironment(t *testing.T, settings *conf.Settings) (*Environment, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	env, err := NewEnvironment(settings, buildinfo.NewContext("test", "", "test-instance"),
		WithLogger(quietLogger()), WithOutput(&out))
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return env, &out
}

func orderEvent(payloadType, aggregateID string, seq int64) []byte {
	return fmt.Appendf(nil, `<%[1]s eventRevision="1">`+
		`<metaData><values>`+
		`<entry><string>_timestamp</string><localDateTime>2020-01-01T00:00:00</localDateTime></entry>`+
		`<entry><string>_identifier</string><uuid>evt-%[2]s-%[3]d</uuid></entry>`+
		`</values></metaData>`+
		`<sequenceNumber>%[3]d</sequenceNumber>`+
		`<aggregateIdentifier>%[2]s</aggregateIdentifier><amount>10</amount></%[1]s>`,
		payloadType, aggregateID, seq)
}

func seedLegacy(t *testing.T, settings *conf.Settings, payloadTypes ...string) {
	t.Helper()
	db, err := datastore.Open(&settings.Legacy, quietLogger())
	require.NoError(t, err)
	defer func() { _ = datastore.Close(db) }()

	require.NoError(t, datastore.CreateLegacyTable(db, settings.Legacy.Table))
	records := make([]entities.LegacyEventEntry, 0, len(payloadTypes))
	for i, payloadType := range payloadTypes {
		records = append(records, entities.LegacyEventEntry{
			Type:                "Order",
			AggregateIdentifier: "agg-1",
			SequenceNumber:      int64(i),
			TimeStamp:           "2020-01-01T00:00:00.000Z",
			SerializedEvent:     orderEvent(payloadType, "agg-1", int64(i)),
		})
	}
	require.NoError(t, db.Table(settings.Legacy.Table).Create(&records).Error)
}

func TestMigrate_CompleteRun(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	seedLegacy(t, settings, "OrderPlaced", "OrderPlaced", "OrderPlaced", "OrderPlaced")
	env, out := newTestEnvironment(t, settings)

	report, err := env.Migrate(t.Context(), MigrateOptions{CreateTargetTable: true})
	require.NoError(t, err)
	assert.True(t, report.Complete())
	assert.Equal(t, int64(4), report.Counts.Converted)
	assert.Equal(t, int64(4), report.Checkpoint)

	assert.Contains(t, out.String(), "Processed events from the old event store up to (and including) id = 4")
	assert.Contains(t, out.String(), "In total 4 items have been converted")
	assert.Contains(t, out.String(), "The new event store is in table DomainEventEntry_new")
}

func TestMigrate_IncompleteRunAndStatus(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	seedLegacy(t, settings, "OrderPlaced", "OrderShipped", "OrderPlaced")
	env, out := newTestEnvironment(t, settings)

	report, err := env.Migrate(t.Context(), MigrateOptions{CreateTargetTable: true})
	require.NoError(t, err)
	assert.True(t, report.Success, "items without mapping do not fail the run")
	assert.False(t, report.Complete())
	assert.Equal(t, []string{"OrderShipped"}, report.NoMappingTypes)
	assert.Contains(t, out.String(), "didn't complete the entire migration")
	assert.Contains(t, out.String(), "Payload types without identifier mapping: OrderShipped")

	out.Reset()
	require.NoError(t, env.Status(t.Context(), 10))
	assert.Regexp(t, `Checkpoint:\s+1\n`, out.String())
	assert.Regexp(t, `Status:\s+completed`, out.String())
	assert.Regexp(t, `Converted:\s+2`, out.String())
	assert.Regexp(t, `Without mapping:\s+1`, out.String())
}

func TestMigrate_RerunAfterAddingMapping(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	seedLegacy(t, settings, "OrderPlaced", "OrderShipped", "OrderPlaced")
	env, out := newTestEnvironment(t, settings)

	first, err := env.Migrate(t.Context(), MigrateOptions{CreateTargetTable: true})
	require.NoError(t, err)
	require.False(t, first.Complete())

	require.NoError(t, os.WriteFile(settings.Migration.IdentifierMappingFile,
		[]byte("OrderPlaced: orderId\nOrderShipped: orderId\n"), 0o600))
	out.Reset()

	second, err := env.Migrate(t.Context(), MigrateOptions{})
	require.NoError(t, err)
	assert.True(t, second.Complete())
	assert.Equal(t, int64(1), second.Counts.Converted)
	assert.Equal(t, int64(1), second.Counts.Duplicates)
	assert.Equal(t, int64(3), second.Checkpoint)
	assert.Contains(t, out.String(), "Event store migrated.")
}

func TestMigrate_ResumesFromCheckpoint(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	seedLegacy(t, settings, "OrderPlaced", "OrderPlaced")
	env, _ := newTestEnvironment(t, settings)

	_, err := env.Migrate(t.Context(), MigrateOptions{CreateTargetTable: true})
	require.NoError(t, err)

	report, err := env.Migrate(t.Context(), MigrateOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.StartedAfter)
	assert.Zero(t, report.Counts.Converted)
}

func TestMigrate_StaleRunNeedsForce(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	seedLegacy(t, settings, "OrderPlaced")

	// Simulate a process that died while holding the run.
	db, err := datastore.Open(&settings.Target, quietLogger())
	require.NoError(t, err)
	state := datastore.NewStateManager(db)
	require.NoError(t, state.Initialize(t.Context()))
	require.NoError(t, state.BeginRun(t.Context(), "crashed-run"))
	require.NoError(t, datastore.Close(db))

	env, _ := newTestEnvironment(t, settings)

	_, err = env.Migrate(t.Context(), MigrateOptions{CreateTargetTable: true})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))

	report, err := env.Migrate(t.Context(), MigrateOptions{CreateTargetTable: true, Force: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Counts.Converted)
}

func TestMigrate_WithMetricsEndpoint(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	settings.Metrics = conf.MetricsSettings{Enabled: true, Listen: "127.0.0.1:0"}
	seedLegacy(t, settings, "OrderPlaced")
	env, _ := newTestEnvironment(t, settings)

	report, err := env.Migrate(t.Context(), MigrateOptions{CreateTargetTable: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Counts.Converted)
}

func TestMigrate_BadMappingFile(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	require.NoError(t, os.WriteFile(settings.Migration.IdentifierMappingFile, []byte("OrderPlaced: [\n"), 0o600))
	env, _ := newTestEnvironment(t, settings)

	_, err := env.Migrate(t.Context(), MigrateOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileParsing))
}

func TestStatus_NoState(t *testing.T) {
	t.Parallel()

	env, out := newTestEnvironment(t, testSettings(t))
	require.NoError(t, env.Status(t.Context(), 10))
	assert.Contains(t, out.String(), "No migration has been run")
}

func TestStatus_ListsFailures(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	seedLegacy(t, settings, "OrderPlaced", "OrderPlaced")

	db, err := datastore.Open(&settings.Legacy, quietLogger())
	require.NoError(t, err)
	require.NoError(t, db.Table(settings.Legacy.Table).Where("id = ?", 2).
		Update("serializedEvent", []byte("<<broken")).Error)
	require.NoError(t, datastore.Close(db))

	env, out := newTestEnvironment(t, settings)
	report, err := env.Migrate(t.Context(), MigrateOptions{CreateTargetTable: true})
	require.NoError(t, err)
	assert.False(t, report.Success)

	out.Reset()
	require.NoError(t, env.Status(t.Context(), 10))
	assert.Regexp(t, `Status:\s+failed`, out.String())
	assert.Contains(t, out.String(), "RECORD")
	assert.Regexp(t, `2\s+Order\s+agg-1\s+1\s+malformed`, out.String())
}

func TestBackfillSagas(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	db, err := datastore.Open(&settings.Target, quietLogger())
	require.NoError(t, err)
	require.NoError(t, datastore.CreateSagaTables(db, settings.Sagas.SagaTable, settings.Sagas.AssociationTable))
	sagas := []entities.SagaEntry{
		{SagaID: "s1", SerializedSaga: []byte("<OrderSaga/>")},
		{SagaID: "s2", SerializedSaga: []byte("<OrderSaga/>")},
		{SagaID: "s3", SerializedSaga: []byte("<PaymentSaga/>")},
	}
	require.NoError(t, db.Table(settings.Sagas.SagaTable).Create(&sagas).Error)
	require.NoError(t, datastore.Close(db))

	env, out := newTestEnvironment(t, settings)
	updated, err := env.BackfillSagas(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, updated)
	assert.Contains(t, out.String(), "Assigned a saga type to 3 of 3 sagas.")
}
