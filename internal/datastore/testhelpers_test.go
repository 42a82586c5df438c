package datastore

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tphakala/eventlog-migrator/internal/conf"
	"github.com/tphakala/eventlog-migrator/internal/datastore/entities"
	"github.com/tphakala/eventlog-migrator/internal/logger"
)

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

func openTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	db, err := Open(&conf.StoreSettings{
		Driver: conf.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), name),
	}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func seedLegacy(t *testing.T, db *gorm.DB, table string, n int) []entities.LegacyEventEntry {
	t.Helper()
	require.NoError(t, CreateLegacyTable(db, table))

	rows := make([]entities.LegacyEventEntry, 0, n)
	for i := range n {
		rows = append(rows, entities.LegacyEventEntry{
			Type:                "Order",
			AggregateIdentifier: "agg-" + string(rune('a'+i%26)),
			SequenceNumber:      int64(i),
			TimeStamp:           "2020-01-01T00:00:00.000Z",
			SerializedEvent:     []byte("<OrderPlaced/>"),
		})
	}
	require.NoError(t, db.Table(table).Create(&rows).Error)
	return rows
}
