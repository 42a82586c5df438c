// Package testutil provides shared test utilities for the migrator packages.
// These helpers reduce duplication across test files and ensure consistent test patterns.
package testutil

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tphakala/eventlog-migrator/internal/conf"
	"github.com/tphakala/eventlog-migrator/internal/datastore"
	"github.com/tphakala/eventlog-migrator/internal/logger"
)

// DefaultTestTimeout is the standard timeout for async test operations.
const DefaultTestTimeout = 5 * time.Second

// QuietLogger returns a logger that drops everything below error level.
func QuietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

// OpenSQLite opens a SQLite store at path and closes it when the test ends.
func OpenSQLite(t *testing.T, path string) *gorm.DB {
	t.Helper()
	db, err := datastore.Open(&conf.StoreSettings{Driver: conf.DriverSQLite, Path: path}, QuietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = datastore.Close(db) })
	return db
}

// Receive waits for a value on ch or fails the test after timeout.
func Receive[T any](t *testing.T, ch <-chan T, timeout time.Duration, msg string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		require.FailNow(t, msg)
	}
	var zero T
	return zero
}
