package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.yaml", "legacy:\n  path: legacy.db\n")
	settings, err := load(viper.New(), path)
	require.NoError(t, err)

	m := settings.Migration
	assert.Equal(t, int64(-1), m.LastProcessedID)
	assert.False(t, m.AutoResolveIdentifier)
	assert.Equal(t, 10, m.Workers)
	assert.Equal(t, 20, m.MaxWorkers)
	assert.Equal(t, 100000, m.PageSize)
	assert.Equal(t, 50, m.SubBatchSize)
	assert.Equal(t, 2000, m.QueueCapacity)
	assert.Equal(t, 5*time.Minute, m.DrainTimeout)
	assert.Equal(t, CheckpointConfirmed, m.CheckpointMode)
	assert.Equal(t, TxScopeSubBatch, m.TxScope)
	assert.True(t, m.LegacyUpcaster)

	assert.Equal(t, "legacy.db", settings.Legacy.Path)
	assert.Equal(t, "DomainEventEntry", settings.Legacy.Table)
	assert.Equal(t, "DomainEventEntry_new", settings.Target.Table)
	assert.Equal(t, 1000, settings.Sagas.PageSize)
	assert.Equal(t, "info", settings.Logging.DefaultLevel)
	require.NotNil(t, settings.Logging.Console)
	assert.True(t, settings.Logging.Console.Enabled)
}

func TestLoad_FileOverrides(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.yaml", `
target:
  driver: MySQL
  table: events_v2
  mysql:
    host: db
    port: 3307
    username: migrator
    password: secret
    database: events
migration:
  lastprocessedid: 4200
  workers: 4
  subbatchsize: 25
  draintimeout: 30s
  checkpointmode: READ
  txscope: item
logging:
  modulelevels:
    migration.reader: debug
`)
	settings, err := load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, DriverMySQL, settings.Target.Driver)
	assert.Equal(t, 3307, settings.Target.MySQL.Port)
	assert.Equal(t, "events_v2", settings.Target.Table)
	assert.Equal(t, int64(4200), settings.Migration.LastProcessedID)
	assert.Equal(t, 4, settings.Migration.Workers)
	assert.Equal(t, 25, settings.Migration.SubBatchSize)
	assert.Equal(t, 30*time.Second, settings.Migration.DrainTimeout)
	assert.Equal(t, CheckpointRead, settings.Migration.CheckpointMode)
	assert.Equal(t, TxScopeItem, settings.Migration.TxScope)
	assert.Equal(t, "debug", settings.Logging.ModuleLevels["migration.reader"])
}

// Not parallel: t.Setenv.
func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("MIGRATOR_WORKERS", "3")
	t.Setenv("MIGRATOR_AUTO_RESOLVE_IDENTIFIER", "true")

	path := writeFile(t, "config.yaml", "migration:\n  workers: 8\n")
	settings, err := load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, 3, settings.Migration.Workers)
	assert.True(t, settings.Migration.AutoResolveIdentifier)
}

// Not parallel: t.Setenv.
func TestLoad_InvalidEnvironmentValue(t *testing.T) {
	t.Setenv("MIGRATOR_PAGE_SIZE", "lots")

	_, err := load(viper.New(), writeFile(t, "config.yaml", "{}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MIGRATOR_PAGE_SIZE")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := load(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidateSettings_AggregatesProblems(t *testing.T) {
	t.Parallel()

	settings := &Settings{
		Legacy: StoreSettings{Driver: "postgres", Table: "DomainEventEntry"},
		Target: StoreSettings{Driver: "mysql", Table: "", MySQL: MySQLSettings{Port: 0}},
		Migration: MigrationSettings{
			Workers:        30,
			MaxWorkers:     20,
			PageSize:       10,
			SubBatchSize:   50,
			FetchSize:      1,
			DrainTimeout:   time.Second,
			CheckpointMode: "sometimes",
			TxScope:        "item",
		},
		Sagas: SagaSettings{PageSize: 1000},
	}

	err := ValidateSettings(settings)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Errors, `legacy.driver "postgres" is not supported`)
	assert.Contains(t, ve.Errors, "target.table is required")
	assert.Contains(t, ve.Errors, "target.mysql requires host, database and username")
	assert.Contains(t, ve.Errors, "migration.workers (30) exceeds migration.maxworkers (20)")
	assert.Contains(t, ve.Errors, "migration.subbatchsize cannot exceed migration.pagesize")
	assert.Len(t, ve.Errors, 7)
}

func TestValidateSettings_AutoResolveNeedsRegistry(t *testing.T) {
	t.Parallel()

	settings := &Settings{
		Legacy: StoreSettings{Driver: DriverSQLite, Path: "a.db", Table: "a"},
		Target: StoreSettings{Driver: DriverSQLite, Path: "b.db", Table: "b"},
		Migration: MigrationSettings{
			Workers: 1, PageSize: 10, SubBatchSize: 5, FetchSize: 10,
			DrainTimeout: time.Second, CheckpointMode: CheckpointConfirmed, TxScope: TxScopeSubBatch,
			AutoResolveIdentifier: true,
		},
		Sagas: SagaSettings{PageSize: 1},
	}

	err := ValidateSettings(settings)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schemaregistryfile")
}

// Not parallel: t.Setenv.
func TestLoad_ResolvesSecrets(t *testing.T) {
	t.Setenv("MIGRATOR_TEST_SENTRY_DSN", "https://key@sentry.example.com/1")
	passwordFile := writeFile(t, "target-password", "from-file\n")

	path := writeFile(t, "config.yaml", `
legacy:
  driver: mysql
  mysql:
    host: db
    username: migrator
    password: ${MIGRATOR_TEST_LEGACY_PASSWORD:-fallback}
    database: legacy
target:
  driver: mysql
  mysql:
    host: db
    username: migrator
    password: ignored
    passwordfile: `+passwordFile+`
    database: events
telemetry:
  enabled: true
  dsn: ${MIGRATOR_TEST_SENTRY_DSN}
`)
	settings, err := load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "fallback", settings.Legacy.MySQL.Password)
	assert.Equal(t, "from-file", settings.Target.MySQL.Password)
	assert.Equal(t, "https://key@sentry.example.com/1", settings.Telemetry.DSN)
}

func TestLoad_MissingSecretVariable(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.yaml", "target:\n  mysql:\n    password: ${MIGRATOR_TEST_NEVER_SET}\n")
	_, err := load(viper.New(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target.mysql.password")
}
