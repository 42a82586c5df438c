// Package conf loads and validates migrator settings.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/eventlog-migrator/internal/errors"
	"github.com/tphakala/eventlog-migrator/internal/logger"
	"github.com/tphakala/eventlog-migrator/internal/secrets"
)

// Supported store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Checkpoint modes.
const (
	// CheckpointConfirmed persists only the highest id of the contiguous
	// prefix of sub-batches that finished without a store error.
	CheckpointConfirmed = "confirmed"
	// CheckpointRead persists the cursor as soon as items are read.
	CheckpointRead = "read"
)

// Transaction scopes.
const (
	TxScopeSubBatch = "subbatch"
	TxScopeItem     = "item"
)

// Settings is the root of the configuration tree.
type Settings struct {
	Legacy    StoreSettings     // source event store, read only
	Target    StoreSettings     // destination event store, also holds migration state and sagas
	Migration MigrationSettings // pipeline tuning
	Sagas     SagaSettings      // saga type backfill job
	Logging   logger.LoggingConfig
	Telemetry TelemetrySettings
	Metrics   MetricsSettings
}

// StoreSettings describes one database.
type StoreSettings struct {
	Driver string // sqlite or mysql
	Path   string // sqlite database file
	MySQL  MySQLSettings
	Table  string // event table name
}

// MySQLSettings holds MySQL connection parameters.
type MySQLSettings struct {
	Host         string
	Port         int
	Username     string
	Password     string // literal or ${VAR} reference
	PasswordFile string // mounted secret, takes precedence over Password
	Database     string
}

// MigrationSettings tunes the event migration pipeline.
type MigrationSettings struct {
	LastProcessedID       int64         // resume cursor override, -1 uses the persisted checkpoint
	AutoResolveIdentifier bool          // guess missing identifier fields from the schema registry
	IdentifierMappingFile string        // YAML map of payload type to identifier field
	SchemaRegistryFile    string        // YAML map of payload type to field names
	Workers               int           // worker goroutines
	MaxWorkers            int           // upper bound for Workers
	QueueCapacity         int           // sub-batches buffered ahead of the workers
	PageSize              int           // items per cursor page
	SubBatchSize          int           // items per unit of concurrent work
	FetchSize             int           // rows per round trip while streaming a page
	DrainTimeout          time.Duration // how long shutdown waits for in-flight sub-batches
	PageInterval          time.Duration // minimum delay between page fetches, 0 disables
	CheckpointMode        string
	TxScope               string
	LegacyUpcaster        bool // upcast documents from the oldest serializer shape
}

// SagaSettings configures the saga type backfill.
type SagaSettings struct {
	PageSize         int
	SagaTable        string
	AssociationTable string
}

// TelemetrySettings controls Sentry error reporting.
type TelemetrySettings struct {
	Enabled bool
	DSN     string
}

// MetricsSettings controls the Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool
	Listen  string
}

// Load reads settings through the global viper instance, which cobra flags are bound to.
// An empty configFile searches the default config paths; a missing file is not an error.
func Load(configFile string) (*Settings, error) {
	return load(viper.GetViper(), configFile)
}

func load(v *viper.Viper, configFile string) (*Settings, error) {
	if err := initViper(v, configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

func initViper(v *viper.Viper, configFile string) error {
	setDefaultConfig(v)

	if err := bindEnvVars(v); err != nil {
		return err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, path := range GetDefaultConfigPaths() {
			v.AddConfigPath(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return errors.New(fmt.Errorf("error reading config file: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("config_file", configFile).
			Build()
	}

	return nil
}

// resolveSecrets replaces credential references with their values.
func resolveSecrets(settings *Settings) error {
	for name, mysql := range map[string]*MySQLSettings{
		"legacy": &settings.Legacy.MySQL,
		"target": &settings.Target.MySQL,
	} {
		password, err := secrets.Resolve(mysql.PasswordFile, mysql.Password)
		if err != nil {
			return fmt.Errorf("%s.mysql.password: %w", name, err)
		}
		mysql.Password = password
	}

	dsn, err := secrets.Expand(settings.Telemetry.DSN)
	if err != nil {
		return fmt.Errorf("telemetry.dsn: %w", err)
	}
	settings.Telemetry.DSN = dsn
	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml, in order.
func GetDefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "eventlog-migrator"))
	}
	return append(paths, "/etc/eventlog-migrator")
}

// ConfigFileUsed reports the config file viper read, or "" when running on defaults.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
