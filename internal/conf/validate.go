package conf

import (
	"fmt"
	"strings"
)

// ValidationError collects every configuration problem found in one pass.
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct. Driver and mode names
// are normalized to lower case in place.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateStore("legacy", &settings.Legacy)...)
	ve.Errors = append(ve.Errors, validateStore("target", &settings.Target)...)
	ve.Errors = append(ve.Errors, validateMigration(&settings.Migration)...)

	if settings.Sagas.PageSize <= 0 {
		ve.Errors = append(ve.Errors, "sagas.pagesize must be positive")
	}
	if settings.Telemetry.Enabled && settings.Telemetry.DSN == "" {
		ve.Errors = append(ve.Errors, "telemetry.dsn is required when telemetry is enabled")
	}
	if settings.Metrics.Enabled && settings.Metrics.Listen == "" {
		ve.Errors = append(ve.Errors, "metrics.listen is required when metrics are enabled")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateStore(name string, s *StoreSettings) []string {
	var errs []string

	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	switch s.Driver {
	case DriverSQLite:
		if s.Path == "" {
			errs = append(errs, fmt.Sprintf("%s.path is required for the sqlite driver", name))
		}
	case DriverMySQL:
		if s.MySQL.Host == "" || s.MySQL.Database == "" || s.MySQL.Username == "" {
			errs = append(errs, fmt.Sprintf("%s.mysql requires host, database and username", name))
		}
		if s.MySQL.Port < 1 || s.MySQL.Port > 65535 {
			errs = append(errs, fmt.Sprintf("%s.mysql.port must be between 1 and 65535", name))
		}
	default:
		errs = append(errs, fmt.Sprintf("%s.driver %q is not supported", name, s.Driver))
	}

	if s.Table == "" {
		errs = append(errs, fmt.Sprintf("%s.table is required", name))
	}
	return errs
}

func validateMigration(m *MigrationSettings) []string {
	var errs []string

	if m.LastProcessedID < -1 {
		errs = append(errs, "migration.lastprocessedid must be -1 or a record id")
	}
	if m.Workers <= 0 {
		errs = append(errs, "migration.workers must be positive")
	}
	if m.MaxWorkers > 0 && m.Workers > m.MaxWorkers {
		errs = append(errs, fmt.Sprintf("migration.workers (%d) exceeds migration.maxworkers (%d)", m.Workers, m.MaxWorkers))
	}
	if m.PageSize <= 0 {
		errs = append(errs, "migration.pagesize must be positive")
	}
	if m.SubBatchSize <= 0 {
		errs = append(errs, "migration.subbatchsize must be positive")
	}
	if m.PageSize > 0 && m.SubBatchSize > m.PageSize {
		errs = append(errs, "migration.subbatchsize cannot exceed migration.pagesize")
	}
	if m.QueueCapacity < 0 {
		errs = append(errs, "migration.queuecapacity cannot be negative")
	}
	if m.FetchSize <= 0 {
		errs = append(errs, "migration.fetchsize must be positive")
	}
	if m.DrainTimeout <= 0 {
		errs = append(errs, "migration.draintimeout must be positive")
	}
	if m.PageInterval < 0 {
		errs = append(errs, "migration.pageinterval cannot be negative")
	}

	m.CheckpointMode = strings.ToLower(m.CheckpointMode)
	if m.CheckpointMode != CheckpointConfirmed && m.CheckpointMode != CheckpointRead {
		errs = append(errs, fmt.Sprintf("migration.checkpointmode must be %q or %q", CheckpointConfirmed, CheckpointRead))
	}
	m.TxScope = strings.ToLower(m.TxScope)
	if m.TxScope != TxScopeSubBatch && m.TxScope != TxScopeItem {
		errs = append(errs, fmt.Sprintf("migration.txscope must be %q or %q", TxScopeSubBatch, TxScopeItem))
	}

	if m.AutoResolveIdentifier && m.SchemaRegistryFile == "" {
		errs = append(errs, "migration.schemaregistryfile is required when autoresolveidentifier is enabled")
	}
	return errs
}
