package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding ties one environment variable to a config key.
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"legacy.driver", "MIGRATOR_LEGACY_DRIVER", validateEnvDriver},
		{"legacy.path", "MIGRATOR_LEGACY_PATH", nil},
		{"legacy.mysql.host", "MIGRATOR_LEGACY_MYSQL_HOST", nil},
		{"legacy.mysql.port", "MIGRATOR_LEGACY_MYSQL_PORT", validateEnvPort},
		{"legacy.mysql.username", "MIGRATOR_LEGACY_MYSQL_USERNAME", nil},
		{"legacy.mysql.password", "MIGRATOR_LEGACY_MYSQL_PASSWORD", nil},
		{"legacy.mysql.passwordfile", "MIGRATOR_LEGACY_MYSQL_PASSWORD_FILE", nil},
		{"legacy.mysql.database", "MIGRATOR_LEGACY_MYSQL_DATABASE", nil},

		{"target.driver", "MIGRATOR_TARGET_DRIVER", validateEnvDriver},
		{"target.path", "MIGRATOR_TARGET_PATH", nil},
		{"target.mysql.host", "MIGRATOR_TARGET_MYSQL_HOST", nil},
		{"target.mysql.port", "MIGRATOR_TARGET_MYSQL_PORT", validateEnvPort},
		{"target.mysql.username", "MIGRATOR_TARGET_MYSQL_USERNAME", nil},
		{"target.mysql.password", "MIGRATOR_TARGET_MYSQL_PASSWORD", nil},
		{"target.mysql.passwordfile", "MIGRATOR_TARGET_MYSQL_PASSWORD_FILE", nil},
		{"target.mysql.database", "MIGRATOR_TARGET_MYSQL_DATABASE", nil},

		{"migration.lastprocessedid", "MIGRATOR_LAST_PROCESSED_ID", validateEnvInt},
		{"migration.autoresolveidentifier", "MIGRATOR_AUTO_RESOLVE_IDENTIFIER", validateEnvBool},
		{"migration.workers", "MIGRATOR_WORKERS", validateEnvPositiveInt},
		{"migration.pagesize", "MIGRATOR_PAGE_SIZE", validateEnvPositiveInt},
		{"migration.subbatchsize", "MIGRATOR_SUB_BATCH_SIZE", validateEnvPositiveInt},
		{"migration.draintimeout", "MIGRATOR_DRAIN_TIMEOUT", validateEnvDuration},
		{"migration.checkpointmode", "MIGRATOR_CHECKPOINT_MODE", nil},

		{"telemetry.enabled", "MIGRATOR_TELEMETRY_ENABLED", validateEnvBool},
		{"telemetry.dsn", "MIGRATOR_SENTRY_DSN", nil},
		{"metrics.enabled", "MIGRATOR_METRICS_ENABLED", validateEnvBool},
		{"metrics.listen", "MIGRATOR_METRICS_LISTEN", nil},
	}
}

// bindEnvVars binds every variable and validates the ones that are set.
// Credentials are never echoed in the returned error.
func bindEnvVars(v *viper.Viper) error {
	var problems []string

	for _, b := range getEnvBindings() {
		if err := v.BindEnv(b.ConfigKey, b.EnvVar); err != nil {
			problems = append(problems, fmt.Sprintf("failed to bind %s: %v", b.EnvVar, err))
			continue
		}
		if b.Validate == nil {
			continue
		}
		if value := os.Getenv(b.EnvVar); value != "" {
			if err := b.Validate(value); err != nil {
				problems = append(problems, fmt.Sprintf("invalid %s value %q: %v", b.EnvVar, value, err))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvInt(value string) error {
	if _, err := strconv.ParseInt(value, 10, 64); err != nil {
		return fmt.Errorf("must be an integer")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("must be between 1 and 65535")
	}
	return nil
}

func validateEnvDuration(value string) error {
	if _, err := time.ParseDuration(value); err != nil {
		return fmt.Errorf("must be a duration such as 30s or 5m")
	}
	return nil
}

func validateEnvDriver(value string) error {
	switch strings.ToLower(value) {
	case DriverSQLite, DriverMySQL:
		return nil
	default:
		return fmt.Errorf("must be %s or %s", DriverSQLite, DriverMySQL)
	}
}
