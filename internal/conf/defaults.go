package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/eventlog-migrator/internal/logger"
)

const (
	defaultPageSize     = 100000
	defaultSubBatchSize = 50
	defaultSagaPageSize = 1000
)

// setDefaultConfig sets default values for every configuration key.
func setDefaultConfig(v *viper.Viper) {
	// Stores
	for _, store := range []string{"legacy", "target"} {
		v.SetDefault(store+".driver", DriverSQLite)
		v.SetDefault(store+".mysql.host", "localhost")
		v.SetDefault(store+".mysql.port", 3306)
		v.SetDefault(store+".mysql.username", "")
		v.SetDefault(store+".mysql.password", "")
		v.SetDefault(store+".mysql.passwordfile", "")
		v.SetDefault(store+".mysql.database", "")
	}
	v.SetDefault("legacy.path", "data/legacy.db")
	v.SetDefault("legacy.table", "DomainEventEntry")
	v.SetDefault("target.path", "data/target.db")
	v.SetDefault("target.table", "DomainEventEntry_new")

	// Migration pipeline
	v.SetDefault("migration.lastprocessedid", -1)
	v.SetDefault("migration.autoresolveidentifier", false)
	v.SetDefault("migration.identifiermappingfile", "identifiers.yaml")
	v.SetDefault("migration.schemaregistryfile", "schemas.yaml")
	v.SetDefault("migration.workers", 10)
	v.SetDefault("migration.maxworkers", 20)
	v.SetDefault("migration.queuecapacity", defaultPageSize/defaultSubBatchSize)
	v.SetDefault("migration.pagesize", defaultPageSize)
	v.SetDefault("migration.subbatchsize", defaultSubBatchSize)
	v.SetDefault("migration.fetchsize", 1000)
	v.SetDefault("migration.draintimeout", 5*time.Minute)
	v.SetDefault("migration.pageinterval", time.Duration(0))
	v.SetDefault("migration.checkpointmode", CheckpointConfirmed)
	v.SetDefault("migration.txscope", TxScopeSubBatch)
	v.SetDefault("migration.legacyupcaster", true)

	// Saga backfill
	v.SetDefault("sagas.pagesize", defaultSagaPageSize)
	v.SetDefault("sagas.sagatable", "SagaEntry")
	v.SetDefault("sagas.associationtable", "AssociationValueEntry")

	// Logging
	v.SetDefault("logging.defaultlevel", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.fileoutput.enabled", logger.DefaultFileEnabled)
	v.SetDefault("logging.fileoutput.path", logger.DefaultLogPath)
	v.SetDefault("logging.fileoutput.level", logger.DefaultLogLevel)

	// Telemetry and metrics
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.dsn", "")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9464")
}
