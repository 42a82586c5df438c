// Package datastore implements the backing stores of the migrator on top of GORM.
package datastore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/eventlog-migrator/internal/conf"
	"github.com/tphakala/eventlog-migrator/internal/errors"
	"github.com/tphakala/eventlog-migrator/internal/logger"
)

const (
	slowQueryThreshold = 500 * time.Millisecond

	mysqlMaxIdleConns    = 10
	mysqlMaxOpenConns    = 50
	mysqlConnMaxLifetime = time.Hour
)

// Open connects to the store described by cfg. SQLite connections are
// limited to one, so concurrent sub-batch transactions queue on the pool
// instead of failing with SQLITE_BUSY on lock upgrades.
func Open(cfg *conf.StoreSettings, log logger.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log, slowQueryThreshold),
	}

	switch cfg.Driver {
	case conf.DriverSQLite:
		return openSQLite(cfg.Path, gormCfg)
	case conf.DriverMySQL:
		return openMySQL(&cfg.MySQL, gormCfg)
	default:
		return nil, errors.Newf("unsupported database driver %q", cfg.Driver).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

func openSQLite(path string, gormCfg *gorm.Config) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, dbError(err, "create_data_dir").Context("path", path).Build()
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", path)
	db, err := gorm.Open(sqlite.Open(dsn), gormCfg)
	if err != nil {
		return nil, dbError(err, "open_sqlite").Context("path", path).Build()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, dbError(err, "get_sql_db").Build()
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

func openMySQL(cfg *conf.MySQLSettings, gormCfg *gorm.Config) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(MySQLDSN(cfg)), gormCfg)
	if err != nil {
		return nil, dbError(err, "open_mysql").
			Context("location", fmt.Sprintf("%s:%d/%s", cfg.Host, cfg.Port, cfg.Database)).
			Build()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, dbError(err, "get_sql_db").Build()
	}
	sqlDB.SetMaxIdleConns(mysqlMaxIdleConns)
	sqlDB.SetMaxOpenConns(mysqlMaxOpenConns)
	sqlDB.SetConnMaxLifetime(mysqlConnMaxLifetime)

	return db, nil
}

// MySQLDSN builds the go-sql-driver DSN for cfg.
func MySQLDSN(cfg *conf.MySQLSettings) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func dbError(err error, operation string) *errors.ErrorBuilder {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)
}
