// Package storage provides a gorm-backed sqlite connection, used by
// on-disk caches (the file analyzer's signature cache) that want
// structured persistence without hand-rolled SQL, with query logging
// routed through the ambient logger instead of gorm's default stdout
// writer.
package storage

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// SQLiteConfig configures a single sqlite connection.
type SQLiteConfig struct {
	Path   string
	Logger *log.Logger
	// BusyTimeoutMS bounds how long a writer waits on SQLITE_BUSY
	// before failing, so concurrent cache writers (the signature
	// cache is read-then-write, not transactional) don't surface
	// spurious lock errors under light contention.
	BusyTimeoutMS int
}

// NewSQLite opens (or creates) a sqlite database at cfg.Path in WAL
// journal mode, which lets cache reads proceed while a write is in
// flight, and wires gorm's own query log through cfg.Logger.
func NewSQLite(cfg SQLiteConfig) (*gorm.DB, error) {
	busyTimeout := cfg.BusyTimeoutMS
	if busyTimeout <= 0 {
		busyTimeout = 5000
	}

	loggerConfig := gormLogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		IgnoreRecordNotFoundError: true,
		LogLevel:                  gormLogger.Info,
	}
	gormLog := gormLogger.New(newGormLogger(cfg.Logger), loggerConfig)

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d", cfg.Path, busyTimeout)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLog,
	})
	if err != nil {
		return nil, err
	}

	return db, nil
}

// Close releases the underlying connection pool backing db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
