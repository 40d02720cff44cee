package database

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/campuslib/internal/entities"
)

const DefaultBusyTimeout = 5 * time.Second

// Partial unique index: ISBN is optional and only has to be unique among
// books that have not been soft-deleted.
const createLiveISBNIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_books_isbn_live
	ON books(isbn) WHERE isbn IS NOT NULL AND deleted_at IS NULL`

type Database struct {
	DB *gorm.DB
}

type Options struct {
	BusyTimeout time.Duration
	LogLevel    logger.LogLevel
}

// Open connects to the SQLite file at dbPath and migrates the schema.
// Write transactions take the database lock at BEGIN (_txlock=immediate)
// and wait up to BusyTimeout for it before failing with SQLITE_BUSY.
func Open(dbPath string, opts Options) (*Database, error) {
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = DefaultBusyTimeout
	}
	if opts.LogLevel == 0 {
		opts.LogLevel = logger.Warn
	}

	db, err := gorm.Open(sqlite.Open(DSN(dbPath, opts.BusyTimeout)), &gorm.Config{
		Logger:         logger.Default.LogMode(opts.LogLevel),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	err = db.AutoMigrate(
		&entities.Student{},
		&entities.Book{},
		&entities.Transaction{},
		&entities.AuditEvent{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	if err := db.Exec(createLiveISBNIndex).Error; err != nil {
		return nil, fmt.Errorf("failed to create isbn index: %w", err)
	}

	log.Printf("Database initialized successfully at %s", dbPath)

	return &Database{DB: db}, nil
}

// DSN builds the go-sqlite3 connection string for path.
func DSN(path string, busyTimeout time.Duration) string {
	params := fmt.Sprintf("_busy_timeout=%d&_foreign_keys=1&_journal_mode=WAL&_txlock=immediate", busyTimeout.Milliseconds())
	if strings.Contains(path, "?") {
		return "file:" + path + "&" + params
	}
	return "file:" + path + "?" + params
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InTransaction runs fn inside a store transaction bound to ctx and maps
// the outcome onto the apperrors taxonomy. Returning an error from fn rolls
// the transaction back.
func InTransaction(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	return TranslateError(db.WithContext(ctx).Transaction(fn))
}
