package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/cinesync/backend/internal/docstore"
	"github.com/cinesync/backend/internal/logger"
)

// Options selects the SQL dialect. DatabaseURL wins over SQLitePath.
type Options struct {
	DatabaseURL string
	SQLitePath  string
	Debug       bool
}

// Open creates a gorm connection for postgres or sqlite
func Open(opts Options) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch {
	case opts.DatabaseURL != "":
		dialector = postgres.Open(opts.DatabaseURL)
	case opts.SQLitePath != "":
		dialector = sqlite.Open(opts.SQLitePath)
	default:
		return nil, fmt.Errorf("no database configured")
	}

	gormLogger := gormlogger.Default.LogMode(gormlogger.Warn)
	if opts.Debug {
		gormLogger = gormlogger.Default.LogMode(gormlogger.Info)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if db.Dialector.Name() == "sqlite" {
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	logger.Log.Info("Database connected", zap.String("dialect", db.Dialector.Name()))
	return db, nil
}

// MigrateDB creates the documents table and its indexes
func MigrateDB(db *gorm.DB) error {
	if err := db.AutoMigrate(&docstore.Document{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	db.Exec("CREATE INDEX IF NOT EXISTS idx_documents_collection_id ON documents (collection, doc_id)")

	logger.Log.Info("Database migrations completed")
	return nil
}

// Close closes the pool behind db
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
