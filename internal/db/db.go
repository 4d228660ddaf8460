package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/toonranks/toonranks/pkg/config"
	"github.com/toonranks/toonranks/pkg/logging"
)

// zapWriter adapts zap.Logger to logger.Writer interface
type zapWriter struct {
	logger *zap.Logger
}

func (w *zapWriter) Printf(format string, args ...interface{}) {
	w.logger.Sugar().Infof(format, args...)
}

// DB wraps GORM database connection
type DB struct {
	*gorm.DB
}

// Dialector picks the GORM dialector from the database URL scheme.
// sqlite://path selects the embedded driver, anything else is handed to postgres.
func Dialector(url string) gorm.Dialector {
	if path, ok := strings.CutPrefix(url, "sqlite://"); ok {
		return sqlite.Open(SQLiteDSN(path))
	}
	return postgres.Open(url)
}

// SQLiteDSN turns a file path into a DSN with foreign keys enforced and a busy
// timeout, both of which SQLite applies per connection.
func SQLiteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func gormLogLevel(logLevel string) logger.LogLevel {
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		return logger.Info
	case "INFO":
		return logger.Warn
	case "WARN", "WARNING":
		return logger.Error
	case "ERROR":
		return logger.Silent
	default:
		return logger.Warn
	}
}

// Open opens a GORM connection on the given dialector with the shared settings
func Open(dialector gorm.Dialector, logLevel string) (*DB, error) {
	gormLogger := logger.New(
		&zapWriter{logger: logging.WithComponent("gorm")},
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogLevel(logLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &DB{DB: db}, nil
}

// New creates a new database connection
func New(cfg *config.DatabaseConfig, logLevel string) (*DB, error) {
	database, err := Open(Dialector(cfg.URL), logLevel)
	if err != nil {
		return nil, err
	}

	sqlDB, err := database.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logging.GetLogger().Info("Database connection established",
		zap.String("dialect", database.Dialector.Name()))

	return database, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health checks database health
func (d *DB) Health(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
