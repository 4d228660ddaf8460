package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/toonranks/toonranks/internal/models"
	"github.com/toonranks/toonranks/pkg/logging"
)

// Tables lists every model managed by schema initialization
func Tables() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Series{},
		&models.SeriesDetail{},
		&models.UserVote{},
		&models.ReadingList{},
		&models.ReadingListItem{},
		&models.Thread{},
		&models.Post{},
		&models.SeriesRef{},
		&models.Reaction{},
		&models.Media{},
	}
}

// Migrate creates or updates the schema
func (d *DB) Migrate(ctx context.Context) error {
	if err := d.DB.WithContext(ctx).AutoMigrate(Tables()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// MigrateWithRetry runs schema initialization, retrying exactly once after delay.
// A second failure is returned to the caller, which decides whether to continue.
func (d *DB) MigrateWithRetry(ctx context.Context, delay time.Duration) error {
	logger := logging.WithComponent("migrate")

	err := d.Migrate(ctx)
	if err == nil {
		return nil
	}
	logger.Warn("Schema initialization failed, retrying once",
		zap.Error(err), zap.Duration("delay", delay))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
	}

	return d.Migrate(ctx)
}
