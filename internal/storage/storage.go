package storage

import (
	"context"

	"github.com/steveyegge/pnpsetup/internal/events"
	"github.com/steveyegge/pnpsetup/internal/storage/sqlite"
	"github.com/steveyegge/pnpsetup/internal/types"
)

// Storage defines the interface for the setup history backend
type Storage interface {
	// Events - detection, issue transitions and settle calibration
	events.EventStore

	// Event Cleanup - retention policy enforcement
	CleanupEventsByAge(ctx context.Context, retentionDays, criticalRetentionDays, batchSize int) (int, error)
	GetEventCounts(ctx context.Context) (*sqlite.EventCounts, error)
	VacuumDatabase(ctx context.Context) error

	// Calibration History
	RecordCalibration(ctx context.Context, result *types.CalibrationResult) error
	GetCalibrationHistory(ctx context.Context, camera string, limit int) ([]*types.CalibrationResult, error)

	// Lifecycle
	Close() error
}

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	// Default: ".pnpsetup/pnpsetup.db"
	// Special value ":memory:" creates an in-memory database (useful for tests)
	Path string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: ".pnpsetup/pnpsetup.db",
	}
}

// NewStorage creates a new SQLite storage backend
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}
	return sqlite.New(ctx, cfg.Path)
}
