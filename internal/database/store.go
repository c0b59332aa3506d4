package database

import (
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/portal-resilience-api/internal/config"
	"github.com/noah-isme/portal-resilience-api/internal/models"
	"github.com/noah-isme/portal-resilience-api/internal/repository"
)

// Migrate creates or updates the record store schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Record{}); err != nil {
		return fmt.Errorf("migrate records: %w", err)
	}
	return nil
}

// OpenRecordStore builds the record store selected by cfg.StoreDriver, wrapped in a
// network gate so the connectivity monitor can take it offline. The returned close
// function releases the underlying connection.
func OpenRecordStore(cfg config.Config, logger zerolog.Logger) (*repository.NetworkGate, func() error, error) {
	var (
		db  *gorm.DB
		err error
	)

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn().Msg("using in-memory record store; data is lost on restart")
		return repository.NewNetworkGate(repository.NewMemoryRecordStore(), logger), func() error { return nil }, nil
	case config.StoreDriverPostgres:
		db, err = ConnectPostgres(cfg.DatabaseURL)
	case config.StoreDriverSQLite:
		db, err = ConnectSQLite(cfg.DatabaseURL)
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
	if err != nil {
		return nil, nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}

	return repository.NewNetworkGate(repository.NewGormRecordStore(db), logger), sqlDB.Close, nil
}
