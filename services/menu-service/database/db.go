package database

import (
	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/database"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/menu-service/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Connect opens the menu database and migrates the ledger tables.
func Connect(cfg database.PostgresConfig, logger *zap.Logger) (*gorm.DB, error) {
	return database.ConnectPostgres(cfg, logger,
		&models.InventoryRecord{},
		&models.LedgerEntry{},
		&models.MenuPublication{},
	)
}
