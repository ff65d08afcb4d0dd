package database

import (
	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/database"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Connect opens the order database and migrates orders, their status history
// and the compensation dead-letter store.
func Connect(cfg database.PostgresConfig, logger *zap.Logger) (*gorm.DB, error) {
	return database.ConnectPostgres(cfg, logger,
		&models.Order{},
		&models.OrderLine{},
		&models.OrderStatusChange{},
		&models.CompensationRecord{},
	)
}
