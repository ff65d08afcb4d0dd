package repository

import (
	"context"
	"errors"

	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/reservation"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/menu-service/models"
)

var (
	ErrNotFound             = reservation.ErrRecordNotFound
	ErrInsufficientQuantity = reservation.ErrInsufficientQuantity
	// ErrBelowSold rejects lowering available quantity under what is already sold.
	ErrBelowSold = errors.New("available quantity is below sold quantity")
)

// LedgerRepository stores daily inventory counters. AdjustSold is the only way
// sold quantity changes and must be a single conditional update per row.
type LedgerRepository interface {
	Get(ctx context.Context, date, foodItemID string) (*models.InventoryRecord, error)
	ListByDate(ctx context.Context, date string) ([]models.InventoryRecord, error)
	SetAvailable(ctx context.Context, date, foodItemID string, available int) (*models.InventoryRecord, error)
	AdjustSold(ctx context.Context, req reservation.AdjustRequest) error
	Entries(ctx context.Context, date, foodItemID string) ([]models.LedgerEntry, error)
}
