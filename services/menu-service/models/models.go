package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryRecord is the daily counter pair for one food item. SoldQuantity only
// moves through a conditional adjustment, never by assignment.
type InventoryRecord struct {
	ID                uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	MenuDate          string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_inventory_date_item" json:"menu_date"`
	FoodItemID        string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_inventory_date_item" json:"food_item_id"`
	AvailableQuantity int       `gorm:"not null;default:0;check:chk_available_non_negative,available_quantity >= 0" json:"available_quantity"`
	SoldQuantity      int       `gorm:"not null;default:0;check:chk_sold_within_range,sold_quantity >= 0 AND sold_quantity <= available_quantity" json:"sold_quantity"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (r InventoryRecord) Remaining() int {
	return r.AvailableQuantity - r.SoldQuantity
}

// LedgerEntry is one applied adjustment. The unique key makes a replayed
// operation a no-op.
type LedgerEntry struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OperationID string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_ledger_entries_operation" json:"operation_id"`
	MenuDate    string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_ledger_entries_operation;index:idx_ledger_entries_item" json:"menu_date"`
	FoodItemID  string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_ledger_entries_operation;index:idx_ledger_entries_item" json:"food_item_id"`
	OrderID     string    `gorm:"type:varchar(64)" json:"order_id,omitempty"`
	Delta       int       `gorm:"not null" json:"delta"`
	CreatedAt   time.Time `json:"created_at"`
}

type MenuPublication struct {
	MenuDate    string     `gorm:"type:varchar(10);primaryKey" json:"menu_date"`
	IsPublished bool       `gorm:"not null;default:false" json:"is_published"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// SetInventoryRequest sets the authored quantity for a day.
type SetInventoryRequest struct {
	AvailableQuantity *int `json:"available_quantity" binding:"required,gte=0"`
}

type SetPublicationRequest struct {
	IsPublished *bool `json:"is_published" binding:"required"`
}

// AdjustRequest moves sold quantity by Delta (negative releases).
type AdjustRequest struct {
	Date        string `json:"date" binding:"required"`
	FoodItemID  string `json:"food_item_id" binding:"required"`
	Delta       int    `json:"delta" binding:"required"`
	OperationID string `json:"operation_id"`
	OrderID     string `json:"order_id"`
}

type ReserveItem struct {
	FoodItemID string `json:"food_item_id" binding:"required"`
	Quantity   int    `json:"quantity" binding:"required,min=1"`
}

// BatchRequest reserves or releases several items for one order.
type BatchRequest struct {
	Date        string        `json:"date" binding:"required"`
	OrderID     string        `json:"order_id"`
	OperationID string        `json:"operation_id"`
	Items       []ReserveItem `json:"items" binding:"required,min=1,dive"`
}

type AvailabilityResponse struct {
	Date       string `json:"date"`
	FoodItemID string `json:"food_item_id"`
	Quantity   int    `json:"quantity"`
	Available  bool   `json:"available"`
}
