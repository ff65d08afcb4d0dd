package models

import (
	"time"

	"github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/statemachine"
	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Order amounts are in minor units. FinalAmount = TotalAmount - DiscountAmount.
type Order struct {
	ID             uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID         string              `gorm:"type:varchar(64);not null;index" json:"user_id"`
	DeliveryDate   string              `gorm:"type:varchar(10);not null;index" json:"delivery_date"`
	TotalAmount    int                 `gorm:"not null" json:"total_amount"`
	DiscountAmount int                 `gorm:"not null;default:0" json:"discount_amount"`
	FinalAmount    int                 `gorm:"not null;check:chk_orders_final_non_negative,final_amount >= 0" json:"final_amount"`
	Status         statemachine.Status `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PaymentStatus  PaymentStatus       `gorm:"type:varchar(20);not null;default:'pending'" json:"payment_status"`
	Notes          string              `gorm:"type:text" json:"notes,omitempty"`
	// ReservationID is the ledger operation id of the reservation that backs
	// this order's lines.
	ReservationID string      `gorm:"type:varchar(64);not null" json:"reservation_id"`
	CreatedAt     time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
	Lines         []OrderLine `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"lines"`
}

type OrderLine struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID    uuid.UUID `gorm:"type:uuid;not null;index" json:"order_id"`
	Position   int       `gorm:"not null" json:"position"`
	FoodItemID string    `gorm:"type:varchar(64);not null" json:"food_item_id"`
	Quantity   int       `gorm:"not null" json:"quantity"`
	UnitPrice  int       `gorm:"not null" json:"unit_price"`
	TotalPrice int       `gorm:"not null" json:"total_price"`
}

// OrderStatusChange is one committed transition.
type OrderStatusChange struct {
	ID         uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID    uuid.UUID           `gorm:"type:uuid;not null;index" json:"order_id"`
	FromStatus statemachine.Status `gorm:"type:varchar(20)" json:"from_status,omitempty"`
	ToStatus   statemachine.Status `gorm:"type:varchar(20);not null" json:"to_status"`
	Reason     string              `gorm:"type:text" json:"reason,omitempty"`
	Actor      string              `gorm:"type:varchar(64)" json:"actor"`
	CreatedAt  time.Time           `gorm:"autoCreateTime" json:"created_at"`
}

const (
	CompensationPending   = "pending"
	CompensationResolved  = "resolved"
	CompensationAbandoned = "abandoned"
)

// CompensationRecord is a ledger adjustment that failed and still has to be
// applied. Replays reuse OperationID so the ledger drops duplicates.
type CompensationRecord struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID     string     `gorm:"type:varchar(64);index" json:"order_id"`
	MenuDate    string     `gorm:"type:varchar(10);not null;uniqueIndex:idx_compensation_operation" json:"menu_date"`
	FoodItemID  string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_compensation_operation" json:"food_item_id"`
	Delta       int        `gorm:"not null" json:"delta"`
	OperationID string     `gorm:"type:varchar(128);not null;uniqueIndex:idx_compensation_operation" json:"operation_id"`
	Status      string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Attempts    int        `gorm:"not null;default:0" json:"attempts"`
	LastError   string     `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

type CreateOrderLine struct {
	FoodItemID string `json:"food_item_id" binding:"required"`
	Quantity   int    `json:"quantity" binding:"required,min=1"`
	UnitPrice  int    `json:"unit_price" binding:"required,min=1"`
}

type CreateOrderRequest struct {
	DeliveryDate   string            `json:"delivery_date" binding:"required"`
	Items          []CreateOrderLine `json:"items" binding:"required,min=1,dive"`
	DiscountAmount int               `json:"discount_amount" binding:"gte=0"`
	Notes          string            `json:"notes"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason"`
}
