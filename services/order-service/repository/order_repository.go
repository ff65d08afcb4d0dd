package repositories

import (
	"context"
	"errors"

	"github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/models"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/statemachine"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("order not found")
	// ErrStatusConflict means the order left the expected status before the
	// update landed.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// ListFilter narrows order listings. Zero fields match everything.
type ListFilter struct {
	UserID       string
	Status       statemachine.Status
	DeliveryDate string
}

// OrderRepository defines the interface for order data access
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order, change *models.OrderStatusChange) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, filter ListFilter, page, limit int) ([]models.Order, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to statemachine.Status, notes string, change *models.OrderStatusChange) error
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status models.PaymentStatus) error
	History(ctx context.Context, id uuid.UUID) ([]models.OrderStatusChange, error)
}

// GormOrderRepository implements OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new instance of GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) OrderRepository {
	return &GormOrderRepository{db: db}
}

func orderedLines(db *gorm.DB) *gorm.DB {
	return db.Order("order_lines.position ASC")
}

// Create stores the order, its lines and the initial history row together.
func (r *GormOrderRepository) Create(ctx context.Context, order *models.Order, change *models.OrderStatusChange) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		if change == nil {
			return nil
		}
		change.OrderID = order.ID
		return tx.Create(change).Error
	})
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Lines", orderedLines).
		Where("id = ?", id).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// List retrieves orders matching filter with pagination, newest first
func (r *GormOrderRepository) List(ctx context.Context, filter ListFilter, page, limit int) ([]models.Order, int64, error) {
	var orders []models.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Order{})
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.DeliveryDate != "" {
		query = query.Where("delivery_date = ?", filter.DeliveryDate)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.
		Preload("Lines", orderedLines).
		Offset(offset).
		Limit(limit).
		Order("created_at DESC").
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

// UpdateStatus moves the order from one status to another only if it is still
// in from, and appends the history row in the same transaction.
func (r *GormOrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to statemachine.Status, notes string, change *models.OrderStatusChange) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", id, from).
			Updates(map[string]interface{}{"status": to, "notes": notes})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&models.Order{}).Where("id = ?", id).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return ErrNotFound
			}
			return ErrStatusConflict
		}
		if change == nil {
			return nil
		}
		change.OrderID = id
		return tx.Create(change).Error
	})
}

func (r *GormOrderRepository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status models.PaymentStatus) error {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", id).
		Update("payment_status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormOrderRepository) History(ctx context.Context, id uuid.UUID) ([]models.OrderStatusChange, error) {
	var changes []models.OrderStatusChange
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", id).
		Order("created_at ASC").
		Find(&changes).Error; err != nil {
		return nil, err
	}
	return changes, nil
}
