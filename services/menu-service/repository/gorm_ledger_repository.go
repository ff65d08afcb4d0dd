package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/reservation"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/menu-service/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const insertLedgerEntry = `INSERT INTO ledger_entries (id, operation_id, menu_date, food_item_id, order_id, delta, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (operation_id, menu_date, food_item_id) DO NOTHING`

const reverseLedgerEntry = `UPDATE ledger_entries SET operation_id = ?
WHERE operation_id = ? AND menu_date = ? AND food_item_id = ?`

// GormLedgerRepository keeps the ledger in Postgres.
type GormLedgerRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db, now: time.Now}
}

func (r *GormLedgerRepository) Get(ctx context.Context, date, foodItemID string) (*models.InventoryRecord, error) {
	var rec models.InventoryRecord
	err := r.db.WithContext(ctx).
		Where("menu_date = ? AND food_item_id = ?", date, foodItemID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *GormLedgerRepository) ListByDate(ctx context.Context, date string) ([]models.InventoryRecord, error) {
	var recs []models.InventoryRecord
	err := r.db.WithContext(ctx).
		Where("menu_date = ?", date).
		Order("food_item_id").
		Find(&recs).Error
	return recs, err
}

// SetAvailable creates or updates the authored quantity. The row is locked so a
// concurrent reservation cannot slip under the new value.
func (r *GormLedgerRepository) SetAvailable(ctx context.Context, date, foodItemID string, available int) (*models.InventoryRecord, error) {
	var rec models.InventoryRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("menu_date = ? AND food_item_id = ?", date, foodItemID).
			First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rec = models.InventoryRecord{MenuDate: date, FoodItemID: foodItemID, AvailableQuantity: available}
			return tx.Create(&rec).Error
		}
		if err != nil {
			return err
		}
		if available < rec.SoldQuantity {
			return fmt.Errorf("%w: sold %d, requested %d", ErrBelowSold, rec.SoldQuantity, available)
		}
		rec.AvailableQuantity = available
		return tx.Model(&rec).Update("available_quantity", available).Error
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// AdjustSold applies req.Delta with one conditional UPDATE. When an operation id
// is present the entry log is written in the same transaction; a conflicting
// entry means the operation was already applied and nothing changes.
//
// A compensation id reverses the live entry of the operation it names instead.
// The forward entry is renamed out of the way so a retry of that operation
// applies again; with no live forward entry the compensation is a no-op.
func (r *GormLedgerRepository) AdjustSold(ctx context.Context, req reservation.AdjustRequest) error {
	if req.Delta == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.now()
		if base, ok := reservation.ReversedOperationID(req.OperationID); ok {
			return r.reverse(tx, req, base, now)
		}
		if req.OperationID != "" {
			res := tx.Exec(insertLedgerEntry, uuid.New(), req.OperationID, req.Date, req.FoodItemID, req.OrderID, req.Delta, now)
			if res.Error != nil {
				return fmt.Errorf("record ledger entry: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return nil
			}
		}
		return applyDelta(tx, req, now)
	})
}

func (r *GormLedgerRepository) reverse(tx *gorm.DB, req reservation.AdjustRequest, base string, now time.Time) error {
	entryID := uuid.New()
	res := tx.Exec(reverseLedgerEntry, base+":reversed:"+entryID.String(), base, req.Date, req.FoodItemID)
	if res.Error != nil {
		return fmt.Errorf("reverse ledger entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}
	if err := applyDelta(tx, req, now); err != nil {
		return err
	}
	res = tx.Exec(insertLedgerEntry, entryID, req.OperationID+":"+entryID.String(), req.Date, req.FoodItemID, req.OrderID, req.Delta, now)
	if res.Error != nil {
		return fmt.Errorf("record ledger entry: %w", res.Error)
	}
	return nil
}

func applyDelta(tx *gorm.DB, req reservation.AdjustRequest, now time.Time) error {
	q := tx.Model(&models.InventoryRecord{}).
		Where("menu_date = ? AND food_item_id = ?", req.Date, req.FoodItemID)
	if req.Delta > 0 {
		q = q.Where("available_quantity - sold_quantity >= ?", req.Delta)
	} else {
		q = q.Where("sold_quantity + ? >= 0", req.Delta)
	}
	res := q.Updates(map[string]interface{}{
		"sold_quantity": gorm.Expr("sold_quantity + ?", req.Delta),
		"updated_at":    now,
	})
	if res.Error != nil {
		return fmt.Errorf("adjust sold quantity: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := tx.Model(&models.InventoryRecord{}).
		Where("menu_date = ? AND food_item_id = ?", req.Date, req.FoodItemID).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrInsufficientQuantity
}

func (r *GormLedgerRepository) Entries(ctx context.Context, date, foodItemID string) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("menu_date = ? AND food_item_id = ?", date, foodItemID).
		Order("created_at").
		Find(&entries).Error
	return entries, err
}
