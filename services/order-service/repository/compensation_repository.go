package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/reservation"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrCompensationNotFound = errors.New("compensation record not found")

// CompensationRepository is the dead-letter store for ledger adjustments that
// could not be applied. It doubles as the coordinator's failure sink.
type CompensationRepository interface {
	reservation.FailureSink
	Get(ctx context.Context, id uuid.UUID) (*models.CompensationRecord, error)
	List(ctx context.Context, status string, limit int) ([]models.CompensationRecord, error)
	// Due returns pending records that have been attempted fewer than maxAttempts times.
	Due(ctx context.Context, maxAttempts, limit int) ([]models.CompensationRecord, error)
	MarkResolved(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause error, abandon bool) error
}

type GormCompensationRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormCompensationRepository(db *gorm.DB) *GormCompensationRepository {
	return &GormCompensationRepository{db: db, now: time.Now}
}

// Record upserts on the operation key so a failure seen twice stays one row.
func (r *GormCompensationRepository) Record(ctx context.Context, f reservation.CompensationFailure) error {
	rec := models.CompensationRecord{
		OrderID:     f.OrderID,
		MenuDate:    f.Date,
		FoodItemID:  f.FoodItemID,
		Delta:       f.Delta,
		OperationID: f.OperationID,
		Status:      models.CompensationPending,
	}
	if f.Err != nil {
		rec.LastError = f.Err.Error()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "menu_date"}, {Name: "food_item_id"}, {Name: "operation_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":     models.CompensationPending,
			"last_error": rec.LastError,
			"updated_at": r.now(),
		}),
	}).Create(&rec).Error
}

func (r *GormCompensationRepository) Get(ctx context.Context, id uuid.UUID) (*models.CompensationRecord, error) {
	var rec models.CompensationRecord
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCompensationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *GormCompensationRepository) List(ctx context.Context, status string, limit int) ([]models.CompensationRecord, error) {
	var recs []models.CompensationRecord
	query := r.db.WithContext(ctx).Model(&models.CompensationRecord{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Order("created_at ASC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *GormCompensationRepository) Due(ctx context.Context, maxAttempts, limit int) ([]models.CompensationRecord, error) {
	var recs []models.CompensationRecord
	if err := r.db.WithContext(ctx).
		Where("status = ? AND attempts < ?", models.CompensationPending, maxAttempts).
		Order("created_at ASC").
		Limit(limit).
		Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *GormCompensationRepository) MarkResolved(ctx context.Context, id uuid.UUID) error {
	now := r.now()
	return r.update(ctx, id, map[string]interface{}{
		"status":      models.CompensationResolved,
		"attempts":    gorm.Expr("attempts + 1"),
		"resolved_at": now,
		"last_error":  "",
	})
}

func (r *GormCompensationRepository) MarkFailed(ctx context.Context, id uuid.UUID, cause error, abandon bool) error {
	fields := map[string]interface{}{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": cause.Error(),
	}
	if abandon {
		fields["status"] = models.CompensationAbandoned
	}
	return r.update(ctx, id, fields)
}

func (r *GormCompensationRepository) update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.CompensationRecord{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCompensationNotFound
	}
	return nil
}
