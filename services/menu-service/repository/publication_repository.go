package repository

import (
	"context"
	"errors"
	"time"

	"github.com/AliakbarMohammadi/catring-313-sub001/services/menu-service/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PublicationRepository interface {
	Get(ctx context.Context, date string) (*models.MenuPublication, error)
	Set(ctx context.Context, date string, published bool) (*models.MenuPublication, error)
}

type GormPublicationRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormPublicationRepository(db *gorm.DB) *GormPublicationRepository {
	return &GormPublicationRepository{db: db, now: time.Now}
}

// Get returns an unpublished placeholder when the day was never authored.
func (r *GormPublicationRepository) Get(ctx context.Context, date string) (*models.MenuPublication, error) {
	var pub models.MenuPublication
	err := r.db.WithContext(ctx).First(&pub, "menu_date = ?", date).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.MenuPublication{MenuDate: date}, nil
	}
	if err != nil {
		return nil, err
	}
	return &pub, nil
}

func (r *GormPublicationRepository) Set(ctx context.Context, date string, published bool) (*models.MenuPublication, error) {
	now := r.now()
	pub := models.MenuPublication{MenuDate: date, IsPublished: published, UpdatedAt: now}
	if published {
		pub.PublishedAt = &now
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "menu_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_published", "published_at", "updated_at"}),
	}).Create(&pub).Error
	if err != nil {
		return nil, err
	}
	return &pub, nil
}
