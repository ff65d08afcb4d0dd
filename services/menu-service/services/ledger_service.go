package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	awspkg "github.com/AliakbarMohammadi/catring-313-sub001/pkg/aws"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/dates"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/reservation"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/menu-service/models"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/menu-service/repository"
	"go.uber.org/zap"
)

var (
	ErrInvalidDate     = errors.New("invalid menu date")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidDelta    = errors.New("delta must be non-zero")
	ErrMissingItem     = errors.New("food_item_id is required")
)

// LedgerService owns the daily inventory counters and menu publication.
type LedgerService struct {
	ledger  repository.LedgerRepository
	pubs    repository.PublicationRepository
	metrics awspkg.MetricsRecorder
	logger  *zap.Logger
}

func NewLedgerService(ledger repository.LedgerRepository, pubs repository.PublicationRepository, metrics awspkg.MetricsRecorder, logger *zap.Logger) *LedgerService {
	return &LedgerService{ledger: ledger, pubs: pubs, metrics: metrics, logger: logger}
}

func parseDate(date string) (string, error) {
	d, err := dates.Parse(date)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	return d, nil
}

func (s *LedgerService) GetRecord(ctx context.Context, date, foodItemID string) (*models.InventoryRecord, error) {
	d, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	return s.ledger.Get(ctx, d, foodItemID)
}

func (s *LedgerService) ListInventory(ctx context.Context, date string) ([]models.InventoryRecord, error) {
	d, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	return s.ledger.ListByDate(ctx, d)
}

// SetInventory sets the authored available quantity. Sold quantity is untouched.
func (s *LedgerService) SetInventory(ctx context.Context, date, foodItemID string, available int) (*models.InventoryRecord, error) {
	d, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	if foodItemID == "" {
		return nil, ErrMissingItem
	}
	if available < 0 {
		return nil, fmt.Errorf("available quantity must not be negative")
	}

	rec, err := s.ledger.SetAvailable(ctx, d, foodItemID, available)
	if err != nil {
		return nil, err
	}
	s.logger.Info("inventory set",
		zap.String("menu_date", d),
		zap.String("food_item_id", foodItemID),
		zap.Int("available_quantity", rec.AvailableQuantity),
		zap.Int("sold_quantity", rec.SoldQuantity),
	)
	return rec, nil
}

// AdjustSold moves sold quantity by req.Delta through the ledger's conditional
// update. It is the only write path for sold quantity.
func (s *LedgerService) AdjustSold(ctx context.Context, req reservation.AdjustRequest) error {
	d, err := parseDate(req.Date)
	if err != nil {
		return err
	}
	if req.FoodItemID == "" {
		return ErrMissingItem
	}
	if req.Delta == 0 {
		return ErrInvalidDelta
	}
	req.Date = d

	start := time.Now()
	err = s.ledger.AdjustSold(ctx, req)
	fields := []zap.Field{
		zap.String("menu_date", req.Date),
		zap.String("food_item_id", req.FoodItemID),
		zap.Int("delta", req.Delta),
		zap.String("operation_id", req.OperationID),
		zap.String("order_id", req.OrderID),
	}
	if err != nil {
		if reservation.IsRefusal(err) {
			s.logger.Info("adjustment refused", append(fields, zap.Error(err))...)
			s.record(awspkg.MetricInventoryUnavailable, req.FoodItemID, 1)
		} else {
			s.logger.Error("adjustment failed", append(fields, zap.Error(err))...)
		}
		return err
	}

	s.logger.Info("adjustment applied", append(fields, zap.Duration("latency", time.Since(start)))...)
	if req.Delta > 0 {
		s.record(awspkg.MetricInventoryReserved, req.FoodItemID, float64(req.Delta))
	} else {
		s.record(awspkg.MetricInventoryReleased, req.FoodItemID, float64(-req.Delta))
	}
	return nil
}

func (s *LedgerService) Entries(ctx context.Context, date, foodItemID string) ([]models.LedgerEntry, error) {
	d, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	return s.ledger.Entries(ctx, d, foodItemID)
}

func (s *LedgerService) GetPublication(ctx context.Context, date string) (*models.MenuPublication, error) {
	d, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	return s.pubs.Get(ctx, d)
}

func (s *LedgerService) SetPublication(ctx context.Context, date string, published bool) (*models.MenuPublication, error) {
	d, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	pub, err := s.pubs.Set(ctx, d, published)
	if err != nil {
		return nil, err
	}
	s.logger.Info("menu publication changed", zap.String("menu_date", d), zap.Bool("is_published", published))
	return pub, nil
}

func (s *LedgerService) record(metric, foodItemID string, value float64) {
	if s.metrics == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.metrics.RecordValue(ctx, metric, value, map[string]string{"Service": "menu-service", "FoodItemID": foodItemID})
	}()
}
