package services

import (
	"context"

	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/reservation"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/menu-service/models"
	"go.uber.org/zap"
)

// localLedger joins the oracle and the ledger service so the batch endpoints run
// the same coordinator the order service uses remotely.
type localLedger struct {
	oracle *AvailabilityOracle
	ledger *LedgerService
}

func (l localLedger) CheckAvailability(ctx context.Context, date, foodItemID string, quantity int) (bool, error) {
	return l.oracle.CheckAvailability(ctx, date, foodItemID, quantity)
}

func (l localLedger) AdjustSold(ctx context.Context, req reservation.AdjustRequest) error {
	return l.ledger.AdjustSold(ctx, req)
}

// ReservationService serves multi-item reserve and release requests.
type ReservationService struct {
	coordinator *reservation.Coordinator
}

func NewReservationService(oracle *AvailabilityOracle, ledger *LedgerService, logger *zap.Logger) *ReservationService {
	return &ReservationService{
		coordinator: reservation.NewCoordinator(localLedger{oracle: oracle, ledger: ledger}, nil, logger),
	}
}

func toRequest(req models.BatchRequest) reservation.Request {
	items := make([]reservation.Item, len(req.Items))
	for i, it := range req.Items {
		items[i] = reservation.Item{FoodItemID: it.FoodItemID, Quantity: it.Quantity}
	}
	return reservation.Request{OrderID: req.OrderID, OperationID: req.OperationID, Date: req.Date, Items: items}
}

func (s *ReservationService) Reserve(ctx context.Context, req models.BatchRequest) (reservation.Result, error) {
	return s.coordinator.Reserve(ctx, toRequest(req))
}

func (s *ReservationService) Release(ctx context.Context, req models.BatchRequest) ([]reservation.CompensationFailure, error) {
	return s.coordinator.Release(ctx, toRequest(req))
}
