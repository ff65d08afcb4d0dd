package main

import (
	"context"

	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/reservation"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/menu-service/models"
	"go.uber.org/zap"
)

type ledgerWriter interface {
	SetAvailable(ctx context.Context, date, foodItemID string, available int) (*models.InventoryRecord, error)
	AdjustSold(ctx context.Context, req reservation.AdjustRequest) error
}

// migrationOperationID keys the sold quantity copy so a rerun does not add it twice.
func migrationOperationID(rec models.InventoryRecord) string {
	return "migration:" + rec.MenuDate + ":" + rec.FoodItemID
}

// migrate writes the authored quantity first and then carries the sold
// quantity over as one deduplicated adjustment.
func migrate(ctx context.Context, recs []models.InventoryRecord, dst ledgerWriter, log *zap.Logger) (copied, failed int) {
	for _, rec := range recs {
		l := log.With(zap.String("menu_date", rec.MenuDate), zap.String("food_item_id", rec.FoodItemID))

		if _, err := dst.SetAvailable(ctx, rec.MenuDate, rec.FoodItemID, rec.AvailableQuantity); err != nil {
			l.Error("failed to write inventory row", zap.Error(err))
			failed++
			continue
		}
		if rec.SoldQuantity > 0 {
			err := dst.AdjustSold(ctx, reservation.AdjustRequest{
				Date:        rec.MenuDate,
				FoodItemID:  rec.FoodItemID,
				Delta:       rec.SoldQuantity,
				OperationID: migrationOperationID(rec),
			})
			if err != nil {
				l.Error("failed to carry sold quantity", zap.Int("sold_quantity", rec.SoldQuantity), zap.Error(err))
				failed++
				continue
			}
		}
		copied++
		if copied%100 == 0 {
			log.Info("migration progress", zap.Int("copied", copied))
		}
	}
	return copied, failed
}
