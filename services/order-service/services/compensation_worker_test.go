package services

import (
	"context"
	"testing"

	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/reservation"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newWorker(ledger *memLedger, comps *memCompensations, maxAttempts int) *CompensationWorker {
	coord := reservation.NewCoordinator(ledger, comps, zap.NewNop())
	return NewCompensationWorker(comps, coord, 0, maxAttempts, nil, zap.NewNop())
}

func seedFailure(t *testing.T, comps *memCompensations, item string, delta int, opID string) models.CompensationRecord {
	t.Helper()
	require.NoError(t, comps.Record(context.Background(), reservation.CompensationFailure{
		OrderID: "order-1", Date: tomorrow, FoodItemID: item, Delta: delta, OperationID: opID, Err: errMenuDown,
	}))
	for _, r := range comps.all() {
		if r.FoodItemID == item {
			return r
		}
	}
	t.Fatalf("record for %s not stored", item)
	return models.CompensationRecord{}
}

func TestCompensationWorker_ResolvesDueRecords(t *testing.T) {
	ledger := newMemLedger()
	ledger.set(tomorrow, "A", 10, 3)
	comps := newMemCompensations()
	rec := seedFailure(t, comps, "A", -3, "res-1:release")
	w := newWorker(ledger, comps, 5)

	resolved, failed := w.RunOnce(context.Background())
	assert.Equal(t, 1, resolved)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 0, ledger.sold(tomorrow, "A"))

	stored, err := comps.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CompensationResolved, stored.Status)
	assert.NotNil(t, stored.ResolvedAt)

	// nothing left to do
	resolved, failed = w.RunOnce(context.Background())
	assert.Zero(t, resolved+failed)
}

func TestCompensationWorker_ReplayIsIdempotent(t *testing.T) {
	ledger := newMemLedger()
	ledger.set(tomorrow, "A", 10, 3)
	comps := newMemCompensations()
	// the release landed but its response was lost
	require.NoError(t, ledger.AdjustSold(context.Background(), reservation.AdjustRequest{
		Date: tomorrow, FoodItemID: "A", Delta: -3, OperationID: "res-1:release",
	}))
	seedFailure(t, comps, "A", -3, "res-1:release")

	resolved, _ := newWorker(ledger, comps, 5).RunOnce(context.Background())
	assert.Equal(t, 1, resolved)
	assert.Equal(t, 0, ledger.sold(tomorrow, "A"))
}

func TestCompensationWorker_AbandonsAfterMaxAttempts(t *testing.T) {
	ledger := newMemLedger()
	ledger.set(tomorrow, "A", 10, 3)
	ledger.fail["A-"] = errMenuDown
	comps := newMemCompensations()
	rec := seedFailure(t, comps, "A", -3, "res-1:release")
	w := newWorker(ledger, comps, 2)

	_, failed := w.RunOnce(context.Background())
	assert.Equal(t, 1, failed)
	stored, _ := comps.Get(context.Background(), rec.ID)
	assert.Equal(t, models.CompensationPending, stored.Status)
	assert.Equal(t, 1, stored.Attempts)

	w.RunOnce(context.Background())
	stored, _ = comps.Get(context.Background(), rec.ID)
	assert.Equal(t, models.CompensationAbandoned, stored.Status)
	assert.Equal(t, 2, stored.Attempts)
	assert.Equal(t, errMenuDown.Error(), stored.LastError)

	resolved, failed := w.RunOnce(context.Background())
	assert.Zero(t, resolved+failed)
}

func TestCompensationWorker_RefusalAbandonsImmediately(t *testing.T) {
	ledger := newMemLedger()
	comps := newMemCompensations()
	// no ledger row: the menu refuses with RECORD_NOT_FOUND
	rec := seedFailure(t, comps, "GONE", -1, "res-1:release")

	_, failed := newWorker(ledger, comps, 10).RunOnce(context.Background())
	assert.Equal(t, 1, failed)
	stored, _ := comps.Get(context.Background(), rec.ID)
	assert.Equal(t, models.CompensationAbandoned, stored.Status)
}

func TestCompensationWorker_ManualRetry(t *testing.T) {
	ledger := newMemLedger()
	ledger.set(tomorrow, "A", 10, 3)
	ledger.fail["A-"] = errMenuDown
	comps := newMemCompensations()
	rec := seedFailure(t, comps, "A", -3, "res-1:release")
	w := newWorker(ledger, comps, 1)

	w.RunOnce(context.Background())
	stored, _ := comps.Get(context.Background(), rec.ID)
	require.Equal(t, models.CompensationAbandoned, stored.Status)

	// still failing: manual retries never abandon (it already is) and report the error
	_, err := w.Retry(context.Background(), rec.ID)
	assert.ErrorIs(t, err, errMenuDown)

	delete(ledger.fail, "A-")
	got, err := w.Retry(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CompensationResolved, got.Status)
	assert.Equal(t, 0, ledger.sold(tomorrow, "A"))

	// resolved records are returned untouched
	adjusts := ledger.adjustCount()
	got, err = w.Retry(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CompensationResolved, got.Status)
	assert.Equal(t, adjusts, ledger.adjustCount())
}

func TestCompensationWorker_StartStopsOnCancel(t *testing.T) {
	w := newWorker(newMemLedger(), newMemCompensations(), 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	cancel()
	<-done
}
