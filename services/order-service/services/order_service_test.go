package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/auth"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/models"
	repositories "github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/repository"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/statemachine"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	customer = auth.Identity{UserID: "user-1", Role: auth.RoleCustomer}
	stranger = auth.Identity{UserID: "user-2", Role: auth.RoleCustomer}
	staff    = auth.Identity{UserID: "staff-1", Role: auth.RoleStaff}
)

func orderReq(date string, lines ...models.CreateOrderLine) *models.CreateOrderRequest {
	return &models.CreateOrderRequest{DeliveryDate: date, Items: lines}
}

func line(item string, qty, price int) models.CreateOrderLine {
	return models.CreateOrderLine{FoodItemID: item, Quantity: qty, UnitPrice: price}
}

func TestCreateOrder_ReservesThenStores(t *testing.T) {
	h := newHarness(t)
	h.ledger.set(tomorrow, "X", 5, 0)

	order, replayed, err := h.svc.CreateOrder(context.Background(), "user-1", "", orderReq(tomorrow, line("X", 5, 1000)))
	require.Nil(t, err)
	assert.False(t, replayed)

	assert.Equal(t, statemachine.Pending, order.Status)
	assert.Equal(t, models.PaymentPending, order.PaymentStatus)
	assert.Equal(t, 5000, order.TotalAmount)
	assert.Equal(t, 5000, order.FinalAmount)
	assert.NotEmpty(t, order.ReservationID)
	assert.Equal(t, 5, h.ledger.sold(tomorrow, "X"))

	stored := h.orders.get(order.ID)
	require.Len(t, stored.Lines, 1)
	assert.Equal(t, 5000, stored.Lines[0].TotalPrice)

	history, herr := h.svc.History(context.Background(), customer, order.ID)
	require.Nil(t, herr)
	require.Len(t, history, 1)
	assert.Equal(t, statemachine.Pending, history[0].ToStatus)

	assert.Equal(t, []string{models.EventOrderCreated}, h.events.types())
}

func TestCreateOrder_LastUnitGoesToFirstOrder(t *testing.T) {
	h := newHarness(t)
	h.ledger.set(tomorrow, "X", 5, 0)

	_, _, err := h.svc.CreateOrder(context.Background(), "user-1", "", orderReq(tomorrow, line("X", 5, 1000)))
	require.Nil(t, err)

	_, _, err = h.svc.CreateOrder(context.Background(), "user-2", "", orderReq(tomorrow, line("X", 1, 1000)))
	require.NotNil(t, err)
	assert.Equal(t, http.StatusConflict, err.Status)
	assert.Equal(t, CodeItemsUnavailable, err.Code)
	assert.Equal(t, 5, h.ledger.sold(tomorrow, "X"))
	assert.Len(t, h.orders.orders, 1)
}

func TestCreateOrder_ConcurrentOrdersNeverOversell(t *testing.T) {
	h := newHarness(t)
	h.ledger.set(tomorrow, "X", 1, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := h.svc.CreateOrder(context.Background(), uuid.NewString(), "", orderReq(tomorrow, line("X", 1, 500)))
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, h.ledger.sold(tomorrow, "X"))
}

func TestCreateOrder_UnavailableItemCommitsNothing(t *testing.T) {
	h := newHarness(t)
	h.ledger.set(tomorrow, "A", 10, 0)
	h.ledger.set(tomorrow, "B", 1, 0)

	_, _, err := h.svc.CreateOrder(context.Background(), "user-1", "", orderReq(tomorrow, line("A", 3, 100), line("B", 2, 100)))
	require.NotNil(t, err)
	assert.Equal(t, CodeItemsUnavailable, err.Code)
	assert.Equal(t, 0, h.ledger.sold(tomorrow, "A"))
	assert.Equal(t, 0, h.ledger.sold(tomorrow, "B"))
	assert.Equal(t, 0, h.ledger.adjustCount())
}

func TestCreateOrder_Validation(t *testing.T) {
	h := newHarness(t)
	h.ledger.set(tomorrow, "A", 10, 0)

	tests := []struct {
		name string
		req  *models.CreateOrderRequest
	}{
		{"no items", orderReq(tomorrow)},
		{"bad date", orderReq("11/03/2026", line("A", 1, 100))},
		{"past date", orderReq("2026-03-09", line("A", 1, 100))},
		{"zero price", orderReq(tomorrow, line("A", 1, 0))},
		{"zero quantity", orderReq(tomorrow, line("A", 0, 100))},
		{"duplicate item", orderReq(tomorrow, line("A", 1, 100), line("A", 2, 100))},
		{"discount above total", &models.CreateOrderRequest{DeliveryDate: tomorrow, Items: []models.CreateOrderLine{line("A", 1, 100)}, DiscountAmount: 101}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := h.svc.CreateOrder(context.Background(), "user-1", "", tt.req)
			require.NotNil(t, err)
			assert.Equal(t, http.StatusBadRequest, err.Status)
		})
	}
	assert.Equal(t, 0, h.ledger.adjustCount())
}

func TestCreateOrder_DiscountApplied(t *testing.T) {
	h := newHarness(t)
	h.ledger.set(today, "A", 10, 0)

	order, _, err := h.svc.CreateOrder(context.Background(), "user-1", "", &models.CreateOrderRequest{
		DeliveryDate:   today,
		Items:          []models.CreateOrderLine{line("A", 2, 1500)},
		DiscountAmount: 500,
	})
	require.Nil(t, err)
	assert.Equal(t, 3000, order.TotalAmount)
	assert.Equal(t, 500, order.DiscountAmount)
	assert.Equal(t, 2500, order.FinalAmount)
}

func TestCreateOrder_StoreFailureReleasesReservation(t *testing.T) {
	h := newHarness(t)
	h.ledger.set(tomorrow, "A", 10, 0)
	h.ledger.set(tomorrow, "B", 10, 0)
	h.orders.createErr = errors.New("connection refused")

	_, _, err := h.svc.CreateOrder(context.Background(), "user-1", "", orderReq(tomorrow, line("A", 3, 100), line("B", 2, 100)))
	require.NotNil(t, err)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.Equal(t, 0, h.ledger.sold(tomorrow, "A"))
	assert.Equal(t, 0, h.ledger.sold(tomorrow, "B"))
	assert.Empty(t, h.comps.all())
}

func TestCreateOrder_LedgerOutageIsRetryable(t *testing.T) {
	h := newHarness(t)
	h.ledger.set(tomorrow, "A", 10, 0)
	h.ledger.set(tomorrow, "B", 10, 0)
	h.ledger.fail["B+"] = errMenuDown

	_, _, err := h.svc.CreateOrder(context.Background(), "user-1", "", orderReq(tomorrow, line("A", 3, 100), line("B", 2, 100)))
	require.NotNil(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, err.Status)
	assert.Equal(t, CodeInventoryUnavailable, err.Code)
	// the committed prefix was reversed
	assert.Equal(t, 0, h.ledger.sold(tomorrow, "A"))
	assert.Empty(t, h.orders.orders)
}

func TestCreateOrder_IdempotencyKeyReplaysOrder(t *testing.T) {
	h := newHarness(t)
	h.ledger.set(tomorrow, "A", 10, 0)

	first, replayed, err := h.svc.CreateOrder(context.Background(), "user-1", "key-1", orderReq(tomorrow, line("A", 2, 100)))
	require.Nil(t, err)
	assert.False(t, replayed)

	second, replayed, err := h.svc.CreateOrder(context.Background(), "user-1", "key-1", orderReq(tomorrow, line("A", 2, 100)))
	require.Nil(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, h.ledger.sold(tomorrow, "A"))
}

func TestCreateOrder_FailedAttemptFreesIdempotencyKey(t *testing.T) {
	h := newHarness(t)
	h.ledger.set(tomorrow, "A", 1, 0)

	_, _, err := h.svc.CreateOrder(context.Background(), "user-1", "key-1", orderReq(tomorrow, line("A", 2, 100)))
	require.NotNil(t, err)

	h.ledger.set(tomorrow, "A", 5, 0)
	order, replayed, err := h.svc.CreateOrder(context.Background(), "user-1", "key-1", orderReq(tomorrow, line("A", 2, 100)))
	require.Nil(t, err)
	assert.False(t, replayed)
	assert.NotNil(t, order)
}

func placeOrder(t *testing.T, h *harness, lines ...models.CreateOrderLine) *models.Order {
	t.Helper()
	order, _, err := h.svc.CreateOrder(context.Background(), customer.UserID, "", orderReq(tomorrow, lines...))
	require.Nil(t, err)
	return order
}

func TestCancelOrder_ReleasesEveryLine(t *testing.T) {
	h := newHarness(t)
	h.ledger.set(tomorrow, "A", 10, 2)
	h.ledger.set(tomorrow, "B", 10, 2)
	order := placeOrder(t, h, line("A", 3, 100), line("B", 2, 100))
	require.Equal(t, 5, h.ledger.sold(tomorrow, "A"))
	require.Equal(t, 4, h.ledger.sold(tomorrow, "B"))

	res, err := h.svc.CancelOrder(context.Background(), customer, order.ID, "changed plans")
	require.Nil(t, err)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, statemachine.Cancelled, res.Order.Status)
	assert.Equal(t, "Cancelled: changed plans", res.Order.Notes)

	assert.Equal(t, 2, h.ledger.sold(tomorrow, "A"))
	assert.Equal(t, 2, h.ledger.sold(tomorrow, "B"))

	stored := h.orders.get(order.ID)
	assert.Equal(t, statemachine.Cancelled, stored.Status)
	assert.Equal(t, "Cancelled: changed plans", stored.Notes)

	history, _ := h.svc.History(context.Background(), customer, order.ID)
	require.Len(t, history, 2)
	assert.Equal(t, statemachine.Pending, history[1].FromStatus)
	assert.Equal(t, statemachine.Cancelled, history[1].ToStatus)
	assert.Equal(t, "changed plans", history[1].Reason)
}

func TestCancelOrder_ReleasesFromEveryCancellableStatus(t *testing.T) {
	paths := map[statemachine.Status][]statemachine.Status{
		statemachine.Pending:   nil,
		statemachine.Confirmed: {statemachine.Confirmed},
		statemachine.Preparing: {statemachine.Confirmed, statemachine.Preparing},
	}
	for source, path := range paths {
		t.Run(string(source), func(t *testing.T) {
			h := newHarness(t)
			h.ledger.set(tomorrow, "A", 10, 2)
			h.ledger.set(tomorrow, "B", 10, 2)
			order := placeOrder(t, h, line("A", 3, 100), line("B", 2, 100))
			for _, to := range path {
				_, err := h.svc.UpdateOrderStatus(context.Background(), staff, order.ID, string(to), "")
				require.Nil(t, err)
			}
			require.Equal(t, source, h.orders.get(order.ID).Status)
			require.Equal(t, 5, h.ledger.sold(tomorrow, "A"))
			require.Equal(t, 4, h.ledger.sold(tomorrow, "B"))

			res, err := h.svc.CancelOrder(context.Background(), customer, order.ID, "")
			require.Nil(t, err)
			assert.Empty(t, res.Warnings)
			assert.Equal(t, statemachine.Cancelled, h.orders.get(order.ID).Status)
			assert.Equal(t, 2, h.ledger.sold(tomorrow, "A"))
			assert.Equal(t, 2, h.ledger.sold(tomorrow, "B"))

			history, _ := h.svc.History(context.Background(), customer, order.ID)
			last := history[len(history)-1]
			assert.Equal(t, source, last.FromStatus)
			assert.Equal(t, statemachine.Cancelled, last.ToStatus)
		})
	}
}

func TestUpdateOrderStatus_InvalidPairsLeaveOrderUntouched(t *testing.T) {
	for _, from := range statemachine.All {
		for _, to := range statemachine.All {
			if statemachine.Allowed(from, to) {
				continue
			}
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				h := newHarness(t)
				h.ledger.set(tomorrow, "A", 10, 0)
				order := placeOrder(t, h, line("A", 3, 100))
				order.Status = from
				h.orders.put(order)
				adjusts := h.ledger.adjustCount()
				before, _ := h.svc.History(context.Background(), staff, order.ID)

				_, err := h.svc.UpdateOrderStatus(context.Background(), staff, order.ID, string(to), "")
				require.NotNil(t, err)
				assert.Equal(t, http.StatusConflict, err.Status)
				assert.Equal(t, CodeInvalidTransition, err.Code)

				assert.Equal(t, from, h.orders.get(order.ID).Status)
				assert.Equal(t, adjusts, h.ledger.adjustCount())
				assert.Equal(t, 3, h.ledger.sold(tomorrow, "A"))
				after, _ := h.svc.History(context.Background(), staff, order.ID)
				assert.Len(t, after, len(before))
			})
		}
	}
}

func TestCancelOrder_AppendsToExistingNotes(t *testing.T) {
	h := newHarness(t)
	h.ledger.set(tomorrow, "A", 10, 0)
	order, _, err := h.svc.CreateOrder(context.Background(), customer.UserID, "", &models.CreateOrderRequest{
		DeliveryDate: tomorrow,
		Items:        []models.CreateOrderLine{line("A", 1, 100)},
		Notes:        "no onions",
	})
	require.Nil(t, err)

	res, err := h.svc.CancelOrder(context.Background(), customer, order.ID, "")
	require.Nil(t, err)
	assert.Equal(t, "no onions\nCancelled", res.Order.Notes)
}

func TestReadyOrderCannotBeCancelled(t *testing.T) {
	h := newHarness(t)
	h.ledger.set(tomorrow, "X", 10, 0)
	order := placeOrder(t, h, line("X", 2, 100))
	order.Status = statemachine.Ready
	h.orders.put(order)
	adjusts := h.ledger.adjustCount()

	_, err := h.svc.CancelOrder(context.Background(), customer, order.ID, "too late")
	require.NotNil(t, err)
	assert.Equal(t, CodeInvalidTransition, err.Code)
	assert.Equal(t, http.StatusConflict, err.Status)

	assert.Equal(t, adjusts, h.ledger.adjustCount())
	assert.Equal(t, 2, h.ledger.sold(tomorrow, "X"))
	assert.Equal(t, statemachine.Ready, h.orders.get(order.ID).Status)
}

func TestCancel_ReleaseFailureKeepsCancellation(t *testing.T) {
	h := newHarness(t)
	h.ledger.set(tomorrow, "A", 10, 0)
	h.ledger.set(tomorrow, "B", 10, 0)
	order := placeOrder(t, h, line("A", 3, 100), line("B", 2, 100))
	h.ledger.fail["A-"] = errMenuDown

	res, err := h.svc.CancelOrder(context.Background(), customer, order.ID, "")
	require.Nil(t, err)
	assert.Equal(t, statemachine.Cancelled, h.orders.get(order.ID).Status)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "A")

	// B still released, A queued for retry
	assert.Equal(t, 0, h.ledger.sold(tomorrow, "B"))
	assert.Equal(t, 3, h.ledger.sold(tomorrow, "A"))
	recs := h.comps.all()
	require.Len(t, recs, 1)
	assert.Equal(t, "A", recs[0].FoodItemID)
	assert.Equal(t, -3, recs[0].Delta)
	assert.Equal(t, order.ReservationID+":release", recs[0].OperationID)
}

func TestConcurrentCancellationsReleaseOnce(t *testing.T) {
	h := newHarness(t)
	h.ledger.set(tomorrow, "A", 10, 0)
	order := placeOrder(t, h, line("A", 4, 100))

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.svc.CancelOrder(context.Background(), customer, order.ID, ""); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 0, h.ledger.sold(tomorrow, "A"))
}

func TestUpdateOrderStatus_Permissions(t *testing.T) {
	h := newHarness(t)
	h.ledger.set(tomorrow, "A", 10, 0)
	order := placeOrder(t, h, line("A", 1, 100))

	_, err := h.svc.UpdateOrderStatus(context.Background(), customer, order.ID, "confirmed", "")
	require.NotNil(t, err)
	assert.Equal(t, http.StatusForbidden, err.Status)

	_, err = h.svc.UpdateOrderStatus(context.Background(), stranger, order.ID, "cancelled", "")
	require.NotNil(t, err)
	assert.Equal(t, http.StatusNotFound, err.Status)

	_, err = h.svc.UpdateOrderStatus(context.Background(), staff, order.ID, "shipped", "")
	require.NotNil(t, err)
	assert.Equal(t, http.StatusBadRequest, err.Status)
}

func TestUpdateOrderStatus_FullLifecycleNotifies(t *testing.T) {
	h := newHarness(t)
	h.ledger.set(today, "A", 10, 0)
	order, _, cerr := h.svc.CreateOrder(context.Background(), customer.UserID, "", orderReq(today, line("A", 1, 100)))
	require.Nil(t, cerr)

	for _, st := range []string{"confirmed", "preparing", "ready", "delivered"} {
		res, err := h.svc.UpdateOrderStatus(context.Background(), staff, order.ID, st, "")
		require.Nil(t, err, st)
		assert.Equal(t, statemachine.Status(st), res.Order.Status)
	}

	assert.Equal(t, []string{"order.confirmed", "order.ready", "order.delivered"}, h.notifier.types)
	assert.Len(t, h.events.types(), 5)
	// delivery keeps the reservation
	assert.Equal(t, 1, h.ledger.sold(today, "A"))
}

func TestUpdateOrderStatus_NotificationFailureDoesNotBlock(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("sns throttled")
	h.ledger.set(tomorrow, "A", 10, 0)
	order := placeOrder(t, h, line("A", 1, 100))

	res, err := h.svc.UpdateOrderStatus(context.Background(), staff, order.ID, "confirmed", "")
	require.Nil(t, err)
	assert.Equal(t, statemachine.Confirmed, res.Order.Status)
}

func TestUpdateOrderStatus_EarlyDeliveryRefused(t *testing.T) {
	h := newHarness(t)
	h.ledger.set(tomorrow, "A", 10, 0)
	order := placeOrder(t, h, line("A", 1, 100))
	order.Status = statemachine.Ready
	h.orders.put(order)

	_, err := h.svc.UpdateOrderStatus(context.Background(), staff, order.ID, "delivered", "")
	require.NotNil(t, err)
	assert.Equal(t, CodeInvalidTransition, err.Code)
	details, ok := err.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, statemachine.Ready, details["from"])
	assert.Equal(t, statemachine.Delivered, details["to"])
}

func TestListOrders_CustomersSeeOwnOrders(t *testing.T) {
	h := newHarness(t)
	h.ledger.set(tomorrow, "A", 10, 0)
	placeOrder(t, h, line("A", 1, 100))
	_, _, err := h.svc.CreateOrder(context.Background(), stranger.UserID, "", orderReq(tomorrow, line("A", 1, 100)))
	require.Nil(t, err)

	mine, lerr := h.svc.ListOrders(context.Background(), customer, repositories.ListFilter{UserID: stranger.UserID}, 1, 10)
	require.Nil(t, lerr)
	require.Len(t, mine.Orders, 1)
	assert.Equal(t, customer.UserID, mine.Orders[0].UserID)

	all, lerr := h.svc.ListOrders(context.Background(), staff, repositories.ListFilter{}, 1, 1)
	require.Nil(t, lerr)
	assert.Equal(t, int64(2), all.Meta.TotalOrders)
	assert.Equal(t, int64(2), all.Meta.TotalPages)
	assert.True(t, all.Meta.HasMore)
}

func TestUpdatePaymentStatus(t *testing.T) {
	h := newHarness(t)
	h.ledger.set(tomorrow, "A", 10, 0)
	order := placeOrder(t, h, line("A", 1, 100))

	require.NoError(t, h.svc.UpdatePaymentStatus(context.Background(), order.ID.String(), models.EventPaymentSucceeded))
	stored := h.orders.get(order.ID)
	assert.Equal(t, models.PaymentPaid, stored.PaymentStatus)
	assert.Equal(t, statemachine.Pending, stored.Status)

	require.NoError(t, h.svc.UpdatePaymentStatus(context.Background(), order.ID.String(), "checkout_session_created"))
	assert.Equal(t, models.PaymentPaid, h.orders.get(order.ID).PaymentStatus)

	assert.Error(t, h.svc.UpdatePaymentStatus(context.Background(), "not-a-uuid", models.EventPaymentFailed))
	err := h.svc.UpdatePaymentStatus(context.Background(), uuid.NewString(), models.EventPaymentFailed)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestCalculateTotalPages(t *testing.T) {
	assert.Equal(t, int64(0), calculateTotalPages(10, 0))
	assert.Equal(t, int64(1), calculateTotalPages(10, 10))
	assert.Equal(t, int64(2), calculateTotalPages(11, 10))
}
