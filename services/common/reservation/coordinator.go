package reservation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

type Coordinator struct {
	ledger Ledger
	sink   FailureSink
	logger *zap.Logger
}

// NewCoordinator wires a coordinator. sink may be nil, in which case failures are
// only logged and returned.
func NewCoordinator(ledger Ledger, sink FailureSink, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{ledger: ledger, sink: sink, logger: logger}
}

// Reserve commits every item or none of them.
//
// All items are checked before anything is committed; if one is unavailable the
// result names it and no ledger row changes. Commits then run in the caller's
// order. A refusal during commit (quantity taken since the check) is reported as
// an unavailable result; any other commit error is returned wrapped in
// ErrCommitFailed. In both cases the already committed items are reversed,
// newest first, before returning.
//
// A non-nil error means the outcome is unknown to the caller and retrying with
// the same OperationID is safe: the rollback frees the ids it reversed, so the
// retry commits those items again while anything already applied stays deduplicated.
func (c *Coordinator) Reserve(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	results := make([]ItemResult, len(req.Items))
	allAvailable := true
	for i, it := range req.Items {
		ok, err := c.ledger.CheckAvailability(ctx, req.Date, it.FoodItemID, it.Quantity)
		if err != nil {
			return Result{}, fmt.Errorf("check availability of %s on %s: %w", it.FoodItemID, req.Date, err)
		}
		results[i] = ItemResult{FoodItemID: it.FoodItemID, Quantity: it.Quantity, Available: ok}
		if !ok {
			results[i].Reason = ReasonUnavailable
			allAvailable = false
		}
	}
	if !allAvailable {
		c.logger.Info("reservation rejected",
			zap.String("order_id", req.OrderID),
			zap.String("menu_date", req.Date),
			zap.Int("unavailable", len(Result{Items: results}.Unavailable())),
		)
		return Result{Success: false, Items: results}, nil
	}

	for k, it := range req.Items {
		err := c.ledger.AdjustSold(ctx, AdjustRequest{
			Date:        req.Date,
			FoodItemID:  it.FoodItemID,
			Delta:       it.Quantity,
			OperationID: req.OperationID,
			OrderID:     req.OrderID,
		})
		if err == nil {
			results[k].Success = true
			continue
		}

		refused := IsRefusal(err)
		switch {
		case errors.Is(err, ErrRecordNotFound):
			results[k].Available = false
			results[k].Reason = ReasonNotFound
		case refused:
			results[k].Available = false
			results[k].Reason = ReasonUnavailable
		default:
			results[k].Reason = ReasonCommitFailed
		}
		for j := k + 1; j < len(results); j++ {
			results[j].Reason = ReasonNotAttempted
		}

		failures := c.rollback(ctx, req, results[:k])
		res := Result{Success: false, Items: results, Failures: failures}

		c.logger.Warn("reservation commit failed",
			zap.String("order_id", req.OrderID),
			zap.String("menu_date", req.Date),
			zap.String("food_item_id", it.FoodItemID),
			zap.Int("committed", k),
			zap.Int("compensation_failures", len(failures)),
			zap.Error(err),
		)
		if refused {
			return res, nil
		}
		return res, fmt.Errorf("%w: %s on %s: %w", ErrCommitFailed, it.FoodItemID, req.Date, err)
	}

	return Result{Success: true, Items: results}, nil
}

// rollback reverses committed items newest first. It outlives the caller's
// cancellation.
func (c *Coordinator) rollback(ctx context.Context, req Request, committed []ItemResult) []CompensationFailure {
	ctx = context.WithoutCancel(ctx)
	var failures []CompensationFailure
	opID := CompensationOperationID(req.OperationID)
	for i := len(committed) - 1; i >= 0; i-- {
		it := committed[i]
		adj := AdjustRequest{
			Date:        req.Date,
			FoodItemID:  it.FoodItemID,
			Delta:       -it.Quantity,
			OperationID: opID,
			OrderID:     req.OrderID,
		}
		if err := c.ledger.AdjustSold(ctx, adj); err != nil {
			failures = append(failures, c.fail(ctx, adj, err))
			continue
		}
		committed[i].Success = false
		committed[i].Reason = ReasonRolledBack
	}
	return failures
}

// Release returns the quantity of every item to the ledger. It continues past
// failures and returns them; each one has already been logged and handed to the
// sink. The ledger keeps only net counters, so the caller is the only authority
// on what was reserved.
func (c *Coordinator) Release(ctx context.Context, req Request) ([]CompensationFailure, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var failures []CompensationFailure
	for _, it := range req.Items {
		adj := AdjustRequest{
			Date:        req.Date,
			FoodItemID:  it.FoodItemID,
			Delta:       -it.Quantity,
			OperationID: req.OperationID,
			OrderID:     req.OrderID,
		}
		if err := c.ledger.AdjustSold(ctx, adj); err != nil {
			failures = append(failures, c.fail(ctx, adj, err))
		}
	}

	if len(failures) == 0 {
		c.logger.Info("reservation released",
			zap.String("order_id", req.OrderID),
			zap.String("menu_date", req.Date),
			zap.Int("items", len(req.Items)),
		)
	}
	return failures, nil
}

// Replay applies a stored compensation again with its original operation id.
func (c *Coordinator) Replay(ctx context.Context, f CompensationFailure) error {
	return c.ledger.AdjustSold(ctx, f.AdjustRequest())
}

func (c *Coordinator) fail(ctx context.Context, adj AdjustRequest, err error) CompensationFailure {
	f := CompensationFailure{
		OrderID:     adj.OrderID,
		Date:        adj.Date,
		FoodItemID:  adj.FoodItemID,
		Delta:       adj.Delta,
		OperationID: adj.OperationID,
		Err:         err,
	}
	fields := []zap.Field{
		zap.String("order_id", f.OrderID),
		zap.String("menu_date", f.Date),
		zap.String("food_item_id", f.FoodItemID),
		zap.Int("delta", f.Delta),
		zap.String("operation_id", f.OperationID),
		zap.Error(err),
	}
	c.logger.Error("compensation failed", fields...)

	if c.sink != nil {
		if serr := c.sink.Record(context.WithoutCancel(ctx), f); serr != nil {
			c.logger.Error("compensation failure not recorded", append(fields, zap.NamedError("sink_error", serr))...)
		}
	}
	return f
}
