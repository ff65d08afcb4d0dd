// Package reservation reserves and releases daily food quantities across the
// order and menu services. A reservation checks every line first, then commits
// the lines one by one; when a commit fails the committed prefix is reversed.
// Release returns quantities and never stops on the first failure.
//
// Nothing here is transactional across services. Correctness rests on the ledger
// applying each adjustment with a single conditional update and deduplicating
// adjustments that carry the same operation id.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRecordNotFound means no inventory row exists for the date and item.
	ErrRecordNotFound = errors.New("inventory record not found")
	// ErrInsufficientQuantity means the conditional update matched no row.
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrInvalidItems         = errors.New("invalid reservation items")
	// ErrCommitFailed wraps a transient failure while committing a reservation.
	ErrCommitFailed = errors.New("reservation commit failed")
)

type Item struct {
	FoodItemID string `json:"food_item_id"`
	Quantity   int    `json:"quantity"`
}

// AdjustRequest moves sold quantity by Delta. Positive reserves, negative releases.
type AdjustRequest struct {
	Date        string `json:"date"`
	FoodItemID  string `json:"food_item_id"`
	Delta       int    `json:"delta"`
	OperationID string `json:"operation_id,omitempty"`
	OrderID     string `json:"order_id,omitempty"`
}

// Ledger is the menu side of the protocol. AdjustSold must return
// ErrInsufficientQuantity or ErrRecordNotFound (possibly wrapped) for the two
// definitive refusals; any other error is treated as transient.
//
// An adjustment carrying CompensationOperationID(X) undoes the applied entry of
// X on that row and forgets it, so X can be applied again by a retry. When X
// has no applied entry the compensation changes nothing.
type Ledger interface {
	CheckAvailability(ctx context.Context, date, foodItemID string, quantity int) (bool, error)
	AdjustSold(ctx context.Context, req AdjustRequest) error
}

// Request names one reservation attempt. OperationID is reused on retries of the
// same attempt so the ledger can drop duplicates.
type Request struct {
	OrderID     string
	OperationID string
	Date        string
	Items       []Item
}

const (
	ReasonUnavailable  = "insufficient quantity"
	ReasonNotFound     = "not on menu"
	ReasonNotAttempted = "not attempted"
	ReasonCommitFailed = "commit failed"
	ReasonRolledBack   = "rolled back"
)

type ItemResult struct {
	FoodItemID string `json:"food_item_id"`
	Quantity   int    `json:"quantity"`
	Available  bool   `json:"available"`
	Success    bool   `json:"success"`
	Reason     string `json:"reason,omitempty"`
}

type Result struct {
	Success bool         `json:"success"`
	Items   []ItemResult `json:"items"`
	// Failures lists rollback adjustments that could not be applied.
	Failures []CompensationFailure `json:"-"`
}

// Unavailable returns the lines that could not be supplied.
func (r Result) Unavailable() []ItemResult {
	var out []ItemResult
	for _, it := range r.Items {
		if !it.Available {
			out = append(out, it)
		}
	}
	return out
}

// CompensationFailure is an adjustment that must still be applied for the ledger
// to match the orders. It carries everything needed to replay it.
type CompensationFailure struct {
	OrderID     string
	Date        string
	FoodItemID  string
	Delta       int
	OperationID string
	Err         error
}

func (f CompensationFailure) Error() string {
	return fmt.Sprintf("compensation for order %s item %s on %s (delta %d): %v", f.OrderID, f.FoodItemID, f.Date, f.Delta, f.Err)
}

func (f CompensationFailure) Unwrap() error { return f.Err }

// AdjustRequest rebuilds the adjustment for replay.
func (f CompensationFailure) AdjustRequest() AdjustRequest {
	return AdjustRequest{
		Date:        f.Date,
		FoodItemID:  f.FoodItemID,
		Delta:       f.Delta,
		OperationID: f.OperationID,
		OrderID:     f.OrderID,
	}
}

// FailureSink persists compensation failures for later replay.
type FailureSink interface {
	Record(ctx context.Context, f CompensationFailure) error
}

// Validate rejects empty requests, blank food items, non-positive quantities and
// repeated food items.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Date) == "" {
		return fmt.Errorf("%w: date is required", ErrInvalidItems)
	}
	if len(r.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrInvalidItems)
	}
	seen := make(map[string]struct{}, len(r.Items))
	for i, it := range r.Items {
		if strings.TrimSpace(it.FoodItemID) == "" {
			return fmt.Errorf("%w: item %d has no food_item_id", ErrInvalidItems, i)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: item %s quantity must be positive", ErrInvalidItems, it.FoodItemID)
		}
		if _, dup := seen[it.FoodItemID]; dup {
			return fmt.Errorf("%w: item %s appears more than once", ErrInvalidItems, it.FoodItemID)
		}
		seen[it.FoodItemID] = struct{}{}
	}
	return nil
}

// IsRefusal reports whether err is a definitive ledger refusal rather than a
// transient failure.
func IsRefusal(err error) bool {
	return errors.Is(err, ErrInsufficientQuantity) || errors.Is(err, ErrRecordNotFound)
}

const compensateSuffix = ":compensate"

// CompensationOperationID derives the id used to reverse operationID.
func CompensationOperationID(operationID string) string {
	if operationID == "" {
		return ""
	}
	return operationID + compensateSuffix
}

// ReversedOperationID returns the operation a compensation id reverses.
func ReversedOperationID(operationID string) (string, bool) {
	base, ok := strings.CutSuffix(operationID, compensateSuffix)
	return base, ok && base != ""
}
