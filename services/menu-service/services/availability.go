package services

import (
	"context"
	"errors"

	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/dates"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/menu-service/repository"
)

// AvailabilityOracle answers whether a quantity of an item can be supplied on a
// date. It never writes. Past dates, unpublished days and unknown items are all
// simply unavailable.
type AvailabilityOracle struct {
	ledger repository.LedgerRepository
	pubs   repository.PublicationRepository
	clock  dates.Clock
}

func NewAvailabilityOracle(ledger repository.LedgerRepository, pubs repository.PublicationRepository, clock dates.Clock) *AvailabilityOracle {
	return &AvailabilityOracle{ledger: ledger, pubs: pubs, clock: clock}
}

func (o *AvailabilityOracle) CheckAvailability(ctx context.Context, date, foodItemID string, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, ErrInvalidQuantity
	}
	d, err := parseDate(date)
	if err != nil {
		return false, err
	}
	if o.clock.IsPast(d) {
		return false, nil
	}

	pub, err := o.pubs.Get(ctx, d)
	if err != nil {
		return false, err
	}
	if !pub.IsPublished {
		return false, nil
	}

	rec, err := o.ledger.Get(ctx, d, foodItemID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.Remaining() >= quantity, nil
}
