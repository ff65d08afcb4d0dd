// Package statemachine decides which order status changes are legal and what
// each one sets in motion.
package statemachine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/dates"
)

type Status string

const (
	Pending   Status = "pending"
	Confirmed Status = "confirmed"
	Preparing Status = "preparing"
	Ready     Status = "ready"
	Delivered Status = "delivered"
	Cancelled Status = "cancelled"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownStatus     = errors.New("unknown order status")
)

// All lists every status in lifecycle order.
var All = []Status{Pending, Confirmed, Preparing, Ready, Delivered, Cancelled}

var transitions = map[Status][]Status{
	Pending:   {Confirmed, Cancelled},
	Confirmed: {Preparing, Cancelled},
	Preparing: {Ready, Cancelled},
	Ready:     {Delivered},
	Delivered: {},
	Cancelled: {},
}

// ParseStatus accepts a status name in any case.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := transitions[st]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

func (s Status) String() string { return string(s) }

func (s Status) Terminal() bool {
	return s == Delivered || s == Cancelled
}

// Targets returns the statuses reachable from s in one step.
func Targets(from Status) []Status {
	out := make([]Status, len(transitions[from]))
	copy(out, transitions[from])
	return out
}

// Allowed reports table membership only; guards are not evaluated.
func Allowed(from, to Status) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError matches ErrInvalidTransition with errors.Is.
type InvalidTransitionError struct {
	From   Status
	To     Status
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
	}
	return fmt.Sprintf("cannot change order status from %s to %s: %s", e.From, e.To, e.Reason)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Machine evaluates transitions against the business calendar.
type Machine struct {
	clock dates.Clock
}

func New(clock dates.Clock) Machine {
	return Machine{clock: clock}
}

// Check validates moving an order delivered on deliveryDate from one status to
// another. The table is consulted first, then the guard of the target status.
func (m Machine) Check(from, to Status, deliveryDate string) error {
	if _, ok := transitions[from]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, from)
	}
	if _, ok := transitions[to]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}
	if !Allowed(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}

	refuse := func(reason string) error {
		return &InvalidTransitionError{From: from, To: to, Reason: reason}
	}

	switch to {
	case Confirmed:
		if m.clock.IsPast(deliveryDate) {
			return refuse("delivery date has passed")
		}
	case Preparing:
		if from != Confirmed {
			return refuse("order must be confirmed first")
		}
	case Ready:
		if from != Preparing {
			return refuse("order must be preparing first")
		}
	case Delivered:
		if from != Ready {
			return refuse("order must be ready first")
		}
		if m.clock.IsFuture(deliveryDate) {
			return refuse("delivery date has not arrived")
		}
	case Cancelled:
		if from == Delivered {
			return refuse("order already delivered")
		}
		// pending orders stay cancellable after the cutoff
		if from != Pending && !m.clock.IsFuture(deliveryDate) {
			return refuse("cancellation cutoff passed for delivery date")
		}
	}
	return nil
}

// Effects are the side effects of entering a status.
type Effects struct {
	// ReleaseInventory returns every order line to the menu ledger.
	ReleaseInventory bool
	// Notify dispatches a customer notification. It never blocks the change.
	Notify bool
}

func EffectsOf(to Status) Effects {
	switch to {
	case Cancelled:
		return Effects{ReleaseInventory: true}
	case Confirmed, Ready, Delivered:
		return Effects{Notify: true}
	default:
		return Effects{}
	}
}
