package statemachine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/dates"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/statemachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	yesterday = "2026-03-09"
	today     = "2026-03-10"
	tomorrow  = "2026-03-11"
)

func machine() statemachine.Machine {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	return statemachine.New(dates.NewClock(time.UTC, func() time.Time { return now }))
}

func TestParseStatus(t *testing.T) {
	st, err := statemachine.ParseStatus(" Confirmed ")
	require.NoError(t, err)
	assert.Equal(t, statemachine.Confirmed, st)

	_, err = statemachine.ParseStatus("shipped")
	assert.ErrorIs(t, err, statemachine.ErrUnknownStatus)
}

func TestTransitionsOutsideTableAreRejected(t *testing.T) {
	m := machine()
	for _, from := range statemachine.All {
		for _, to := range statemachine.All {
			if statemachine.Allowed(from, to) {
				continue
			}
			err := m.Check(from, to, tomorrow)
			require.Error(t, err, "%s -> %s", from, to)
			assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)

			var ite *statemachine.InvalidTransitionError
			require.True(t, errors.As(err, &ite))
			assert.Equal(t, from, ite.From)
			assert.Equal(t, to, ite.To)
		}
	}
}

func TestTerminalStatusesHaveNoTargets(t *testing.T) {
	for _, st := range []statemachine.Status{statemachine.Delivered, statemachine.Cancelled} {
		assert.True(t, st.Terminal())
		assert.Empty(t, statemachine.Targets(st))
	}
	assert.ElementsMatch(t, []statemachine.Status{statemachine.Confirmed, statemachine.Cancelled}, statemachine.Targets(statemachine.Pending))
}

func TestGuards(t *testing.T) {
	m := machine()
	tests := []struct {
		name     string
		from, to statemachine.Status
		date     string
		ok       bool
	}{
		{"confirm future order", statemachine.Pending, statemachine.Confirmed, tomorrow, true},
		{"confirm on delivery day", statemachine.Pending, statemachine.Confirmed, today, true},
		{"confirm past order", statemachine.Pending, statemachine.Confirmed, yesterday, false},
		{"start preparing", statemachine.Confirmed, statemachine.Preparing, today, true},
		{"mark ready", statemachine.Preparing, statemachine.Ready, today, true},
		{"deliver on the day", statemachine.Ready, statemachine.Delivered, today, true},
		{"deliver late", statemachine.Ready, statemachine.Delivered, yesterday, true},
		{"deliver early", statemachine.Ready, statemachine.Delivered, tomorrow, false},
		{"cancel pending before day", statemachine.Pending, statemachine.Cancelled, tomorrow, true},
		{"cancel pending on the day", statemachine.Pending, statemachine.Cancelled, today, true},
		{"cancel pending after the day", statemachine.Pending, statemachine.Cancelled, yesterday, true},
		{"cancel confirmed before day", statemachine.Confirmed, statemachine.Cancelled, tomorrow, true},
		{"cancel confirmed on the day", statemachine.Confirmed, statemachine.Cancelled, today, false},
		{"cancel preparing before day", statemachine.Preparing, statemachine.Cancelled, tomorrow, true},
		{"cancel preparing after the day", statemachine.Preparing, statemachine.Cancelled, yesterday, false},
		{"cancel ready", statemachine.Ready, statemachine.Cancelled, tomorrow, false},
		{"cancel delivered", statemachine.Delivered, statemachine.Cancelled, tomorrow, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.Check(tt.from, tt.to, tt.date)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)
		})
	}
}

func TestCheckRejectsUnknownStatus(t *testing.T) {
	err := machine().Check("shipped", statemachine.Delivered, today)
	assert.ErrorIs(t, err, statemachine.ErrUnknownStatus)
	assert.NotErrorIs(t, err, statemachine.ErrInvalidTransition)
}

func TestEffects(t *testing.T) {
	assert.True(t, statemachine.EffectsOf(statemachine.Cancelled).ReleaseInventory)
	assert.False(t, statemachine.EffectsOf(statemachine.Cancelled).Notify)
	for _, st := range []statemachine.Status{statemachine.Confirmed, statemachine.Ready, statemachine.Delivered} {
		e := statemachine.EffectsOf(st)
		assert.True(t, e.Notify, st)
		assert.False(t, e.ReleaseInventory, st)
	}
	assert.Equal(t, statemachine.Effects{}, statemachine.EffectsOf(statemachine.Preparing))
}
