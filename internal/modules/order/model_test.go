package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusCreated, StatusPaymentPending, true},
		{StatusCreated, StatusConfirmed, true},
		{StatusCreated, StatusCancelled, true},
		{StatusCreated, StatusShipped, false},
		{StatusPaymentPending, StatusConfirmed, true},
		{StatusPaymentPending, StatusCreated, false},
		{StatusConfirmed, StatusProcessing, true},
		{StatusProcessing, StatusShipped, true},
		{StatusProcessing, StatusConfirmed, false},
		{StatusShipped, StatusDelivered, true},
		{StatusShipped, StatusProcessing, false},
		{StatusShipped, StatusCancelled, false},
		{StatusDelivered, StatusCancelled, false},
		{StatusDelivered, StatusShipped, false},
		{StatusCancelled, StatusCreated, false},
		{StatusCancelled, StatusConfirmed, false},
	}

	for _, tc := range tests {
		got := CanTransition(tc.from, tc.to)
		assert.Equal(t, tc.allowed, got, "%s -> %s", tc.from, tc.to)
	}
}

func TestCancellable(t *testing.T) {
	assert.True(t, StatusCreated.Cancellable())
	assert.True(t, StatusPaymentPending.Cancellable())
	assert.True(t, StatusConfirmed.Cancellable())
	assert.True(t, StatusProcessing.Cancellable())
	assert.False(t, StatusShipped.Cancellable())
	assert.False(t, StatusDelivered.Cancellable())
	assert.False(t, StatusCancelled.Cancellable())
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, from := range []Status{StatusDelivered, StatusCancelled} {
		for _, to := range []Status{StatusCreated, StatusPaymentPending, StatusConfirmed,
			StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled} {
			assert.False(t, CanTransition(from, to), "%s -> %s must be blocked", from, to)
		}
	}
}
