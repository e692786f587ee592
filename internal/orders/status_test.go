package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusCheckoutPending, true},
		{StatusCheckoutPending, StatusPending, true},
		{StatusCheckoutPending, StatusConfirmed, true},
		{StatusConfirmed, StatusCheckoutPending, true},
		{StatusConfirmed, StatusPreparing, true},
		{StatusPreparing, StatusReady, true},
		{StatusReady, StatusCompleted, true},
		{StatusPending, StatusCancelPending, true},
		{StatusCancelPending, StatusPending, true},
		{StatusCancelPending, StatusDeleted, true},
		{StatusPending, StatusCompleted, false},
		{StatusCompleted, StatusPending, false},
		{StatusDeleted, StatusPending, false},
		{StatusPreparing, StatusPending, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestStatusMutable(t *testing.T) {
	assert.True(t, StatusPending.Mutable())
	assert.True(t, StatusCheckoutPending.Mutable())
	assert.True(t, StatusCancelPending.Mutable())
	assert.False(t, StatusConfirmed.Mutable())
	assert.False(t, StatusCompleted.Mutable())
	assert.False(t, StatusDeleted.Mutable())
}
