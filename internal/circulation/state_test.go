package circulation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/erazemk/izposoja/internal/model"
)

func TestCanApply(t *testing.T) {
	tests := []struct {
		action Action
		status string
		want   bool
	}{
		{ActionMarkReady, model.LoanStatusWaiting, true},
		{ActionMarkReady, model.LoanStatusReadyForPickup, false},
		{ActionPickup, model.LoanStatusWaiting, true},
		{ActionPickup, model.LoanStatusReadyForPickup, true},
		{ActionPickup, model.LoanStatusBorrowed, false},
		{ActionReject, model.LoanStatusWaiting, true},
		{ActionReject, model.LoanStatusReadyForPickup, true},
		{ActionReject, model.LoanStatusBorrowed, false},
		{ActionReturn, model.LoanStatusBorrowed, true},
		{ActionReturn, model.LoanStatusReturned, false},
		{ActionReturn, model.LoanStatusWaiting, false},
		{ActionRenew, model.LoanStatusBorrowed, true},
		{ActionRenew, model.LoanStatusRejected, false},
		{Action("lose"), model.LoanStatusBorrowed, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CanApply(tt.action, tt.status), "%s from %s", tt.action, tt.status)
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for action := range transitions {
		for _, status := range []string{model.LoanStatusReturned, model.LoanStatusRejected} {
			assert.False(t, CanApply(action, status), "%s from %s", action, status)
		}
	}
}

func TestCatalogEffects(t *testing.T) {
	assert.True(t, Releases(ActionReject))
	assert.True(t, Releases(ActionReturn))
	assert.False(t, Releases(ActionPickup))
	assert.False(t, Releases(ActionMarkReady))
	assert.False(t, Releases(ActionRenew))

	assert.Equal(t, model.LoanStatusWaiting, InitialStatus(true))
	assert.Equal(t, model.LoanStatusBorrowed, InitialStatus(false))
}
