package circulation

import (
	"slices"

	"github.com/erazemk/izposoja/internal/model"
)

// Action is a staff or borrower action on an existing loan.
type Action string

// Actions.
const (
	ActionMarkReady Action = "mark_ready"
	ActionPickup    Action = "pickup"
	ActionReject    Action = "reject"
	ActionReturn    Action = "return"
	ActionRenew     Action = "renew"
)

type transition struct {
	from []string
	to   string
	// release gives the reserved copy back to the catalog.
	release bool
}

// Copies are reserved when the loan is requested, for every workflow, so
// only the transitions into a terminal state touch the catalog.
var transitions = map[Action]transition{
	ActionMarkReady: {
		from: []string{model.LoanStatusWaiting},
		to:   model.LoanStatusReadyForPickup,
	},
	ActionPickup: {
		from: []string{model.LoanStatusWaiting, model.LoanStatusReadyForPickup},
		to:   model.LoanStatusBorrowed,
	},
	ActionReject: {
		from:    []string{model.LoanStatusWaiting, model.LoanStatusReadyForPickup},
		to:      model.LoanStatusRejected,
		release: true,
	},
	ActionReturn: {
		from:    []string{model.LoanStatusBorrowed},
		to:      model.LoanStatusReturned,
		release: true,
	},
	ActionRenew: {
		from: []string{model.LoanStatusBorrowed},
		to:   model.LoanStatusBorrowed,
	},
}

// InitialStatus returns the status a newly approved loan starts in.
func InitialStatus(requiresPickup bool) string {
	if requiresPickup {
		return model.LoanStatusWaiting
	}
	return model.LoanStatusBorrowed
}

// CanApply reports whether action may be taken on a loan in status.
func CanApply(action Action, status string) bool {
	t, ok := transitions[action]
	return ok && slices.Contains(t.from, status)
}

// Target returns the status action leads to.
func Target(action Action) string {
	return transitions[action].to
}

// Releases reports whether action gives the loan's copy back.
func Releases(action Action) bool {
	return transitions[action].release
}
