// Package fine computes overdue fines. Everything here is pure: no clock, no I/O.
package fine

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// DaysOverdue returns the whole days between due and settlement, truncated.
// Settlement on or before the due date yields 0.
func DaysOverdue(due, settlement time.Time) int {
	d := settlement.Sub(due)
	if d <= 0 {
		return 0
	}
	return int(d / day)
}

// Compute returns the fine owed when a loan due at due is settled at
// settlement, charging dailyRate per whole overdue day. The result is
// rounded to cents.
func Compute(due, settlement time.Time, dailyRate float64) float64 {
	if dailyRate <= 0 {
		return 0
	}
	amount := float64(DaysOverdue(due, settlement)) * dailyRate
	return math.Round(amount*100) / 100
}
