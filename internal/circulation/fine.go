package circulation

import (
	"fmt"
	"time"
)

const (
	// Borrowing up to gracePeriodDays whole days costs nothing
	gracePeriodDays = 20
	// Above lateTierDays the steep rate applies on its own, the tiers do not add up
	lateTierDays = 30

	lateRate     = 5
	veryLateRate = 15
)

// ElapsedDays returns the number of whole 24h periods between from and to.
// A to earlier than from counts as zero days.
func ElapsedDays(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	return int(to.Sub(from) / (24 * time.Hour))
}

// ComputeFine returns the fine for a loan that lasted the given number of days.
//
//	0..20 days  -> 0
//	21..30 days -> (days-20) * 5
//	>30 days    -> (days-30) * 15
//
// The jump at day 31 (50 -> 15) is intentional.
func ComputeFine(days int) int {
	switch {
	case days > lateTierDays:
		return (days - lateTierDays) * veryLateRate
	case days > gracePeriodDays:
		return (days - gracePeriodDays) * lateRate
	default:
		return 0
	}
}

// Notification returns the message shown to the borrower after a return
func Notification(fine int) string {
	if fine > 0 {
		return fmt.Sprintf("⚠️ You have a fine of ₹%d.", fine)
	}
	return "✅ No fine! Thank you for returning on time."
}
