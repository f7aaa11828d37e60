// Package core provides the pure domain model of the budget monitor.
//
// This file contains the billing cycle calculator. A billing cycle is the
// roughly one-month window, anchored to a user-configured start day, against
// which spending limits are evaluated. All cycle computation happens in UTC.
package core

import "time"

// WarnRatio is the fixed fraction of a limit amount at which a warning fires.
const WarnRatio = 0.8

// CycleWindow is a half-open interval [Start, End). End is the start of the
// following cycle, so consecutive windows tile the calendar without gaps.
type CycleWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w CycleWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// BillingCycle returns the cycle containing now for the given start day.
//
// Start is the current month's instance of startDay at 00:00 UTC, clamped to
// the last valid day of the month (startDay=31 in February gives Feb 28/29).
// When now precedes this month's anchor the cycle began in the previous month:
// startDay=25 observed on the 10th belongs to last month's cycle.
//
// An out-of-range startDay is clamped into 1-31 rather than rejected, so a
// misconfigured limit degrades to a sane window instead of skipping a cycle.
func BillingCycle(now time.Time, startDay int) CycleWindow {
	if startDay < 1 {
		startDay = 1
	}
	if startDay > 31 {
		startDay = 31
	}

	now = now.UTC()
	start := monthAnchor(now.Year(), now.Month(), startDay)
	if now.Before(start) {
		prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
		start = monthAnchor(prev.Year(), prev.Month(), startDay)
	}

	next := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	end := monthAnchor(next.Year(), next.Month(), startDay)

	return CycleWindow{Start: start, End: end}
}

// Crossed reports whether spent has reached WarnRatio of the limit amount.
func Crossed(spent, limit Money) bool {
	return float64(spent.Cents) >= float64(limit.Cents)*WarnRatio
}

// monthAnchor places day inside the given month, clamping to its last day.
func monthAnchor(year int, month time.Month, day int) time.Time {
	if last := lastDayOfMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
