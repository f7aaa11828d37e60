package core

import "time"

// NextOccurrence computes when the next occurrence of a recurring transaction
// falls, given the date of its latest occurrence.
//
// A date still in the future relative to now is returned unchanged (the
// template is simply not yet due). Otherwise the occurrence advances by one
// calendar month, clamped to the last day of the target month (Jan 31 -> Feb
// 28/29). A template that missed several periods advances a single month per
// call; callers catch up incrementally across sweeps rather than in one batch.
func NextOccurrence(last, now time.Time) time.Time {
	if last.After(now) {
		return last
	}
	return addOneMonth(last)
}

func addOneMonth(t time.Time) time.Time {
	next := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0)
	day := t.Day()
	if last := lastDayOfMonth(next.Year(), next.Month()); day > last {
		day = last
	}
	return time.Date(next.Year(), next.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
