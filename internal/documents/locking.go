package documents

import "time"

// LockBoundary returns the earliest date (inclusive) that is still mutable for
// an organization with the given lock day. Once the wall clock passes
// lockDayOfMonth, the prior month closes: anything dated before the first of
// the current month is locked. Before the lock day, the prior month is still
// open and the boundary sits at the first of the previous month.
func LockBoundary(lockDayOfMonth int, now time.Time) time.Time {
	if lockDayOfMonth < 1 {
		lockDayOfMonth = 1
	}
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	if now.Day() > lockDayOfMonth {
		return firstOfMonth
	}
	return firstOfMonth.AddDate(0, -1, 0)
}

// IsLocked reports whether a document dated entityDate falls inside a closed
// accounting period for the given lock day, evaluated at now.
func IsLocked(entityDate time.Time, lockDayOfMonth int, now time.Time) bool {
	return entityDate.Before(LockBoundary(lockDayOfMonth, now))
}
