package store

import (
	"fmt"

	"github.com/gebn/uno-usage-scraper/internal/hourusage"
)

// PersistenceError reports the samples that never committed after the bounded
// retry rounds were exhausted. Everything else in the submission is durably
// stored.
type PersistenceError struct {
	Uncommitted []hourusage.HourUsage
	Err         error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%d samples failed to commit: %v", len(e.Uncommitted), e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Committed derives which of the submitted samples did land, preserving their
// order.
func (e *PersistenceError) Committed(submitted []hourusage.HourUsage) []hourusage.HourUsage {
	failed := make(map[string]struct{}, len(e.Uncommitted))
	for _, sample := range e.Uncommitted {
		failed[sample.DateHour()] = struct{}{}
	}
	committed := make([]hourusage.HourUsage, 0, len(submitted))
	for _, sample := range submitted {
		if _, ok := failed[sample.DateHour()]; !ok {
			committed = append(committed, sample)
		}
	}
	return committed
}
