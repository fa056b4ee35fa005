// Package progress maintains the weighted-progress invariants of subtasks
// under an initiative: weight-sum validation, parent progress recalculation,
// redistribution and optimistic concurrency on updates.
package progress

import (
	"fmt"
)

// WeightExceededError is the hard rejection for any change that would push
// the sibling weight total over 100. WouldBeTotal is returned for
// caller-facing diagnostics.
type WeightExceededError struct {
	Proposed     float64
	OthersTotal  float64
	WouldBeTotal float64
}

func (e *WeightExceededError) Error() string {
	return fmt.Sprintf("weight %.2f would bring the sibling total to %.2f, exceeding 100", e.Proposed, e.WouldBeTotal)
}

// WeightValidationError covers the remaining weight rejections: negative,
// above 100 on its own, or zero under subtask_based progress.
type WeightValidationError struct {
	Proposed float64
	Reason   string
}

func (e *WeightValidationError) Error() string {
	return fmt.Sprintf("invalid weight %.2f: %s", e.Proposed, e.Reason)
}

// ConcurrencyConflict is returned when the caller's expected_version does not
// match the stored version token. Callers refetch and retry.
type ConcurrencyConflict struct {
	SubtaskID       int
	ExpectedVersion int
	CurrentVersion  int
}

func (e *ConcurrencyConflict) Error() string {
	return fmt.Sprintf("subtask %d was modified concurrently: expected version %d, current %d",
		e.SubtaskID, e.ExpectedVersion, e.CurrentVersion)
}
