package service

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors surfaced by the progression engine. Handlers translate
// these into HTTP status codes; the engine never retries on its own.
var (
	// ErrNodeNotFound indicates a node id that does not resolve.
	ErrNodeNotFound = errors.New("node not found")
	// ErrPathNotFound indicates a path id that does not resolve.
	ErrPathNotFound = errors.New("path not found")
	// ErrProgressNotFound indicates a (user, node) pair with no record.
	ErrProgressNotFound = errors.New("progress not found")
	// ErrProfileNotFound indicates a learner without a profile.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrNodeLocked rejects completion of a node the learner has not
	// unlocked. The caller sees a precondition failure, not a silent no-op.
	ErrNodeLocked = errors.New("node is locked")
	// ErrDailyGoalNotMet rejects a claim before the goal threshold.
	ErrDailyGoalNotMet = errors.New("daily goal not met")
	// ErrDailyGoalClaimed rejects a second claim of the same goal.
	ErrDailyGoalClaimed = errors.New("daily goal already claimed")

	// ErrPathProtected rejects deletion of a public template path.
	ErrPathProtected = errors.New("path is a protected template")
	// ErrPathExists rejects creating or cloning onto an existing path id.
	ErrPathExists = errors.New("path already exists")
	// ErrReorderMismatch rejects a reorder that is not a permutation of the
	// path's current node ids.
	ErrReorderMismatch = errors.New("reorder must be a permutation of the current node ids")

	// ErrInvariantViolation marks a programming-error class failure; the
	// offending write is aborted, never persisted.
	ErrInvariantViolation = errors.New("invariant violation")
)

// InvalidReferenceError reports node ids that failed to resolve during a path
// write. The write is rejected before anything is persisted.
type InvalidReferenceError struct {
	Missing []string
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("unknown node ids: %s", strings.Join(e.Missing, ", "))
}

// AsInvalidReference unwraps err into an InvalidReferenceError, if it is one.
func AsInvalidReference(err error) (*InvalidReferenceError, bool) {
	var target *InvalidReferenceError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
