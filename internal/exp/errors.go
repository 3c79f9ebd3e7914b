package exp

import (
	"errors"
	"fmt"
)

// ErrNoDriver means no usable version-control driver could be constructed.
// Fatal; never retried.
var ErrNoDriver = errors.New("no usable git driver for this workspace")

// ErrNotFound is wrapped by unresolvable checkpoint/branch lookups.
var ErrNotFound = errors.New("not found")

// BaselineMismatchError means a result's recorded baseline disagrees with
// current HEAD. Recoverable by the caller; never auto-resolved.
type BaselineMismatchError struct {
	Baseline string
	Head     string
}

func (e *BaselineMismatchError) Error() string {
	return fmt.Sprintf(
		"experiment derives from baseline '%.7s' but HEAD is '%.7s'",
		e.Baseline, e.Head,
	)
}

// MultipleBranchError means more than one experiment branch contains the
// revision and the caller did not allow ambiguity.
type MultipleBranchError struct {
	Rev string
}

func (e *MultipleBranchError) Error() string {
	return fmt.Sprintf("ambiguous experiment branches for revision '%.7s'", e.Rev)
}

// ExperimentExistsError means publishing would overwrite an existing,
// diverged experiment ref without force.
type ExperimentExistsError struct {
	Name string
}

func (e *ExperimentExistsError) Error() string {
	return fmt.Sprintf("experiment '%s' already exists, re-run with force to overwrite", e.Name)
}

// CheckpointExistsError is the checkpoint flavor of ExperimentExistsError.
type CheckpointExistsError struct {
	Name string
}

func (e *CheckpointExistsError) Error() string {
	return fmt.Sprintf("checkpoint experiment '%s' already exists, re-run with force to overwrite", e.Name)
}
