package container

import (
	"fmt"

	"github.com/containerd/errdefs"
)

// Stage is the progress of a launch as seen by the orchestrator
type Stage int

// Stages in the order a launch passes them
const (
	StageCreated Stage = iota
	StageUnshared
	StageIdentityMapped
	StageReady
	StageExited
	StageFailed
)

var stageString = []string{
	"created",
	"unshared",
	"identity_mapped",
	"ready",
	"exited",
	"failed",
}

func (s Stage) String() string {
	if s >= StageCreated && s <= StageFailed {
		return stageString[s]
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible
func (s Stage) Terminal() bool {
	return s == StageExited || s == StageFailed
}

// transition returns the stage after moving from s to next. Only the
// following stage or StageFailed can be reached from a non-terminal stage.
func (s Stage) transition(next Stage) (Stage, error) {
	switch {
	case s.Terminal():
		return s, fmt.Errorf("%w: launch already %v", errdefs.ErrFailedPrecondition, s)
	case next == StageFailed, next == s+1:
		return next, nil
	default:
		return s, fmt.Errorf("%w: cannot move from %v to %v", errdefs.ErrFailedPrecondition, s, next)
	}
}
