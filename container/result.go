package container

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Status is how init terminated
type Status int

// Status constants
const (
	StatusInvalid           Status = iota // 0 not terminated
	StatusNormal                          // 1 exit status 0
	StatusNonzeroExitStatus               // 2 exited with non-zero status
	StatusSignalled                       // 3 killed by a signal
)

var statusString = []string{
	"Invalid",
	"",
	"Nonzero Exit Status",
	"Signalled",
}

func (t Status) String() string {
	i := int(t)
	if i >= 0 && i < len(statusString) {
		return statusString[i]
	}
	return statusString[0]
}

// Result is the outcome of a launch
type Result struct {
	ID        string // launch id
	HolderPid int
	InitPid   int

	Status         // how init terminated
	ExitStatus int // exit status (signal number if signalled)

	// SetUpTime is from the fork of the holder until init is ready
	SetUpTime time.Duration
	// RunningTime is from init being ready until it terminated
	RunningTime time.Duration
}

// ExitCode folds the status into a shell style exit code
func (r Result) ExitCode() int {
	switch r.Status {
	case StatusNormal:
		return 0
	case StatusNonzeroExitStatus:
		return r.ExitStatus
	case StatusSignalled:
		return 128 + r.ExitStatus
	default:
		return 1
	}
}

func (r Result) String() string {
	switch r.Status {
	case StatusNormal:
		return fmt.Sprintf("Result[%s pid=%d][%v %v]", r.ID, r.InitPid, r.SetUpTime, r.RunningTime)

	case StatusSignalled:
		return fmt.Sprintf("Result[%s pid=%d Signalled(%d)][%v %v]", r.ID, r.InitPid, r.ExitStatus, r.SetUpTime, r.RunningTime)

	default:
		return fmt.Sprintf("Result[%s pid=%d %v(%d)][%v %v]", r.ID, r.InitPid, r.Status, r.ExitStatus, r.SetUpTime, r.RunningTime)
	}
}

func statusFromWait(ws unix.WaitStatus) (Status, int) {
	switch {
	case ws.Signaled():
		return StatusSignalled, int(ws.Signal())
	case ws.Exited() && ws.ExitStatus() == 0:
		return StatusNormal, 0
	case ws.Exited():
		return StatusNonzeroExitStatus, ws.ExitStatus()
	default:
		return StatusInvalid, 0
	}
}
