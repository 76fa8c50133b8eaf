package forkexec

import (
	"syscall"
	_ "unsafe" // required for go:linkname.
)

//go:linkname beforeFork syscall.runtime_BeforeFork
func beforeFork()

//go:linkname afterFork syscall.runtime_AfterFork
func afterFork()

//go:linkname afterForkInChild syscall.runtime_AfterForkInChild
func afterForkInChild()

// Start forks the holder and returns its pid. The holder inherits the files
// of the Runner as 0, 1 and 2 and the channels as 3, 4 and 5.
//
// The holder sets PR_SET_PDEATHSIG, which is bound to the calling thread, so
// the caller should keep the OS thread locked until the holder has exited.
func (r *Runner) Start(ch Channels) (int, error) {
	p, err := r.prepare(ch)
	if err != nil {
		return 0, err
	}

	pid, err1 := forkAndLaunchInChild(p)

	// restore all signals
	afterFork()
	syscall.ForkLock.Unlock()

	if err1 != 0 {
		return 0, err1
	}
	return int(pid), nil
}
