package forkexec

import (
	"golang.org/x/sys/unix"
)

// descriptor slots inside the holder
const (
	fdOuterSend = 3
	fdOuterRecv = 4
	fdReport    = 5
	fdFirstFree = 6
)

const (
	seccompSetModeFilter = 1

	holderUnshareFlags = unix.CLONE_NEWUSER | unix.CLONE_NEWPID | unix.CLONE_NEWNET
	initUnshareFlags   = unix.CLONE_NEWNS | unix.CLONE_NEWUTS
)

var (
	slash = [...]byte{'/', 0}
	proc  = [...]byte{'/', 'p', 'r', 'o', 'c', 0}

	// go does not allow constant uintptr to be negative...
	_AT_FDCWD = unix.AT_FDCWD
)

// mount table indexes produced by prepare
const (
	mountPrivate = iota
	mountBind
	mountProc
	mountCount
)
