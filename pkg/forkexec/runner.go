package forkexec

import (
	"syscall"
)

// Runner describes one launch: the new root, the command executed as init
// and the identity of the environment around it.
type Runner struct {
	// Root is the absolute path of the directory that becomes "/" for init
	Root string

	// PutOld is the name of the scratch directory under Root where the old
	// root is parked during pivot_root. It is removed before execve.
	PutOld string

	// Mode is applied to Root, PutOld and the fresh /proc mount point
	Mode uint32

	// HostName set after unshare uts namespace, empty keeps the inherited one
	HostName string

	// Path, argv and env for the execve syscall of init
	Path string
	Args []string
	Env  []string

	// Files are descriptors 0, 1 and 2 of init
	Files []uintptr

	// seccomp syscall filter loaded by init before execve, no_new_privs
	// is set when it is present
	Seccomp *syscall.SockFprog
}

// Channels are the descriptors of the caller that the holder inherits.
// The holder sees them at fixed numbers 3, 4 and 5; every other descriptor
// above 2 is closed in the holder.
type Channels struct {
	// Send carries tokens from the holder to the caller
	Send uintptr
	// Recv carries the acknowledgement token from the caller to the holder
	Recv uintptr
	// Report carries Report records from the holder and init
	Report uintptr
}
