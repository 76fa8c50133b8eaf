// Package forkexec forks the holder and init processes of an isolated launch.
//
// The holder is a raw clone of the calling process. It never returns to the
// Go runtime: everything it and its own child (init) do is a sequence of raw
// system calls over memory prepared before the fork. The holder unshares the
// user, pid and network namespaces, waits for the caller to install its id
// maps and then forks init as pid 1 of the new pid namespace. Init becomes
// root in the user namespace, unshares the mount and uts namespaces, switches
// into the new root, mounts a fresh /proc, sets the hostname and executes the
// command.
//
// Failures inside either process are written to the report pipe as Report
// records before the process exits with the errno as its status.
//
// unshare user namespace requires kernel >= 3.8
// close_range requires kernel >= 5.9, older kernels fall back to close loop
// pipe2, dup3 requires kernel >= 2.6.27
package forkexec
