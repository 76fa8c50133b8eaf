// Package container launches a command in a freshly isolated environment.
//
// # Overview
//
// A launch involves three processes. The calling process (the
// orchestrator), a namespace holder forked from it, and init, the first
// process of the holder's new pid namespace. Init ends up as root of a new
// user namespace, with its own network, mount and uts namespaces, the
// directory <context_dir>/rootfs as its root and a fresh /proc, and then
// executes the configured command.
//
// # Protocol
//
// The holder and the orchestrator share two one-way barrier pipes (outer
// channel) and a report pipe. The holder and init share one barrier pipe
// (inner channel). A token is two bytes, its content is ignored.
//
//   - holder: unshare user, pid and network namespaces, send token
//   - orchestrator: write uid_map, setgroups, gid_map of the holder, send ack
//   - holder: fork init, wait on the inner channel
//   - init: setgid(0), setuid(0), unshare mount and uts namespaces, pivot
//     into rootfs, mount /proc, set hostname, send token, execve
//   - holder: report init pid, send ready token, wait for init
//   - holder: report the wait status of init, send terminal token, exit 0
//
// A process that fails a step writes a fault record on the report pipe and
// exits. The orchestrator sees a broken barrier, reads the records and
// returns the first fault as a *forkexec.ChildError.
package container
