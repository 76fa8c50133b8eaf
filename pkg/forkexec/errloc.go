package forkexec

import (
	"fmt"
	"syscall"
)

// Role names the process a fault happened in
type Role int32

// Role constants
const (
	RoleHolder Role = iota + 1
	RoleInit
)

func (r Role) String() string {
	switch r {
	case RoleHolder:
		return "holder"
	case RoleInit:
		return "init"
	default:
		return "unknown"
	}
}

// Location defines the step where the holder or init failed
type Location int32

// Location constants
const (
	LocParentDeath Location = iota + 1
	LocDup3
	LocFcntl
	LocCloseRange
	LocChmodRoot
	LocUnshareHolder
	LocOuterSignal
	LocOuterWait
	LocInnerPipe
	LocForkInit
	LocCloseInner
	LocInnerWait
	LocReport
	LocWaitInit
	LocCloseOuter
	LocSetGid
	LocSetUid
	LocUnshareInit
	LocMountPrivate
	LocMountBind
	LocPutOldRemove
	LocPutOldMkdir
	LocPutOldChmod
	LocPivotRoot
	LocChdir
	LocProcRemove
	LocProcMkdir
	LocProcChmod
	LocMountProc
	LocUmountPutOld
	LocPutOldRmdir
	LocSetHostname
	LocNoNewPrivs
	LocSeccomp
	LocInnerSignal
	LocExecve
)

var locToString = []string{
	"unknown",
	"pdeathsig",
	"dup3",
	"fcntl",
	"close_range",
	"chmod_root",
	"unshare_holder",
	"outer_signal",
	"outer_wait",
	"inner_pipe",
	"fork_init",
	"close_inner",
	"inner_wait",
	"report",
	"wait_init",
	"close_outer",
	"setgid",
	"setuid",
	"unshare_init",
	"mount_private",
	"mount_bind",
	"put_old_remove",
	"put_old_mkdir",
	"put_old_chmod",
	"pivot_root",
	"chdir",
	"proc_remove",
	"proc_mkdir",
	"proc_chmod",
	"mount_proc",
	"umount_put_old",
	"put_old_rmdir",
	"sethostname",
	"no_new_privs",
	"seccomp",
	"inner_signal",
	"execve",
}

func (e Location) String() string {
	if e >= LocParentDeath && e <= LocExecve {
		return locToString[e]
	}
	return "unknown"
}

// Class groups a fault location into the kind of failure it represents
type Class string

// Class constants
const (
	ClassSetup     Class = "setup"
	ClassNamespace Class = "namespace"
	ClassSync      Class = "sync"
	ClassIdentity  Class = "identity"
	ClassFork      Class = "fork"
	ClassMount     Class = "mount"
	ClassExec      Class = "exec"
)

// Class returns the failure class of the location
func (e Location) Class() Class {
	switch e {
	case LocUnshareHolder, LocUnshareInit:
		return ClassNamespace
	case LocOuterSignal, LocOuterWait, LocInnerPipe, LocInnerWait, LocInnerSignal, LocReport:
		return ClassSync
	case LocSetGid, LocSetUid:
		return ClassIdentity
	case LocForkInit, LocWaitInit:
		return ClassFork
	case LocMountPrivate, LocMountBind, LocPutOldRemove, LocPutOldMkdir, LocPutOldChmod,
		LocPivotRoot, LocChdir, LocProcRemove, LocProcMkdir, LocProcChmod, LocMountProc,
		LocUmountPutOld, LocPutOldRmdir:
		return ClassMount
	case LocSetHostname, LocNoNewPrivs, LocSeccomp, LocExecve:
		return ClassExec
	default:
		return ClassSetup
	}
}

// ChildError defines the specific error, process and location where the
// launch failed
type ChildError struct {
	Err      syscall.Errno
	Role     Role
	Location Location
}

func (e ChildError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Role, e.Location, e.Err.Error())
}

// Unwrap returns the errno so that errors.Is matches syscall errors
func (e ChildError) Unwrap() error {
	return e.Err
}
