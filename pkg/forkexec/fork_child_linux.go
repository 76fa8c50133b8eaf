package forkexec

import (
	"syscall"
	"unsafe"

	"github.com/criyle/go-isoproc/pkg/barrier"
	"github.com/criyle/go-isoproc/pkg/mount"
	"golang.org/x/sys/unix"
)

// Reference to src/syscall/exec_linux.go
//
//go:norace
func forkAndLaunchInChild(p *params) (r1 uintptr, err1 syscall.Errno) {
	var (
		fd      = p.fd
		nextfd  = p.nextfd
		report  = fd[fdReport]
		inner   [2]int32
		initPid uintptr
		wstatus syscall.WaitStatus
		rlim    syscall.Rlimit
		m       *mount.SyscallParams
		flags   uintptr
		err2    syscall.Errno
	)

	// Acquire the fork lock so that no other threads
	// create new fds that are not yet close-on-exec
	// before we fork.
	syscall.ForkLock.Lock()

	// About to call fork.
	// No more allocation or calls of non-assembly functions.
	beforeFork()

	r1, _, err1 = syscall.RawSyscall6(syscall.SYS_CLONE, uintptr(syscall.SIGCHLD), 0, 0, 0, 0, 0)
	if err1 != 0 || r1 != 0 {
		// in parent process, immediate return
		return
	}

	// In holder process
	afterForkInChild()
	// Notice: cannot call any GO functions beyond this point

	// holder dies with the launching thread
	_, _, err1 = syscall.RawSyscall(syscall.SYS_PRCTL, syscall.PR_SET_PDEATHSIG, uintptr(syscall.SIGKILL), 0)
	if err1 != 0 {
		childFault(report, RoleHolder, LocParentDeath, err1)
	}

	// Pass 1: look for fd[i] < i and move those up above len(fd)
	// so that pass 2 won't stomp on an fd it needs later.
	for i := 0; i < len(fd); i++ {
		if fd[i] >= 0 && fd[i] < i {
			_, _, err1 = syscall.RawSyscall(syscall.SYS_DUP3, uintptr(fd[i]), uintptr(nextfd), syscall.O_CLOEXEC)
			if err1 != 0 {
				childFault(report, RoleHolder, LocDup3, err1)
			}
			if i == fdReport {
				report = nextfd
			}
			fd[i] = nextfd
			nextfd++
		}
	}

	// Pass 2: dup fd[i] down onto i. Channel slots keep close-on-exec.
	for i := 0; i < len(fd); i++ {
		flags = 0
		if i >= fdOuterSend {
			flags = syscall.O_CLOEXEC
		}
		if fd[i] == -1 {
			syscall.RawSyscall(syscall.SYS_CLOSE, uintptr(i), 0, 0)
			continue
		}
		if fd[i] == i {
			// dup3(i, i) will not clear close on exec flag, need to reset the flag
			if flags == 0 {
				_, _, err1 = syscall.RawSyscall(syscall.SYS_FCNTL, uintptr(fd[i]), syscall.F_SETFD, 0)
			} else {
				_, _, err1 = syscall.RawSyscall(syscall.SYS_FCNTL, uintptr(fd[i]), syscall.F_SETFD, syscall.FD_CLOEXEC)
			}
			if err1 != 0 {
				childFault(report, RoleHolder, LocFcntl, err1)
			}
			continue
		}
		_, _, err1 = syscall.RawSyscall(syscall.SYS_DUP3, uintptr(fd[i]), uintptr(i), flags)
		if err1 != 0 {
			childFault(report, RoleHolder, LocDup3, err1)
		}
		if i == fdReport {
			report = fdReport
		}
	}

	// close everything else, including descriptors of concurrent launches
	_, _, err1 = syscall.RawSyscall(unix.SYS_CLOSE_RANGE, fdFirstFree, uintptr(^uint32(0)), 0)
	if err1 == syscall.ENOSYS {
		_, _, err1 = syscall.RawSyscall6(unix.SYS_PRLIMIT64, 0, syscall.RLIMIT_NOFILE, 0, uintptr(unsafe.Pointer(&rlim)), 0, 0)
		if err1 != 0 {
			childFault(report, RoleHolder, LocCloseRange, err1)
		}
		for i := uint64(fdFirstFree); i < rlim.Cur; i++ {
			syscall.RawSyscall(syscall.SYS_CLOSE, uintptr(i), 0, 0)
		}
		err1 = 0
	}
	if err1 != 0 {
		childFault(report, RoleHolder, LocCloseRange, err1)
	}

	// the root has to be searchable after the switch to the new user
	_, _, err1 = syscall.RawSyscall6(syscall.SYS_FCHMODAT, uintptr(_AT_FDCWD), uintptr(unsafe.Pointer(p.root)), p.mode, 0, 0, 0)
	if err1 != 0 {
		childFault(report, RoleHolder, LocChmodRoot, err1)
	}

	_, _, err1 = syscall.RawSyscall(syscall.SYS_UNSHARE, holderUnshareFlags, 0, 0)
	if err1 != 0 {
		childFault(report, RoleHolder, LocUnshareHolder, err1)
	}

	// the caller writes uid_map / gid_map between these two tokens
	if err1 = barrier.RawSignal(fdOuterSend); err1 != 0 {
		childFault(report, RoleHolder, LocOuterSignal, err1)
	}
	if err1 = barrier.RawWait(fdOuterRecv); err1 != 0 {
		childFault(report, RoleHolder, LocOuterWait, err1)
	}

	_, _, err1 = syscall.RawSyscall(syscall.SYS_PIPE2, uintptr(unsafe.Pointer(&inner[0])), syscall.O_CLOEXEC, 0)
	if err1 != 0 {
		childFault(report, RoleHolder, LocInnerPipe, err1)
	}

	// init is the first process of the new pid namespace
	initPid, _, err1 = syscall.RawSyscall6(syscall.SYS_CLONE, uintptr(syscall.SIGCHLD), 0, 0, 0, 0, 0)
	if err1 != 0 {
		childFault(report, RoleHolder, LocForkInit, err1)
	}

	if initPid != 0 {
		// In holder process
		_, _, err1 = syscall.RawSyscall(syscall.SYS_CLOSE, uintptr(inner[1]), 0, 0)
		if err1 != 0 {
			childFault(report, RoleHolder, LocCloseInner, err1)
		}
		if err1 = barrier.RawWait(int(inner[0])); err1 != 0 {
			// init has exited, reap it before giving up
			for {
				_, _, err2 = syscall.RawSyscall6(syscall.SYS_WAIT4, initPid, uintptr(unsafe.Pointer(&wstatus)), 0, 0, 0, 0)
				if err2 != syscall.EINTR {
					break
				}
			}
			childFault(report, RoleHolder, LocInnerWait, err1)
		}

		if err1 = rawReport(report, ReportReady, initPid, 0); err1 != 0 {
			childFault(report, RoleHolder, LocReport, err1)
		}
		if err1 = barrier.RawSignal(fdOuterSend); err1 != 0 {
			childFault(report, RoleHolder, LocOuterSignal, err1)
		}

		for {
			_, _, err1 = syscall.RawSyscall6(syscall.SYS_WAIT4, initPid, uintptr(unsafe.Pointer(&wstatus)), 0, 0, 0, 0)
			if err1 != syscall.EINTR {
				break
			}
		}
		if err1 != 0 {
			childFault(report, RoleHolder, LocWaitInit, err1)
		}

		if err1 = rawReport(report, ReportExit, initPid, wstatus); err1 != 0 {
			childFault(report, RoleHolder, LocReport, err1)
		}
		if err1 = barrier.RawSignal(fdOuterSend); err1 != 0 {
			childFault(report, RoleHolder, LocOuterSignal, err1)
		}
		for {
			syscall.RawSyscall(syscall.SYS_EXIT, 0, 0, 0)
		}
	}

	// In init process
	_, _, err1 = syscall.RawSyscall(syscall.SYS_CLOSE, uintptr(inner[0]), 0, 0)
	if err1 != 0 {
		childFault(report, RoleInit, LocCloseInner, err1)
	}
	_, _, err1 = syscall.RawSyscall(syscall.SYS_CLOSE, fdOuterSend, 0, 0)
	if err1 != 0 {
		childFault(report, RoleInit, LocCloseOuter, err1)
	}
	_, _, err1 = syscall.RawSyscall(syscall.SYS_CLOSE, fdOuterRecv, 0, 0)
	if err1 != 0 {
		childFault(report, RoleInit, LocCloseOuter, err1)
	}

	// become root of the user namespace
	_, _, err1 = syscall.RawSyscall(syscall.SYS_SETGID, 0, 0, 0)
	if err1 != 0 {
		childFault(report, RoleInit, LocSetGid, err1)
	}
	_, _, err1 = syscall.RawSyscall(syscall.SYS_SETUID, 0, 0, 0)
	if err1 != 0 {
		childFault(report, RoleInit, LocSetUid, err1)
	}

	// credential change clears the parent death signal
	_, _, err1 = syscall.RawSyscall(syscall.SYS_PRCTL, syscall.PR_SET_PDEATHSIG, uintptr(syscall.SIGKILL), 0)
	if err1 != 0 {
		childFault(report, RoleInit, LocParentDeath, err1)
	}

	_, _, err1 = syscall.RawSyscall(syscall.SYS_UNSHARE, initUnshareFlags, 0, 0)
	if err1 != 0 {
		childFault(report, RoleInit, LocUnshareInit, err1)
	}

	// mount("none", "/", NULL, MS_REC | MS_PRIVATE, NULL)
	m = &p.mounts[mountPrivate]
	_, _, err1 = syscall.RawSyscall6(syscall.SYS_MOUNT, uintptr(unsafe.Pointer(m.Source)), uintptr(unsafe.Pointer(m.Target)),
		uintptr(unsafe.Pointer(m.FsType)), m.Flags, uintptr(unsafe.Pointer(m.Data)), 0)
	if err1 != 0 {
		childFault(report, RoleInit, LocMountPrivate, err1)
	}

	// pivot_root requires the new root to be a mount point
	m = &p.mounts[mountBind]
	_, _, err1 = syscall.RawSyscall6(syscall.SYS_MOUNT, uintptr(unsafe.Pointer(m.Source)), uintptr(unsafe.Pointer(m.Target)),
		uintptr(unsafe.Pointer(m.FsType)), m.Flags, uintptr(unsafe.Pointer(m.Data)), 0)
	if err1 != 0 {
		childFault(report, RoleInit, LocMountBind, err1)
	}

	// stale put_old from an earlier launch
	_, _, err1 = syscall.RawSyscall(syscall.SYS_UNLINKAT, uintptr(_AT_FDCWD), uintptr(unsafe.Pointer(p.putOld)), unix.AT_REMOVEDIR)
	if err1 != 0 && err1 != syscall.ENOENT {
		childFault(report, RoleInit, LocPutOldRemove, err1)
	}
	_, _, err1 = syscall.RawSyscall(syscall.SYS_MKDIRAT, uintptr(_AT_FDCWD), uintptr(unsafe.Pointer(p.putOld)), p.mode)
	if err1 != 0 {
		childFault(report, RoleInit, LocPutOldMkdir, err1)
	}
	// mkdir is subject to umask
	_, _, err1 = syscall.RawSyscall6(syscall.SYS_FCHMODAT, uintptr(_AT_FDCWD), uintptr(unsafe.Pointer(p.putOld)), p.mode, 0, 0, 0)
	if err1 != 0 {
		childFault(report, RoleInit, LocPutOldChmod, err1)
	}

	_, _, err1 = syscall.RawSyscall(syscall.SYS_PIVOT_ROOT, uintptr(unsafe.Pointer(p.root)), uintptr(unsafe.Pointer(p.putOld)), 0)
	if err1 != 0 {
		childFault(report, RoleInit, LocPivotRoot, err1)
	}
	_, _, err1 = syscall.RawSyscall(syscall.SYS_CHDIR, uintptr(unsafe.Pointer(&slash[0])), 0, 0)
	if err1 != 0 {
		childFault(report, RoleInit, LocChdir, err1)
	}

	// proc is mounted while the old root is still attached, otherwise the
	// kernel refuses a proc mount that would reveal more than the host's
	_, _, err1 = syscall.RawSyscall(syscall.SYS_UNLINKAT, uintptr(_AT_FDCWD), uintptr(unsafe.Pointer(&proc[0])), unix.AT_REMOVEDIR)
	if err1 != 0 && err1 != syscall.ENOENT {
		childFault(report, RoleInit, LocProcRemove, err1)
	}
	_, _, err1 = syscall.RawSyscall(syscall.SYS_MKDIRAT, uintptr(_AT_FDCWD), uintptr(unsafe.Pointer(&proc[0])), p.mode)
	if err1 != 0 {
		childFault(report, RoleInit, LocProcMkdir, err1)
	}
	_, _, err1 = syscall.RawSyscall6(syscall.SYS_FCHMODAT, uintptr(_AT_FDCWD), uintptr(unsafe.Pointer(&proc[0])), p.mode, 0, 0, 0)
	if err1 != 0 {
		childFault(report, RoleInit, LocProcChmod, err1)
	}
	m = &p.mounts[mountProc]
	_, _, err1 = syscall.RawSyscall6(syscall.SYS_MOUNT, uintptr(unsafe.Pointer(m.Source)), uintptr(unsafe.Pointer(m.Target)),
		uintptr(unsafe.Pointer(m.FsType)), m.Flags, uintptr(unsafe.Pointer(m.Data)), 0)
	if err1 != 0 {
		childFault(report, RoleInit, LocMountProc, err1)
	}

	_, _, err1 = syscall.RawSyscall(syscall.SYS_UMOUNT2, uintptr(unsafe.Pointer(p.putOldInRoot)), syscall.MNT_DETACH, 0)
	if err1 != 0 {
		childFault(report, RoleInit, LocUmountPutOld, err1)
	}
	_, _, err1 = syscall.RawSyscall(syscall.SYS_UNLINKAT, uintptr(_AT_FDCWD), uintptr(unsafe.Pointer(p.putOldInRoot)), unix.AT_REMOVEDIR)
	if err1 != 0 {
		childFault(report, RoleInit, LocPutOldRmdir, err1)
	}

	if p.hostname != nil {
		_, _, err1 = syscall.RawSyscall(syscall.SYS_SETHOSTNAME, uintptr(unsafe.Pointer(p.hostname)), p.hostnameLen, 0)
		if err1 != 0 {
			childFault(report, RoleInit, LocSetHostname, err1)
		}
	}

	// Load seccomp, write is still needed for the inner token and fault records
	if p.seccomp != nil {
		_, _, err1 = syscall.RawSyscall(syscall.SYS_PRCTL, unix.PR_SET_NO_NEW_PRIVS, 1, 0)
		if err1 != 0 {
			childFault(report, RoleInit, LocNoNewPrivs, err1)
		}
		_, _, err1 = syscall.RawSyscall(unix.SYS_SECCOMP, seccompSetModeFilter, 0, uintptr(unsafe.Pointer(p.seccomp)))
		if err1 != 0 {
			childFault(report, RoleInit, LocSeccomp, err1)
		}
	}

	if err1 = barrier.RawSignal(int(inner[1])); err1 != 0 {
		childFault(report, RoleInit, LocInnerSignal, err1)
	}

	_, _, err1 = syscall.RawSyscall(syscall.SYS_EXECVE,
		uintptr(unsafe.Pointer(p.path)),
		uintptr(unsafe.Pointer(&p.argv[0])),
		uintptr(unsafe.Pointer(&p.env[0])))
	childFault(report, RoleInit, LocExecve, err1)
	return
}

// rawReport writes a ready or exit record for init
//
//go:nosplit
func rawReport(report int, kind ReportKind, pid uintptr, status syscall.WaitStatus) syscall.Errno {
	r := Report{
		Kind:   kind,
		Role:   RoleHolder,
		Pid:    int32(pid),
		Status: status,
	}
	r1, _, err1 := syscall.RawSyscall(syscall.SYS_WRITE, uintptr(report), uintptr(unsafe.Pointer(&r)), unsafe.Sizeof(r))
	if err1 != 0 {
		return err1
	}
	if r1 != unsafe.Sizeof(r) {
		return syscall.EPIPE
	}
	return 0
}

// childFault reports the failed step and exits with the errno as status
//
//go:nosplit
func childFault(report int, role Role, loc Location, err syscall.Errno) {
	r := Report{
		Kind:     ReportFault,
		Role:     role,
		Location: loc,
		Err:      err,
	}
	syscall.RawSyscall(syscall.SYS_WRITE, uintptr(report), uintptr(unsafe.Pointer(&r)), unsafe.Sizeof(r))
	for {
		syscall.RawSyscall(syscall.SYS_EXIT, uintptr(err), 0, 0)
	}
}
