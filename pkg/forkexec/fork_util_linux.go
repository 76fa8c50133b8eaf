package forkexec

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/criyle/go-isoproc/pkg/mount"
)

// params is everything the holder and init touch after the fork
type params struct {
	root         *byte
	putOld       *byte
	putOldInRoot *byte
	mode         uintptr

	hostname    *byte
	hostnameLen uintptr

	path *byte
	argv []*byte
	env  []*byte

	fd     []int
	nextfd int

	mounts  []mount.SyscallParams
	seccomp *syscall.SockFprog
}

func (r *Runner) prepare(ch Channels) (*params, error) {
	if !filepath.IsAbs(r.Root) {
		return nil, fmt.Errorf("forkexec: root %q is not an absolute path", r.Root)
	}
	if r.PutOld == "" || strings.ContainsRune(r.PutOld, '/') {
		return nil, fmt.Errorf("forkexec: put_old %q is not a single path element", r.PutOld)
	}
	if len(r.Files) != 3 {
		return nil, fmt.Errorf("forkexec: expected 3 files for stdio, got %d", len(r.Files))
	}
	if r.Path == "" {
		return nil, errors.New("forkexec: empty path")
	}

	path, argv, env, err := prepareExec(r.Path, r.Args, r.Env)
	if err != nil {
		return nil, err
	}
	root, err := syscall.BytePtrFromString(r.Root)
	if err != nil {
		return nil, err
	}
	putOld, err := syscall.BytePtrFromString(filepath.Join(r.Root, r.PutOld))
	if err != nil {
		return nil, err
	}
	putOldInRoot, err := syscall.BytePtrFromString("/" + r.PutOld)
	if err != nil {
		return nil, err
	}
	hostname, err := syscallStringFromString(r.HostName)
	if err != nil {
		return nil, err
	}
	mounts, err := r.MountPlan().Build()
	if err != nil {
		return nil, err
	}
	if len(mounts) != mountCount {
		return nil, fmt.Errorf("forkexec: expected %d mounts, got %d", mountCount, len(mounts))
	}

	files := make([]uintptr, 0, fdFirstFree)
	files = append(files, r.Files...)
	files = append(files, ch.Send, ch.Recv, ch.Report)
	fd, nextfd := prepareFds(files)

	return &params{
		root:         root,
		putOld:       putOld,
		putOldInRoot: putOldInRoot,
		mode:         uintptr(r.Mode),
		hostname:     hostname,
		hostnameLen:  uintptr(len(r.HostName)),
		path:         path,
		argv:         argv,
		env:          env,
		fd:           fd,
		nextfd:       nextfd,
		mounts:       mounts,
		seccomp:      r.Seccomp,
	}, nil
}

// MountPlan returns the mounts init performs, in order: make the whole tree
// private, bind Root onto itself and mount proc after the pivot
func (r *Runner) MountPlan() *mount.Builder {
	return mount.NewBuilder().
		WithPrivateRoot("/").
		WithBind(r.Root, r.Root).
		WithProc("/proc")
}

// prepareExec prepares execve parameters
func prepareExec(path string, args, env []string) (*byte, []*byte, []*byte, error) {
	path0, err := syscall.BytePtrFromString(path)
	if err != nil {
		return nil, nil, nil, err
	}
	argv, err := syscall.SlicePtrFromStrings(args)
	if err != nil {
		return nil, nil, nil, err
	}
	envv, err := syscall.SlicePtrFromStrings(env)
	if err != nil {
		return nil, nil, nil, err
	}
	return path0, argv, envv, nil
}

// prepareFds prepares fd array, nextfd is above every fd in it
func prepareFds(files []uintptr) ([]int, int) {
	fd := make([]int, len(files))
	nextfd := len(files)
	for i, ufd := range files {
		if nextfd < int(ufd) {
			nextfd = int(ufd)
		}
		fd[i] = int(ufd)
	}
	nextfd++
	return fd, nextfd
}

// syscallStringFromString prepares *byte if string is not empty, other wise nil
func syscallStringFromString(str string) (*byte, error) {
	if str != "" {
		return syscall.BytePtrFromString(str)
	}
	return nil, nil
}
