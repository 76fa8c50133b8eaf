// Package mount describes mount syscalls in a form that can be issued from a
// forked child without allocation.
package mount

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// Mount defines syscall for mount points
type Mount struct {
	Source, Target, FsType, Data string
	Flags                        uintptr
}

// SyscallParams defines the raw syscall arguments to mount. Empty strings
// become nil pointers.
type SyscallParams struct {
	Source, Target, FsType, Data *byte
	Flags                        uintptr
}

// ToSyscall convert Mount to SyscallParams
func (m *Mount) ToSyscall() (*SyscallParams, error) {
	if m.Target == "" {
		return nil, fmt.Errorf("mount: empty target for %v", m)
	}
	source, err := bytePtrOrNil(m.Source)
	if err != nil {
		return nil, err
	}
	target, err := syscall.BytePtrFromString(m.Target)
	if err != nil {
		return nil, err
	}
	fsType, err := bytePtrOrNil(m.FsType)
	if err != nil {
		return nil, err
	}
	data, err := bytePtrOrNil(m.Data)
	if err != nil {
		return nil, err
	}
	return &SyscallParams{
		Source: source,
		Target: target,
		FsType: fsType,
		Flags:  m.Flags,
		Data:   data,
	}, nil
}

// IsBind reports whether m is a bind mount
func (m Mount) IsBind() bool {
	return m.Flags&unix.MS_BIND == unix.MS_BIND
}

// IsPropagation reports whether m only changes the propagation type of an
// existing mount
func (m Mount) IsPropagation() bool {
	return m.Flags&(unix.MS_PRIVATE|unix.MS_SLAVE|unix.MS_SHARED|unix.MS_UNBINDABLE) != 0 && !m.IsBind()
}

func (m Mount) String() string {
	switch {
	case m.IsBind():
		return fmt.Sprintf("bind[%s:%s]", m.Source, m.Target)

	case m.IsPropagation():
		kind := "private"
		if m.Flags&unix.MS_REC == unix.MS_REC {
			kind = "rprivate"
		}
		return fmt.Sprintf("%s[%s]", kind, m.Target)

	case m.FsType == "proc":
		return fmt.Sprintf("proc[%s]", m.Target)

	default:
		return fmt.Sprintf("mount[%s,%s:%s:%x,%s]", m.FsType, m.Source, m.Target, m.Flags, m.Data)
	}
}

func bytePtrOrNil(s string) (*byte, error) {
	if s == "" {
		return nil, nil
	}
	return syscall.BytePtrFromString(s)
}
