package seccomp

import (
	"syscall"
)

// Filter is the BPF seccomp filter value
type Filter []syscall.SockFilter

// SockFprog converts Filter to SockFprog for seccomp syscall, nil if the
// filter is empty
func (f Filter) SockFprog() *syscall.SockFprog {
	b := []syscall.SockFilter(f)
	if len(b) == 0 {
		return nil
	}
	return &syscall.SockFprog{
		Len:    uint16(len(b)),
		Filter: &b[0],
	}
}
