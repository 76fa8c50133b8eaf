package barrier

import (
	"syscall"
	"unsafe"
)

// RawSignal writes one token to fd without calling into the Go runtime.
//
//go:nosplit
func RawSignal(fd int) syscall.Errno {
	r1, _, err1 := syscall.RawSyscall(syscall.SYS_WRITE, uintptr(fd), uintptr(unsafe.Pointer(&token[0])), Size)
	if err1 != 0 {
		return err1
	}
	if r1 != Size {
		return syscall.EPIPE
	}
	return 0
}

// RawWait reads one whole token from fd without calling into the Go runtime.
// A closed peer is reported as EPIPE.
//
//go:nosplit
func RawWait(fd int) syscall.Errno {
	var (
		buf [Size]byte
		got uintptr
	)
	for got < Size {
		r1, _, err1 := syscall.RawSyscall(syscall.SYS_READ, uintptr(fd), uintptr(unsafe.Pointer(&buf[got])), Size-got)
		if err1 == syscall.EINTR {
			continue
		}
		if err1 != 0 {
			return err1
		}
		if r1 == 0 {
			return syscall.EPIPE
		}
		got += r1
	}
	return 0
}
