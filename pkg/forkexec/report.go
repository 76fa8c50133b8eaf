package forkexec

import (
	"fmt"
	"io"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ReportKind is the type of a Report record
type ReportKind int32

// ReportKind constants
const (
	// ReportFault is written by the holder or init right before it exits
	// because a step failed
	ReportFault ReportKind = iota + 1
	// ReportReady carries the pid of init once its environment is ready
	ReportReady
	// ReportExit carries the wait status of init after it terminated
	ReportExit
)

func (k ReportKind) String() string {
	switch k {
	case ReportFault:
		return "fault"
	case ReportReady:
		return "ready"
	case ReportExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Report is the fixed-size record written on the report pipe. Records are
// smaller than PIPE_BUF so writes from the holder and init never interleave.
type Report struct {
	Kind     ReportKind
	Role     Role
	Location Location
	Pid      int32
	Status   syscall.WaitStatus
	Err      syscall.Errno
}

// ReportSize is the encoded size of one Report
const ReportSize = int(unsafe.Sizeof(Report{}))

// ChildError returns the fault carried by a ReportFault record, otherwise nil
func (r Report) ChildError() *ChildError {
	if r.Kind != ReportFault {
		return nil
	}
	return &ChildError{Err: r.Err, Role: r.Role, Location: r.Location}
}

func (r Report) String() string {
	switch r.Kind {
	case ReportFault:
		return fmt.Sprintf("Report[fault,%v]", r.ChildError())
	case ReportReady:
		return fmt.Sprintf("Report[ready,pid=%d]", r.Pid)
	case ReportExit:
		return fmt.Sprintf("Report[exit,pid=%d,status=%#x]", r.Pid, uint32(r.Status))
	default:
		return fmt.Sprintf("Report[%d]", r.Kind)
	}
}

// ReadReport reads one record from fd. It returns io.EOF when the pipe is
// closed on a record boundary and io.ErrUnexpectedEOF inside a record.
func ReadReport(fd int) (Report, error) {
	var r Report
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&r)), ReportSize)
	got := 0
	for got < len(buf) {
		n, err := unix.Read(fd, buf[got:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return Report{}, fmt.Errorf("forkexec: read report: %w", err)
		}
		if n == 0 {
			if got == 0 {
				return Report{}, io.EOF
			}
			return Report{}, io.ErrUnexpectedEOF
		}
		got += n
	}
	return r, nil
}

// WriteReport writes one record to fd. It is used by tests and callers that
// forward records, the holder and init use rawReport.
func WriteReport(fd int, r Report) error {
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&r)), ReportSize)
	for {
		n, err := unix.Write(fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("forkexec: write report: %w", err)
		}
		if n != len(buf) {
			return fmt.Errorf("forkexec: write report: %w", io.ErrShortWrite)
		}
		return nil
	}
}
