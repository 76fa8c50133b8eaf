package forkexec

import (
	"io"
	"syscall"
	"testing"

	"golang.org/x/sys/unix"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func newPipe(t *testing.T) (int, int) {
	t.Helper()
	var p [2]int
	assert.NilError(t, unix.Pipe2(p[:], unix.O_CLOEXEC))
	t.Cleanup(func() {
		unix.Close(p[0])
		unix.Close(p[1])
	})
	return p[0], p[1]
}

func TestReportRoundTrip(t *testing.T) {
	r, w := newPipe(t)
	want := []Report{
		{Kind: ReportReady, Role: RoleHolder, Pid: 42},
		{Kind: ReportFault, Role: RoleInit, Location: LocExecve, Err: syscall.ENOENT},
		{Kind: ReportExit, Role: RoleHolder, Pid: 42, Status: syscall.WaitStatus(7 << 8)},
	}
	for _, rep := range want {
		assert.NilError(t, WriteReport(w, rep))
	}
	for _, rep := range want {
		got, err := ReadReport(r)
		assert.NilError(t, err)
		assert.Equal(t, got, rep)
	}

	unix.Close(w)
	_, err := ReadReport(r)
	assert.Equal(t, err, io.EOF)
}

func TestReportTruncated(t *testing.T) {
	r, w := newPipe(t)
	_, err := unix.Write(w, make([]byte, ReportSize-1))
	assert.NilError(t, err)
	unix.Close(w)

	_, err = ReadReport(r)
	assert.Equal(t, err, io.ErrUnexpectedEOF)
}

func TestReportFits(t *testing.T) {
	// records must be written atomically on a pipe
	const pipeBuf = 4096
	assert.Assert(t, ReportSize <= pipeBuf, "size %d", ReportSize)
}

func TestReportChildError(t *testing.T) {
	fault := Report{Kind: ReportFault, Role: RoleHolder, Location: LocOuterWait, Err: syscall.EPIPE}
	ce := fault.ChildError()
	assert.Assert(t, ce != nil)
	assert.Check(t, is.Equal(ce.Location, LocOuterWait))
	assert.Check(t, is.Equal(ce.Err, syscall.EPIPE))
	assert.Check(t, is.Contains(fault.String(), "holder: outer_wait"))

	ready := Report{Kind: ReportReady, Pid: 9}
	assert.Check(t, ready.ChildError() == nil)
	assert.Check(t, is.Equal(ready.String(), "Report[ready,pid=9]"))
}
