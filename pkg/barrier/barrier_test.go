package barrier

import (
	"errors"
	"io"
	"syscall"
	"testing"

	"golang.org/x/sys/unix"
	"gotest.tools/v3/assert"
)

func newPipe(t *testing.T) *Pipe {
	t.Helper()
	p, err := New()
	assert.NilError(t, err)
	t.Cleanup(func() { p.Close() })
	return &p
}

func TestSignalWait(t *testing.T) {
	p := newPipe(t)
	assert.NilError(t, Signal(p.Writer()))
	assert.NilError(t, Wait(p.Reader()))
}

func TestWaitReleasedOncePerToken(t *testing.T) {
	p := newPipe(t)
	assert.NilError(t, Signal(p.Writer()))
	assert.NilError(t, Signal(p.Writer()))
	assert.NilError(t, Wait(p.Reader()))
	assert.NilError(t, Wait(p.Reader()))

	assert.NilError(t, p.CloseWriter())
	err := Wait(p.Reader())
	assert.Assert(t, errors.Is(err, ErrBroken))
}

func TestWaitEOF(t *testing.T) {
	p := newPipe(t)
	assert.NilError(t, p.CloseWriter())

	err := Wait(p.Reader())
	assert.Assert(t, errors.Is(err, ErrBroken), "got %v", err)
	assert.Assert(t, errors.Is(err, io.EOF), "got %v", err)
}

func TestWaitShortRead(t *testing.T) {
	p := newPipe(t)
	_, err := unix.Write(p.Writer(), []byte{'O'})
	assert.NilError(t, err)
	assert.NilError(t, p.CloseWriter())

	err = Wait(p.Reader())
	assert.Assert(t, errors.Is(err, ErrBroken), "got %v", err)
	assert.Assert(t, errors.Is(err, io.ErrUnexpectedEOF), "got %v", err)
}

func TestTokenContentIgnored(t *testing.T) {
	p := newPipe(t)
	_, err := unix.Write(p.Writer(), []byte{0, 0})
	assert.NilError(t, err)
	assert.NilError(t, Wait(p.Reader()))
}

func TestSignalClosedReader(t *testing.T) {
	p := newPipe(t)
	assert.NilError(t, p.CloseReader())

	// the runtime turns SIGPIPE into EPIPE for descriptors other than 1 and 2
	err := Signal(p.Writer())
	assert.Assert(t, errors.Is(err, syscall.EPIPE), "got %v", err)
}

func TestRawRoundTrip(t *testing.T) {
	p := newPipe(t)
	assert.Equal(t, RawSignal(p.Writer()), syscall.Errno(0))
	assert.Equal(t, RawWait(p.Reader()), syscall.Errno(0))
}

func TestRawWaitEOF(t *testing.T) {
	p := newPipe(t)
	_, err := unix.Write(p.Writer(), []byte{'O'})
	assert.NilError(t, err)
	assert.NilError(t, p.CloseWriter())
	assert.Equal(t, RawWait(p.Reader()), syscall.EPIPE)
}

func TestCloseIdempotent(t *testing.T) {
	p := newPipe(t)
	assert.NilError(t, p.Close())
	assert.NilError(t, p.Close())
	assert.Equal(t, p.Reader(), -1)
	assert.Equal(t, p.Writer(), -1)
}
