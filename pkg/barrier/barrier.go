// Package barrier provides the one-shot rendezvous used between the launch
// roles.
//
// A barrier is a pipe on which the sender writes a fixed Size byte token once
// its preceding stage is complete. The reader is released when exactly Size
// bytes have arrived. The token content carries no meaning and is not checked.
//
// Signal and Wait are for ordinary Go code. RawSignal and RawWait are safe to
// call from a forked child that must not re-enter the Go runtime.
package barrier

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// Size is the length of a barrier token in bytes
const Size = 2

var token = [Size]byte{'O', 'K'}

// ErrBroken is reported when the peer closed its end before a whole token
// was transferred
var ErrBroken = errors.New("barrier: broken")

// Pipe is a blocking pipe2(O_CLOEXEC) pair, p[0] is the read end and p[1]
// the write end. A closed end is set to -1.
type Pipe [2]int

// New creates a barrier pipe. The descriptors are raw and blocking so they
// can be handed to a forked child as is.
func New() (Pipe, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		return Pipe{-1, -1}, fmt.Errorf("barrier: pipe2: %w", err)
	}
	return Pipe(p), nil
}

// Reader returns the read end
func (p Pipe) Reader() int { return p[0] }

// Writer returns the write end
func (p Pipe) Writer() int { return p[1] }

// CloseReader closes the read end if it is still open
func (p *Pipe) CloseReader() error {
	return closeEnd(&p[0])
}

// CloseWriter closes the write end if it is still open
func (p *Pipe) CloseWriter() error {
	return closeEnd(&p[1])
}

// Close closes both ends
func (p *Pipe) Close() error {
	err := p.CloseReader()
	if err1 := p.CloseWriter(); err == nil {
		err = err1
	}
	return err
}

func closeEnd(fd *int) error {
	if *fd < 0 {
		return nil
	}
	err := unix.Close(*fd)
	*fd = -1
	return err
}

// Signal writes one token to fd
func Signal(fd int) error {
	for {
		n, err := unix.Write(fd, token[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("barrier: signal: %w", err)
		}
		if n != Size {
			return fmt.Errorf("%w: short write of %d bytes", ErrBroken, n)
		}
		return nil
	}
}

// Wait blocks until one whole token is read from fd
func Wait(fd int) error {
	var (
		buf [Size]byte
		got int
	)
	for got < Size {
		n, err := unix.Read(fd, buf[got:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("barrier: wait: %w", err)
		}
		if n == 0 {
			if got == 0 {
				return fmt.Errorf("%w: %w", ErrBroken, io.EOF)
			}
			return fmt.Errorf("%w: %w", ErrBroken, io.ErrUnexpectedEOF)
		}
		got += n
	}
	return nil
}
