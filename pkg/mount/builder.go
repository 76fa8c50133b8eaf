package mount

import (
	"strings"

	"golang.org/x/sys/unix"
)

// Builder builds fork_exec friendly mount syscall format
type Builder struct {
	Mounts []Mount
}

// NewBuilder creates new mount builder instance
func NewBuilder() *Builder {
	return &Builder{}
}

// Build creates sequence of syscalls for fork_exec
func (b *Builder) Build() ([]SyscallParams, error) {
	ret := make([]SyscallParams, 0, len(b.Mounts))
	for _, m := range b.Mounts {
		sp, err := m.ToSyscall()
		if err != nil {
			return nil, err
		}
		ret = append(ret, *sp)
	}
	return ret, nil
}

// WithPrivateRoot marks the whole mount tree under target as recursively
// private so no mount event propagates to or from the original namespace
func (b *Builder) WithPrivateRoot(target string) *Builder {
	b.Mounts = append(b.Mounts, Mount{
		Source: "none",
		Target: target,
		Flags:  unix.MS_REC | unix.MS_PRIVATE,
	})
	return b
}

// WithBind adds a bind mount to builder. Binding a directory onto itself
// turns it into a mount point.
func (b *Builder) WithBind(source, target string) *Builder {
	b.Mounts = append(b.Mounts, Mount{
		Source: source,
		Target: target,
		Flags:  unix.MS_BIND,
	})
	return b
}

// WithProc add proc file system
func (b *Builder) WithProc(target string) *Builder {
	b.Mounts = append(b.Mounts, Mount{
		Source: "proc",
		Target: target,
		FsType: "proc",
	})
	return b
}

func (b Builder) String() string {
	var sb strings.Builder
	sb.WriteString("Mounts: ")
	for i, m := range b.Mounts {
		sb.WriteString(m.String())
		if i != len(b.Mounts)-1 {
			sb.WriteString(", ")
		}
	}
	return sb.String()
}
