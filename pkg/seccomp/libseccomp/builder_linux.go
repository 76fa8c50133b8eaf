// Package libseccomp assembles seccomp filters with go-seccomp-bpf
package libseccomp

import (
	"fmt"
	"syscall"

	"github.com/criyle/go-isoproc/pkg/seccomp"
	libseccomp "github.com/elastic/go-seccomp-bpf"
	"golang.org/x/net/bpf"
)

// Builder is used to build the filter
type Builder struct {
	Allow, Deny []string
	Default     seccomp.Action

	// DenyAction applies to Deny, errno EPERM if zero
	DenyAction seccomp.Action
}

var actDeny = seccomp.ActionErrno.WithReturnCode(int16(syscall.EPERM))

// Build builds the filter. Without any Allow or Deny entry there is
// nothing to filter and the result is nil.
func (b *Builder) Build() (seccomp.Filter, error) {
	policy := libseccomp.Policy{
		DefaultAction: ToSeccompAction(b.Default),
	}
	if len(b.Allow) > 0 {
		policy.Syscalls = append(policy.Syscalls, libseccomp.SyscallGroup{
			Action: libseccomp.ActionAllow,
			Names:  b.Allow,
		})
	}
	if len(b.Deny) > 0 {
		deny := b.DenyAction
		if deny == 0 {
			deny = actDeny
		}
		policy.Syscalls = append(policy.Syscalls, libseccomp.SyscallGroup{
			Action: ToSeccompAction(deny),
			Names:  b.Deny,
		})
	}
	if len(policy.Syscalls) == 0 {
		return nil, nil
	}
	program, err := policy.Assemble()
	if err != nil {
		return nil, fmt.Errorf("seccomp: assemble policy: %w", err)
	}
	return ExportBPF(program)
}

// ExportBPF convert assembled instructions to kernel readable BPF content
func ExportBPF(program []bpf.Instruction) (seccomp.Filter, error) {
	raw, err := bpf.Assemble(program)
	if err != nil {
		return nil, fmt.Errorf("seccomp: assemble bpf: %w", err)
	}
	filter := make(seccomp.Filter, 0, len(raw))
	for _, ins := range raw {
		filter = append(filter, syscall.SockFilter{
			Code: ins.Op,
			Jt:   ins.Jt,
			Jf:   ins.Jf,
			K:    ins.K,
		})
	}
	return filter, nil
}
