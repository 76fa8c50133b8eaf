package libseccomp

import (
	"github.com/criyle/go-isoproc/pkg/seccomp"
	libseccomp "github.com/elastic/go-seccomp-bpf"
)

// ToSeccompAction convert action to libseccomp compatible action
func ToSeccompAction(a seccomp.Action) libseccomp.Action {
	var action libseccomp.Action
	switch a.Action() {
	case seccomp.ActionAllow:
		action = libseccomp.ActionAllow
	case seccomp.ActionErrno:
		action = libseccomp.ActionErrno
	default:
		action = libseccomp.ActionKillProcess
	}
	// the least 16 bit of ret value is SECCOMP_RET_DATA
	if code := a.ReturnCode(); code != 0 {
		action |= libseccomp.Action(uint16(code))
	}
	return action
}
