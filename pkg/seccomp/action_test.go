package seccomp

import (
	"syscall"
	"testing"
)

func TestActionReturnCode(t *testing.T) {
	a := ActionErrno.WithReturnCode(int16(syscall.EPERM))
	if a.Action() != ActionErrno {
		t.Errorf("action = %v", a.Action())
	}
	if a.ReturnCode() != int16(syscall.EPERM) {
		t.Errorf("return code = %d", a.ReturnCode())
	}
	if a.String() != "errno" {
		t.Errorf("string = %s", a)
	}
}

func TestActionString(t *testing.T) {
	for a, s := range map[Action]string{
		0:            "invalid",
		ActionAllow:  "allow",
		ActionKill:   "kill",
		Action(0x99): "invalid",
	} {
		if a.String() != s {
			t.Errorf("%d: got %s, want %s", a, a.String(), s)
		}
	}
}

func TestEmptyFilter(t *testing.T) {
	if Filter(nil).SockFprog() != nil {
		t.Error("empty filter should not produce a program")
	}
}
