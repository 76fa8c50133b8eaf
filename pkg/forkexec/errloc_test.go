package forkexec

import (
	"errors"
	"syscall"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestLocationString(t *testing.T) {
	assert.Equal(t, len(locToString), int(LocExecve)+1)
	assert.Equal(t, LocParentDeath.String(), "pdeathsig")
	assert.Equal(t, LocPivotRoot.String(), "pivot_root")
	assert.Equal(t, LocExecve.String(), "execve")
	assert.Equal(t, Location(0).String(), "unknown")
	assert.Equal(t, Location(1000).String(), "unknown")
}

func TestLocationClass(t *testing.T) {
	for _, tc := range []struct {
		loc  Location
		want Class
	}{
		{LocDup3, ClassSetup},
		{LocCloseRange, ClassSetup},
		{LocUnshareHolder, ClassNamespace},
		{LocUnshareInit, ClassNamespace},
		{LocOuterWait, ClassSync},
		{LocInnerSignal, ClassSync},
		{LocSetUid, ClassIdentity},
		{LocForkInit, ClassFork},
		{LocMountProc, ClassMount},
		{LocUmountPutOld, ClassMount},
		{LocSeccomp, ClassExec},
		{LocExecve, ClassExec},
	} {
		t.Run(tc.loc.String(), func(t *testing.T) {
			assert.Equal(t, tc.loc.Class(), tc.want)
		})
	}
}

func TestChildError(t *testing.T) {
	err := error(&ChildError{Err: syscall.EPERM, Role: RoleInit, Location: LocPivotRoot})
	assert.Equal(t, err.Error(), "init: pivot_root: operation not permitted")
	assert.Assert(t, errors.Is(err, syscall.EPERM))

	var ce *ChildError
	assert.Assert(t, errors.As(err, &ce))
	assert.Equal(t, ce.Role, RoleInit)
	assert.Check(t, is.Equal(Role(0).String(), "unknown"))
	assert.Check(t, is.Equal(RoleHolder.String(), "holder"))
}
