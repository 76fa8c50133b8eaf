package forkexec

import (
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func testRunner() *Runner {
	return &Runner{
		Root:     "/srv/rootfs",
		PutOld:   ".put_old",
		Mode:     0o777,
		HostName: "isoproc",
		Path:     "/bin/sh",
		Args:     []string{"sh", "-i"},
		Env:      []string{"FOO=bar"},
		Files:    []uintptr{0, 1, 2},
	}
}

func TestPrepare(t *testing.T) {
	p, err := testRunner().prepare(Channels{Send: 10, Recv: 7, Report: 12})
	assert.NilError(t, err)
	assert.Check(t, is.DeepEqual(p.fd, []int{0, 1, 2, 10, 7, 12}))
	assert.Check(t, is.Equal(p.nextfd, 13))
	assert.Check(t, is.Len(p.mounts, mountCount))
	assert.Check(t, is.Equal(p.hostnameLen, uintptr(7)))
	assert.Check(t, is.Equal(p.mode, uintptr(0o777)))
	// argv and env are nil terminated
	assert.Check(t, is.Len(p.argv, 3))
	assert.Check(t, p.argv[2] == nil)
	assert.Check(t, is.Len(p.env, 2))
	assert.Check(t, p.seccomp == nil)
}

func TestPrepareEmptyHostName(t *testing.T) {
	r := testRunner()
	r.HostName = ""
	p, err := r.prepare(Channels{Send: 3, Recv: 4, Report: 5})
	assert.NilError(t, err)
	assert.Check(t, p.hostname == nil)
}

func TestPrepareInvalid(t *testing.T) {
	for name, modify := range map[string]func(r *Runner){
		"relative root":  func(r *Runner) { r.Root = "rootfs" },
		"nested put_old": func(r *Runner) { r.PutOld = "a/b" },
		"empty put_old":  func(r *Runner) { r.PutOld = "" },
		"missing stdio":  func(r *Runner) { r.Files = []uintptr{0} },
		"empty path":     func(r *Runner) { r.Path = "" },
		"nul in arg":     func(r *Runner) { r.Args = []string{"a\x00b"} },
	} {
		t.Run(name, func(t *testing.T) {
			r := testRunner()
			modify(r)
			_, err := r.prepare(Channels{Send: 3, Recv: 4, Report: 5})
			assert.Check(t, err != nil)
		})
	}
}

func TestPrepareFds(t *testing.T) {
	fd, nextfd := prepareFds([]uintptr{0, 1, 2, 3, 4, 5})
	assert.Check(t, is.DeepEqual(fd, []int{0, 1, 2, 3, 4, 5}))
	assert.Check(t, is.Equal(nextfd, 7))

	fd, nextfd = prepareFds([]uintptr{20, 1, 2})
	assert.Check(t, is.DeepEqual(fd, []int{20, 1, 2}))
	assert.Check(t, is.Equal(nextfd, 21))
}

func TestMountPlan(t *testing.T) {
	plan := testRunner().MountPlan()
	assert.Check(t, is.Equal(plan.String(), "Mounts: rprivate[/], bind[/srv/rootfs:/srv/rootfs], proc[/proc]"))
	params, err := plan.Build()
	assert.NilError(t, err)
	assert.Check(t, is.Len(params, mountCount))
}
