package container

import (
	"testing"

	"github.com/containerd/errdefs"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestStageForward(t *testing.T) {
	s := StageCreated
	for _, next := range []Stage{StageUnshared, StageIdentityMapped, StageReady, StageExited} {
		var err error
		s, err = s.transition(next)
		assert.NilError(t, err)
		assert.Equal(t, s, next)
	}
	assert.Check(t, s.Terminal())
}

func TestStageRejected(t *testing.T) {
	for _, tc := range []struct {
		from, to Stage
	}{
		{StageCreated, StageIdentityMapped},
		{StageCreated, StageExited},
		{StageUnshared, StageCreated},
		{StageReady, StageUnshared},
		{StageReady, StageReady},
		{StageExited, StageFailed},
		{StageFailed, StageCreated},
	} {
		t.Run(tc.from.String()+"_"+tc.to.String(), func(t *testing.T) {
			got, err := tc.from.transition(tc.to)
			assert.Check(t, errdefs.IsFailedPrecondition(err), "got %v", err)
			assert.Check(t, is.Equal(got, tc.from))
		})
	}
}

func TestStageFailFromAny(t *testing.T) {
	for _, from := range []Stage{StageCreated, StageUnshared, StageIdentityMapped, StageReady} {
		got, err := from.transition(StageFailed)
		assert.NilError(t, err)
		assert.Check(t, is.Equal(got, StageFailed))
	}
}

func TestStageString(t *testing.T) {
	assert.Check(t, is.Equal(StageIdentityMapped.String(), "identity_mapped"))
	assert.Check(t, is.Equal(Stage(42).String(), "unknown"))
}

func TestSessionRunTwice(t *testing.T) {
	// an invalid config fails before anything is forked
	s := NewSession(&Config{})
	_, err := s.Run(testContext(t))
	assert.Check(t, errdefs.IsInvalidArgument(err), "got %v", err)
	assert.Check(t, is.Equal(s.Stage(), StageFailed))

	_, err = s.Run(testContext(t))
	assert.Check(t, errdefs.IsFailedPrecondition(err), "got %v", err)
}

func TestNewSessionCopiesConfig(t *testing.T) {
	cfg := &Config{ContextDir: "/ctx"}
	s := NewSession(cfg)
	assert.Check(t, is.Equal(cfg.Hostname, ""))
	assert.Check(t, is.Equal(s.Config().Hostname, DefaultHostname))
	assert.Check(t, s.ID != "")
	assert.Check(t, NewSession(cfg).ID != s.ID)
}
