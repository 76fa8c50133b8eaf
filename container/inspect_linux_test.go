package container

import (
	"os"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestInspectRootSelf(t *testing.T) {
	ri, err := InspectRoot(os.Getpid())
	assert.NilError(t, err)
	assert.Check(t, is.Equal(ri.Root.Mountpoint, "/"))
	assert.Check(t, ri.Mounts > 0)
	assert.Check(t, !ri.PutOld)
}

func TestInspectRootMissing(t *testing.T) {
	_, err := InspectRoot(-1)
	assert.Check(t, is.ErrorContains(err, "inspect root"))
}
