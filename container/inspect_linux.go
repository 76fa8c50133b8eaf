package container

import (
	"fmt"
	"os"
	"strconv"

	"github.com/moby/sys/mountinfo"
)

// RootInfo describes the mount table of a process as seen from its root
type RootInfo struct {
	// Root is the mount at "/"
	Root *mountinfo.Info
	// Proc is the proc mount at "/proc", nil if there is none
	Proc *mountinfo.Info
	// PutOld reports whether anything is still mounted at the put_old path
	PutOld bool
	// Mounts is the number of mounts visible to the process
	Mounts int
}

// InspectRoot reads /proc/<pid>/mountinfo. Mount points there are relative
// to the root of pid, so after a launch "/" is the rootfs bind mount.
func InspectRoot(pid int) (*RootInfo, error) {
	f, err := os.Open("/proc/" + strconv.Itoa(pid) + "/mountinfo")
	if err != nil {
		return nil, fmt.Errorf("container: inspect root: %w", err)
	}
	defer f.Close()

	infos, err := mountinfo.GetMountsFromReader(f, nil)
	if err != nil {
		return nil, fmt.Errorf("container: inspect root of %d: %w", pid, err)
	}

	ri := &RootInfo{Mounts: len(infos)}
	for _, m := range infos {
		// later entries are mounted on top of earlier ones
		switch m.Mountpoint {
		case "/":
			ri.Root = m
		case "/proc":
			if m.FSType == "proc" {
				ri.Proc = m
			}
		case "/" + PutOld:
			ri.PutOld = true
		}
	}
	if ri.Root == nil {
		return nil, fmt.Errorf("container: inspect root of %d: no mount at /", pid)
	}
	return ri, nil
}

func (ri *RootInfo) String() string {
	proc := "none"
	if ri.Proc != nil {
		proc = ri.Proc.Source
	}
	return fmt.Sprintf("RootInfo[root=%s:%s proc=%s put_old=%t mounts=%d]", ri.Root.Source, ri.Root.Root, proc, ri.PutOld, ri.Mounts)
}
