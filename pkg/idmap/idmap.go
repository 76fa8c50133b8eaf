// Package idmap installs the identity maps of a user namespace on behalf of
// a process inside it.
//
// Only a process holding privilege over the target's parent namespace can
// write the maps, and each map can be written only once. A map that was not
// fully installed leaves the target unable to become root in its namespace.
package idmap

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Mapping maps Size consecutive ids starting at ContainerID inside the
// namespace to ids starting at HostID outside of it
type Mapping struct {
	ContainerID int `yaml:"container_id"`
	HostID      int `yaml:"host_id"`
	Size        int `yaml:"size"`
}

// Default maps namespace id 0 to host id 1000
var Default = []Mapping{{ContainerID: 0, HostID: 1000, Size: 1}}

// ErrEmpty is returned when installing an empty map
var ErrEmpty = errors.New("idmap: empty mapping")

var setGroupsDeny = []byte("deny")

func (m Mapping) String() string {
	return strconv.Itoa(m.ContainerID) + " " + strconv.Itoa(m.HostID) + " " + strconv.Itoa(m.Size)
}

// Install writes uid_map, then setgroups ("deny"), then gid_map of pid.
// setgroups must be denied before gid_map can be written without CAP_SETGID
// in the parent namespace.
func Install(pid int, uid, gid []Mapping) error {
	if len(uid) == 0 || len(gid) == 0 {
		return ErrEmpty
	}
	pidStr := strconv.Itoa(pid)

	if err := writeFile("/proc/"+pidStr+"/uid_map", Format(uid)); err != nil {
		return fmt.Errorf("idmap: write uid_map of %d: %w", pid, err)
	}
	if err := writeFile("/proc/"+pidStr+"/setgroups", setGroupsDeny); err != nil {
		return fmt.Errorf("idmap: write setgroups of %d: %w", pid, err)
	}
	if err := writeFile("/proc/"+pidStr+"/gid_map", Format(gid)); err != nil {
		return fmt.Errorf("idmap: write gid_map of %d: %w", pid, err)
	}
	return nil
}

// Read returns the installed uid and gid maps of pid
func Read(pid int) (uid, gid []Mapping, err error) {
	pidStr := strconv.Itoa(pid)
	b, err := os.ReadFile("/proc/" + pidStr + "/uid_map")
	if err != nil {
		return nil, nil, fmt.Errorf("idmap: %w", err)
	}
	if uid, err = Parse(b); err != nil {
		return nil, nil, err
	}
	b, err = os.ReadFile("/proc/" + pidStr + "/gid_map")
	if err != nil {
		return nil, nil, fmt.Errorf("idmap: %w", err)
	}
	if gid, err = Parse(b); err != nil {
		return nil, nil, err
	}
	return uid, gid, nil
}

// Format renders one "container host size" line per mapping
func Format(idMap []Mapping) []byte {
	var data []byte
	for _, im := range idMap {
		data = append(data, []byte(im.String()+"\n")...)
	}
	return data
}

// Parse reads maps in the format written by Format or the column aligned
// format the kernel reports
func Parse(b []byte) ([]Mapping, error) {
	var ret []Mapping
	for _, line := range bytes.Split(b, []byte{'\n'}) {
		f := strings.Fields(string(line))
		if len(f) == 0 {
			continue
		}
		if len(f) != 3 {
			return nil, fmt.Errorf("idmap: malformed line %q", line)
		}
		var v [3]int
		for i := range f {
			n, err := strconv.Atoi(f[i])
			if err != nil {
				return nil, fmt.Errorf("idmap: malformed line %q: %w", line, err)
			}
			v[i] = n
		}
		ret = append(ret, Mapping{ContainerID: v[0], HostID: v[1], Size: v[2]})
	}
	return ret, nil
}

// writeFile writes the whole content with a single write, as the kernel
// rejects maps split across writes
func writeFile(path string, content []byte) error {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return err
	}
	if _, err := unix.Write(fd, content); err != nil {
		unix.Close(fd)
		return err
	}
	return unix.Close(fd)
}
