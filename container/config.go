package container

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/criyle/go-isoproc/pkg/idmap"
)

// Defaults applied by NewSession to zero fields of a Config
const (
	DefaultHostname = "isoproc"
	DefaultPath     = "/bin/sh"
	DefaultRootMode = 0o777

	// MaxHostnameLen is the kernel limit of a uts hostname
	MaxHostnameLen = 64

	// RootfsDir is the directory under the context dir that becomes "/"
	RootfsDir = "rootfs"
	// PutOld is the transient directory under rootfs used by pivot_root
	PutOld = ".put_old"
)

// DefaultArgs starts an interactive shell
var DefaultArgs = []string{"sh", "-i"}

// Config describes one launch
type Config struct {
	// ContextDir is an existing directory that contains rootfs
	ContextDir string

	// Environment is the whole environment of the command
	Environment map[string]string

	// Hostname inside the new uts namespace
	Hostname string

	// Path and Args of the command executed as init. An empty Path is taken
	// from Args[0], and /bin/sh -i runs when both are empty.
	Path string
	Args []string

	// UIDMappings and GIDMappings are written for the holder's user namespace
	UIDMappings []idmap.Mapping
	GIDMappings []idmap.Mapping

	// RootMode is applied to rootfs, the put_old directory and /proc
	RootMode uint32

	// SeccompDeny lists syscalls that fail with EPERM in the command
	SeccompDeny []string

	// Stdin, Stdout and Stderr of init, nil uses the orchestrator's own
	Stdin, Stdout, Stderr *os.File
}

func (c *Config) setDefaults() {
	if c.Hostname == "" {
		c.Hostname = DefaultHostname
	}
	if c.Path == "" {
		if len(c.Args) > 0 {
			c.Path = c.Args[0]
		} else {
			c.Path = DefaultPath
			c.Args = append([]string(nil), DefaultArgs...)
		}
	}
	if len(c.Args) == 0 {
		c.Args = []string{filepath.Base(c.Path)}
	}
	if c.UIDMappings == nil {
		c.UIDMappings = append([]idmap.Mapping(nil), idmap.Default...)
	}
	if c.GIDMappings == nil {
		c.GIDMappings = append([]idmap.Mapping(nil), idmap.Default...)
	}
	if c.RootMode == 0 {
		c.RootMode = DefaultRootMode
	}
	if c.Stdin == nil {
		c.Stdin = os.Stdin
	}
	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
	if c.Stderr == nil {
		c.Stderr = os.Stderr
	}
}

// Validate rejects configurations a launch cannot represent. Problems that
// only the kernel can detect, such as a missing rootfs, are reported by the
// step that fails.
func (c *Config) Validate() error {
	if c.ContextDir == "" {
		return fmt.Errorf("%w: empty context dir", errdefs.ErrInvalidArgument)
	}
	if len(c.Hostname) > MaxHostnameLen {
		return fmt.Errorf("%w: hostname longer than %d bytes", errdefs.ErrInvalidArgument, MaxHostnameLen)
	}
	if c.Path == "" || len(c.Args) == 0 {
		return fmt.Errorf("%w: empty command", errdefs.ErrInvalidArgument)
	}
	for k := range c.Environment {
		if k == "" || strings.ContainsAny(k, "=\x00") {
			return fmt.Errorf("%w: invalid environment name %q", errdefs.ErrInvalidArgument, k)
		}
	}
	if err := validateMappings("uid", c.UIDMappings); err != nil {
		return err
	}
	if err := validateMappings("gid", c.GIDMappings); err != nil {
		return err
	}
	if c.RootMode&^0o7777 != 0 {
		return fmt.Errorf("%w: root mode %#o", errdefs.ErrInvalidArgument, c.RootMode)
	}
	return nil
}

func validateMappings(kind string, m []idmap.Mapping) error {
	if len(m) == 0 {
		return fmt.Errorf("%w: empty %s mappings", errdefs.ErrInvalidArgument, kind)
	}
	for _, im := range m {
		if im.ContainerID < 0 || im.HostID < 0 || im.Size <= 0 {
			return fmt.Errorf("%w: %s mapping %v", errdefs.ErrInvalidArgument, kind, im)
		}
	}
	return nil
}

// Rootfs returns the directory that becomes "/" of the command
func (c *Config) Rootfs() string {
	return filepath.Join(c.ContextDir, RootfsDir)
}

// Env returns the environment as KEY=VALUE strings sorted by key
func (c *Config) Env() []string {
	keys := make([]string, 0, len(c.Environment))
	for k := range c.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+c.Environment[k])
	}
	return env
}

func (c *Config) files() []uintptr {
	return []uintptr{c.Stdin.Fd(), c.Stdout.Fd(), c.Stderr.Fd()}
}
