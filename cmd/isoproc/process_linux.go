package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/containerd/errdefs"
	"github.com/criyle/go-isoproc/container"
	"github.com/criyle/go-isoproc/pkg/idmap"
	"gopkg.in/yaml.v3"
)

// process is the process description file
type process struct {
	ContextDir  string            `yaml:"context_dir"`
	Environment map[string]string `yaml:"environment"`
	Hostname    string            `yaml:"hostname"`
	Command     []string          `yaml:"command"`
	UIDMappings []idmap.Mapping   `yaml:"uid_mappings"`
	GIDMappings []idmap.Mapping   `yaml:"gid_mappings"`
	RootMode    string            `yaml:"root_mode"`
	Seccomp     struct {
		Deny []string `yaml:"deny"`
	} `yaml:"seccomp"`
}

// loadProcess reads a process file. A relative context_dir is resolved
// against the directory of the file.
func loadProcess(path string) (*container.Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p process
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errdefs.ErrInvalidArgument, path, err)
	}
	if p.ContextDir == "" {
		return nil, fmt.Errorf("%w: %s: context_dir is required", errdefs.ErrInvalidArgument, path)
	}

	cfg := &container.Config{
		ContextDir:  p.ContextDir,
		Environment: p.Environment,
		Hostname:    p.Hostname,
		UIDMappings: p.UIDMappings,
		GIDMappings: p.GIDMappings,
		SeccompDeny: p.Seccomp.Deny,
	}
	if !filepath.IsAbs(cfg.ContextDir) {
		cfg.ContextDir = filepath.Join(filepath.Dir(path), cfg.ContextDir)
	}
	if len(p.Command) > 0 {
		cfg.Path = p.Command[0]
		cfg.Args = p.Command
	}
	if p.RootMode != "" {
		mode, err := strconv.ParseUint(p.RootMode, 8, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: root_mode %q: %w", errdefs.ErrInvalidArgument, path, p.RootMode, err)
		}
		cfg.RootMode = uint32(mode)
	}
	return cfg, nil
}
