package mount

import (
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

func TestBuilder_WithPrivateRoot(t *testing.T) {
	b := NewBuilder().WithPrivateRoot("/")
	if len(b.Mounts) != 1 {
		t.Fatalf("expected 1 mount, got %d", len(b.Mounts))
	}
	m := b.Mounts[0]
	if m.Flags != unix.MS_REC|unix.MS_PRIVATE {
		t.Errorf("unexpected flags: %x", m.Flags)
	}
	if !m.IsPropagation() || m.IsBind() {
		t.Errorf("expected propagation change: %+v", m)
	}
}

func TestBuilder_WithBind(t *testing.T) {
	b := NewBuilder().WithBind("/ctx/rootfs", "/ctx/rootfs")
	m := b.Mounts[0]
	if m.Source != "/ctx/rootfs" || m.Target != "/ctx/rootfs" {
		t.Errorf("unexpected mount: %+v", m)
	}
	if !m.IsBind() {
		t.Errorf("expected bind mount")
	}
	if m.FsType != "" {
		t.Errorf("bind mount should not carry fs type: %q", m.FsType)
	}
}

func TestBuilder_WithProc(t *testing.T) {
	b := NewBuilder().WithProc("/proc")
	m := b.Mounts[0]
	if m.FsType != "proc" || m.Source != "proc" || m.Flags != 0 {
		t.Errorf("unexpected proc mount: %+v", m)
	}
}

func TestBuilder_Build(t *testing.T) {
	params, err := NewBuilder().
		WithPrivateRoot("/").
		WithBind("/r", "/r").
		WithProc("/proc").
		Build()
	if err != nil {
		t.Fatal(err)
	}
	if len(params) != 3 {
		t.Fatalf("expected 3 params, got %d", len(params))
	}
	if params[0].FsType != nil || params[0].Data != nil {
		t.Errorf("private root should have nil fs type and data")
	}
	if params[1].Source == nil || params[1].FsType != nil {
		t.Errorf("bind should have source and nil fs type")
	}
	if params[2].FsType == nil || params[2].Flags != 0 {
		t.Errorf("unexpected proc params")
	}
}

func TestBuilder_BuildEmptyTarget(t *testing.T) {
	if _, err := NewBuilder().WithBind("/a", "").Build(); err == nil {
		t.Error("expected error for empty target")
	}
}

func TestBuilder_BuildNUL(t *testing.T) {
	if _, err := NewBuilder().WithBind("/a\x00b", "/a").Build(); err == nil {
		t.Error("expected error for NUL in source")
	}
}

func TestBuilder_String(t *testing.T) {
	s := NewBuilder().
		WithPrivateRoot("/").
		WithBind("/src", "/src").
		WithProc("/proc").
		String()
	if !strings.HasPrefix(s, "Mounts: ") {
		t.Errorf("unexpected prefix: %q", s)
	}
	for _, want := range []string{"rprivate[/]", "bind[/src:/src]", "proc[/proc]"} {
		if !strings.Contains(s, want) {
			t.Errorf("missing %s: %q", want, s)
		}
	}
}
