package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
	"github.com/criyle/go-isoproc/pkg/barrier"
	"github.com/criyle/go-isoproc/pkg/forkexec"
	"github.com/criyle/go-isoproc/pkg/idmap"
	"github.com/criyle/go-isoproc/pkg/seccomp"
	"github.com/criyle/go-isoproc/pkg/seccomp/libseccomp"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// Ready is passed to the OnReady hook once init is about to execve
type Ready struct {
	ID        string
	HolderPid int
	InitPid   int
}

// Session drives a single launch
type Session struct {
	// ID identifies the launch in logs and results
	ID string

	// OnReady is called after init reported ready. Returning an error kills
	// the launch.
	OnReady func(context.Context, Ready) error

	cfg Config

	// install writes the identity maps of the holder
	install func(pid int, uid, gid []idmap.Mapping) error

	mu      sync.Mutex
	stage   Stage
	started bool
}

// Launch runs cfg to completion, it is NewSession(cfg).Run(ctx)
func Launch(ctx context.Context, cfg *Config) (Result, error) {
	return NewSession(cfg).Run(ctx)
}

// NewSession creates a session from a copy of cfg with defaults applied
func NewSession(cfg *Config) *Session {
	c := *cfg
	c.setDefaults()
	return &Session{
		ID:      uuid.NewString(),
		cfg:     c,
		install: idmap.Install,
	}
}

// Config returns the effective configuration
func (s *Session) Config() Config {
	return s.cfg
}

// Stage returns the current stage
func (s *Session) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

func (s *Session) advance(next Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.stage.transition(next)
	s.stage = st
	return err
}

// holder tracks the holder process so that it is killed at most until it is
// reaped
type holder struct {
	pid    int
	mu     sync.Mutex
	reaped bool
}

func (h *holder) kill() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.reaped {
		unix.Kill(h.pid, unix.SIGKILL)
	}
}

// wait reaps the holder. The zombie is kept until kill can no longer
// target the pid.
func (h *holder) wait() (unix.WaitStatus, error) {
	var (
		info unix.Siginfo
		ws   unix.WaitStatus
	)
	err := unix.Waitid(unix.P_PID, h.pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
	for err == unix.EINTR {
		err = unix.Waitid(unix.P_PID, h.pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
	}
	if err != nil {
		return 0, fmt.Errorf("container: waitid holder: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = unix.Wait4(h.pid, &ws, 0, nil)
	for err == unix.EINTR {
		_, err = unix.Wait4(h.pid, &ws, 0, nil)
	}
	h.reaped = true
	if err != nil {
		return 0, fmt.Errorf("container: wait4 holder: %w", err)
	}
	return ws, nil
}

// channels are the orchestrator side of the outer channel and report pipe
type channels struct {
	up     barrier.Pipe // holder -> orchestrator
	down   barrier.Pipe // orchestrator -> holder
	report barrier.Pipe

	// fault is the first fault record read so far
	fault *forkexec.ChildError
}

func newChannels() (*channels, error) {
	c := &channels{up: barrier.Pipe{-1, -1}, down: barrier.Pipe{-1, -1}, report: barrier.Pipe{-1, -1}}
	var err error
	if c.up, err = barrier.New(); err != nil {
		return nil, err
	}
	if c.down, err = barrier.New(); err != nil {
		c.close()
		return nil, err
	}
	if c.report, err = barrier.New(); err != nil {
		c.close()
		return nil, err
	}
	return c, nil
}

func (c *channels) forHolder() forkexec.Channels {
	return forkexec.Channels{
		Send:   uintptr(c.up.Writer()),
		Recv:   uintptr(c.down.Reader()),
		Report: uintptr(c.report.Writer()),
	}
}

// closeHolderEnds closes the ends that now belong to the holder
func (c *channels) closeHolderEnds() {
	c.up.CloseWriter()
	c.down.CloseReader()
	c.report.CloseWriter()
}

// readReport reads records until one of kind arrives. Fault records met on
// the way are kept, init can fault at execve before the holder reports it
// ready.
func (c *channels) readReport(kind forkexec.ReportKind) (forkexec.Report, error) {
	for {
		rep, err := forkexec.ReadReport(c.report.Reader())
		if err != nil {
			return rep, err
		}
		if rep.Kind == kind {
			return rep, nil
		}
		if ce := rep.ChildError(); ce != nil && c.fault == nil {
			c.fault = ce
		}
	}
}

// drain reads records until the report pipe is closed and returns the
// first fault
func (c *channels) drain() (*forkexec.ChildError, error) {
	for {
		_, err := c.readReport(0)
		if errors.Is(err, io.EOF) {
			return c.fault, nil
		}
		if err != nil {
			return c.fault, err
		}
	}
}

func (c *channels) close() {
	c.up.Close()
	c.down.Close()
	c.report.Close()
}

// Run performs the launch and blocks until init has terminated. A Session
// can be run once.
//
// Cancelling ctx kills the holder, which takes init and every process of the
// new pid namespace with it. The returned error then wraps ctx.Err().
//
// When init terminated, the Result is returned even if execve failed, the
// error then wraps the *forkexec.ChildError.
func (s *Session) Run(ctx context.Context) (Result, error) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return Result{}, fmt.Errorf("%w: session %s already run", errdefs.ErrFailedPrecondition, s.ID)
	}
	s.started = true
	s.mu.Unlock()

	res := Result{ID: s.ID}
	if err := s.cfg.Validate(); err != nil {
		s.advance(StageFailed)
		return res, err
	}

	ctx = log.WithLogger(ctx, log.G(ctx).WithField("launch_id", s.ID))

	filter, err := s.filter()
	if err != nil {
		s.advance(StageFailed)
		return res, err
	}

	ch, err := newChannels()
	if err != nil {
		s.advance(StageFailed)
		return res, fmt.Errorf("container: create channels: %w", err)
	}
	defer ch.close()

	r := &forkexec.Runner{
		Root:     s.cfg.Rootfs(),
		PutOld:   PutOld,
		Mode:     s.cfg.RootMode,
		HostName: s.cfg.Hostname,
		Path:     s.cfg.Path,
		Args:     s.cfg.Args,
		Env:      s.cfg.Env(),
		Files:    s.cfg.files(),
		Seccomp:  filter.SockFprog(),
	}

	// the holder dies with the thread that forked it
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	sTime := time.Now()
	pid, err := r.Start(ch.forHolder())
	runtime.KeepAlive(s.cfg.Stdin)
	runtime.KeepAlive(s.cfg.Stdout)
	runtime.KeepAlive(s.cfg.Stderr)
	runtime.KeepAlive(filter)
	if err != nil {
		s.advance(StageFailed)
		return res, fmt.Errorf("container: start holder: %w", err)
	}
	ch.closeHolderEnds()
	res.HolderPid = pid

	h := &holder{pid: pid}
	stop := context.AfterFunc(ctx, h.kill)
	defer stop()

	ctx = log.WithLogger(ctx, log.G(ctx).WithField("holder_pid", pid))
	log.G(ctx).WithFields(log.Fields{
		"rootfs": r.Root,
		"mounts": r.MountPlan().String(),
	}).Debug("holder started")

	// the holder has unshared its namespaces
	if err := barrier.Wait(ch.up.Reader()); err != nil {
		return res, s.abort(ctx, h, ch, StageCreated, err)
	}
	s.advance(StageUnshared)

	if err := s.install(pid, s.cfg.UIDMappings, s.cfg.GIDMappings); err != nil {
		return res, s.abort(ctx, h, ch, StageUnshared, fmt.Errorf("container: install identity map: %w", err))
	}
	if err := barrier.Signal(ch.down.Writer()); err != nil {
		return res, s.abort(ctx, h, ch, StageUnshared, err)
	}
	ch.down.CloseWriter()
	s.advance(StageIdentityMapped)
	log.G(ctx).WithField("uid_map", s.cfg.UIDMappings).WithField("gid_map", s.cfg.GIDMappings).Debug("identity mapped")

	// init finished its setup
	if err := barrier.Wait(ch.up.Reader()); err != nil {
		return res, s.abort(ctx, h, ch, StageIdentityMapped, err)
	}
	rep, err := ch.readReport(forkexec.ReportReady)
	if err != nil {
		return res, s.abort(ctx, h, ch, StageIdentityMapped, err)
	}
	res.InitPid = int(rep.Pid)
	res.SetUpTime = time.Since(sTime)
	s.advance(StageReady)

	ctx = log.WithLogger(ctx, log.G(ctx).WithField("init_pid", res.InitPid))
	log.G(ctx).WithField("setup_time", res.SetUpTime).Debug("init ready")

	mTime := time.Now()
	if s.OnReady != nil {
		if err := s.OnReady(ctx, Ready{ID: s.ID, HolderPid: pid, InitPid: res.InitPid}); err != nil {
			return res, s.abort(ctx, h, ch, StageReady, fmt.Errorf("container: ready hook: %w", err))
		}
	}

	// init terminated
	if err := barrier.Wait(ch.up.Reader()); err != nil {
		return res, s.abort(ctx, h, ch, StageReady, err)
	}
	res.RunningTime = time.Since(mTime)

	rep, err = ch.readReport(forkexec.ReportExit)
	if err != nil {
		return res, s.abort(ctx, h, ch, StageReady, err)
	}
	res.Status, res.ExitStatus = statusFromWait(unix.WaitStatus(rep.Status))

	ws, err := h.wait()
	if err != nil {
		s.advance(StageFailed)
		return res, err
	}
	s.advance(StageExited)

	entry := log.G(ctx).WithFields(log.Fields{
		"status":       res.Status.String(),
		"exit_status":  res.ExitStatus,
		"running_time": res.RunningTime,
	})
	if !ws.Exited() || ws.ExitStatus() != 0 {
		entry = entry.WithField("holder_status", uint32(ws))
	}
	entry.Debug("init exited")

	if ch.fault != nil {
		log.G(ctx).WithError(ch.fault).Error("init failed to execute command")
		return res, fmt.Errorf("container: %s: %w", s.ID, ch.fault)
	}
	return res, nil
}

// abort kills and reaps the holder after a failure at stage, and returns
// the first fault the holder or init reported, or cause if there is none
func (s *Session) abort(ctx context.Context, h *holder, ch *channels, stage Stage, cause error) error {
	s.advance(StageFailed)
	h.kill()

	// the holder is dead, init either exits by the parent death signal or
	// drops the report pipe at execve
	fault, drainErr := ch.drain()
	if _, err := h.wait(); err != nil {
		log.G(ctx).WithError(err).Warn("reap holder")
	}

	var err error
	if fault != nil {
		err = fault
	} else {
		err = cause
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("container: %s: %v: %w: %w", s.ID, stage, ctxErr, err)
	} else {
		err = fmt.Errorf("container: %s: %v: %w", s.ID, stage, err)
	}

	entry := log.G(ctx).WithError(err).WithField("stage", stage.String())
	if fault != nil {
		entry = entry.WithFields(log.Fields{
			"role":     fault.Role.String(),
			"location": fault.Location.String(),
			"class":    string(fault.Location.Class()),
			"errno":    int(fault.Err),
		})
	}
	if drainErr != nil {
		entry = entry.WithField("report_error", drainErr.Error())
	}
	entry.Error("launch failed")
	return err
}

func (s *Session) filter() (seccomp.Filter, error) {
	if len(s.cfg.SeccompDeny) == 0 {
		return nil, nil
	}
	b := libseccomp.Builder{
		Deny:    s.cfg.SeccompDeny,
		Default: seccomp.ActionAllow,
	}
	filter, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("container: %w", err)
	}
	return filter, nil
}
