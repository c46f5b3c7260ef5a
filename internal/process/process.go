package process

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// Process runs one backend child and implements Handle. It is created per
// launch and never reused across restarts.
type Process struct {
	spec Spec

	mu        sync.Mutex
	cmd       *exec.Cmd
	status    Status
	outCloser io.WriteCloser
	errCloser io.WriteCloser
	waitDone  chan struct{} // closed when Wait returns
}

func New(spec Spec) *Process {
	return &Process{spec: spec, waitDone: make(chan struct{})}
}

// Start builds the command, wires logging, and launches the child in its own
// process group so Stop can signal the whole tree.
func (p *Process) Start() error {
	cmd := p.spec.BuildCommand()
	if p.spec.WorkDir != "" {
		cmd.Dir = p.spec.WorkDir
	}
	if len(p.spec.Env) > 0 {
		cmd.Env = append(os.Environ(), p.spec.Env...)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	p.configureOutput(cmd)

	if err := cmd.Start(); err != nil {
		p.closeWriters()
		return err
	}

	p.mu.Lock()
	p.cmd = cmd
	p.status = Status{
		Name:      p.spec.Name,
		Running:   true,
		PID:       cmd.Process.Pid,
		StartedAt: time.Now(),
	}
	p.mu.Unlock()

	p.writePIDFile(cmd.Process.Pid)
	return nil
}

// configureOutput captures the child's stdout/stderr into rotating files and
// mirrors each line into the shim's structured log.
func (p *Process) configureOutput(cmd *exec.Cmd) {
	mirror := &lineWriter{logger: slog.Default().With("component", "backend", "name", p.spec.Name)}
	if p.spec.Log.Dir != "" || p.spec.Log.StdoutPath != "" || p.spec.Log.StderrPath != "" {
		if p.spec.Log.Dir != "" {
			_ = os.MkdirAll(p.spec.Log.Dir, 0o750)
		}
		outW, errW, _ := p.spec.Log.Writers(p.spec.Name)
		p.mu.Lock()
		p.outCloser, p.errCloser = outW, errW
		p.mu.Unlock()
		if outW != nil {
			cmd.Stdout = io.MultiWriter(outW, mirror)
		} else {
			cmd.Stdout = mirror
		}
		if errW != nil {
			cmd.Stderr = io.MultiWriter(errW, mirror)
		} else {
			cmd.Stderr = mirror
		}
		return
	}
	cmd.Stdout = mirror
	cmd.Stderr = mirror
}

// Wait blocks until the child exits, records the outcome, and releases
// logging resources. Safe to call exactly once per Process.
func (p *Process) Wait() error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()

	var err error
	if cmd != nil {
		err = cmd.Wait()
	}

	p.mu.Lock()
	p.status.Running = false
	p.status.StoppedAt = time.Now()
	p.status.ExitCode = ExitCode(err)
	p.status.ExitErr = err
	p.mu.Unlock()

	p.closeWriters()
	p.removePIDFile()
	close(p.waitDone)
	return err
}

// Stop terminates the child's process group: SIGTERM, bounded wait for the
// waiter to reap it, then SIGKILL.
func (p *Process) Stop(grace time.Duration) error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	pid := cmd.Process.Pid

	_ = syscall.Kill(-pid, syscall.SIGTERM)
	select {
	case <-p.waitDone:
		return nil
	case <-time.After(grace):
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
	select {
	case <-p.waitDone:
	case <-time.After(200 * time.Millisecond):
		// best-effort; the waiter will reap it eventually
	}
	return nil
}

// Alive probes liveness via a zero signal to the pid.
func (p *Process) Alive() bool {
	p.mu.Lock()
	cmd := p.cmd
	running := p.status.Running
	p.mu.Unlock()
	if cmd == nil || cmd.Process == nil || !running {
		return false
	}
	return syscall.Kill(cmd.Process.Pid, 0) == nil
}

// Snapshot returns a copy of the current status.
func (p *Process) Snapshot() Status {
	p.mu.Lock()
	s := p.status
	p.mu.Unlock()
	return s
}

// Done is closed once Wait has returned.
func (p *Process) Done() <-chan struct{} { return p.waitDone }

func (p *Process) closeWriters() {
	p.mu.Lock()
	out, errW := p.outCloser, p.errCloser
	p.outCloser, p.errCloser = nil, nil
	p.mu.Unlock()
	if out != nil {
		_ = out.Close()
	}
	if errW != nil {
		_ = errW.Close()
	}
}

func (p *Process) writePIDFile(pid int) {
	if p.spec.PIDFile == "" || pid == 0 {
		return
	}
	_ = os.MkdirAll(filepath.Dir(p.spec.PIDFile), 0o750)
	_ = os.WriteFile(p.spec.PIDFile, []byte(strconv.Itoa(pid)), 0o600)
}

func (p *Process) removePIDFile() {
	if p.spec.PIDFile == "" {
		return
	}
	_ = os.Remove(p.spec.PIDFile)
}

// ExitCode maps a Wait error to a numeric exit code. A nil error is 0; a
// process killed by a signal reports -1 per os/exec.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}

// RunOnce executes an auxiliary command (e.g. a one-shot initialization step)
// to completion, mirroring its output into the shim log. Cancellation of ctx
// kills the command.
func RunOnce(ctx context.Context, spec Spec) error {
	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	mirror := &lineWriter{logger: slog.Default().With("component", "init", "name", spec.Name)}
	cmd.Stdout = mirror
	cmd.Stderr = mirror
	if err := cmd.Start(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return ctx.Err()
	}
}
