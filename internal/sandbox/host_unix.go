//go:build !windows
// +build !windows

package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"syscall"
	"time"
)

const (
	defaultCmdTimeout = 2 * time.Minute
	// waitDelay bounds how long Wait blocks on pipes held open by a process
	// that escaped the process group.
	waitDelay = 2 * time.Second
)

// HostRunner runs commands directly on the host machine.
type HostRunner struct {
	config Config
}

// NewHostRunner returns a runner that spawns processes on the host.
func NewHostRunner(config Config) *HostRunner {
	return &HostRunner{config: config}
}

// RunCmd runs a command in its own process group. When the timeout expires or
// ctx is cancelled the whole group receives SIGKILL.
func (r *HostRunner) RunCmd(ctx context.Context, dir, name string, args []string, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		if r.config.CmdTimeout > 0 {
			timeout = r.config.CmdTimeout
		} else {
			timeout = defaultCmdTimeout
		}
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	// Create a new process group so we can kill all child processes on cancel
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = waitDelay

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return Result{}, err
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-cctx.Done():
			// Negative PID targets the whole process group
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)

	res := Result{
		Stdout: stdoutBuf.String(),
		Stderr: stderrBuf.String(),
	}

	if cctx.Err() != nil {
		res.TimedOut = true
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			if res.TimedOut {
				res.Code = -1
				return res, nil
			}
			return res, waitErr
		}
		res.Code = exitErr.ExitCode()
	}

	return res, nil
}
