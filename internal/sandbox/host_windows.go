//go:build windows
// +build windows

package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

const (
	defaultCmdTimeout = 2 * time.Minute
	waitDelay         = 2 * time.Second
)

// HostRunner runs commands directly on the host machine.
type HostRunner struct {
	config Config
}

// NewHostRunner returns a runner that spawns processes on the host.
func NewHostRunner(config Config) *HostRunner {
	return &HostRunner{config: config}
}

// RunCmd runs a command and kills it when the timeout expires. Windows has no
// process groups here, so children started by the command may outlive it.
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

	cmd := exec.CommandContext(cctx, name, args...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	runErr := cmd.Run()
	res := Result{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		TimedOut: cctx.Err() != nil,
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.Code = exitErr.ExitCode()
			return res, nil
		}
		if res.TimedOut {
			res.Code = -1
			return res, nil
		}
		return res, runErr
	}
	return res, nil
}
