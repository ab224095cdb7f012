package sandbox

import (
	"context"
	"errors"
	"os/exec"
	"time"
)

// Result captures output of a command.
type Result struct {
	Stdout   string
	Stderr   string
	Code     int
	TimedOut bool
}

// Runner spawns a single process and waits for it.
//
// A non-zero exit code is reported in Result.Code, never as an error. The
// returned error is reserved for failures to start or wait on the process.
type Runner interface {
	// RunCmd runs a command in the given directory with a timeout.
	// - ctx: base context for cancellation
	// - dir: working directory of the child
	// - name: executable name, e.g. "node"
	// - args: arguments, e.g. []string{"main.js"}
	// - timeout: optional timeout (<=0 uses default)
	RunCmd(ctx context.Context, dir, name string, args []string, timeout time.Duration) (Result, error)
}

// ErrNotFound is returned, wrapped, when the executable is not on PATH.
var ErrNotFound = exec.ErrNotFound

// IsNotFound reports whether err means the executable does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
