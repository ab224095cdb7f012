package engine

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ChamsBouzaiene/polyrun/internal/sandbox"
	"github.com/stretchr/testify/require"
)

type runCall struct {
	Dir  string
	Name string
	Args []string
}

// countingRunner records every spawn and delegates to RunCmdFunc.
type countingRunner struct {
	mu    sync.Mutex
	calls []runCall

	RunCmdFunc func(ctx context.Context, dir, name string, args []string, timeout time.Duration) (sandbox.Result, error)
}

func (r *countingRunner) RunCmd(ctx context.Context, dir, name string, args []string, timeout time.Duration) (sandbox.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, runCall{Dir: dir, Name: name, Args: append([]string(nil), args...)})
	r.mu.Unlock()

	if r.RunCmdFunc != nil {
		return r.RunCmdFunc(ctx, dir, name, args, timeout)
	}
	return sandbox.Result{}, nil
}

func (r *countingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// countVerb counts spawns whose first argument is verb.
func (r *countingRunner) countVerb(verb string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if len(c.Args) > 0 && c.Args[0] == verb {
			n++
		}
	}
	return n
}

func isProbe(args []string) bool {
	return len(args) == 1 && args[0] == "--version"
}

// fakeOpener records opened paths and can be made to fail.
type fakeOpener struct {
	mu     sync.Mutex
	opened []string
	err    error
}

func (o *fakeOpener) Open(path string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.opened = append(o.opened, path)
	return nil
}

// MockLLMClient answers Chat through ChatFunc and records each call.
type MockLLMClient struct {
	mu       sync.Mutex
	Calls    [][]ChatMessage
	Opts     []ChatOptions
	ChatFunc func(ctx context.Context, model string, messages []ChatMessage, opts ChatOptions) (string, error)
}

func (m *MockLLMClient) Chat(ctx context.Context, model string, messages []ChatMessage, opts ChatOptions) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, messages)
	m.Opts = append(m.Opts, opts)
	m.mu.Unlock()
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, model, messages, opts)
	}
	return "", nil
}

func entries(t *testing.T, dir string) int {
	t.Helper()
	list, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	return len(list)
}

func newTestDispatcher(t *testing.T, strategies ...Strategy) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(strategies)
	require.NoError(t, err)
	return d
}
