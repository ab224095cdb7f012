//go:build !windows

package engine

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/ChamsBouzaiene/polyrun/internal/sandbox"
	"github.com/ChamsBouzaiene/polyrun/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shellStrategy runs code with sh so the host runner can be tested without
// any language toolchain installed.
func shellStrategy(tmp string) *ScriptStrategy {
	return NewScriptStrategy(ScriptConfig{
		Language:    workspace.LangPython,
		Runtime:     "sh",
		Interpreter: []string{"sh"},
		ProbeArgs:   []string{"-c", "exit 0"},
		Extension:   ".sh",
		TempDir:     tmp,
	}, sandbox.NewHostRunner(sandbox.Config{}))
}

func TestScriptStrategy_HostRunnerOutput(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	tmp := t.TempDir()
	d := newTestDispatcher(t, shellStrategy(tmp))

	report := d.Invoke(context.Background(), "echo X", workspace.LangPython)
	assert.Equal(t, "Output:\nX\n\n", report)
	assert.Zero(t, entries(t, tmp))
}

func TestScriptStrategy_HostRunnerTimeoutKillsChild(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	tmp := t.TempDir()
	pidFile := filepath.Join(t.TempDir(), "pid")
	d := newTestDispatcher(t, shellStrategy(tmp))

	start := time.Now()
	res := d.Execute(context.Background(), ExecutionRequest{
		Code:     "echo started; echo $$ > " + pidFile + "; exec sleep 30",
		Language: workspace.LangPython,
		Timeout:  500 * time.Millisecond,
	})
	elapsed := time.Since(start)

	assert.Equal(t, OutcomeTimedOut, res.Outcome)
	assert.Empty(t, res.Stdout, "partial output is discarded")
	assert.Equal(t, "Code execution timed out (0.5 seconds)\n", FormatReport(res))
	assert.Less(t, elapsed, 10*time.Second)
	assert.Zero(t, entries(t, tmp))

	raw, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	require.NoError(t, err)

	err = syscall.Kill(pid, 0)
	assert.ErrorIs(t, err, syscall.ESRCH, "child %d still running after Invoke returned", pid)
}
