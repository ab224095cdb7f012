package engine

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ChamsBouzaiene/polyrun/internal/sandbox"
	"github.com/ChamsBouzaiene/polyrun/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloCSharp = `using System;
class Program { static void Main() { Console.WriteLine("hi"); } }`

func TestCompiledStrategy_BuildAndRun(t *testing.T) {
	tmp := t.TempDir()
	runner := &countingRunner{
		RunCmdFunc: func(_ context.Context, dir, name string, args []string, timeout time.Duration) (sandbox.Result, error) {
			assert.Equal(t, "dotnet", name)
			switch args[0] {
			case "--version":
				return sandbox.Result{Stdout: "8.0.100\n"}, nil
			case "build":
				assert.Equal(t, 2*time.Minute, timeout)
				manifest, err := os.ReadFile(filepath.Join(dir, "Program.csproj"))
				require.NoError(t, err)
				assert.Contains(t, string(manifest), "<TargetFramework>net8.0</TargetFramework>")
				assert.Contains(t, string(manifest), "<OutputType>Exe</OutputType>")
				source, err := os.ReadFile(filepath.Join(dir, "Program.cs"))
				require.NoError(t, err)
				assert.Equal(t, helloCSharp, string(source))
				return sandbox.Result{Stdout: "Build succeeded.\n"}, nil
			case "run":
				assert.Equal(t, []string{"run", "--no-build"}, args)
				assert.Equal(t, DefaultTimeout, timeout)
				assert.Equal(t, 1, entries(t, tmp))
				return sandbox.Result{Stdout: "hi\n"}, nil
			}
			t.Fatalf("unexpected invocation %v", args)
			return sandbox.Result{}, nil
		},
	}
	d := newTestDispatcher(t, NewCompiledStrategy(CompiledConfig{TempDir: tmp}, runner))

	report := d.Invoke(context.Background(), helloCSharp, workspace.LangCSharp)

	assert.Equal(t, "Output:\nhi\n\n", report)
	assert.Equal(t, 1, runner.countVerb("build"))
	assert.Equal(t, 1, runner.countVerb("run"))
	assert.Zero(t, entries(t, tmp), "project directory removed")
}

func TestCompiledStrategy_BuildFailureSkipsRun(t *testing.T) {
	tmp := t.TempDir()
	diagnostics := "Program.cs(2,45): error CS1002: ; expected [/tmp/Program.csproj]\n"
	runner := &countingRunner{
		RunCmdFunc: func(_ context.Context, _, _ string, args []string, _ time.Duration) (sandbox.Result, error) {
			if args[0] == "build" {
				return sandbox.Result{Stdout: diagnostics, Code: 1}, nil
			}
			return sandbox.Result{}, nil
		},
	}
	d := newTestDispatcher(t, NewCompiledStrategy(CompiledConfig{TempDir: tmp}, runner))

	res := d.Execute(context.Background(), ExecutionRequest{Code: "class P { void M() { int x = 1 } }", Language: workspace.LangCSharp})

	assert.Equal(t, OutcomeBuildFailed, res.Outcome)
	assert.Zero(t, runner.countVerb("run"), "run stage must not start after a failed build")
	report := FormatReport(res)
	assert.True(t, strings.HasPrefix(report, "Build errors:\n"))
	assert.Contains(t, report, "error CS1002")
	assert.Zero(t, entries(t, tmp))
}

func TestCompiledStrategy_BuildStderrPreferred(t *testing.T) {
	res := buildDiagnostics(sandbox.Result{Stdout: "noise", Stderr: "MSBUILD : error MSB1003"})
	assert.Equal(t, "MSBUILD : error MSB1003", res)
	assert.Equal(t, "noise", buildDiagnostics(sandbox.Result{Stdout: "noise", Stderr: "  \n"}))
}

func TestCompiledStrategy_BuildTimeout(t *testing.T) {
	tmp := t.TempDir()
	runner := &countingRunner{
		RunCmdFunc: func(_ context.Context, _, _ string, args []string, _ time.Duration) (sandbox.Result, error) {
			if args[0] == "build" {
				return sandbox.Result{Code: -1, TimedOut: true}, nil
			}
			return sandbox.Result{}, nil
		},
	}
	d := newTestDispatcher(t, NewCompiledStrategy(CompiledConfig{TempDir: tmp, BuildTimeout: 3 * time.Second}, runner))

	res := d.Execute(context.Background(), ExecutionRequest{Code: helloCSharp, Language: workspace.LangCSharp})

	assert.Equal(t, OutcomeTimedOut, res.Outcome)
	assert.Equal(t, "Code execution timed out (3 seconds)\n", FormatReport(res))
	assert.Zero(t, runner.countVerb("run"))
	assert.Zero(t, entries(t, tmp))
}

func TestCompiledStrategy_RunTimeout(t *testing.T) {
	tmp := t.TempDir()
	runner := &countingRunner{
		RunCmdFunc: func(_ context.Context, _, _ string, args []string, _ time.Duration) (sandbox.Result, error) {
			if args[0] == "run" {
				return sandbox.Result{Stdout: "partial", Code: -1, TimedOut: true}, nil
			}
			return sandbox.Result{}, nil
		},
	}
	d := newTestDispatcher(t, NewCompiledStrategy(CompiledConfig{TempDir: tmp}, runner))

	res := d.Execute(context.Background(), ExecutionRequest{Code: helloCSharp, Language: workspace.LangCSharp, Timeout: 2 * time.Second})

	assert.Equal(t, OutcomeTimedOut, res.Outcome)
	assert.Equal(t, "Code execution timed out (2 seconds)\n", FormatReport(res))
	assert.Zero(t, entries(t, tmp))
}

func TestCompiledStrategy_ToolchainMissing(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "root")
	runner := &countingRunner{
		RunCmdFunc: func(context.Context, string, string, []string, time.Duration) (sandbox.Result, error) {
			return sandbox.Result{}, exec.ErrNotFound
		},
	}
	d := newTestDispatcher(t, NewCompiledStrategy(CompiledConfig{TempDir: tmp}, runner))

	report := d.Invoke(context.Background(), helloCSharp, workspace.LangCSharp)

	assert.Equal(t, ".NET is not installed. Please install .NET to run C# code.\n", report)
	assert.Equal(t, 1, runner.count())
	_, err := os.Stat(tmp)
	assert.True(t, os.IsNotExist(err))
}

func TestCompiledStrategy_CustomTargetFramework(t *testing.T) {
	tmp := t.TempDir()
	var manifest string
	runner := &countingRunner{
		RunCmdFunc: func(_ context.Context, dir, _ string, args []string, _ time.Duration) (sandbox.Result, error) {
			if args[0] == "build" {
				b, err := os.ReadFile(filepath.Join(dir, "Program.csproj"))
				require.NoError(t, err)
				manifest = string(b)
			}
			return sandbox.Result{}, nil
		},
	}
	d := newTestDispatcher(t, NewCompiledStrategy(CompiledConfig{TempDir: tmp, TargetFramework: "net6.0"}, runner))

	assert.Equal(t, "Code executed successfully (no output)\n", d.Invoke(context.Background(), helloCSharp, workspace.LangCSharp))
	assert.Contains(t, manifest, "<TargetFramework>net6.0</TargetFramework>")
}

func TestCompiledRun_IllegalTransitions(t *testing.T) {
	tests := []struct {
		from, to pipelineState
		ok       bool
	}{
		{stateBuilding, stateRunning, true},
		{stateBuilding, stateFailed, true},
		{stateRunning, stateDone, true},
		{stateFailed, stateRunning, false},
		{stateDone, stateRunning, false},
		{stateBuilding, stateDone, false},
		{stateRunning, stateBuilding, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			r := &compiledRun{state: tt.from}
			err := r.advance(tt.to)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.to, r.state)
				return
			}
			assert.ErrorIs(t, err, ErrIllegalTransition)
			assert.Equal(t, tt.from, r.state)
		})
	}
}
