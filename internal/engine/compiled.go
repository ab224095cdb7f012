package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/polyrun/internal/sandbox"
	"github.com/ChamsBouzaiene/polyrun/internal/workspace"
)

const (
	defaultTargetFramework = "net8.0"
	defaultBuildTimeout    = 2 * time.Minute

	projectFile = "Program.csproj"
	sourceFile  = "Program.cs"
)

const projectTemplate = `<Project Sdk="Microsoft.NET.Sdk">
  <PropertyGroup>
    <OutputType>Exe</OutputType>
    <TargetFramework>%s</TargetFramework>
  </PropertyGroup>
</Project>
`

// CompiledConfig describes a toolchain that builds a project before running it.
type CompiledConfig struct {
	Toolchain       string // defaults to dotnet
	TargetFramework string // defaults to net8.0
	BuildTimeout    time.Duration
	TempDir         string
}

// CompiledStrategy scaffolds a throwaway .NET console project, builds it, and
// runs the build output.
type CompiledStrategy struct {
	config CompiledConfig
	runner sandbox.Runner
}

// NewCompiledStrategy creates the C# strategy.
func NewCompiledStrategy(config CompiledConfig, runner sandbox.Runner) *CompiledStrategy {
	if config.Toolchain == "" {
		config.Toolchain = "dotnet"
	}
	if config.TargetFramework == "" {
		config.TargetFramework = defaultTargetFramework
	}
	if config.BuildTimeout <= 0 {
		config.BuildTimeout = defaultBuildTimeout
	}
	return &CompiledStrategy{config: config, runner: runner}
}

func (s *CompiledStrategy) Language() workspace.Language {
	return workspace.LangCSharp
}

// Prepare probes the toolchain and scaffolds the project directory.
func (s *CompiledStrategy) Prepare(ctx context.Context, req ExecutionRequest) (Prepared, error) {
	if err := probe(ctx, s.runner, s.config.Toolchain, []string{"--version"}); err != nil {
		return nil, &RuntimeMissingError{Runtime: ".NET", Language: workspace.LangCSharp, Err: err}
	}

	dir, err := CreateDirArtifact(s.config.TempDir)
	if err != nil {
		return nil, stageErr("prepare", workspace.LangCSharp, err)
	}

	manifest := fmt.Sprintf(projectTemplate, s.config.TargetFramework)
	if err := dir.WriteFile(projectFile, []byte(manifest)); err != nil {
		_ = dir.Release()
		return nil, stageErr("prepare", workspace.LangCSharp, err)
	}
	if err := dir.WriteFile(sourceFile, []byte(req.Code)); err != nil {
		_ = dir.Release()
		return nil, stageErr("prepare", workspace.LangCSharp, err)
	}

	return &compiledRun{
		strategy: s,
		dir:      dir,
		timeout:  req.EffectiveTimeout(),
		state:    stateBuilding,
	}, nil
}

// pipelineState tracks the build-then-run sequence of one compiled run.
type pipelineState int

const (
	stateBuilding pipelineState = iota
	stateRunning
	stateDone
	stateFailed
)

func (s pipelineState) String() string {
	switch s {
	case stateBuilding:
		return "building"
	case stateRunning:
		return "running"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// transitions lists the legal successors of each state. Failed and Done are terminal.
var transitions = map[pipelineState][]pipelineState{
	stateBuilding: {stateRunning, stateFailed},
	stateRunning:  {stateDone},
}

type compiledRun struct {
	strategy *CompiledStrategy
	dir      *Artifact
	timeout  time.Duration
	state    pipelineState
}

func (r *compiledRun) advance(next pipelineState) error {
	for _, allowed := range transitions[r.state] {
		if allowed == next {
			r.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, r.state, next)
}

func (r *compiledRun) Invoke(ctx context.Context) (ExecutionResult, error) {
	lang := workspace.LangCSharp
	cfg := r.strategy.config

	build, err := r.strategy.runner.RunCmd(ctx, r.dir.Path(), cfg.Toolchain, []string{"build", "-nologo"}, cfg.BuildTimeout)
	if err != nil {
		_ = r.advance(stateFailed)
		return ExecutionResult{}, stageErr("build", lang, err)
	}
	if build.TimedOut || build.Code != 0 {
		if err := r.advance(stateFailed); err != nil {
			return ExecutionResult{}, err
		}
		if build.TimedOut {
			return collect(lang, build, cfg.BuildTimeout), nil
		}
		return ExecutionResult{
			Language: lang,
			Outcome:  OutcomeBuildFailed,
			Stdout:   build.Stdout,
			Stderr:   buildDiagnostics(build),
			ExitCode: exitCode(build.Code),
		}, nil
	}

	if err := r.advance(stateRunning); err != nil {
		return ExecutionResult{}, err
	}

	run, err := r.strategy.runner.RunCmd(ctx, r.dir.Path(), cfg.Toolchain, []string{"run", "--no-build"}, r.timeout)
	if err != nil {
		return ExecutionResult{}, stageErr("run", lang, err)
	}
	if err := r.advance(stateDone); err != nil {
		return ExecutionResult{}, err
	}
	return collect(lang, run, r.timeout), nil
}

func (r *compiledRun) Cleanup() error {
	return r.dir.Release()
}

// buildDiagnostics prefers stderr but falls back to stdout, where dotnet
// prints compiler errors.
func buildDiagnostics(res sandbox.Result) string {
	if strings.TrimSpace(res.Stderr) != "" {
		return res.Stderr
	}
	return res.Stdout
}
