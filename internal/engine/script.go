package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ChamsBouzaiene/polyrun/internal/sandbox"
	"github.com/ChamsBouzaiene/polyrun/internal/workspace"
)

const probeTimeout = 10 * time.Second

// ScriptConfig describes an interpreted language.
type ScriptConfig struct {
	Language    workspace.Language
	Runtime     string   // display name used when the interpreter is missing
	Interpreter []string // candidates tried in order, e.g. python3 then python
	ProbeArgs   []string // version query, defaults to --version
	Args        []string // arguments placed before the script path
	Extension   string   // defaults to the language's canonical extension
	TempDir     string
}

// ScriptStrategy writes code to a temp file and runs an interpreter on it.
type ScriptStrategy struct {
	config ScriptConfig
	runner sandbox.Runner
}

// NewScriptStrategy creates a strategy for an interpreted language.
func NewScriptStrategy(config ScriptConfig, runner sandbox.Runner) *ScriptStrategy {
	if len(config.ProbeArgs) == 0 {
		config.ProbeArgs = []string{"--version"}
	}
	if config.Extension == "" {
		config.Extension = config.Language.Extension()
	}
	return &ScriptStrategy{config: config, runner: runner}
}

// NewPythonStrategy runs code with python3, falling back to python.
func NewPythonStrategy(interpreter, tempDir string, runner sandbox.Runner) *ScriptStrategy {
	candidates := []string{"python3", "python"}
	if interpreter != "" {
		candidates = []string{interpreter}
	}
	return NewScriptStrategy(ScriptConfig{
		Language:    workspace.LangPython,
		Runtime:     "Python",
		Interpreter: candidates,
		TempDir:     tempDir,
	}, runner)
}

// NewNodeStrategy runs code with node.
func NewNodeStrategy(node, tempDir string, runner sandbox.Runner) *ScriptStrategy {
	if node == "" {
		node = "node"
	}
	return NewScriptStrategy(ScriptConfig{
		Language:    workspace.LangJavaScript,
		Runtime:     "Node.js",
		Interpreter: []string{node},
		TempDir:     tempDir,
	}, runner)
}

func (s *ScriptStrategy) Language() workspace.Language {
	return s.config.Language
}

// Prepare resolves the interpreter and writes the script file.
func (s *ScriptStrategy) Prepare(ctx context.Context, req ExecutionRequest) (Prepared, error) {
	interpreter, err := s.resolveInterpreter(ctx)
	if err != nil {
		return nil, err
	}

	artifact, err := CreateFileArtifact(s.config.TempDir, s.config.Extension, []byte(req.Code))
	if err != nil {
		return nil, stageErr("prepare", s.config.Language, err)
	}

	return &scriptRun{
		strategy:    s,
		interpreter: interpreter,
		artifact:    artifact,
		timeout:     req.EffectiveTimeout(),
	}, nil
}

func (s *ScriptStrategy) resolveInterpreter(ctx context.Context) (string, error) {
	var errs []error
	for _, candidate := range s.config.Interpreter {
		err := probe(ctx, s.runner, candidate, s.config.ProbeArgs)
		if err == nil {
			return candidate, nil
		}
		errs = append(errs, err)
	}
	return "", &RuntimeMissingError{
		Runtime:  s.config.Runtime,
		Language: s.config.Language,
		Err:      errors.Join(errs...),
	}
}

type scriptRun struct {
	strategy    *ScriptStrategy
	interpreter string
	artifact    *Artifact
	timeout     time.Duration
}

func (r *scriptRun) Invoke(ctx context.Context) (ExecutionResult, error) {
	path := r.artifact.Path()
	args := append(append([]string{}, r.strategy.config.Args...), filepath.Base(path))

	res, err := r.strategy.runner.RunCmd(ctx, filepath.Dir(path), r.interpreter, args, r.timeout)
	if err != nil {
		return ExecutionResult{}, stageErr("run", r.strategy.config.Language, err)
	}
	return collect(r.strategy.config.Language, res, r.timeout), nil
}

func (r *scriptRun) Cleanup() error {
	return r.artifact.Release()
}

// collect converts a finished process into a result. Output of a timed out
// process is dropped so a partial run is never reported as if it finished.
func collect(lang workspace.Language, res sandbox.Result, timeout time.Duration) ExecutionResult {
	if res.TimedOut {
		return ExecutionResult{
			Language: lang,
			Outcome:  OutcomeTimedOut,
			Timeout:  timeout,
		}
	}
	return ExecutionResult{
		Language: lang,
		Outcome:  OutcomeCompleted,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: exitCode(res.Code),
	}
}

// probe runs a version query and fails unless it exits cleanly.
func probe(ctx context.Context, runner sandbox.Runner, name string, args []string) error {
	res, err := runner.RunCmd(ctx, "", name, args, probeTimeout)
	if sandbox.IsNotFound(err) {
		return fmt.Errorf("%s not found on PATH: %w", name, err)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if res.TimedOut {
		return fmt.Errorf("%s: version query timed out", name)
	}
	if res.Code != 0 {
		return fmt.Errorf("%s: version query exited with code %d", name, res.Code)
	}
	return nil
}
