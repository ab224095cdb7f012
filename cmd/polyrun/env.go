package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ChamsBouzaiene/polyrun/internal/config"
	"github.com/ChamsBouzaiene/polyrun/internal/engine"
	"github.com/ChamsBouzaiene/polyrun/internal/history"
	"github.com/ChamsBouzaiene/polyrun/internal/project"
	"github.com/ChamsBouzaiene/polyrun/internal/providers"
	"github.com/ChamsBouzaiene/polyrun/internal/sandbox"
	"github.com/ChamsBouzaiene/polyrun/internal/workspace"
)

// runtimeEnv holds everything a command needs to execute code.
type runtimeEnv struct {
	Dispatcher *engine.Dispatcher
	History    *history.Store
	Config     *config.Manager
	Timeout    time.Duration

	mu     sync.RWMutex
	fixer  *engine.Fixer
	fixErr error
}

// envOptions tunes prepareRuntimeEnv for a command.
type envOptions struct {
	ProjectRoot string        // directory searched for .polyrun/config.json
	Timeout     time.Duration // command-line override
	SchemaPath  string        // command-line override
	Verbose     bool
}

func (r *runtimeEnv) Close() {
	if r.History != nil {
		if err := r.History.Close(); err != nil {
			log.Printf("WARNING: failed to close history: %v", err)
		}
	}
}

// Fixer returns the current AI-fix client and, when none is configured, why.
func (r *runtimeEnv) Fixer() (*engine.Fixer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fixer, r.fixErr
}

// reloadFixer rebuilds the AI-fix client from the environment.
func (r *runtimeEnv) reloadFixer(ctx context.Context) {
	client, model, err := providers.NewLLMClientFromEnv(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.fixer, r.fixErr = nil, err
		return
	}
	r.fixer, r.fixErr = engine.NewFixer(client, model), nil
}

func prepareRuntimeEnv(ctx context.Context, opts envOptions) (*runtimeEnv, error) {
	projectCfg, err := loadProjectConfig(opts.ProjectRoot)
	if err != nil {
		return nil, err
	}

	mgr, mgrErr := config.NewManager()
	var userTimeout string
	if mgrErr == nil {
		if userCfg, err := mgr.Load(); err == nil {
			userTimeout = userCfg.Timeout
		}
	}

	timeout, err := resolveTimeout(opts.Timeout, projectCfg, userTimeout)
	if err != nil {
		return nil, err
	}

	schemaPath := opts.SchemaPath
	if schemaPath == "" {
		schemaPath = os.Getenv("POLYRUN_JSON_SCHEMA")
	}
	if schemaPath == "" {
		schemaPath = projectCfg.SchemaPath(opts.ProjectRoot)
	}

	tempRoot := os.Getenv("POLYRUN_TEMP_DIR")
	if tempRoot == "" {
		tempRoot = filepath.Join(os.TempDir(), "polyrun")
	}

	sandboxCfg := sandbox.DefaultConfig()
	runner := sandbox.NewRunner(ctx, sandboxCfg)

	data, err := engine.NewDataStrategy(schemaPath)
	if err != nil {
		return nil, err
	}

	previewDir := filepath.Join(tempRoot, "previews")
	strategies := []engine.Strategy{
		engine.NewPythonStrategy(os.Getenv("POLYRUN_PYTHON"), tempRoot, runner),
		engine.NewNodeStrategy(os.Getenv("POLYRUN_NODE"), tempRoot, runner),
		engine.NewCompiledStrategy(engine.CompiledConfig{
			Toolchain:       os.Getenv("POLYRUN_DOTNET"),
			TargetFramework: os.Getenv("POLYRUN_DOTNET_TARGET"),
			BuildTimeout:    sandboxCfg.CmdTimeout,
			TempDir:         tempRoot,
		}, runner),
		engine.NewPreviewStrategy(workspace.LangHTML, engine.PreviewConfig{Dir: previewDir}),
		engine.NewPreviewStrategy(workspace.LangCSS, engine.PreviewConfig{Dir: previewDir}),
		data,
	}

	env := &runtimeEnv{Timeout: timeout}

	var hooks []engine.Hook
	if opts.Verbose {
		hooks = append(hooks, engine.LoggerHook{L: log.Default()})
	}
	if path := os.Getenv("POLYRUN_HISTORY"); path != "" {
		store, err := history.Open(ctx, path)
		if err != nil {
			log.Printf("WARNING: run history disabled: %v", err)
		} else {
			env.History = store
			hooks = append(hooks, history.NewRecorder(store))
		}
	}

	dispatcher, err := engine.NewDispatcher(strategies, engine.WithHooks(hooks...))
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Dispatcher = dispatcher

	if mgrErr == nil {
		env.Config = mgr
	}

	env.reloadFixer(ctx)
	return env, nil
}

func loadProjectConfig(root string) (*project.ProjectConfig, error) {
	if root == "" {
		return nil, nil
	}
	cfg, err := project.LoadConfig(root)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", root, err)
	}
	return cfg, nil
}

// resolveTimeout applies flag, then POLYRUN_TIMEOUT, then the project file,
// then the persisted user setting.
func resolveTimeout(flag time.Duration, projectCfg *project.ProjectConfig, userTimeout string) (time.Duration, error) {
	if flag > 0 {
		return flag, nil
	}
	if s := os.Getenv("POLYRUN_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			return d, nil
		}
		log.Printf("WARNING: Invalid POLYRUN_TIMEOUT value '%s', ignoring", s)
	}
	d, err := projectCfg.RunTimeout()
	if err != nil {
		return 0, err
	}
	if d > 0 {
		return d, nil
	}
	if userTimeout != "" {
		if d, err := time.ParseDuration(userTimeout); err == nil && d > 0 {
			return d, nil
		}
		log.Printf("WARNING: Invalid configured timeout '%s', ignoring", userTimeout)
	}
	return engine.DefaultTimeout, nil
}
