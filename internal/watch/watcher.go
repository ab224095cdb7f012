package watch

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ChamsBouzaiene/polyrun/internal/engine"
	"github.com/ChamsBouzaiene/polyrun/internal/workspace"
	"github.com/fsnotify/fsnotify"
	gitignore "github.com/sabhiram/go-gitignore"
)

// DefaultDebounce is how long changes are collected before files are re-run.
const DefaultDebounce = 500 * time.Millisecond

// Executor runs one request. *engine.Dispatcher satisfies it.
type Executor interface {
	Supports(lang workspace.Language) bool
	Execute(ctx context.Context, req engine.ExecutionRequest) engine.ExecutionResult
}

// Options tunes a Watcher.
type Options struct {
	Timeout  time.Duration // per-run budget, zero means the engine default
	Debounce time.Duration
}

// Watcher re-runs source files when they change on disk.
type Watcher struct {
	root   string // directory being watched
	target string // set when a single file is watched
	exec   Executor
	out    io.Writer
	opts   Options

	watcher       *fsnotify.Watcher
	ignoreMatcher gitignore.IgnoreParser

	mu      sync.Mutex
	pending map[string]bool
	wg      sync.WaitGroup
}

// New creates a watcher for path, which may be a file or a directory.
// Reports are written to out.
func New(path string, exec Executor, out io.Writer, opts Options) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	w := &Watcher{
		root:    abs,
		exec:    exec,
		out:     out,
		opts:    opts,
		pending: make(map[string]bool),
	}
	if !info.IsDir() {
		// Editors often save by rename, so the parent directory is watched.
		w.root = filepath.Dir(abs)
		w.target = abs
	}

	w.ignoreMatcher = gitignore.CompileIgnoreLines(loadIgnorePatterns(w.root)...)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	w.watcher = watcher
	return w, nil
}

// Root returns the watched directory.
func (w *Watcher) Root() string {
	return w.root
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.addDirs(); err != nil {
		w.watcher.Close()
		return err
	}

	w.wg.Add(2)
	go w.eventLoop(ctx)
	go w.debounceLoop(ctx)

	<-ctx.Done()
	w.wg.Wait()
	return w.watcher.Close()
}

func (w *Watcher) addDirs() error {
	if w.target != "" {
		if err := w.watcher.Add(w.root); err != nil {
			return fmt.Errorf("failed to watch %s: %w", w.root, err)
		}
		return nil
	}

	err := filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != w.root && w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			log.Printf("WARNING: failed to watch %s: %v", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", w.root, err)
	}
	return nil
}

func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return true
	}
	return w.ignoreMatcher.MatchesPath(filepath.ToSlash(rel))
}

// eventLoop processes filesystem events.
func (w *Watcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("WARNING: watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	if w.target != "" && event.Name != w.target {
		return
	}
	if w.ignored(event.Name) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if w.target == "" && event.Has(fsnotify.Create) {
			if err := w.watcher.Add(event.Name); err != nil {
				log.Printf("WARNING: failed to watch new directory %s: %v", event.Name, err)
			}
		}
		return
	}

	if !w.runnable(workspace.LanguageFromPath(event.Name)) {
		return
	}

	w.mu.Lock()
	w.pending[event.Name] = true
	w.mu.Unlock()
}

// runnable excludes previews, which would re-open a viewer on every save.
func (w *Watcher) runnable(lang workspace.Language) bool {
	switch lang {
	case workspace.LangUnknown, workspace.LangText, workspace.LangHTML, workspace.LangCSS:
		return false
	}
	return w.exec.Supports(lang)
}

// debounceLoop collects pending events and runs them after the debounce period.
func (w *Watcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.opts.Debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processPending(ctx)
		}
	}
}

func (w *Watcher) processPending(ctx context.Context) {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	w.pending = make(map[string]bool)
	w.mu.Unlock()

	sort.Strings(paths)
	for _, path := range paths {
		if ctx.Err() != nil {
			return
		}
		w.runFile(ctx, path)
	}
}

// RunFile executes one file immediately and writes its report.
func (w *Watcher) RunFile(ctx context.Context, path string) {
	w.runFile(ctx, path)
}

func (w *Watcher) runFile(ctx context.Context, path string) {
	code, err := os.ReadFile(path)
	if err != nil {
		log.Printf("WARNING: failed to read %s: %v", path, err)
		return
	}

	lang := workspace.Classify(path, string(code))
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		rel = path
	}

	res := w.exec.Execute(ctx, engine.ExecutionRequest{
		Code:     string(code),
		Language: lang,
		Timeout:  w.opts.Timeout,
	})

	fmt.Fprintf(w.out, "\n▶️  %s (%s) at %s\n", filepath.ToSlash(rel), lang.DisplayName(), time.Now().Format("15:04:05"))
	fmt.Fprint(w.out, engine.FormatReport(res))
}
