package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/polyrun/internal/workspace"
	"github.com/rs/xid"
)

// Dispatcher routes requests to the strategy registered for their language.
// The strategy table is fixed at construction and safe for concurrent use.
type Dispatcher struct {
	strategies map[workspace.Language]Strategy
	hooks      Hooks
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHooks registers hooks that observe every execution.
func WithHooks(hooks ...Hook) Option {
	return func(d *Dispatcher) {
		d.hooks = append(d.hooks, hooks...)
	}
}

// NewDispatcher builds the strategy table. Two strategies for the same
// language is an error.
func NewDispatcher(strategies []Strategy, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{strategies: make(map[workspace.Language]Strategy, len(strategies))}
	for _, s := range strategies {
		lang := s.Language()
		if _, exists := d.strategies[lang]; exists {
			return nil, fmt.Errorf("duplicate strategy for language %q", lang)
		}
		d.strategies[lang] = s
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Languages returns the executable languages in sorted order.
func (d *Dispatcher) Languages() []workspace.Language {
	langs := make([]workspace.Language, 0, len(d.strategies))
	for lang := range d.strategies {
		langs = append(langs, lang)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i] < langs[j] })
	return langs
}

// Supports reports whether a strategy is registered for lang.
func (d *Dispatcher) Supports(lang workspace.Language) bool {
	_, ok := d.strategies[lang]
	return ok
}

// Invoke runs code and renders the report shown to the user.
func (d *Dispatcher) Invoke(ctx context.Context, code string, lang workspace.Language) string {
	return FormatReport(d.Execute(ctx, ExecutionRequest{Code: code, Language: lang}))
}

// Execute runs a request and always returns a result; failures inside a
// strategy become an Internal outcome.
func (d *Dispatcher) Execute(ctx context.Context, req ExecutionRequest) (res ExecutionResult) {
	start := time.Now()
	runID := xid.New().String()
	defer func() {
		res.RunID = runID
		res.Language = req.Language
		res.Duration = time.Since(start)
		d.hooks.AfterExecute(ctx, req, res)
	}()

	if strings.TrimSpace(req.Code) == "" {
		return ExecutionResult{Outcome: OutcomeEmpty}
	}

	strategy, ok := d.strategies[req.Language]
	if !ok {
		return ExecutionResult{Outcome: OutcomeUnsupported}
	}

	return d.run(ctx, strategy, req)
}

func (d *Dispatcher) run(ctx context.Context, strategy Strategy, req ExecutionRequest) (res ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			res = errorResult(fmt.Errorf("panic: %v", r))
		}
	}()

	prepared, err := strategy.Prepare(ctx, req)
	if err != nil {
		return errorResult(err)
	}
	defer func() {
		if err := prepared.Cleanup(); err != nil {
			log.Printf("WARNING: cleanup after %s run failed: %v", req.Language, err)
		}
	}()

	res, err = prepared.Invoke(ctx)
	if err != nil {
		return errorResult(err)
	}
	return res
}

func errorResult(err error) ExecutionResult {
	var missing *RuntimeMissingError
	if errors.As(err, &missing) {
		return ExecutionResult{Outcome: OutcomeRuntimeMissing, Runtime: missing.Runtime}
	}
	return ExecutionResult{Outcome: OutcomeInternal, Error: err.Error()}
}
