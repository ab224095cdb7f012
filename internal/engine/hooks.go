package engine

import (
	"context"
	"log"
	"strconv"
	"time"
)

// Hook observes finished executions. Hooks must not block for long; they run
// on the caller's goroutine before the report is returned.
type Hook interface {
	AfterExecute(ctx context.Context, req ExecutionRequest, res ExecutionResult)
}

// Hooks fans a call out to several hooks in order.
type Hooks []Hook

func (hs Hooks) AfterExecute(ctx context.Context, req ExecutionRequest, res ExecutionResult) {
	for _, h := range hs {
		h.AfterExecute(ctx, req, res)
	}
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, req ExecutionRequest, res ExecutionResult)

func (f HookFunc) AfterExecute(ctx context.Context, req ExecutionRequest, res ExecutionResult) {
	f(ctx, req, res)
}

// LoggerHook writes one line per execution.
type LoggerHook struct{ L *log.Logger }

func (h LoggerHook) AfterExecute(_ context.Context, req ExecutionRequest, res ExecutionResult) {
	exit := "-"
	if res.ExitCode != nil {
		exit = strconv.Itoa(*res.ExitCode)
	}
	h.L.Printf("▶️  run=%s lang=%s outcome=%s exit=%s duration=%s bytes=%d",
		res.RunID, req.Language, res.Outcome, exit, res.Duration.Round(time.Millisecond), len(req.Code))
}
