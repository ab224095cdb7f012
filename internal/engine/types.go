package engine

import (
	"context"
	"time"

	"github.com/ChamsBouzaiene/polyrun/internal/workspace"
)

// DefaultTimeout bounds a single run when the request does not set one.
const DefaultTimeout = 30 * time.Second

// MaxOutputLength caps stdout and stderr, in characters, in rendered reports.
const MaxOutputLength = 10000

// Outcome is the terminal classification of one execution attempt.
type Outcome string

const (
	OutcomeCompleted      Outcome = "completed"
	OutcomeTimedOut       Outcome = "timed_out"
	OutcomeBuildFailed    Outcome = "build_failed"
	OutcomeRuntimeMissing Outcome = "runtime_missing"
	OutcomeUnsupported    Outcome = "unsupported"
	OutcomeInternal       Outcome = "internal"
	OutcomeEmpty          Outcome = "empty"
	OutcomeInvalid        Outcome = "invalid"
)

// ExecutionRequest is one immutable request to run code.
type ExecutionRequest struct {
	Code     string             `json:"code"`
	Language workspace.Language `json:"language"`
	Timeout  time.Duration      `json:"timeout,omitempty"`
}

// EffectiveTimeout returns the request timeout or DefaultTimeout.
func (r ExecutionRequest) EffectiveTimeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return DefaultTimeout
}

// ExecutionResult is the structured outcome of a run.
type ExecutionResult struct {
	RunID    string             `json:"run_id,omitempty"`
	Language workspace.Language `json:"language"`
	Outcome  Outcome            `json:"outcome"`
	Stdout   string             `json:"stdout,omitempty"`
	Stderr   string             `json:"stderr,omitempty"`
	ExitCode *int               `json:"exit_code,omitempty"`
	Timeout  time.Duration      `json:"timeout,omitempty"`  // budget that expired, set on TimedOut
	Location string             `json:"location,omitempty"` // file:// URL of a preview
	Runtime  string             `json:"runtime,omitempty"`  // missing toolchain, set on RuntimeMissing
	Error    string             `json:"error,omitempty"`    // set on Internal
	Duration time.Duration      `json:"duration"`

	Violations []string `json:"violations,omitempty"` // schema violations, set on Invalid
}

// Succeeded reports whether the run completed and the program exited cleanly.
func (r ExecutionResult) Succeeded() bool {
	return r.Outcome == OutcomeCompleted && (r.ExitCode == nil || *r.ExitCode == 0)
}

func exitCode(code int) *int {
	return &code
}

// Strategy is the per-language execution protocol.
//
// Prepare does all setup (runtime probe, artifact creation). When it fails it
// must release anything it acquired itself.
type Strategy interface {
	Language() workspace.Language
	Prepare(ctx context.Context, req ExecutionRequest) (Prepared, error)
}

// Prepared is a strategy run that owns its resources until Cleanup.
type Prepared interface {
	// Invoke runs the prepared work and collects its result.
	Invoke(ctx context.Context) (ExecutionResult, error)
	// Cleanup releases every artifact. It is safe to call more than once.
	Cleanup() error
}

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one message exchanged with an LLM provider.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatOptions tunes a single completion.
type ChatOptions struct {
	MaxOutputTokens int
	Temperature     float32
}

// LLMClient is implemented by providers that can complete a conversation.
type LLMClient interface {
	Chat(ctx context.Context, model string, messages []ChatMessage, opts ChatOptions) (string, error)
}
