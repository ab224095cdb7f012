package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/polyrun/internal/workspace"
)

const (
	fixSystemPrompt = "You are a helpful programming assistant. Fix the code provided and return ONLY the corrected code without any explanations or markdown formatting."
	fixMaxTokens    = 2000
	fixTemperature  = 0.1
	fixTimeout      = 30 * time.Second
)

// ErrFixUnavailable is returned when no LLM client is configured.
var ErrFixUnavailable = errors.New("AI fix is not configured")

// Fixer asks an LLM to repair code using the report of its last run.
type Fixer struct {
	client LLMClient
	model  string
	policy RetryPolicy
}

// NewFixer returns a fixer. A nil client yields a fixer that is not Available.
func NewFixer(client LLMClient, model string) *Fixer {
	return &Fixer{client: client, model: model, policy: DefaultFixRetryPolicy}
}

// Available reports whether a provider is configured.
func (f *Fixer) Available() bool {
	return f != nil && f.client != nil
}

// Model returns the model name sent to the provider.
func (f *Fixer) Model() string {
	if f == nil {
		return ""
	}
	return f.model
}

// Fix returns corrected code. The boolean is false when the model returned
// the code unchanged.
func (f *Fixer) Fix(ctx context.Context, code string, lang workspace.Language, lastReport string) (string, bool, error) {
	if !f.Available() {
		return "", false, ErrFixUnavailable
	}
	if strings.TrimSpace(code) == "" {
		return "", false, errors.New("no code to fix")
	}

	messages := []ChatMessage{
		{Role: RoleSystem, Content: fixSystemPrompt},
		{Role: RoleUser, Content: buildFixPrompt(code, lang, lastReport)},
	}

	reply, err := RetryWithPolicy(ctx, f.policy,
		func(ctx context.Context) (string, error) {
			cctx, cancel := context.WithTimeout(ctx, fixTimeout)
			defer cancel()
			return f.client.Chat(cctx, f.model, messages, ChatOptions{
				MaxOutputTokens: fixMaxTokens,
				Temperature:     fixTemperature,
			})
		},
		ClassifyLLMError,
		func(attempt int, delay time.Duration, err error) {
			log.Printf("🔄 fix request failed (attempt %d), retrying in %s: %v", attempt, delay.Round(time.Millisecond), err)
		},
	)
	if err != nil {
		return "", false, fmt.Errorf("fix request: %w", err)
	}

	fixed := StripCodeFences(reply)
	if fixed == "" {
		return "", false, errors.New("model returned an empty reply")
	}
	return fixed, fixed != strings.TrimSpace(code), nil
}

// TestConnection sends a minimal prompt to check credentials and reachability.
func (f *Fixer) TestConnection(ctx context.Context) error {
	if !f.Available() {
		return ErrFixUnavailable
	}
	cctx, cancel := context.WithTimeout(ctx, fixTimeout)
	defer cancel()
	_, err := f.client.Chat(cctx, f.model, []ChatMessage{{Role: RoleUser, Content: "Hello"}}, ChatOptions{MaxOutputTokens: 10})
	return err
}

func buildFixPrompt(code string, lang workspace.Language, lastReport string) string {
	name := lang.DisplayName()

	var b strings.Builder
	fmt.Fprintf(&b, "Please fix the following %s code. \n\nCode:\n%s\n\n", name, code)
	if lastReport != "" {
		fmt.Fprintf(&b, "Error output:\n%s\n\n", lastReport)
	}
	fmt.Fprintf(&b, "Please provide the corrected %s code that fixes any syntax errors, runtime errors, or logical issues. Return only the corrected code without any explanations or markdown formatting.", name)
	return b.String()
}

// StripCodeFences removes a surrounding markdown code block from an LLM reply.
func StripCodeFences(reply string) string {
	s := strings.TrimSpace(reply)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= 2 {
		return s
	}
	return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
}
