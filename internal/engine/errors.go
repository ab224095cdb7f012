package engine

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/polyrun/internal/workspace"
)

// ErrIllegalTransition is returned when a build pipeline is driven out of order.
var ErrIllegalTransition = errors.New("illegal pipeline transition")

// RuntimeMissingError reports that the toolchain for a language is not installed.
type RuntimeMissingError struct {
	Runtime  string // display name, e.g. "Node.js"
	Language workspace.Language
	Err      error
}

func (e *RuntimeMissingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s is not installed: %v", e.Runtime, e.Err)
	}
	return fmt.Sprintf("%s is not installed", e.Runtime)
}

func (e *RuntimeMissingError) Unwrap() error {
	return e.Err
}

// StageError attributes a failure to one step of a strategy.
type StageError struct {
	Op       string // prepare, build, run, open, cleanup
	Language workspace.Language
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Language, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(op string, lang workspace.Language, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Op: op, Language: lang, Err: err}
}

// RetryClass indicates whether an error should be retried.
type RetryClass string

const (
	RetryClassRetryable    RetryClass = "retryable"     // Definitely retry
	RetryClassMaybe        RetryClass = "maybe"         // Retry with caution (limited attempts)
	RetryClassNonRetryable RetryClass = "non_retryable" // Never retry
)

// EngineError wraps provider errors with classification metadata.
type EngineError struct {
	Err        error
	Class      RetryClass
	HTTPStatus int    // HTTP status code if applicable
	RetryAfter string // Retry-After header value if present
	IsAuth     bool
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("engine error: %s", e.Class)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// ClassifyLLMError classifies an error from an LLM provider call.
func ClassifyLLMError(err error) RetryClass {
	if err == nil {
		return RetryClassNonRetryable
	}

	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Class
	}

	errStr := strings.ToLower(err.Error())

	// Auth and quota problems never fix themselves
	if containsAny(errStr, "401", "403", "unauthorized", "forbidden", "invalid api key", "402", "quota", "billing") {
		return RetryClassNonRetryable
	}

	if containsAny(errStr, "429", "rate limit", "too many requests",
		"500", "502", "503", "504", "internal server error", "bad gateway", "service unavailable", "gateway timeout",
		"connection reset", "connection refused", "no such host", "temporary failure") {
		return RetryClassRetryable
	}

	if containsAny(errStr, "deadline exceeded", "timeout") {
		return RetryClassMaybe
	}

	return RetryClassNonRetryable
}

// WrapLLMError wraps an LLM provider error with classification metadata.
func WrapLLMError(err error, httpStatus int, retryAfter string) error {
	if err == nil {
		return nil
	}

	return &EngineError{
		Err:        err,
		Class:      ClassifyLLMError(err),
		HTTPStatus: httpStatus,
		RetryAfter: retryAfter,
		IsAuth:     httpStatus == http.StatusUnauthorized || httpStatus == http.StatusForbidden,
	}
}

// IsAuthError reports whether err is a provider rejecting the credentials.
func IsAuthError(err error) bool {
	var engineErr *EngineError
	return errors.As(err, &engineErr) && engineErr.IsAuth
}

// ExtractRetryAfter returns the server requested delay carried by err, if any.
func ExtractRetryAfter(err error) time.Duration {
	var engineErr *EngineError
	if errors.As(err, &engineErr) && engineErr.RetryAfter != "" {
		var seconds int
		if _, err := fmt.Sscanf(engineErr.RetryAfter, "%d", &seconds); err == nil {
			return time.Duration(seconds) * time.Second
		}
		if t, err := time.Parse(time.RFC1123, engineErr.RetryAfter); err == nil {
			if d := time.Until(t); d > 0 {
				return d
			}
		}
	}
	return 0
}

// RetryExhaustedError is returned once a retry policy gives up.
type RetryExhaustedError struct {
	Err      error
	Attempts int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
