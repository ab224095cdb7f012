package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ChamsBouzaiene/polyrun/internal/workspace"
)

const truncationMarker = "\n... (output truncated)"

// FormatReport renders a result as the text shown to the user. Each outcome
// starts with its own fixed phrase.
func FormatReport(res ExecutionResult) string {
	switch res.Outcome {
	case OutcomeEmpty:
		return "No code to run.\n"

	case OutcomeUnsupported:
		if res.Language == workspace.LangUnknown {
			return "Please save the file with a proper extension to run it.\n"
		}
		return fmt.Sprintf("Language '%s' is not supported for execution.\n", res.Language)

	case OutcomeRuntimeMissing:
		return fmt.Sprintf("%s is not installed. Please install %s to run %s code.\n",
			res.Runtime, res.Runtime, res.Language.DisplayName())

	case OutcomeTimedOut:
		return fmt.Sprintf("Code execution timed out (%s seconds)\n", formatSeconds(res.Timeout))

	case OutcomeBuildFailed:
		return "Build errors:\n" + TruncateOutput(res.Stderr) + "\n"

	case OutcomeInvalid:
		if len(res.Violations) > 0 {
			var b strings.Builder
			b.WriteString("JSON does not match schema:\n")
			for _, v := range res.Violations {
				b.WriteString("- " + v + "\n")
			}
			return b.String()
		}
		return "Invalid JSON: " + res.Stderr + "\n"

	case OutcomeInternal:
		return "Error running code: " + res.Error + "\n"

	case OutcomeCompleted:
		switch {
		case res.Location != "" && res.Language == workspace.LangCSS:
			return "CSS preview opened in browser: " + res.Location + "\n"
		case res.Location != "":
			return "HTML file opened in browser: " + res.Location + "\n"
		case res.Language == workspace.LangJSON:
			return "Valid JSON! Formatted output:\n\n" + res.Stdout + "\n"
		default:
			return formatProcessOutput(res)
		}

	default:
		return fmt.Sprintf("Error running code: unknown outcome %q\n", res.Outcome)
	}
}

func formatProcessOutput(res ExecutionResult) string {
	var b strings.Builder
	if res.Stdout != "" {
		b.WriteString("Output:\n" + TruncateOutput(res.Stdout) + "\n")
	}
	if res.Stderr != "" {
		b.WriteString("Errors:\n" + TruncateOutput(res.Stderr) + "\n")
	}
	if res.ExitCode != nil && *res.ExitCode != 0 {
		fmt.Fprintf(&b, "Program exited with code %d\n", *res.ExitCode)
	}
	if b.Len() == 0 {
		return "Code executed successfully (no output)\n"
	}
	return b.String()
}

// TruncateOutput limits s to MaxOutputLength characters.
func TruncateOutput(s string) string {
	if utf8.RuneCountInString(s) <= MaxOutputLength {
		return s
	}
	n := 0
	for i := range s {
		if n == MaxOutputLength {
			return s[:i] + truncationMarker
		}
		n++
	}
	return s
}

func formatSeconds(d time.Duration) string {
	if d <= 0 {
		d = DefaultTimeout
	}
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
