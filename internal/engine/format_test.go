package engine

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/ChamsBouzaiene/polyrun/internal/workspace"
	"github.com/stretchr/testify/assert"
)

func TestFormatReport(t *testing.T) {
	tests := []struct {
		name string
		res  ExecutionResult
		want string
	}{
		{
			name: "empty",
			res:  ExecutionResult{Outcome: OutcomeEmpty, Language: workspace.LangPython},
			want: "No code to run.\n",
		},
		{
			name: "no language",
			res:  ExecutionResult{Outcome: OutcomeUnsupported},
			want: "Please save the file with a proper extension to run it.\n",
		},
		{
			name: "unsupported",
			res:  ExecutionResult{Outcome: OutcomeUnsupported, Language: "ruby"},
			want: "Language 'ruby' is not supported for execution.\n",
		},
		{
			name: "runtime missing",
			res:  ExecutionResult{Outcome: OutcomeRuntimeMissing, Language: workspace.LangPython, Runtime: "Python"},
			want: "Python is not installed. Please install Python to run Python code.\n",
		},
		{
			name: "default timeout",
			res:  ExecutionResult{Outcome: OutcomeTimedOut, Timeout: DefaultTimeout},
			want: "Code execution timed out (30 seconds)\n",
		},
		{
			name: "fractional timeout",
			res:  ExecutionResult{Outcome: OutcomeTimedOut, Timeout: 250 * time.Millisecond},
			want: "Code execution timed out (0.25 seconds)\n",
		},
		{
			name: "build failed",
			res:  ExecutionResult{Outcome: OutcomeBuildFailed, Stderr: "error CS0103"},
			want: "Build errors:\nerror CS0103\n",
		},
		{
			name: "stdout only",
			res:  ExecutionResult{Outcome: OutcomeCompleted, Stdout: "X", ExitCode: exitCode(0)},
			want: "Output:\nX\n",
		},
		{
			name: "stderr only",
			res:  ExecutionResult{Outcome: OutcomeCompleted, Stderr: "warning", ExitCode: exitCode(0)},
			want: "Errors:\nwarning\n",
		},
		{
			name: "exit code only",
			res:  ExecutionResult{Outcome: OutcomeCompleted, ExitCode: exitCode(2)},
			want: "Program exited with code 2\n",
		},
		{
			name: "negative exit code",
			res:  ExecutionResult{Outcome: OutcomeCompleted, Stderr: "Killed", ExitCode: exitCode(-9)},
			want: "Errors:\nKilled\nProgram exited with code -9\n",
		},
		{
			name: "no output",
			res:  ExecutionResult{Outcome: OutcomeCompleted, ExitCode: exitCode(0)},
			want: "Code executed successfully (no output)\n",
		},
		{
			name: "html preview",
			res:  ExecutionResult{Outcome: OutcomeCompleted, Language: workspace.LangHTML, Location: "file:///tmp/p.html"},
			want: "HTML file opened in browser: file:///tmp/p.html\n",
		},
		{
			name: "css preview",
			res:  ExecutionResult{Outcome: OutcomeCompleted, Language: workspace.LangCSS, Location: "file:///tmp/p.html"},
			want: "CSS preview opened in browser: file:///tmp/p.html\n",
		},
		{
			name: "valid json",
			res:  ExecutionResult{Outcome: OutcomeCompleted, Language: workspace.LangJSON, Stdout: "[]"},
			want: "Valid JSON! Formatted output:\n\n[]\n",
		},
		{
			name: "invalid json",
			res:  ExecutionResult{Outcome: OutcomeInvalid, Language: workspace.LangJSON, Stderr: "unexpected end of JSON input: line 1 column 2 (char 1)"},
			want: "Invalid JSON: unexpected end of JSON input: line 1 column 2 (char 1)\n",
		},
		{
			name: "schema violations",
			res:  ExecutionResult{Outcome: OutcomeInvalid, Language: workspace.LangJSON, Violations: []string{"(root): name is required", "age: Invalid type."}},
			want: "JSON does not match schema:\n- (root): name is required\n- age: Invalid type.\n",
		},
		{
			name: "internal",
			res:  ExecutionResult{Outcome: OutcomeInternal, Error: "permission denied"},
			want: "Error running code: permission denied\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatReport(tt.res))
		})
	}
}

func TestTruncateOutput(t *testing.T) {
	short := strings.Repeat("a", MaxOutputLength)
	assert.Equal(t, short, TruncateOutput(short))

	long := strings.Repeat("é", MaxOutputLength+5)
	got := TruncateOutput(long)
	assert.True(t, strings.HasSuffix(got, "\n... (output truncated)"))
	body := strings.TrimSuffix(got, "\n... (output truncated)")
	assert.Equal(t, MaxOutputLength, utf8.RuneCountInString(body))
	assert.True(t, utf8.ValidString(got))
}

func TestFormatReport_TruncatesEachStream(t *testing.T) {
	big := strings.Repeat("x", MaxOutputLength*2)
	report := FormatReport(ExecutionResult{Outcome: OutcomeCompleted, Stdout: big, Stderr: big, ExitCode: exitCode(1)})

	assert.Equal(t, 2, strings.Count(report, "... (output truncated)"))
	assert.True(t, strings.HasSuffix(report, "Program exited with code 1\n"))
}
