package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ChamsBouzaiene/polyrun/internal/workspace"
	"github.com/xeipuuv/gojsonschema"
)

// DataStrategy validates and pretty-prints JSON in-process.
type DataStrategy struct {
	schema *gojsonschema.Schema
}

// NewDataStrategy creates the JSON strategy. When schemaPath is set, valid
// documents are also checked against that JSON Schema.
func NewDataStrategy(schemaPath string) (*DataStrategy, error) {
	if schemaPath == "" {
		return &DataStrategy{}, nil
	}

	abs, err := filepath.Abs(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("resolve schema path: %w", err)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewReferenceLoader("file://" + filepath.ToSlash(abs)))
	if err != nil {
		return nil, fmt.Errorf("load schema %s: %w", schemaPath, err)
	}
	return &DataStrategy{schema: schema}, nil
}

func (s *DataStrategy) Language() workspace.Language {
	return workspace.LangJSON
}

// Prepare has nothing to acquire.
func (s *DataStrategy) Prepare(_ context.Context, req ExecutionRequest) (Prepared, error) {
	return &dataRun{schema: s.schema, code: req.Code}, nil
}

type dataRun struct {
	schema *gojsonschema.Schema
	code   string
}

func (r *dataRun) Invoke(_ context.Context) (ExecutionResult, error) {
	formatted, err := FormatJSON(r.code)
	if err != nil {
		var syntaxErr *JSONSyntaxError
		if errors.As(err, &syntaxErr) {
			return ExecutionResult{
				Language: workspace.LangJSON,
				Outcome:  OutcomeInvalid,
				Stderr:   syntaxErr.Error(),
			}, nil
		}
		return ExecutionResult{}, stageErr("validate", workspace.LangJSON, err)
	}

	res := ExecutionResult{
		Language: workspace.LangJSON,
		Outcome:  OutcomeCompleted,
		Stdout:   formatted,
	}

	if r.schema != nil {
		result, err := r.schema.Validate(gojsonschema.NewStringLoader(r.code))
		if err != nil {
			return ExecutionResult{}, stageErr("validate", workspace.LangJSON, err)
		}
		if !result.Valid() {
			res.Outcome = OutcomeInvalid
			for _, desc := range result.Errors() {
				res.Violations = append(res.Violations, desc.String())
			}
		}
	}
	return res, nil
}

func (r *dataRun) Cleanup() error {
	return nil
}

// JSONSyntaxError locates a parse failure in the original document.
type JSONSyntaxError struct {
	Msg    string
	Line   int
	Column int
	Char   int // zero-based character offset
}

func (e *JSONSyntaxError) Error() string {
	return fmt.Sprintf("%s: line %d column %d (char %d)", e.Msg, e.Line, e.Column, e.Char)
}

// FormatJSON re-indents a JSON document with two spaces, keeping key order.
func FormatJSON(code string) (string, error) {
	src := strings.TrimRight(code, " \t\r\n")

	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(src), "", "  "); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return "", locateSyntaxError(src, syntaxErr)
		}
		return "", err
	}
	return buf.String(), nil
}

func locateSyntaxError(src string, err *json.SyntaxError) *JSONSyntaxError {
	// Offset counts the bytes read including the offending one, except at EOF.
	pos := int(err.Offset) - 1
	if strings.Contains(err.Error(), "unexpected end") {
		pos = len(src)
	}
	if pos < 0 {
		pos = 0
	}
	if pos > len(src) {
		pos = len(src)
	}

	prefix := src[:pos]
	line := strings.Count(prefix, "\n") + 1
	lineStart := strings.LastIndex(prefix, "\n") + 1

	return &JSONSyntaxError{
		Msg:    err.Error(),
		Line:   line,
		Column: utf8.RuneCountInString(prefix[lineStart:]) + 1,
		Char:   utf8.RuneCountInString(prefix),
	}
}
