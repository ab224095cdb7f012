package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/polyrun/internal/workspace"
)

// DefaultPreviewRetention is how long preview files are kept for the viewer.
const DefaultPreviewRetention = time.Hour

const cssPreviewTemplate = `<!DOCTYPE html>
<html>
<head>
    <title>CSS Preview</title>
    <style>
%s
    </style>
</head>
<body>
    <h1>CSS Preview</h1>
    <p>This is a paragraph to test your CSS styles.</p>
    <div class="test-div">This is a test div element.</div>
    <button class="test-button">Test Button</button>
</body>
</html>
`

// Opener hands a file to the operating system's default application.
type Opener interface {
	Open(path string) error
}

// SystemOpener launches the platform opener without waiting for the viewer.
type SystemOpener struct{}

func (SystemOpener) Open(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	// Reap the launcher in the background; the viewer is not our concern.
	go func() { _ = cmd.Wait() }()
	return nil
}

// PreviewConfig configures where preview files live and how they are opened.
type PreviewConfig struct {
	Dir       string
	Retention time.Duration
	Opener    Opener
}

// PreviewStrategy writes markup to a file and opens it in the default viewer.
type PreviewStrategy struct {
	lang   workspace.Language
	config PreviewConfig
}

// NewPreviewStrategy creates a preview strategy for html or css.
func NewPreviewStrategy(lang workspace.Language, config PreviewConfig) *PreviewStrategy {
	if config.Retention <= 0 {
		config.Retention = DefaultPreviewRetention
	}
	if config.Opener == nil {
		config.Opener = SystemOpener{}
	}
	return &PreviewStrategy{lang: lang, config: config}
}

func (s *PreviewStrategy) Language() workspace.Language {
	return s.lang
}

// Prepare sweeps expired previews and materializes the new document.
func (s *PreviewStrategy) Prepare(_ context.Context, req ExecutionRequest) (Prepared, error) {
	pruneStalePreviews(s.config.Dir, s.config.Retention, time.Now())

	content := req.Code
	if s.lang == workspace.LangCSS {
		content = fmt.Sprintf(cssPreviewTemplate, req.Code)
	}

	artifact, err := CreateFileArtifact(s.config.Dir, ".html", []byte(content))
	if err != nil {
		return nil, stageErr("prepare", s.lang, err)
	}
	return &previewRun{strategy: s, artifact: artifact}, nil
}

type previewRun struct {
	strategy *PreviewStrategy
	artifact *Artifact
	opened   bool
}

func (r *previewRun) Invoke(_ context.Context) (ExecutionResult, error) {
	abs, err := filepath.Abs(r.artifact.Path())
	if err != nil {
		return ExecutionResult{}, stageErr("open", r.strategy.lang, err)
	}
	if err := r.strategy.config.Opener.Open(abs); err != nil {
		return ExecutionResult{}, stageErr("open", r.strategy.lang, err)
	}
	r.opened = true

	return ExecutionResult{
		Language: r.strategy.lang,
		Outcome:  OutcomeCompleted,
		Location: fileURL(abs),
	}, nil
}

// Cleanup keeps an opened preview for the viewer; pruneStalePreviews removes
// it once it expires.
func (r *previewRun) Cleanup() error {
	if r.opened {
		return nil
	}
	return r.artifact.Release()
}

func fileURL(abs string) string {
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return "file://" + p
}

func pruneStalePreviews(dir string, retention time.Duration, now time.Time) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, ArtifactPrefix) || !strings.HasSuffix(name, ".html") {
			continue
		}
		info, err := entry.Info()
		if err != nil || now.Sub(info.ModTime()) < retention {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			log.Printf("WARNING: failed to remove expired preview %s: %v", name, err)
		}
	}
}
