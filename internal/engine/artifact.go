package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// ArtifactPrefix starts the name of every temporary file or directory the
// engine creates.
const ArtifactPrefix = "polyrun-"

// Artifact is a temporary file or directory owned by exactly one execution.
type Artifact struct {
	path string
	dir  bool

	once sync.Once
	err  error
}

func artifactName(ext string) string {
	return ArtifactPrefix + uuid.NewString() + ext
}

// CreateFileArtifact writes content to a new, uniquely named file under root.
func CreateFileArtifact(root, ext string, content []byte) (*Artifact, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create temp root: %w", err)
	}

	path := filepath.Join(root, artifactName(ext))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	_, writeErr := f.Write(content)
	closeErr := f.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write temp file: %w", err)
	}

	return &Artifact{path: path}, nil
}

// CreateDirArtifact creates a new, uniquely named directory under root.
func CreateDirArtifact(root string) (*Artifact, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create temp root: %w", err)
	}

	path := filepath.Join(root, artifactName(""))
	if err := os.Mkdir(path, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	return &Artifact{path: path, dir: true}, nil
}

// Path returns the absolute or root-relative location of the artifact.
func (a *Artifact) Path() string {
	return a.path
}

// WriteFile creates name inside a directory artifact.
func (a *Artifact) WriteFile(name string, content []byte) error {
	if !a.dir {
		return fmt.Errorf("artifact %s is not a directory", a.path)
	}
	return os.WriteFile(filepath.Join(a.path, name), content, 0o644)
}

// Release removes the artifact. Directories are removed recursively. Only the
// first call does any work; later calls return the same error.
func (a *Artifact) Release() error {
	a.once.Do(func() {
		var err error
		if a.dir {
			err = os.RemoveAll(a.path)
		} else {
			err = os.Remove(a.path)
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			a.err = fmt.Errorf("remove %s: %w", a.path, err)
		}
	})
	return a.err
}
