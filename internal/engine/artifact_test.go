package engine

import (
	"bytes"
	"context"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ChamsBouzaiene/polyrun/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateFileArtifact(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "root")

	a, err := CreateFileArtifact(root, ".py", []byte("print(1)"))
	require.NoError(t, err)

	name := filepath.Base(a.Path())
	assert.True(t, strings.HasPrefix(name, ArtifactPrefix))
	assert.True(t, strings.HasSuffix(name, ".py"))

	content, err := os.ReadFile(a.Path())
	require.NoError(t, err)
	assert.Equal(t, "print(1)", string(content))

	assert.Error(t, a.WriteFile("x", nil), "file artifacts cannot hold files")

	require.NoError(t, a.Release())
	assert.NoFileExists(t, a.Path())
	assert.NoError(t, a.Release(), "release is idempotent")
}

func TestCreateDirArtifact(t *testing.T) {
	root := t.TempDir()

	a, err := CreateDirArtifact(root)
	require.NoError(t, err)
	require.NoError(t, a.WriteFile("Program.cs", []byte("class P {}")))
	require.NoError(t, os.MkdirAll(filepath.Join(a.Path(), "bin", "Debug"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(a.Path(), "bin", "Debug", "app.dll"), []byte{0}, 0o644))

	require.NoError(t, a.Release())
	assert.NoDirExists(t, a.Path())
	assert.Zero(t, entries(t, root))
}

func TestArtifactNamesAreUniqueUnderConcurrency(t *testing.T) {
	root := t.TempDir()
	workers := 20 + rand.Intn(30)

	var (
		mu    sync.Mutex
		names = map[string]bool{}
		wg    sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := 1 + rand.Intn(10)
			for j := 0; j < n; j++ {
				var (
					a   *Artifact
					err error
				)
				if rand.Intn(2) == 0 {
					a, err = CreateFileArtifact(root, ".js", []byte("1"))
				} else {
					a, err = CreateDirArtifact(root)
				}
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				assert.False(t, names[a.Path()], "duplicate artifact %s", a.Path())
				names[a.Path()] = true
				mu.Unlock()
				assert.NoError(t, a.Release())
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, entries(t, root))
}

func TestLoggerHook(t *testing.T) {
	var buf bytes.Buffer
	hook := LoggerHook{L: log.New(&buf, "", 0)}

	hook.AfterExecute(context.Background(),
		ExecutionRequest{Code: "print(1)", Language: workspace.LangPython},
		ExecutionResult{RunID: "abc", Outcome: OutcomeCompleted, ExitCode: exitCode(0), Duration: 1500 * time.Microsecond})

	line := buf.String()
	assert.Contains(t, line, "run=abc")
	assert.Contains(t, line, "lang=python")
	assert.Contains(t, line, "outcome=completed")
	assert.Contains(t, line, "exit=0")
	assert.Contains(t, line, "bytes=8")
}
