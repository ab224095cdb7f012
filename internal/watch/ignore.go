package watch

import (
	"bufio"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/ChamsBouzaiene/polyrun/internal/project"
)

// DefaultIgnorePatterns are directories and files never re-run.
var DefaultIgnorePatterns = []string{
	".git",
	project.Dir,
	"node_modules",
	"__pycache__",
	".venv",
	"venv",
	"bin",
	"obj",
	"dist",
	"build",
	".idea",
	".vscode",
	".DS_Store",
}

// loadIgnorePatterns combines the defaults, the root .gitignore and the
// project's .polyrun/ignore file.
func loadIgnorePatterns(root string) []string {
	patterns := make([]string, 0, len(DefaultIgnorePatterns)+10)
	patterns = append(patterns, DefaultIgnorePatterns...)

	if lines, err := readGitignoreLines(filepath.Join(root, ".gitignore")); err == nil {
		patterns = append(patterns, lines...)
	}

	extra, err := project.LoadIgnorePatterns(root)
	if err != nil {
		log.Printf("WARNING: %v", err)
	}
	return append(patterns, extra...)
}

func readGitignoreLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
