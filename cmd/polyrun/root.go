package main

import (
	"os"
	"path/filepath"

	"github.com/ChamsBouzaiene/polyrun/internal/project"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "polyrun [file]",
	Short: "Run Python, JavaScript, C#, HTML, CSS and JSON from one place",
	Long: `polyrun - execute a snippet or file in the right runtime and get one report.

Python and JavaScript run through their interpreters, C# is built as a
throwaway .NET project, HTML and CSS open in the browser, and JSON is
validated and pretty-printed. Code can come from a file, the -c flag, or
stdin ("-").`,
	Args:          cobra.MaximumNArgs(1),
	RunE:          runRun, // Default to run command behavior
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log one line per execution to stderr")

	addRunFlags(rootCmd)
}

func verbose(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("verbose")
	return v
}

// workingDir returns the current directory, or "" when it cannot be resolved.
func workingDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return wd
}

// projectRootFor returns the nearest project root above path, falling back to
// the directory holding path.
func projectRootFor(path string) string {
	if path == "" || path == "-" {
		return project.FindRoot(workingDir())
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return project.FindRoot(workingDir())
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return project.FindRoot(abs)
	}
	return project.FindRoot(filepath.Dir(abs))
}
