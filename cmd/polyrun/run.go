package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ChamsBouzaiene/polyrun/internal/engine"
	"github.com/ChamsBouzaiene/polyrun/internal/workspace"
	"github.com/spf13/cobra"
)

// errRunFailed signals a run that finished without success. The report has
// already been printed, so main only sets the exit status.
var errRunFailed = errors.New("run failed")

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Run code once and print the report",
	Long: `Execute a snippet in the runtime for its language.

Code can be provided via:
  - File argument: polyrun run script.py
  - Inline flag:   polyrun run -l python -c 'print(1+1)'
  - Stdin:         echo 'console.log(1)' | polyrun run -l js -

Without --lang the language is taken from the file extension, then guessed
from the content.`,
	Args:          cobra.MaximumNArgs(1),
	RunE:          runRun,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("code", "c", "", "Code to execute")
	cmd.Flags().StringP("lang", "l", "", "Language: python, javascript, csharp, html, css, json (default: auto-detect)")
	cmd.Flags().Duration("timeout", 0, "Execution timeout (default: POLYRUN_TIMEOUT, project config, user config, then 30s)")
	cmd.Flags().String("schema", "", "JSON Schema used to validate JSON input")
	cmd.Flags().Bool("fix", false, "Ask the configured model for a fix when the run fails")
}

// readSource resolves the code to run and the path it came from, if any.
func readSource(cmd *cobra.Command, args []string, stdin io.Reader) (source, path string, err error) {
	code, _ := cmd.Flags().GetString("code")

	switch {
	case code != "":
		return code, "", nil
	case len(args) > 0 && args[0] != "-":
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", "", err
		}
		return string(data), args[0], nil
	case len(args) > 0:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), "", nil
	}

	if f, ok := stdin.(*os.File); ok {
		// No piped input
		if stat, err := f.Stat(); err == nil && stat.Mode()&os.ModeCharDevice != 0 {
			return "", "", nil
		}
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), "", nil
}

// resolveLanguage applies --lang, then the file extension, then content
// detection. Names the engine does not know are passed through so the
// report can name them.
func resolveLanguage(langFlag, path, source string) workspace.Language {
	if langFlag != "" {
		return workspace.ParseLanguage(langFlag)
	}
	return workspace.Classify(path, source)
}

func runRun(cmd *cobra.Command, args []string) error {
	source, path, err := readSource(cmd, args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if source == "" && path == "" {
		return cmd.Help()
	}

	langFlag, _ := cmd.Flags().GetString("lang")
	lang := resolveLanguage(langFlag, path, source)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	timeout, _ := cmd.Flags().GetDuration("timeout")
	schema, _ := cmd.Flags().GetString("schema")
	env, err := prepareRuntimeEnv(ctx, envOptions{
		ProjectRoot: projectRootFor(path),
		Timeout:     timeout,
		SchemaPath:  schema,
		Verbose:     verbose(cmd),
	})
	if err != nil {
		return err
	}
	defer env.Close()

	res := env.Dispatcher.Execute(ctx, engine.ExecutionRequest{
		Code:     source,
		Language: lang,
		Timeout:  env.Timeout,
	})
	report := engine.FormatReport(res)
	out := cmd.OutOrStdout()
	fmt.Fprint(out, report)

	if res.Succeeded() {
		return nil
	}

	if fix, _ := cmd.Flags().GetBool("fix"); fix {
		suggestFix(ctx, env, out, source, lang, report)
	}
	return errRunFailed
}

func suggestFix(ctx context.Context, env *runtimeEnv, out io.Writer, source string, lang workspace.Language, report string) {
	fixer, ferr := env.Fixer()
	if !fixer.Available() {
		log.Printf("WARNING: --fix needs an AI provider: %v", ferr)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	fmt.Fprintf(out, "\n🤖 Asking %s for a fix...\n", fixer.Model())
	fixed, changed, err := fixer.Fix(ctx, source, lang, report)
	if err != nil {
		if engine.IsAuthError(err) {
			log.Printf("WARNING: fix failed, check the API key (polyrun config --key): %v", err)
			return
		}
		log.Printf("WARNING: fix failed: %v", err)
		return
	}
	if !changed {
		fmt.Fprintln(out, "No change suggested.")
		return
	}
	fmt.Fprintf(out, "\nSuggested %s:\n%s\n", lang.DisplayName(), fixed)
}
