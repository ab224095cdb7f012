package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ChamsBouzaiene/polyrun/internal/watch"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Re-run files whenever they change",
	Long: `Watch a file or directory and print a fresh report each time a runnable
file is saved. Paths matched by .gitignore, .polyrun/ignore or the built-in
ignore list are skipped.`,
	Args:          cobra.MaximumNArgs(1),
	RunE:          runWatch,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	watchCmd.Flags().Duration("timeout", 0, "Per-run timeout")
	watchCmd.Flags().Duration("debounce", watch.DefaultDebounce, "Quiet period before a changed file is re-run")
	watchCmd.Flags().Bool("initial", false, "Run the watched file once before waiting for changes")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	timeout, _ := cmd.Flags().GetDuration("timeout")
	env, err := prepareRuntimeEnv(ctx, envOptions{
		ProjectRoot: projectRootFor(path),
		Timeout:     timeout,
		Verbose:     verbose(cmd),
	})
	if err != nil {
		return err
	}
	defer env.Close()

	debounce, _ := cmd.Flags().GetDuration("debounce")
	w, err := watch.New(path, env.Dispatcher, cmd.OutOrStdout(), watch.Options{
		Timeout:  env.Timeout,
		Debounce: debounce,
	})
	if err != nil {
		return err
	}

	if initial, _ := cmd.Flags().GetBool("initial"); initial {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			w.RunFile(ctx, path)
		}
	}

	log.Printf("👀 Watching %s (Ctrl+C to stop)", w.Root())
	if err := w.Run(ctx); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	return nil
}
