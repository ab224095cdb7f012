package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ChamsBouzaiene/polyrun/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start an HTTP server that exposes the execution engine.

Endpoints:
  GET    /healthz                Health check
  GET    /api/languages          Executable languages
  POST   /api/run                Run code, returns the result and report
  POST   /api/fix                Ask the configured model for a fix
  GET    /api/history            Recent runs (?limit=)
  GET    /api/history/search     Full-text search over runs (?q=&limit=)
  GET    /api/history/{id}       One recorded run`,
	Args:          cobra.NoArgs,
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "Address to listen on")
	serveCmd.Flags().Duration("max-timeout", 10*time.Minute, "Largest timeout_ms a client may request")
	serveCmd.Flags().Bool("json-logs", false, "Log requests as JSON")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := prepareRuntimeEnv(ctx, envOptions{
		ProjectRoot: projectRootFor(""),
		Verbose:     verbose(cmd),
	})
	if err != nil {
		return err
	}
	defer env.Close()

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, nil)
	if jsonLogs, _ := cmd.Flags().GetBool("json-logs"); jsonLogs {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	logger := slog.New(handler)

	addr, _ := cmd.Flags().GetString("addr")
	maxTimeout, _ := cmd.Flags().GetDuration("max-timeout")

	var fixer server.Fixer
	if f, _ := env.Fixer(); f != nil {
		fixer = f
	}
	var hist server.History
	if env.History != nil {
		hist = env.History
	}

	srv := server.New(server.Config{Addr: addr, MaxTimeout: maxTimeout, DefaultTimeout: env.Timeout}, env.Dispatcher, fixer, hist, logger)
	return srv.Start(ctx)
}
