package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Serve the NDJSON protocol on stdin/stdout for editor integrations",
	Long: `Read one JSON command per line from stdin and write one JSON event per
line to stdout. Logs go to stderr so stdout carries protocol traffic only.

Commands: run, fix, languages, get_config, save_config.`,
	Args:          cobra.NoArgs,
	RunE:          runStdio,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(stdioCmd)
}

func runStdio(cmd *cobra.Command, _ []string) error {
	log.SetOutput(os.Stderr)

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

	log.Println("🔌 Starting engine stdio bridge")
	return newStdIORunner(cmd.InOrStdin(), cmd.OutOrStdout(), env).Run(ctx)
}
