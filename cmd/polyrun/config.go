package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ChamsBouzaiene/polyrun/internal/config"
	"github.com/ChamsBouzaiene/polyrun/internal/engine"
	"github.com/ChamsBouzaiene/polyrun/internal/providers"
	"github.com/ChamsBouzaiene/polyrun/internal/sandbox"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update persisted settings",
	Long: `Without flags, print the saved configuration with the API key masked.
With flags, merge the given values into the saved configuration.

Environment variables and a .env file in the working directory take
precedence over saved values.`,
	Args:          cobra.NoArgs,
	RunE:          runConfig,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	configCmd.Flags().String("provider", "", "LLM provider: openai, anthropic, ollama, lmstudio, deepseek, groq")
	configCmd.Flags().String("key", "", "API key for the provider")
	configCmd.Flags().String("model", "", "Model used for --fix")
	configCmd.Flags().String("base-url", "", "Override the provider endpoint")
	configCmd.Flags().String("sandbox", "", "Sandbox mode: host, docker or auto")
	configCmd.Flags().String("timeout", "", "Default run timeout, e.g. 30s")
	configCmd.Flags().String("history", "", "Run history database path")
	configCmd.Flags().Bool("test", false, "Send a short prompt to check the provider settings")
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, _ []string) error {
	mgr, err := config.NewManager()
	if err != nil {
		return err
	}

	update, err := configUpdateFromFlags(cmd)
	if err != nil {
		return err
	}

	cfg, err := mgr.Load()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if update != (config.Config{}) {
		cfg.Merge(update)
		if err := mgr.Save(cfg); err != nil {
			return err
		}
		fmt.Fprintf(out, "✅ Saved %s\n", mgr.GetConfigPath())
		applyConfigToEnv(cfg, true)
	}

	printConfig(out, mgr.GetConfigPath(), cfg)

	if test, _ := cmd.Flags().GetBool("test"); test {
		return testProvider(cmd.Context(), out)
	}
	return nil
}

func configUpdateFromFlags(cmd *cobra.Command) (config.Config, error) {
	get := func(name string) string {
		v, _ := cmd.Flags().GetString(name)
		return v
	}

	update := config.Config{
		LLMProvider: get("provider"),
		APIKey:      get("key"),
		Model:       get("model"),
		BaseURL:     get("base-url"),
		SandboxMode: get("sandbox"),
		Timeout:     get("timeout"),
		HistoryPath: get("history"),
	}

	if update.SandboxMode != "" {
		switch sandbox.Mode(update.SandboxMode) {
		case sandbox.ModeHost, sandbox.ModeDocker, sandbox.ModeAuto:
		default:
			return config.Config{}, fmt.Errorf("invalid sandbox mode %q: use host, docker or auto", update.SandboxMode)
		}
	}
	if update.Timeout != "" {
		if d, err := time.ParseDuration(update.Timeout); err != nil || d <= 0 {
			return config.Config{}, fmt.Errorf("invalid timeout %q: use a positive duration such as 30s", update.Timeout)
		}
	}
	if update.LLMProvider != "" && !isSupportedProvider(update.LLMProvider) {
		return config.Config{}, fmt.Errorf("unknown provider %q (supported: %v)", update.LLMProvider, providers.Supported)
	}
	return update, nil
}

func isSupportedProvider(name string) bool {
	for _, p := range providers.Supported {
		if p == name {
			return true
		}
	}
	return false
}

func printConfig(out io.Writer, path string, cfg *config.Config) {
	r := cfg.Redacted()
	fmt.Fprintf(out, "Config file: %s\n", path)
	for _, kv := range [][2]string{
		{"llm_provider", r.LLMProvider},
		{"api_key", r.APIKey},
		{"model", r.Model},
		{"base_url", r.BaseURL},
		{"sandbox_mode", r.SandboxMode},
		{"timeout", r.Timeout},
		{"history_path", r.HistoryPath},
	} {
		v := kv[1]
		if v == "" {
			v = "(unset)"
		}
		fmt.Fprintf(out, "  %-13s %s\n", kv[0], v)
	}
}

func testProvider(ctx context.Context, out io.Writer) error {
	client, model, err := providers.NewLLMClientFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("provider not configured: %w", err)
	}
	fixer := engine.NewFixer(client, model)

	fmt.Fprintf(out, "🔍 Testing %s...\n", model)
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := fixer.TestConnection(ctx); err != nil {
		if engine.IsAuthError(err) {
			return errors.Join(errors.New("connection test failed: the provider rejected the API key"), err)
		}
		return errors.Join(errors.New("connection test failed"), err)
	}
	fmt.Fprintln(out, "✅ Provider reachable")
	return nil
}
