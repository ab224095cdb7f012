package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var languagesCmd = &cobra.Command{
	Use:           "languages",
	Short:         "List the languages polyrun can execute",
	Args:          cobra.NoArgs,
	RunE:          runLanguages,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(languagesCmd)
}

func runLanguages(cmd *cobra.Command, _ []string) error {
	env, err := prepareRuntimeEnv(cmd.Context(), envOptions{ProjectRoot: projectRootFor("")})
	if err != nil {
		return err
	}
	defer env.Close()

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEXTENSION")
	for _, lang := range env.Dispatcher.Languages() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", lang, lang.DisplayName(), lang.Extension())
	}
	return tw.Flush()
}
