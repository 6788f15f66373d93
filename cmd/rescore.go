package main

import (
	"github.com/spf13/cobra"
)

var rescoreSel selectionFlags

var rescoreCmd = &cobra.Command{
	Use:   "rescore",
	Short: "Recompute score and stage for stored leads",
	Long:  "Recomputes from stored data only. No enrichment calls are made and repeated runs change nothing.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Importer.Rescore(ctx, rescoreSel.selection())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

func init() {
	rescoreSel.bind(rescoreCmd)
	rootCmd.AddCommand(rescoreCmd)
}
