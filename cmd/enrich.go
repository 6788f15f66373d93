package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/leads-cli/internal/pipeline"
	"github.com/sells-group/leads-cli/internal/store"
)

var enrichMode string

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Re-run enrichment for stored leads or companies",
}

var enrichLeadsSel selectionFlags

var enrichLeadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Re-enrich selected leads",
	RunE: func(cmd *cobra.Command, _ []string) error {
		mode, err := pipeline.ParseMode(enrichMode)
		if err != nil {
			return err
		}

		ctx, stop := signalContext(cmd)
		defer stop()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Importer.Reenrich(ctx, enrichLeadsSel.selection(), mode)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

var (
	enrichCompaniesSearch string
	enrichCompaniesLimit  int
)

var enrichCompaniesCmd = &cobra.Command{
	Use:   "companies",
	Short: "Enrich company profiles from their homepage and AI extraction",
	RunE: func(cmd *cobra.Command, _ []string) error {
		mode, err := pipeline.ParseMode(enrichMode)
		if err != nil {
			return err
		}

		ctx, stop := signalContext(cmd)
		defer stop()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Importer.EnrichCompanies(ctx, store.CompanyFilter{
			Search: enrichCompaniesSearch,
			Limit:  enrichCompaniesLimit,
		}, mode)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

func init() {
	enrichCmd.PersistentFlags().StringVar(&enrichMode, "mode", "empty", "empty: fill missing fields only; all: overwrite with non-empty results")
	enrichLeadsSel.bind(enrichLeadsCmd)
	enrichCompaniesCmd.Flags().StringVar(&enrichCompaniesSearch, "search", "", "only companies whose name or domain matches")
	enrichCompaniesCmd.Flags().IntVar(&enrichCompaniesLimit, "limit", 0, "maximum companies to enrich (0 = all)")
	enrichCmd.AddCommand(enrichLeadsCmd, enrichCompaniesCmd)
	rootCmd.AddCommand(enrichCmd)
}
