package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/internal/store"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Browse stored leads",
}

var leadsListFilter store.LeadFilter

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leads with optional search, domain filter and sort",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		filter := leadsListFilter
		filter.Domain = model.NormalizeDomain(filter.Domain)
		filter.Tag = model.NormalizeTag(filter.Tag)

		leads, err := env.Store.ListLeads(ctx, filter)
		if err != nil {
			return err
		}
		stats, err := env.Store.LeadStats(ctx, filter)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{"leads": leads, "stats": stats})
	},
}

var companiesCmd = &cobra.Command{
	Use:   "companies",
	Short: "Browse and manage stored companies",
}

var companiesListFilter store.CompanyFilter

var companiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List companies by lead count",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		companies, err := env.Store.ListCompanies(ctx, companiesListFilter)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), companies)
	},
}

var companiesDeleteCmd = &cobra.Command{
	Use:   "delete <domain>",
	Short: "Delete a company and its notes; its leads are kept without a company",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		c, err := env.Store.GetCompanyByDomain(ctx, model.NormalizeDomain(args[0]))
		if err != nil {
			return err
		}
		return env.Store.DeleteCompany(ctx, c.ID)
	},
}

func init() {
	f := leadsListCmd.Flags()
	f.StringVar(&leadsListFilter.Search, "search", "", "match name, email, company, domain or tag")
	f.StringVar(&leadsListFilter.Domain, "domain", "", "only leads on this domain")
	f.StringVar(&leadsListFilter.Tag, "tag", "", "only leads carrying this tag")
	f.StringVar(&leadsListFilter.Sort, "sort", "", "name, job_title, email, company, score or stage")
	f.IntVar(&leadsListFilter.Limit, "limit", 50, "page size (0 = all)")
	f.IntVar(&leadsListFilter.Offset, "offset", 0, "rows to skip")
	leadsCmd.AddCommand(leadsListCmd)
	rootCmd.AddCommand(leadsCmd)

	cf := companiesListCmd.Flags()
	cf.StringVar(&companiesListFilter.Search, "search", "", "match name or domain")
	cf.BoolVar(&companiesListFilter.Unenriched, "unenriched", false, "only companies never enriched")
	cf.IntVar(&companiesListFilter.Limit, "limit", 50, "page size (0 = all)")
	cf.IntVar(&companiesListFilter.Offset, "offset", 0, "rows to skip")
	companiesCmd.AddCommand(companiesListCmd, companiesDeleteCmd)
	rootCmd.AddCommand(companiesCmd)
}
