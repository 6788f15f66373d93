package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leads-cli/internal/fetcher"
	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/internal/pipeline"
)

var (
	importCSVPath  string
	importXLSXPath string
	importSheet    string
)

var importCmd = &cobra.Command{
	Use:   "import [location]",
	Short: "Import, enrich and score leads from a CSV or XLSX file",
	Long:  "Reads a local path or an http(s)/ftp URL. The format follows --csv/--xlsx or the file extension.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		location, format, err := importLocation(args)
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

		tbl, err := fetcher.ReadTable(ctx, location, fetchOptions(format, importSheet))
		if err != nil {
			return eris.Wrap(err, "import: read file")
		}
		if !tbl.Has("email") {
			zap.L().Warn("import: no email column found", zap.Strings("header", tbl.Header))
		}

		report := env.Importer.ImportBatch(ctx, pipeline.RowsFromTable(tbl))
		counts := report.Counts()
		zap.L().Info("import complete",
			zap.String("location", location),
			zap.Int("rows", len(report.Rows)),
			zap.Int("created", counts[model.OutcomeCreated]),
			zap.Int("updated", counts[model.OutcomeUpdated]),
			zap.Int("rejected", counts[model.OutcomeRejected]),
			zap.Int("partial", counts[model.OutcomePartialEnrich]),
			zap.Bool("cancelled", report.Cancelled),
		)
		return printJSON(cmd.OutOrStdout(), report)
	},
}

// importLocation resolves the file from the flags or the positional arg.
func importLocation(args []string) (string, fetcher.Format, error) {
	var candidates []string
	var format fetcher.Format
	if importCSVPath != "" {
		candidates = append(candidates, importCSVPath)
		format = fetcher.FormatCSV
	}
	if importXLSXPath != "" {
		candidates = append(candidates, importXLSXPath)
		format = fetcher.FormatXLSX
	}
	candidates = append(candidates, args...)

	switch len(candidates) {
	case 0:
		return "", "", eris.New("import: a file is required (--csv, --xlsx or a location argument)")
	case 1:
		return candidates[0], format, nil
	default:
		return "", "", eris.New("import: give exactly one of --csv, --xlsx or a location argument")
	}
}

func init() {
	importCmd.Flags().StringVar(&importCSVPath, "csv", "", "path or URL of a CSV file")
	importCmd.Flags().StringVar(&importXLSXPath, "xlsx", "", "path or URL of an XLSX workbook")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "XLSX sheet name (default first sheet)")
	rootCmd.AddCommand(importCmd)
}
