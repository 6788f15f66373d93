package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/leads-cli/internal/contactsync"
)

var (
	syncSel      selectionFlags
	syncFullTags bool
	syncDryRun   bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push selected leads to the configured contact lists",
	Long: "Pushes email, name, tags, stage and score. With --tag each member is tagged with that tag only, " +
		"unless --full-tags keeps every tag the lead carries.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		filter, err := syncSel.selection().Filter()
		if err != nil {
			return err
		}
		opts := contactsync.Options{DryRun: syncDryRun}
		if !syncFullTags {
			opts.Tag = syncSel.tag
		}

		report, err := newSyncer(cfg, env.Store).Sync(ctx, filter, opts)
		if report != nil {
			if perr := printJSON(cmd.OutOrStdout(), report); perr != nil {
				return perr
			}
		}
		return err
	},
}

func init() {
	syncSel.bind(syncCmd)
	syncCmd.Flags().BoolVar(&syncFullTags, "full-tags", false, "send each lead's full tag list instead of only --tag")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "print the prepared members without pushing them")
	rootCmd.AddCommand(syncCmd)
}
