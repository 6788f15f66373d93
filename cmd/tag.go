package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage lead tags",
}

var tagApplySel selectionFlags

var tagApplyCmd = &cobra.Command{
	Use:   "apply <name>",
	Short: "Apply a tag to the selected leads",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Importer.ApplyTag(ctx, tagApplySel.selection(), args[0])
		if err != nil {
			return err
		}
		zap.L().Info("tag applied", zap.String("tag", args[0]), zap.Int("leads", n))
		return printJSON(cmd.OutOrStdout(), map[string]any{"tag": args[0], "tagged": n})
	},
}

var tagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every tag",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		tags, err := env.Store.ListTags(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), tags)
	},
}

func init() {
	tagApplySel.bind(tagApplyCmd)
	tagCmd.AddCommand(tagApplyCmd, tagListCmd)
	rootCmd.AddCommand(tagCmd)
}
