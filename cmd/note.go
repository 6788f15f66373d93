package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/internal/store"
)

var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "Manage free-text notes on companies",
}

// companyID resolves a company by domain.
func companyID(cmd *cobra.Command, st store.Store, domain string) (string, error) {
	c, err := st.GetCompanyByDomain(cmd.Context(), model.NormalizeDomain(domain))
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

var noteAddCmd = &cobra.Command{
	Use:   "add <domain> <text>...",
	Short: "Add a note to a company",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		id, err := companyID(cmd, env.Store, args[0])
		if err != nil {
			return err
		}
		note, err := env.Store.AddNote(cmd.Context(), id, strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), note)
	},
}

var noteListCmd = &cobra.Command{
	Use:   "list <domain>",
	Short: "List a company's notes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		id, err := companyID(cmd, env.Store, args[0])
		if err != nil {
			return err
		}
		notes, err := env.Store.ListNotes(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), notes)
	},
}

var noteUpdateCmd = &cobra.Command{
	Use:   "update <note-id> <text>...",
	Short: "Replace a note's text",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		return env.Store.UpdateNote(cmd.Context(), args[0], strings.Join(args[1:], " "))
	},
}

var noteDeleteCmd = &cobra.Command{
	Use:   "delete <note-id>",
	Short: "Delete a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		return env.Store.DeleteNote(cmd.Context(), args[0])
	},
}

func init() {
	noteCmd.AddCommand(noteAddCmd, noteListCmd, noteUpdateCmd, noteDeleteCmd)
	rootCmd.AddCommand(noteCmd)
}
