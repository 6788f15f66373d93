package main

import (
	"context"
	"encoding/json"
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leads-cli/internal/pipeline"
)

// selectionFlags binds the lead selection flags shared by bulk commands.
type selectionFlags struct {
	ids    []string
	emails []string
	tag    string
	domain string
	all    bool
}

func (f *selectionFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.ids, "id", nil, "lead IDs (repeatable or comma-separated)")
	cmd.Flags().StringSliceVar(&f.emails, "email", nil, "lead emails (repeatable or comma-separated)")
	cmd.Flags().StringVar(&f.tag, "tag", "", "select leads carrying this tag")
	cmd.Flags().StringVar(&f.domain, "domain", "", "select leads on this company domain")
	cmd.Flags().BoolVar(&f.all, "all", false, "select every lead")
}

func (f *selectionFlags) selection() pipeline.Selection {
	return pipeline.Selection{IDs: f.ids, Emails: f.emails, Tag: f.tag, Domain: f.domain, All: f.all}
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "encode output")
	}
	return nil
}
