package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/zakupki-realty/internal/model"
	"github.com/sells-group/zakupki-realty/internal/pipeline"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show record counts and pipeline progress",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.Pipeline.GetStatistics(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		admin, err := env.Pipeline.GetAdminStatus(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"statistics": stats,
				"status":     admin,
			})
		}
		formatStatus(cmd.OutOrStdout(), stats, admin)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Schema up to date: %s\n", cfg.Store.Path)
		return nil
	},
}

// formatStatus writes table counts followed by per-status counts in
// lifecycle order.
func formatStatus(out io.Writer, stats model.Statistics, admin *pipeline.AdminStatus) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Records:\t%d\n", stats.Records)
	_, _ = fmt.Fprintf(w, "Extraction results:\t%d\n", stats.ExtractionResults)
	_, _ = fmt.Fprintf(w, "Listings:\t%d\n", stats.Listings)
	_, _ = fmt.Fprintln(w)

	for _, s := range model.AllStatuses() {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", s, admin.ByStatus[s])
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "Needs AI:\t%d\n", admin.Summary.NeedsAI)
	_, _ = fmt.Fprintf(w, "Needs links:\t%d\n", admin.Summary.NeedsLinks)
	_, _ = fmt.Fprintf(w, "Ready for users:\t%d\n", admin.Summary.ReadyForUsers)
	_, _ = fmt.Fprintf(w, "Completed:\t%d\n", admin.Summary.Completed)
	_ = w.Flush()
}

func init() {
	statusCmd.Flags().Bool("json", false, "print as JSON")
	rootCmd.AddCommand(statusCmd, migrateCmd)
}
