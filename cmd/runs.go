package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/zakupki-realty/internal/model"
)

// runsCmd lists recent stage runs; "runs stats" summarizes them.
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent stage runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		stage, _ := cmd.Flags().GetString("stage")

		runs, err := st.ListStageRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}
		runs = filterRuns(runs, stage)

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(cmd.OutOrStdout(), runs)
		return nil
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-stage run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := st.ListStageRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(cmd.OutOrStdout(), computeRunStats(runs))
		return nil
	},
}

func init() {
	runsCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsCmd.Flags().String("stage", "", "filter by stage (ingest, extract, links, listings)")

	runsStatsCmd.Flags().Int("limit", 1000, "number of most recent runs to summarize")

	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

func filterRuns(runs []model.StageRun, stage string) []model.StageRun {
	if stage == "" {
		return runs
	}
	out := runs[:0:0]
	for _, r := range runs {
		if r.Stage == stage {
			out = append(out, r)
		}
	}
	return out
}

// stageStats aggregates runs of one stage.
type stageStats struct {
	Stage      string
	Total      int
	Succeeded  int
	Failed     int
	AvgDurSecs float64
}

// computeRunStats groups runs by stage in pipeline order.
func computeRunStats(runs []model.StageRun) []stageStats {
	order := []string{model.StageIngest, model.StageExtract, model.StageLinks, model.StageListings}
	byStage := make(map[string]*stageStats, len(order))
	durs := make(map[string]time.Duration, len(order))

	for _, r := range runs {
		s, ok := byStage[r.Stage]
		if !ok {
			s = &stageStats{Stage: r.Stage}
			byStage[r.Stage] = s
			if !slices.Contains(order, r.Stage) {
				order = append(order, r.Stage)
			}
		}
		s.Total++
		if r.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
		durs[r.Stage] += r.FinishedAt.Sub(r.StartedAt)
	}

	var out []stageStats
	for _, stage := range order {
		s, ok := byStage[stage]
		if !ok {
			continue
		}
		s.AvgDurSecs = durs[stage].Seconds() / float64(s.Total)
		out = append(out, *s)
	}
	return out
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.StageRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTAGE\tRESULT\tUSER\tSTARTED\tDURATION\tMESSAGE")
	_, _ = fmt.Fprintln(w, "--\t-----\t------\t----\t-------\t--------\t-------")

	for _, r := range runs {
		result := "ok"
		if !r.Success {
			result = "failed"
		}
		user := "-"
		if r.UserID != nil {
			user = fmt.Sprintf("%d", *r.UserID)
		}
		msg := []rune(r.Message)
		if len(msg) > 60 {
			msg = append(msg[:57], []rune("...")...)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Stage,
			result,
			user,
			r.StartedAt.Format("2006-01-02 15:04"),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String(),
			string(msg),
		)
	}
	_ = w.Flush()
}

// formatRunStats writes per-stage stats to w.
func formatRunStats(out io.Writer, stats []stageStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STAGE\tRUNS\tOK\tFAILED\tAVG")
	for _, s := range stats {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.1fs\n", s.Stage, s.Total, s.Succeeded, s.Failed, s.AvgDurSecs)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
