package main

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/zakupki-realty/internal/model"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Download new notices and their documents",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initPipeline(ctx, "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		return finish(cmd.OutOrStdout(), env.Pipeline.RunIngestion(ctx, limit))
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract property attributes with the LLM",
	Long:  "Without --ids every stored record is considered. With --ids only records the user selected at intake review are processed.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initPipeline(ctx, "extract")
		if err != nil {
			return err
		}
		defer env.Close()

		user, limit, ids := stageFlags(cmd)
		return finish(cmd.OutOrStdout(), env.Pipeline.RunExtraction(ctx, user, limit, ids))
	},
}

var linksCmd = &cobra.Command{
	Use:   "links",
	Short: "Generate 2GIS search links from extraction results",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initPipeline(ctx, "links")
		if err != nil {
			return err
		}
		defer env.Close()

		user, limit, ids := stageFlags(cmd)
		return finish(cmd.OutOrStdout(), env.Pipeline.RunLinkGeneration(ctx, user, limit, ids))
	},
}

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "Collect listings for records with a search link",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initPipeline(ctx, "listings")
		if err != nil {
			return err
		}
		defer env.Close()

		user, limit, ids := stageFlags(cmd)
		topN, _ := cmd.Flags().GetInt("top-n")
		details, _ := cmd.Flags().GetBool("details")
		selected, _ := cmd.Flags().GetBool("selected")
		if selected {
			return finish(cmd.OutOrStdout(), env.Pipeline.RunSelectedListingCollection(ctx, user, topN, details))
		}
		return finish(cmd.OutOrStdout(), env.Pipeline.RunListingCollection(ctx, user, topN, limit, details, ids))
	},
}

// stageFlags reads --user, --limit and --ids.
func stageFlags(cmd *cobra.Command) (int64, int, []string) {
	user, _ := cmd.Flags().GetInt64("user")
	limit, _ := cmd.Flags().GetInt("limit")
	raw, _ := cmd.Flags().GetStringSlice("ids")
	var ids []string
	for _, id := range raw {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return user, limit, ids
}

// finish prints the stage result. A failed stage exits non-zero only when
// it carries errors; "nothing to do" is not a failure.
func finish(out io.Writer, res *model.StageResult) error {
	if err := printJSON(out, res); err != nil {
		return err
	}
	if !res.Success && len(res.Errors) > 0 {
		return eris.Errorf("%s: %s", res.Stage, res.Message)
	}
	return nil
}

func init() {
	ingestCmd.Flags().Int("limit", 10, "maximum new records to download")

	for _, c := range []*cobra.Command{extractCmd, linksCmd, listingsCmd} {
		c.Flags().Int64("user", 1, "acting user id")
		c.Flags().Int("limit", 0, "maximum records to process (0 = no limit)")
		c.Flags().StringSlice("ids", nil, "comma-separated reg numbers to process")
	}
	listingsCmd.Flags().Int("top-n", 0, "listings per record (default from config)")
	listingsCmd.Flags().Bool("details", false, "fetch listing detail pages for build year")
	listingsCmd.Flags().Bool("selected", false, "process the user's selections and clear them")

	rootCmd.AddCommand(ingestCmd, extractCmd, linksCmd, listingsCmd)
}
