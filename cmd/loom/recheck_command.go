package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"loom/internal/speakerdb"
)

// newRecheckCommand re-evaluates every stored embedding against a new
// similarity threshold and prints the resulting reassignment plan. It never
// mutates the catalog itself: review the plan, then apply changes one at a
// time with `loom join`.
func newRecheckCommand(app *appContext) *cobra.Command {
	var threshold float64

	cmd := &cobra.Command{
		Use:   "recheck <project>",
		Short: "Propose speaker reassignments under a new similarity threshold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ensureConfig()
			if err != nil {
				return err
			}
			projDir, err := app.projectDir(args[0])
			if err != nil {
				return err
			}

			logger, err := app.ensureLogger()
			if err != nil {
				return err
			}
			run, err := openPipelineRun(cfg, projDir, logger)
			if err != nil {
				return err
			}
			defer run.Close()

			t := threshold
			if t <= 0 {
				t = run.Project.Settings.SpeakerSimilarityThreshold
			}
			if t <= 0 {
				t = speakerdb.DefaultThreshold(run.Project.Settings.DiarizationBackend)
			}

			plan, err := run.DB.Recheck(cmd.Context(), t)
			if err != nil {
				return err
			}
			if len(plan) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no reassignments proposed")
				return nil
			}

			rows := make([][]string, 0, len(plan))
			for _, r := range plan {
				rows = append(rows, []string{
					fmt.Sprintf("%d", r.EmbeddingID),
					fmt.Sprintf("%d", r.From),
					fmt.Sprintf("%d", r.To),
					fmt.Sprintf("%.3f", r.Similarity),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Embedding", "From", "To", "Similarity"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
			))
			fmt.Fprintln(cmd.OutOrStdout(), "apply with: loom join <project> <from> <to>")
			return nil
		},
	}

	cmd.Flags().Float64Var(&threshold, "threshold", 0, "New similarity threshold (defaults to project settings)")
	return cmd
}
