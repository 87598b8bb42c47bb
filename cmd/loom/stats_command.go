package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"loom/internal/artifact"
	"loom/internal/audio"
)

// newStatsCommand reports dataset-level counts for a project: files, splits,
// segment verdicts, and catalogued speakers.
func newStatsCommand(app *appContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <project>",
		Short: "Report file, split, segment, and speaker counts for a project",
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

			store := run.Project.Store
			files, err := store.ListRawFiles()
			if err != nil {
				return err
			}

			var splitCount, good, bad int
			for _, file := range files {
				splitIDs, err := store.ListSplitIDs(file)
				if err != nil {
					return err
				}
				splitCount += len(splitIDs)
				for _, splitID := range splitIDs {
					g, b, err := countSegments(store, splitID)
					if err != nil {
						return err
					}
					good += g
					bad += b
				}
			}

			speakerCount, err := run.DB.SpeakerCount(cmd.Context())
			if err != nil {
				return err
			}

			rows := [][]string{
				{"Files", humanize.Comma(int64(len(files)))},
				{"Splits", humanize.Comma(int64(splitCount))},
				{"Good segments", humanize.Comma(int64(good))},
				{"Bad segments", humanize.Comma(int64(bad))},
				{"Speakers", humanize.Comma(int64(speakerCount))},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Metric", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
	return cmd
}

func countSegments(store *artifact.Store, splitID string) (good, bad int, err error) {
	var segments []audio.Segment
	if readErr := artifact.ReadJSON(store.SegmentsPath(splitID), &segments); readErr != nil {
		return 0, 0, readErr
	}
	for _, seg := range segments {
		if seg.Status == audio.StatusGood {
			good++
		} else {
			bad++
		}
	}
	return good, bad, nil
}
