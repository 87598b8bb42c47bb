package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"loom/internal/artifact"
	"loom/internal/audio"
	"loom/internal/operator"
	"loom/internal/validation"
)

// newValidateCommand re-runs round-trip validation across every split of
// every ingested file in a project, independent of a full pipeline run —
// useful after swapping the ASR binary or tightening the threshold.
func newValidateCommand(app *appContext) *cobra.Command {
	var maxWorkers int
	var threshold float64
	var deleteBad bool

	cmd := &cobra.Command{
		Use:   "validate <project>",
		Short: "Re-validate every good segment's clip against its recorded text",
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
			settings := validation.Settings{ThresholdPercent: threshold, MaxWorkers: maxWorkers, CheckpointEvery: 50}
			if settings.ThresholdPercent <= 0 {
				settings.ThresholdPercent = run.Project.Settings.ValidationThreshold
			}
			if settings.MaxWorkers <= 0 {
				settings.MaxWorkers = run.Project.Settings.MaxWorkers
			}
			transcriber := operator.NewRoundTripTranscriber(cfg.TranscribeBin)

			files, err := store.ListRawFiles()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var totalBad int
			for _, file := range files {
				splitIDs, err := store.ListSplitIDs(file)
				if err != nil {
					return err
				}
				for _, splitID := range splitIDs {
					bad, err := validateSplit(cmd, store, splitID, transcriber, settings, deleteBad)
					if err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", splitID, err)
						continue
					}
					totalBad += bad
					fmt.Fprintf(out, "%s: %d newly bad\n", splitID, bad)
				}
			}
			if totalBad > 0 {
				fmt.Fprintf(out, "%d segment(s) marked bad; see %s\n", totalBad, store.BadSegmentsPath())
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Bounded worker pool size (defaults to project settings)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Similarity percentage required to pass (defaults to project settings)")
	cmd.Flags().BoolVar(&deleteBad, "delete-bad", false, "Remove the clip file for every segment that fails validation")
	return cmd
}

// validateSplit re-validates one split's good segments, writes the updated
// segment statuses back, appends newly bad ones to bad_segments.json, and
// returns how many segments turned bad this run.
func validateSplit(cmd *cobra.Command, store *artifact.Store, splitID string, transcriber validation.Transcriber, settings validation.Settings, deleteBad bool) (int, error) {
	var segments []audio.Segment
	if err := artifact.ReadJSON(store.SegmentsPath(splitID), &segments); err != nil {
		return 0, err
	}

	var jobs []validation.Job
	for _, seg := range segments {
		if seg.Status != audio.StatusGood {
			continue
		}
		jobs = append(jobs, validation.Job{
			SplitID:   splitID,
			SegIdx:    seg.SegIdx,
			AudioPath: clipPathFor(store, splitID, seg),
			Text:      seg.Main.Text,
		})
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	results := validation.Run(cmd.Context(), jobs, transcriber, settings, nil)
	finalSegments := validation.ApplyVerdicts(segments, results)

	if err := artifact.WriteJSON(store.SegmentsPath(splitID), finalSegments); err != nil {
		return 0, err
	}
	if err := operator.RecordBadSegments(store, splitID, finalSegments, results); err != nil {
		return 0, err
	}

	var newlyBad int
	for i, seg := range finalSegments {
		if seg.Status != audio.StatusGood && segments[i].Status == audio.StatusGood {
			newlyBad++
			if deleteBad {
				_ = os.Remove(clipPathFor(store, splitID, seg))
			}
		}
	}
	return newlyBad, nil
}

func clipPathFor(store *artifact.Store, splitID string, seg audio.Segment) string {
	return fmt.Sprintf("%s/%03d.wav", store.SpeakerClipDir(splitID, seg.Main.SpeakerID), seg.SegIdx)
}
