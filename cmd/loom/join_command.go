package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// newJoinCommand merges one speaker's embeddings into another, for cleaning
// up diarization's occasional over-segmentation of a single real speaker.
func newJoinCommand(app *appContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join <project> <from> <to>",
		Short: "Merge speaker <from>'s catalog entry into speaker <to>",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ensureConfig()
			if err != nil {
				return err
			}
			projDir, err := app.projectDir(args[0])
			if err != nil {
				return err
			}
			from, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("%w: <from> must be a speaker id, got %q", errInvalidArgs, args[1])
			}
			to, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("%w: <to> must be a speaker id, got %q", errInvalidArgs, args[2])
			}
			if from == to {
				return fmt.Errorf("%w: <from> and <to> must differ", errInvalidArgs)
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

			run.DB.Lock()
			err = run.DB.Merge(cmd.Context(), from, to)
			run.DB.Unlock()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "merged speaker %d into speaker %d\n", from, to)
			return nil
		},
	}
	return cmd
}
