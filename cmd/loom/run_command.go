package main

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"loom/internal/logging"
	"loom/internal/orchestrator"
)

func newRunCommand(app *appContext) *cobra.Command {
	var override, segment, validate, clean, meta, copyClips, skip, archive bool

	cmd := &cobra.Command{
		Use:   "run <project>",
		Short: "Run the pipeline over every ingested file in a project",
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
			if override {
				// --override forces cached outputs to be ignored. The level
				// override only filters on top of the configured handler, so
				// debug-level freshness decisions appear only when the
				// configured log level is already debug.
				logger = logging.WithLevelOverride(logger, slog.LevelDebug)
			}
			run, err := openPipelineRun(cfg, projDir, logger)
			if err != nil {
				return err
			}
			defer run.Close()

			locked, err := run.Project.TryLock()
			if err != nil {
				return err
			}
			if !locked {
				return fmt.Errorf("project %s is already processing", args[0])
			}

			files, err := run.Project.Store.ListRawFiles()
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no files to process")
				return nil
			}

			overrides, err := run.Project.LoadOverrides()
			if err != nil {
				return err
			}
			policy := orchestrator.Policy{
				Override: override,
				Segment:  segment,
				Skip:     skip,
				Validate: validate,
				Clean:    clean,
				Copy:     copyClips,
				Meta:     meta,
				Archive:  archive,
			}

			workers := cfg.FileWorkers
			if workers < 1 {
				workers = 1
			}
			if workers > len(files) {
				workers = len(files)
			}

			var failed int
			var mu sync.Mutex
			out := cmd.OutOrStdout()

			fileCh := make(chan string)
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for file := range fileCh {
						err := run.Manager.RunFile(cmd.Context(), file, overrides, policy)
						mu.Lock()
						if err != nil {
							fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s %v\n", file, color.RedString("failed"), err)
							failed++
						} else {
							fmt.Fprintf(out, "%s: %s\n", file, color.GreenString("done"))
						}
						mu.Unlock()
					}
				}()
			}
			for _, file := range files {
				fileCh <- file
			}
			close(fileCh)
			wg.Wait()

			if failed > 0 {
				return errAnyFileFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&override, "override", false, "Re-run every stage, ignoring cached outputs")
	cmd.Flags().BoolVar(&segment, "segment", false, "Force stage 6 (segment) onward to re-run")
	cmd.Flags().BoolVar(&validate, "validate", false, "Run validation and phonetic alignment")
	cmd.Flags().BoolVar(&clean, "clean", false, "Remove temporaries after a successful run")
	cmd.Flags().BoolVar(&meta, "meta", false, "Run the metadata stage")
	cmd.Flags().BoolVar(&copyClips, "copy", false, "Materialize good clips under audio/speaker_<nn>/")
	cmd.Flags().BoolVar(&skip, "skip", false, "Stop after segmentation; never run validate/align")
	cmd.Flags().BoolVar(&archive, "archive", false, "Package the curated dataset once each file finishes")
	return cmd
}
