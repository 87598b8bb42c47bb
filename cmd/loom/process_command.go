package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"loom/internal/fileutil"
	"loom/internal/logging"
	"loom/internal/orchestrator"
)

func newProcessCommand(app *appContext) *cobra.Command {
	var projectName string
	var override bool
	var segment bool
	var skip bool
	var archive bool

	cmd := &cobra.Command{
		Use:   "process <file>",
		Short: "Ingest and run the pipeline on a single file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectName == "" {
				return fmt.Errorf("%w: --project is required", errInvalidArgs)
			}
			cfg, err := app.ensureConfig()
			if err != nil {
				return err
			}
			projDir, err := app.projectDir(projectName)
			if err != nil {
				return err
			}

			srcPath, err := resolveExistingPath(args[0])
			if err != nil {
				return err
			}
			name := filepath.Base(srcPath)

			logger, err := app.ensureLogger()
			if err != nil {
				return err
			}
			if override {
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
				return fmt.Errorf("project %s is already processing", projectName)
			}

			rawPath := run.Project.Store.RawPath(name)
			if !fileExists(rawPath) {
				if err := fileutil.CopyFileVerified(srcPath, rawPath); err != nil {
					return fmt.Errorf("ingest %s: %w", name, err)
				}
			}

			policy := orchestrator.Policy{Override: override, Segment: segment, Skip: skip, Archive: archive}
			overrides, err := run.Project.LoadOverrides()
			if err != nil {
				return err
			}

			if err := run.Manager.RunFile(cmd.Context(), name, overrides, policy); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s %v\n", name, color.RedString("failed"), err)
				return errAnyFileFailed
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, color.GreenString("done"))
			return nil
		},
	}

	cmd.Flags().StringVar(&projectName, "project", "", "Project name or path")
	cmd.Flags().BoolVar(&override, "override", false, "Re-run every stage, ignoring cached outputs")
	cmd.Flags().BoolVar(&segment, "segment", false, "Force stage 6 (segment) onward to re-run")
	cmd.Flags().BoolVar(&skip, "skip", false, "Stop after segmentation; never run validate/align")
	cmd.Flags().BoolVar(&archive, "archive", false, "Package the curated dataset once this file finishes")
	return cmd
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
