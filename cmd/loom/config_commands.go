package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"loom/internal/config"
)

func newConfigCommand(app *appContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	var initPath string
	var overwrite bool
	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(initPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", target)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&initPath, "path", "p", "", "Destination for the configuration file")
	initCmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite an existing configuration file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "projects_dir = %q\n", cfg.ProjectsDir)
			fmt.Fprintf(out, "log_dir = %q\n", cfg.LogDir)
			fmt.Fprintf(out, "log_format = %q\n", cfg.LogFormat)
			fmt.Fprintf(out, "log_level = %q\n", cfg.LogLevel)
			fmt.Fprintf(out, "denoise_bin = %q\n", cfg.DenoiseBin)
			fmt.Fprintf(out, "silence_bin = %q\n", cfg.SilenceBin)
			fmt.Fprintf(out, "split_bin = %q\n", cfg.SplitBin)
			fmt.Fprintf(out, "transcribe_bin = %q\n", cfg.TranscribeBin)
			fmt.Fprintf(out, "diarize_bin = %q\n", cfg.DiarizeBin)
			fmt.Fprintf(out, "align_bin = %q\n", cfg.AlignBin)
			fmt.Fprintf(out, "archive_bin = %q\n", cfg.ArchiveBin)
			fmt.Fprintf(out, "clip_bin = %q\n", cfg.ClipBin)
			fmt.Fprintf(out, "file_workers = %d\n", cfg.FileWorkers)
			fmt.Fprintf(out, "max_workers = %d\n", cfg.MaxWorkers)
			fmt.Fprintf(out, "heartbeat_interval = %d\n", cfg.HeartbeatInterval)
			fmt.Fprintf(out, "heartbeat_timeout = %d\n", cfg.HeartbeatTimeout)
			tokenState := "not set"
			if strings.TrimSpace(cfg.HuggingFaceToken) != "" {
				tokenState = "set"
			}
			fmt.Fprintf(out, "hugging_face_token = %s\n", tokenState)
			return nil
		},
	}

	configCmd.AddCommand(initCmd, showCmd)
	return configCmd
}

// resolveExistingPath is shared by commands that accept a file argument
// and want an absolute, existence-checked path before doing any work.
func resolveExistingPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("%w: %s", errInvalidArgs, abs)
	}
	return abs, nil
}
