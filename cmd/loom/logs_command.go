package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"loom/internal/logging"
)

// newLogsCommand replays structured log events from the config's event
// archive, independent of whatever handler wrote them. Useful after a `run`
// or `process` invocation exits to inspect decisions (speaker match vs
// create, stage reuse vs rebuild) without re-parsing console output.
func newLogsCommand(app *appContext) *cobra.Command {
	var since uint64
	var limit int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Replay structured log events recorded by the last invocations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.LogDir == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "no log directory configured")
				return nil
			}

			archivePath := filepath.Join(cfg.LogDir, "events.jsonl")
			archive := logging.OpenEventArchiveForReading(archivePath)
			events, _, err := archive.ReadSince(since, limit)
			if err != nil {
				return fmt.Errorf("read event archive: %w", err)
			}
			if len(events) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no events recorded")
				return nil
			}

			rows := make([][]string, 0, len(events))
			for _, evt := range events {
				rows = append(rows, []string{
					strconv.FormatUint(evt.Sequence, 10),
					evt.Timestamp.Format("15:04:05"),
					evt.Level,
					evt.SplitID,
					evt.Message,
				})
			}
			headers := []string{"Seq", "Time", "Level", "Split", "Message"}
			aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
			return nil
		},
	}

	cmd.Flags().Uint64Var(&since, "since", 0, "Only show events with a sequence number greater than this")
	cmd.Flags().IntVar(&limit, "limit", 200, "Maximum number of events to show (0 for unlimited)")
	return cmd
}
