package operator

import (
	"context"
	"fmt"
	"log/slog"

	"loom/internal/artifact"
	"loom/internal/logging"
)

// Archiver is stage 10. Archive packaging internals (tar/zip writer) are
// out of scope per §1; this operator's only job is invoking the external
// packager's interface against the project's curated audio/ directory.
type Archiver struct {
	Store  *artifact.Store
	Binary string
	Logger *slog.Logger
}

type ArchiveInputs struct {
	ProjectDir string
	OutputPath string
}

type ArchiveOutputs struct {
	ArchivePath string
}

func (a *Archiver) Name() string { return "archive" }

func (a *Archiver) Run(ctx context.Context, rawInputs, _ any, sink ProgressSink) (any, error) {
	in := rawInputs.(ArchiveInputs)
	logger := logging.WithContext(ctx, a.Logger)

	done, _ := AlreadyDone(artifact.NewerThan, []string{in.OutputPath}, []string{a.Store.AudioDir()})
	if done {
		logger.Info("archive up to date, skipping packaging",
			logging.Args(logging.DecisionAttrs("archive_package", "skipped", "dataset.tar newer than audio/")...)...)
		return ArchiveOutputs{ArchivePath: in.OutputPath}, nil
	}
	logger.Debug("packaging archive",
		logging.Args(logging.DecisionAttrs("archive_package", "rebuilt", "dataset.tar stale or missing")...)...)

	sub := Subprocess{Binary: a.Binary, Stage: a.Name()}
	args := []string{"--source", a.Store.AudioDir(), "--output", in.OutputPath, "--progress-json"}
	if err := sub.Run(ctx, args, sink); err != nil {
		return nil, fmt.Errorf("archive %s: %w", in.ProjectDir, err)
	}
	return ArchiveOutputs{ArchivePath: in.OutputPath}, nil
}
