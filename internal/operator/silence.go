package operator

import (
	"context"
	"fmt"

	"loom/internal/apperrors"
	"loom/internal/artifact"
	"loom/internal/audio"
)

// SilenceDetector is stage 2: scans a split's cleaned audio for silent
// regions. Implemented as a subprocess call so the actual amplitude
// analysis tool is swappable without touching the pipeline.
type SilenceDetector struct {
	Store  *artifact.Store
	Binary string
}

type SilenceInputs struct {
	SplitID         string
	AudioPath       string
	ThresholdDB     float64
	MinSilenceMS    int
}

type SilenceOutputs struct {
	Map audio.SilenceMap
}

func (d *SilenceDetector) Name() string { return "silence" }

func (d *SilenceDetector) Run(ctx context.Context, rawInputs, _ any, sink ProgressSink) (any, error) {
	in := rawInputs.(SilenceInputs)
	path := d.Store.SilencesPath(in.SplitID)

	done, _ := AlreadyDone(artifact.NewerThan, []string{path}, []string{in.AudioPath})
	if !done {
		sub := Subprocess{Binary: d.Binary, Stage: d.Name()}
		args := []string{
			"--input", in.AudioPath,
			"--output", path,
			"--threshold-db", fmt.Sprintf("%.2f", in.ThresholdDB),
			"--min-silence-ms", fmt.Sprintf("%d", in.MinSilenceMS),
			"--progress-json",
		}
		if err := sub.Run(ctx, args, sink); err != nil {
			return nil, fmt.Errorf("silence %s: %w", in.SplitID, err)
		}
	}

	raw, err := readSilenceFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConsistency, d.Name(), in.SplitID, "read silence artifact", err)
	}
	m, err := audio.NewSilenceMap(raw)
	if err != nil {
		return nil, err
	}
	return SilenceOutputs{Map: m}, nil
}

// readSilenceFile parses the `[[start_ms,end_ms], …]` JSON array format §6
// specifies for silence artifacts.
func readSilenceFile(path string) ([]audio.SilenceInterval, error) {
	var raw [][2]int
	if err := artifact.ReadJSON(path, &raw); err != nil {
		return nil, err
	}
	intervals := make([]audio.SilenceInterval, 0, len(raw))
	for _, pair := range raw {
		intervals = append(intervals, audio.SilenceInterval{StartMS: pair[0], EndMS: pair[1]})
	}
	return intervals, nil
}
