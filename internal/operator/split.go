package operator

import (
	"context"
	"fmt"

	"loom/internal/artifact"
	"loom/internal/audio"
)

// Splitter is stage 3: shards cleaned audio into one or more splits. It
// asks the backend for a manifest of split indices rather than guessing
// filenames, since splitting strategy (fixed-length, on-silence, etc.) is
// backend-specific.
type Splitter struct {
	Store  *artifact.Store
	Binary string
}

type SplitInputs struct {
	File        string
	CleanedPath string
}

type SplitOutputs struct {
	Splits []audio.Split
}

func (s *Splitter) Name() string { return "split" }

func (s *Splitter) Run(ctx context.Context, rawInputs, _ any, sink ProgressSink) (any, error) {
	in := rawInputs.(SplitInputs)
	manifestPath := s.Store.FileDir(in.File) + "/manifest.json"

	done, _ := AlreadyDone(artifact.NewerThan, []string{manifestPath}, []string{in.CleanedPath})
	if !done {
		sub := Subprocess{Binary: s.Binary, Stage: s.Name()}
		args := []string{
			"--input", in.CleanedPath,
			"--out-dir", s.Store.FileDir(in.File),
			"--manifest", manifestPath,
			"--progress-json",
		}
		if err := sub.Run(ctx, args, sink); err != nil {
			return nil, fmt.Errorf("split %s: %w", in.File, err)
		}
	}

	var manifest struct {
		Count int `json:"split_count"`
	}
	if err := artifact.ReadJSON(manifestPath, &manifest); err != nil {
		return nil, fmt.Errorf("split %s: read manifest: %w", in.File, err)
	}
	splits := make([]audio.Split, manifest.Count)
	for i := range splits {
		splits[i] = audio.Split{File: in.File, Index: i}
	}
	return SplitOutputs{Splits: splits}, nil
}
