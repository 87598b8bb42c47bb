package operator

import (
	"context"
	"fmt"

	"loom/internal/artifact"
)

// Clipper cuts one segment's audio span out of its split's cleaned audio,
// producing the isolated clip both validation round-trips and the final
// speaker-directory copy operate on. Like the other black-box stages, the
// actual audio cutting is delegated to an external tool.
type Clipper struct {
	Store  *artifact.Store
	Binary string
}

type ClipInputs struct {
	SplitID   string
	AudioPath string
	StartMS   int
	EndMS     int
	OutPath   string
}

type ClipOutputs struct {
	ClipPath string
}

func (c *Clipper) Name() string { return "clip" }

func (c *Clipper) Run(ctx context.Context, rawInputs, _ any, sink ProgressSink) (any, error) {
	in := rawInputs.(ClipInputs)

	done, _ := AlreadyDone(artifact.NewerThan, []string{in.OutPath}, []string{in.AudioPath})
	if done {
		return ClipOutputs{ClipPath: in.OutPath}, nil
	}

	sub := Subprocess{Binary: c.Binary, Stage: c.Name()}
	args := []string{
		"--input", in.AudioPath,
		"--start-ms", fmt.Sprintf("%d", in.StartMS),
		"--end-ms", fmt.Sprintf("%d", in.EndMS),
		"--output", in.OutPath,
		"--progress-json",
	}
	if err := sub.Run(ctx, args, sink); err != nil {
		return nil, fmt.Errorf("clip %s: %w", in.SplitID, err)
	}
	return ClipOutputs{ClipPath: in.OutPath}, nil
}
