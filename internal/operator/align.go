package operator

import (
	"context"
	"fmt"

	"loom/internal/artifact"
)

// PhoneticAligner is stage 9: phoneme-level alignment of segment text
// against audio, run after validation/metadata per the data-flow order in
// §2. Like the other ML-backed stages it is a black-box operator; this
// type only manages the subprocess boundary.
type PhoneticAligner struct {
	Store  *artifact.Store
	Binary string
}

type AlignInputs struct {
	SplitID        string
	SegmentsPath   string
	AudioPath      string
	Language       string
}

type AlignOutputs struct {
	PhonemesPath string
}

func (a *PhoneticAligner) Name() string { return "align" }

func (a *PhoneticAligner) Run(ctx context.Context, rawInputs, _ any, sink ProgressSink) (any, error) {
	in := rawInputs.(AlignInputs)
	out := AlignOutputs{PhonemesPath: a.Store.PhonemesPath(in.SplitID)}

	done, _ := AlreadyDone(artifact.NewerThan, []string{out.PhonemesPath}, []string{in.SegmentsPath, in.AudioPath})
	if done {
		return out, nil
	}

	sub := Subprocess{Binary: a.Binary, Stage: a.Name()}
	args := []string{
		"--segments", in.SegmentsPath,
		"--audio", in.AudioPath,
		"--language", in.Language,
		"--output", out.PhonemesPath,
		"--progress-json",
	}
	if err := sub.Run(ctx, args, sink); err != nil {
		return nil, fmt.Errorf("align %s: %w", in.SplitID, err)
	}
	return out, nil
}
