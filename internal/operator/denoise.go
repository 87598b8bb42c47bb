package operator

import (
	"context"
	"fmt"

	"loom/internal/artifact"
)

// Denoiser is stage 1: raw audio in, a cleaned derivative out. The actual
// denoising model is a black-box external tool; this type only shells out
// to it and honors the cache contract.
type Denoiser struct {
	Store  *artifact.Store
	Binary string
}

type DenoiseInputs struct {
	File    string
	RawPath string
}

type DenoiseOutputs struct {
	CleanedPath string
}

func (d *Denoiser) Name() string { return "denoise" }

func (d *Denoiser) Run(ctx context.Context, rawInputs, _ any, sink ProgressSink) (any, error) {
	in := rawInputs.(DenoiseInputs)
	out := DenoiseOutputs{CleanedPath: d.Store.CleanedAudioPath(in.File)}

	done, _ := AlreadyDone(artifact.NewerThan, []string{out.CleanedPath}, []string{in.RawPath})
	if done {
		return out, nil
	}

	sub := Subprocess{Binary: d.Binary, Stage: d.Name()}
	args := []string{"--input", in.RawPath, "--output", out.CleanedPath, "--progress-json"}
	if err := sub.Run(ctx, args, sink); err != nil {
		return nil, fmt.Errorf("denoise %s: %w", in.File, err)
	}
	return out, nil
}
