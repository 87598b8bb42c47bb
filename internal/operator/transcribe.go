package operator

import (
	"context"
	"fmt"

	"loom/internal/apperrors"
	"loom/internal/artifact"
	"loom/internal/audio"
)

// Transcriber is stage 4: word-level ASR over a split.
type Transcriber struct {
	Store  *artifact.Store
	Binary string
}

type TranscribeInputs struct {
	SplitID   string
	AudioPath string
	Language  string
}

type TranscribeOutputs struct {
	Tokens audio.TokenStream
}

func (t *Transcriber) Name() string { return "transcribe" }

func (t *Transcriber) Run(ctx context.Context, rawInputs, _ any, sink ProgressSink) (any, error) {
	in := rawInputs.(TranscribeInputs)
	path := t.Store.TranscriptionPath(in.SplitID)

	done, _ := AlreadyDone(artifact.NewerThan, []string{path}, []string{in.AudioPath})
	if !done {
		sub := Subprocess{Binary: t.Binary, Stage: t.Name()}
		args := []string{
			"--input", in.AudioPath,
			"--output", path,
			"--language", in.Language,
			"--progress-json",
		}
		if err := sub.Run(ctx, args, sink); err != nil {
			return nil, fmt.Errorf("transcribe %s: %w", in.SplitID, err)
		}
	}

	var payload struct {
		Tokens []struct {
			StartMS    int     `json:"start_ms"`
			EndMS      int     `json:"end_ms"`
			Text       string  `json:"text"`
			Confidence float64 `json:"confidence"`
		} `json:"tokens"`
	}
	if err := artifact.ReadJSON(path, &payload); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConsistency, t.Name(), in.SplitID, "read transcription artifact", err)
	}

	tokens := make([]audio.Token, 0, len(payload.Tokens))
	for _, tok := range payload.Tokens {
		if tok.StartMS >= tok.EndMS {
			continue // zero-duration tokens are dropped per §4.4 edge cases
		}
		tokens = append(tokens, audio.Token{
			StartMS:    tok.StartMS,
			EndMS:      tok.EndMS,
			Text:       tok.Text,
			Confidence: tok.Confidence,
		})
	}
	stream, err := audio.NewTokenStream(tokens)
	if err != nil {
		return nil, err
	}
	return TranscribeOutputs{Tokens: stream}, nil
}
