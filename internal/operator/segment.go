package operator

import (
	"context"
	"fmt"
	"log/slog"

	"loom/internal/artifact"
	"loom/internal/audio"
	"loom/internal/fusion"
	"loom/internal/logging"
)

// Segmenter is stage 6: runs the fusion engine against one split's token
// stream, diarization track, and silence map, then persists both the
// editable and raw snapshots of the result.
type Segmenter struct {
	Store  *artifact.Store
	Logger *slog.Logger
}

type SegmentInputs struct {
	SplitID         string
	Tokens          audio.TokenStream
	Diarization     audio.DiarizationTrack
	Silences        audio.SilenceMap
	LabelEmbeddings map[string][]float64
	Assigner        fusion.Assigner
	Settings        fusion.Settings
	// Upstream artifact paths, used only to decide freshness — the parsed
	// data above is what actually drives fusion.
	TokensPath      string
	DiarizationPath string
	SilencesPath    string
}

type SegmentOutputs struct {
	Segments []audio.Segment
}

func (s *Segmenter) Name() string { return "segment" }

// Run re-fuses a split's segments, unless the editable segments.json is
// already newer than every upstream artifact — in which case it is read
// back as-is rather than overwritten, so a second no-flag invocation never
// discards edits a human made through the front-end editor.
func (s *Segmenter) Run(ctx context.Context, rawInputs, _ any, sink ProgressSink) (any, error) {
	in := rawInputs.(SegmentInputs)
	if sink == nil {
		sink = NoopSink{}
	}
	logger := logging.WithContext(ctx, s.Logger)

	segmentsPath := s.Store.SegmentsPath(in.SplitID)
	done, err := AlreadyDone(artifact.NewerThan, []string{segmentsPath}, []string{in.TokensPath, in.DiarizationPath, in.SilencesPath})
	if err != nil {
		logging.WarnWithContext(logger, "freshness check failed; re-fusing segments", "segment_freshness_check_failed",
			logging.String("split_id", in.SplitID), logging.Error(err),
			logging.String(logging.FieldImpact, "segments.json will be rebuilt even if it held human edits"))
	}
	if done {
		var existing []audio.Segment
		if err := artifact.ReadJSON(segmentsPath, &existing); err == nil {
			logger.Info("segments up to date, reusing editable snapshot",
				logging.Args(logging.DecisionAttrs("segment_reuse", "reused", "segments.json newer than its inputs")...)...)
			sink.Step("segments up to date", 1.0)
			return SegmentOutputs{Segments: existing}, nil
		}
	}
	logger.Debug("re-fusing segments",
		logging.Args(logging.DecisionAttrs("segment_reuse", "rebuilt", "segments.json stale or missing")...)...)

	segments, err := fusion.Fuse(in.Tokens, in.Diarization, in.Silences, in.LabelEmbeddings, in.Assigner, in.Settings)
	if err != nil {
		return nil, fmt.Errorf("segment %s: %w", in.SplitID, err)
	}
	for i := range segments {
		segments[i].SegIdx = i
	}
	sink.Step("fusing segments", 0.8)

	if err := artifact.WriteJSON(s.Store.SegmentsRawPath(in.SplitID), segments); err != nil {
		return nil, err
	}
	if err := artifact.WriteJSON(segmentsPath, segments); err != nil {
		return nil, err
	}
	sink.Step("writing segments", 1.0)

	return SegmentOutputs{Segments: segments}, nil
}
