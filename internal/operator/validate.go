package operator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"loom/internal/apperrors"
	"loom/internal/artifact"
	"loom/internal/audio"
	"loom/internal/logging"
	"loom/internal/validation"
)

// Validator is stage 7: round-trip validation of every good segment's
// clipped audio against its recorded text, using a bounded worker pool.
type Validator struct {
	Store  *artifact.Store
	Binary string
	Logger *slog.Logger
	// transcriber overrides the subprocess-backed transcriber; tests set
	// this to a fake to exercise resume logic without a real binary.
	transcriber validation.Transcriber
}

type ValidateInputs struct {
	SplitID  string
	Segments []audio.Segment
	Settings validation.Settings
	// ClipPath returns the curated audio clip path for a given segment
	// index; the orchestrator knows the sub-segment/speaker-clip layout.
	ClipPath func(segIdx int) string
}

type ValidateOutputs struct {
	Results  []validation.Result
	Segments []audio.Segment
}

func (v *Validator) Name() string { return "validate" }

// Run validates every good segment, resuming from the last checkpoint
// rather than redoing finished work: a checkpointed result is trusted only
// while it is at least as fresh as segments.json, so a segment whose text
// or status changed since the checkpoint was written is always re-checked.
// When every job already has a trustworthy checkpointed result, validation
// is skipped entirely, honoring the same no-flag-reruns-nothing contract
// the other stages get from AlreadyDone.
func (v *Validator) Run(ctx context.Context, rawInputs, _ any, sink ProgressSink) (any, error) {
	in := rawInputs.(ValidateInputs)
	if sink == nil {
		sink = NoopSink{}
	}
	logger := logging.WithContext(ctx, v.Logger)

	var jobs []validation.Job
	for _, seg := range in.Segments {
		if seg.Status != audio.StatusGood {
			continue
		}
		jobs = append(jobs, validation.Job{
			SplitID:   in.SplitID,
			SegIdx:    seg.SegIdx,
			AudioPath: in.ClipPath(seg.SegIdx),
			Text:      seg.Main.Text,
		})
	}

	segmentsPath := v.Store.SegmentsPath(in.SplitID)
	checkpointPath := segmentsPath + ".validation_checkpoint.json"

	var priorResults []validation.Result
	if fresh, _ := artifact.NewerThan(checkpointPath, segmentsPath); fresh {
		_ = artifact.ReadJSON(checkpointPath, &priorResults)
		logger.Debug("resuming from validation checkpoint",
			logging.Args(logging.DecisionAttrs("validation_checkpoint", "resumed",
				fmt.Sprintf("%d jobs already checkpointed", len(priorResults)))...)...)
	} else if artifact.Exists(checkpointPath) {
		logging.WarnWithContext(logger, "discarding stale validation checkpoint", "validation_checkpoint_stale",
			logging.String("split_id", in.SplitID),
			logging.String(logging.FieldImpact, "every good segment in this split will be re-validated"))
	}
	priorByIdx := make(map[int]validation.Result, len(priorResults))
	for _, r := range priorResults {
		priorByIdx[r.SegIdx] = r
	}

	var pending []validation.Job
	for _, j := range jobs {
		if _, ok := priorByIdx[j.SegIdx]; !ok {
			pending = append(pending, j)
		}
	}

	if len(jobs) > 0 && len(pending) == 0 {
		logger.Info("validation up to date, skipping transcription",
			logging.Args(logging.DecisionAttrs("validation_checkpoint", "skipped", "every job already checkpointed")...)...)
		sink.Step("validation up to date", 1.0)
		return ValidateOutputs{Results: priorResults, Segments: validation.ApplyVerdicts(in.Segments, priorResults)}, nil
	}

	transcriber := v.transcriber
	if transcriber == nil {
		transcriber = &subprocessTranscriber{binary: v.Binary, stage: v.Name()}
	}

	total := len(jobs)
	completed := total - len(pending)
	results := append([]validation.Result(nil), priorResults...)
	checkpoint := func(batch []validation.Result) {
		completed += len(batch)
		for _, r := range batch {
			// An errored result is not checkpointed: its error does not
			// survive the JSON round trip, so a resumed run re-validates it.
			if r.Err == nil {
				results = append(results, r)
			}
		}
		if total > 0 {
			sink.Step("validating", float64(completed)/float64(total))
		}
		_ = artifact.WriteJSON(checkpointPath, results)
	}

	fresh := validation.Run(ctx, pending, transcriber, in.Settings, checkpoint)
	if fatal := firstFatalError(fresh); fatal != nil && apperrors.Resolve(fatal) == apperrors.StateCancelled {
		return nil, apperrors.Wrap(apperrors.ErrCancelled, v.Name(), in.SplitID, "validation cancelled", ctx.Err())
	}
	// validation.Run always checkpoints every pending job before
	// returning (in CheckpointEvery-sized batches, then a final partial
	// batch), so `results` above already holds priorResults plus every
	// fresh result without an error by the time Run returns.

	finalSegments := validation.ApplyVerdicts(in.Segments, results)
	if err := artifact.WriteJSON(segmentsPath, finalSegments); err != nil {
		return nil, err
	}
	// Rewrite the checkpoint after segments.json so this run's own write
	// does not make its results look stale to the next run.
	_ = artifact.WriteJSON(checkpointPath, results)
	if err := RecordBadSegments(v.Store, in.SplitID, finalSegments, results); err != nil {
		return nil, err
	}

	return ValidateOutputs{Results: results, Segments: finalSegments}, nil
}

// RecordBadSegments appends every segment validation just rejected to
// bad_segments.json, per §4.5: "otherwise: mark bad; append to
// bad_segments.json" applies whether validation runs embedded in a pipeline
// file or via the standalone re-validation command, so both call this.
func RecordBadSegments(store *artifact.Store, splitID string, segments []audio.Segment, results []validation.Result) error {
	similarities := make(map[int]float64, len(results))
	for _, r := range results {
		similarities[r.SegIdx] = r.Similarity
	}

	var bad []artifact.BadSegmentRecord
	for _, seg := range segments {
		if seg.Status == audio.StatusGood {
			continue
		}
		if _, validated := similarities[seg.SegIdx]; !validated {
			continue
		}
		bad = append(bad, artifact.BadSegmentRecord{
			SplitID:    splitID,
			SegIdx:     seg.SegIdx,
			Text:       seg.Main.Text,
			Similarity: similarities[seg.SegIdx],
		})
	}
	if len(bad) == 0 {
		return nil
	}
	return store.AppendBadSegments(bad)
}

func firstFatalError(results []validation.Result) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

// subprocessTranscriber adapts the black-box ASR binary to validation's
// narrow round-trip contract: given a clip, return its best-guess text.
type subprocessTranscriber struct {
	binary string
	stage  string
}

// NewRoundTripTranscriber exposes the same round-trip ASR adapter the
// orchestrator's validate stage uses, so standalone re-validation (the
// `loom validate` command) can drive validation.Run directly.
func NewRoundTripTranscriber(binary string) validation.Transcriber {
	return &subprocessTranscriber{binary: binary, stage: "validate"}
}

type roundTripResult struct {
	Text string `json:"text"`
}

func (s *subprocessTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	sub := Subprocess{Binary: s.binary, Stage: s.stage}
	var captured roundTripResult
	sink := captureJSONSink{target: &captured}
	args := []string{"--input", audioPath, "--mode", "round-trip", "--progress-json"}
	if err := sub.Run(ctx, args, sink); err != nil {
		return "", err
	}
	return captured.Text, nil
}

// captureJSONSink reuses the progress-event channel to smuggle a final
// result payload back from a round-trip transcription: the binary emits
// {"message": "<json result>"} as its last line.
type captureJSONSink struct {
	target *roundTripResult
}

func (c captureJSONSink) Step(message string, _ float64) {
	var r roundTripResult
	if json.Unmarshal([]byte(message), &r) == nil && r.Text != "" {
		*c.target = r
	}
}
