package operator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"loom/internal/artifact"
	"loom/internal/audio"
	"loom/internal/validation"
)

// countingTranscriber records every clip it was asked to re-transcribe, so
// tests can assert which jobs a resumed run actually redid.
type countingTranscriber struct {
	text  map[string]string
	calls map[string]int
}

func (c *countingTranscriber) Transcribe(_ context.Context, audioPath string) (string, error) {
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[audioPath]++
	return c.text[audioPath], nil
}

func validateTestSegments() []audio.Segment {
	return []audio.Segment{
		{SegIdx: 0, Main: audio.SegRange{Text: "hello"}, Status: audio.StatusGood},
		{SegIdx: 1, Main: audio.SegRange{Text: "world"}, Status: audio.StatusGood},
	}
}

func validateTestClipPath(segIdx int) string {
	return fmt.Sprintf("clip-%d.wav", segIdx)
}

// A second Run against the same segments.json must not re-transcribe jobs
// the first run already checkpointed, and must reach the same final
// good/bad verdicts as a single non-resumed pass.
func TestValidatorRunSkipsCheckpointedJobsOnResume(t *testing.T) {
	store := artifact.New(t.TempDir())
	if err := store.EnsureProjectLayout(); err != nil {
		t.Fatalf("EnsureProjectLayout: %v", err)
	}
	segments := validateTestSegments()
	inputs := ValidateInputs{
		SplitID:  "split0001",
		Segments: segments,
		Settings: validation.Settings{ThresholdPercent: 85, MaxWorkers: 1, CheckpointEvery: 1},
		ClipPath: validateTestClipPath,
	}

	tr := &countingTranscriber{text: map[string]string{
		validateTestClipPath(0): "hello",
		validateTestClipPath(1): "totally different",
	}}
	v := &Validator{Store: store, transcriber: tr}

	first, err := v.Run(context.Background(), inputs, nil, NoopSink{})
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	firstOut := first.(ValidateOutputs)
	if firstOut.Segments[0].Status != audio.StatusGood {
		t.Errorf("expected segment 0 good, got %s", firstOut.Segments[0].Status)
	}
	if firstOut.Segments[1].Status != audio.StatusBad {
		t.Errorf("expected segment 1 bad, got %s", firstOut.Segments[1].Status)
	}
	if tr.calls[validateTestClipPath(0)] != 1 || tr.calls[validateTestClipPath(1)] != 1 {
		t.Fatalf("expected exactly 1 transcription per clip on first run, got %v", tr.calls)
	}

	// Resume: feed the same inputs (as the orchestrator would on a second
	// invocation) through a fresh Validator sharing the same store, with a
	// transcriber that would produce a different verdict if consulted.
	resumeTR := &countingTranscriber{text: map[string]string{
		validateTestClipPath(0): "not hello at all",
		validateTestClipPath(1): "world",
	}}
	v2 := &Validator{Store: store, transcriber: resumeTR}
	second, err := v2.Run(context.Background(), inputs, nil, NoopSink{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	secondOut := second.(ValidateOutputs)

	if len(resumeTR.calls) != 0 {
		t.Errorf("expected resume to skip already-checkpointed jobs, but re-transcribed %v", resumeTR.calls)
	}
	if secondOut.Segments[0].Status != firstOut.Segments[0].Status {
		t.Errorf("resumed verdict for segment 0 diverged: got %s, want %s", secondOut.Segments[0].Status, firstOut.Segments[0].Status)
	}
	if secondOut.Segments[1].Status != firstOut.Segments[1].Status {
		t.Errorf("resumed verdict for segment 1 diverged: got %s, want %s", secondOut.Segments[1].Status, firstOut.Segments[1].Status)
	}
}

// When segments.json changes after a checkpoint was written (e.g. a forced
// re-segment), the stale checkpoint must not be trusted and every job is
// re-validated.
func TestValidatorRunInvalidatesCheckpointWhenSegmentsChange(t *testing.T) {
	store := artifact.New(t.TempDir())
	if err := store.EnsureProjectLayout(); err != nil {
		t.Fatalf("EnsureProjectLayout: %v", err)
	}
	segments := validateTestSegments()
	inputs := ValidateInputs{
		SplitID:  "split0001",
		Segments: segments,
		Settings: validation.Settings{ThresholdPercent: 85, MaxWorkers: 1, CheckpointEvery: 1},
		ClipPath: validateTestClipPath,
	}

	tr := &countingTranscriber{text: map[string]string{
		validateTestClipPath(0): "hello",
		validateTestClipPath(1): "world",
	}}
	v := &Validator{Store: store, transcriber: tr}
	if _, err := v.Run(context.Background(), inputs, nil, NoopSink{}); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	// Simulate a re-segment: segments.json is rewritten after the
	// checkpoint, so its mtime moves ahead of the checkpoint's.
	time.Sleep(15 * time.Millisecond)
	if err := artifact.WriteJSON(store.SegmentsPath("split0001"), segments); err != nil {
		t.Fatalf("rewrite segments: %v", err)
	}

	v2 := &Validator{Store: store, transcriber: tr}
	if _, err := v2.Run(context.Background(), inputs, nil, NoopSink{}); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if tr.calls[validateTestClipPath(0)] != 2 || tr.calls[validateTestClipPath(1)] != 2 {
		t.Errorf("expected both jobs re-validated after segments.json changed, got %v", tr.calls)
	}
}
