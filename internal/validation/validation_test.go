package validation_test

import (
	"context"
	"errors"
	"testing"

	"loom/internal/audio"
	"loom/internal/validation"
)

type stubTranscriber struct {
	byPath map[string]string
	err    error
}

func (s stubTranscriber) Transcribe(_ context.Context, audioPath string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.byPath[audioPath], nil
}

// An exact round-trip match passes at the default 85% threshold.
func TestRunPassesExactMatch(t *testing.T) {
	jobs := []validation.Job{{SplitID: "ep_000", SegIdx: 0, AudioPath: "a.wav", Text: "hello world"}}
	transcriber := stubTranscriber{byPath: map[string]string{"a.wav": "hello world"}}

	results := validation.Run(context.Background(), jobs, transcriber, validation.Settings{}, nil)

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if !results[0].Passed {
		t.Errorf("expected exact match to pass, similarity=%v", results[0].Similarity)
	}
}

// A badly garbled round-trip falls below the cutoff set at 85.
func TestRunFailsBelowThreshold(t *testing.T) {
	jobs := []validation.Job{{SplitID: "ep_000", SegIdx: 0, AudioPath: "a.wav", Text: "the quick brown fox jumps"}}
	transcriber := stubTranscriber{byPath: map[string]string{"a.wav": "completely different text entirely"}}

	results := validation.Run(context.Background(), jobs, transcriber, validation.Settings{ThresholdPercent: 85}, nil)

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Passed {
		t.Errorf("expected garbled round-trip to fail, similarity=%v", results[0].Similarity)
	}
}

func TestRunCheckpointsEveryN(t *testing.T) {
	var jobs []validation.Job
	for i := 0; i < 5; i++ {
		jobs = append(jobs, validation.Job{SplitID: "ep_000", SegIdx: i, AudioPath: "a.wav", Text: "hi"})
	}
	transcriber := stubTranscriber{byPath: map[string]string{"a.wav": "hi"}}

	var checkpointSizes []int
	checkpoint := func(completed []validation.Result) {
		checkpointSizes = append(checkpointSizes, len(completed))
	}

	results := validation.Run(context.Background(), jobs, transcriber, validation.Settings{CheckpointEvery: 2, MaxWorkers: 1}, checkpoint)

	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	total := 0
	for _, n := range checkpointSizes {
		total += n
	}
	if total != 5 {
		t.Errorf("expected checkpoints to cover all 5 completions, covered %d", total)
	}
}

func TestRunReportsOperatorErrorOnTranscribeFailure(t *testing.T) {
	jobs := []validation.Job{{SplitID: "ep_000", SegIdx: 0, AudioPath: "a.wav", Text: "hi"}}
	transcriber := stubTranscriber{err: errors.New("boom")}

	results := validation.Run(context.Background(), jobs, transcriber, validation.Settings{}, nil)

	if len(results) != 1 || results[0].Err == nil {
		t.Fatalf("expected a reported error, got %+v", results)
	}
}

func TestApplyVerdictsUpdatesOnlyValidatedSegments(t *testing.T) {
	segments := []audio.Segment{
		{SegIdx: 0, Status: audio.StatusGood},
		{SegIdx: 1, Status: audio.StatusGood},
	}
	results := []validation.Result{{SegIdx: 0, Passed: false}}

	out := validation.ApplyVerdicts(segments, results)

	if out[0].Status != audio.StatusBad {
		t.Errorf("expected segment 0 downgraded to bad, got %s", out[0].Status)
	}
	if out[1].Status != audio.StatusGood {
		t.Errorf("expected segment 1 untouched, got %s", out[1].Status)
	}
}
