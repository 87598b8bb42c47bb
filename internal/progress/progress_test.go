package progress_test

import (
	"os"
	"testing"
	"time"

	"loom/internal/progress"
)

func TestStageSinkForwardsWithoutBlocking(t *testing.T) {
	r := progress.New(os.Stderr)
	defer r.Close()

	sink := r.StageSink("episode-01_000")
	done := make(chan struct{})
	go func() {
		sink.Step("denoising", 0.5)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Step blocked unexpectedly")
	}
}

func TestLogDoesNotPanicAfterClose(t *testing.T) {
	r := progress.New(os.Stderr)
	r.Close()

	done := make(chan struct{})
	go func() {
		r.Log(progress.LevelStep, "x", "y")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Log blocked after Close")
	}
}

func TestSummaryStringIncludesStageAndCounts(t *testing.T) {
	s := progress.Summary{Stage: "denoise", Elapsed: 2 * time.Second, ItemDone: 3, ItemOf: 10}
	out := s.String()
	if out == "" {
		t.Fatal("expected non-empty summary")
	}
}
