// Package validation implements the round-trip validation engine (C5,
// §4.5): a bounded worker pool re-transcribes each good segment's audio
// and fuzzy-matches the result against the segment's recorded text,
// checkpointing progress so a cancelled run can resume without redoing
// completed work.
package validation

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/agnivade/levenshtein"

	"loom/internal/apperrors"
	"loom/internal/audio"
)

// Transcriber re-runs ASR against a single segment's audio clip. The real
// implementation wraps the same black-box operator used for stage 4; this
// package only needs the narrow round-trip contract.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Result is one segment's validation outcome.
type Result struct {
	SplitID    string
	SegIdx     int
	Similarity float64
	Passed     bool
	Err        error
}

// Settings controls the validation run.
type Settings struct {
	ThresholdPercent int // default 85
	MaxWorkers       int // default 4
	CheckpointEvery  int // default 50
}

// CheckpointFunc persists progress after every CheckpointEvery completions,
// so a cancelled run resumes from the last checkpoint instead of redoing
// already-validated segments.
type CheckpointFunc func(completed []Result)

// Job is one unit of validation work: a segment's audio clip and the text
// it must match against.
type Job struct {
	SplitID   string
	SegIdx    int
	AudioPath string
	Text      string
}

// Run validates every job using up to Settings.MaxWorkers concurrent
// workers, returns as soon as ctx is cancelled (in-flight jobs finish,
// queued jobs are reported as apperrors.ErrCancelled), and invokes
// checkpoint every CheckpointEvery completions.
func Run(ctx context.Context, jobs []Job, transcriber Transcriber, settings Settings, checkpoint CheckpointFunc) []Result {
	if settings.MaxWorkers <= 0 {
		settings.MaxWorkers = 4
	}
	if settings.ThresholdPercent <= 0 {
		settings.ThresholdPercent = 85
	}
	if settings.CheckpointEvery <= 0 {
		settings.CheckpointEvery = 50
	}

	var cancelled atomic.Bool
	jobCh := make(chan Job)
	resultCh := make(chan Result)

	var wg sync.WaitGroup
	for i := 0; i < settings.MaxWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				resultCh <- validateOne(ctx, job, transcriber, settings.ThresholdPercent, &cancelled)
			}
		}()
	}

	go func() {
		defer close(jobCh)
		for _, job := range jobs {
			if cancelled.Load() || ctx.Err() != nil {
				cancelled.Store(true)
			}
			// Jobs are still handed out after cancellation, so each one
			// comes back from validateOne as an ErrCancelled result.
			jobCh <- job
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]Result, 0, len(jobs))
	var pending []Result
	for r := range resultCh {
		results = append(results, r)
		pending = append(pending, r)
		if len(pending) >= settings.CheckpointEvery {
			if checkpoint != nil {
				checkpoint(pending)
			}
			pending = nil
		}
	}
	if len(pending) > 0 && checkpoint != nil {
		checkpoint(pending)
	}
	return results
}

func validateOne(ctx context.Context, job Job, transcriber Transcriber, thresholdPercent int, cancelled *atomic.Bool) Result {
	if ctx.Err() != nil || cancelled.Load() {
		return Result{
			SplitID: job.SplitID,
			SegIdx:  job.SegIdx,
			Err:     apperrors.Wrap(apperrors.ErrCancelled, "validate", job.SplitID, "validation cancelled", ctx.Err()),
		}
	}

	got, err := transcriber.Transcribe(ctx, job.AudioPath)
	if err != nil {
		if ctx.Err() != nil {
			cancelled.Store(true)
			return Result{
				SplitID: job.SplitID,
				SegIdx:  job.SegIdx,
				Err:     apperrors.Wrap(apperrors.ErrCancelled, "validate", job.SplitID, "validation cancelled", ctx.Err()),
			}
		}
		return Result{
			SplitID: job.SplitID,
			SegIdx:  job.SegIdx,
			Err:     apperrors.Wrap(apperrors.ErrOperator, "validate", job.SplitID, "round-trip transcription failed", err),
		}
	}

	similarity := similarityPercent(job.Text, got)
	return Result{
		SplitID:    job.SplitID,
		SegIdx:     job.SegIdx,
		Similarity: similarity,
		Passed:     similarity >= float64(thresholdPercent),
	}
}

// similarityPercent expresses Levenshtein distance as a 0-100 match score,
// matching the settings table's validation_threshold unit.
func similarityPercent(a, b string) float64 {
	if a == "" && b == "" {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 100
	}
	return (1 - float64(dist)/float64(longest)) * 100
}

// ApplyVerdicts updates each segment's status from its matching
// validation result, leaving segments without a result (not queued for
// validation, e.g. already bad) untouched.
func ApplyVerdicts(segments []audio.Segment, results []Result) []audio.Segment {
	bySegIdx := make(map[int]Result, len(results))
	for _, r := range results {
		bySegIdx[r.SegIdx] = r
	}
	out := make([]audio.Segment, len(segments))
	copy(out, segments)
	for i, seg := range out {
		r, ok := bySegIdx[seg.SegIdx]
		if !ok || r.Err != nil {
			continue
		}
		if r.Passed {
			out[i].Status = audio.StatusGood
		} else {
			out[i].Status = audio.StatusBad
		}
	}
	return out
}
