// Package audio defines the data model shared by every stage of the
// pipeline: raw files, splits, and the three temporal annotation streams
// (silences, ASR tokens, diarization) that the fusion engine joins.
package audio

import (
	"fmt"

	"loom/internal/apperrors"
)

// RawFile is the original ingested audio plus its stage-1 cleaned
// derivative. Immutable after ingest.
type RawFile struct {
	Name         string
	Path         string
	CleanedAudio string
}

// Split is a contiguous shard of cleaned audio produced by the splitter.
// Every stage's artifact key is derived from (File, Index).
type Split struct {
	File  string
	Index int
}

// ID returns the canonical split identifier used to name artifacts, e.g.
// "episode-01_003".
func (s Split) ID() string {
	return fmt.Sprintf("%s_%03d", s.File, s.Index)
}

// SilenceInterval is a detected silent region, in milliseconds.
type SilenceInterval struct {
	StartMS int
	EndMS   int
}

// SilenceMap is an ordered, non-overlapping set of silence intervals.
type SilenceMap struct {
	Intervals []SilenceInterval
}

// NewSilenceMap validates ordering before constructing the map: start < end
// for every interval, intervals sorted ascending, and end_i <= start_{i+1}.
func NewSilenceMap(intervals []SilenceInterval) (SilenceMap, error) {
	for i, iv := range intervals {
		if iv.StartMS >= iv.EndMS {
			return SilenceMap{}, apperrors.Wrap(apperrors.ErrConsistency, "silences", "",
				fmt.Sprintf("interval %d: start %d >= end %d", i, iv.StartMS, iv.EndMS), nil)
		}
		if i > 0 && intervals[i-1].EndMS > iv.StartMS {
			return SilenceMap{}, apperrors.Wrap(apperrors.ErrConsistency, "silences", "",
				fmt.Sprintf("interval %d overlaps or precedes interval %d", i-1, i), nil)
		}
	}
	return SilenceMap{Intervals: intervals}, nil
}

// Token is a single word or punctuation unit produced by the ASR operator.
type Token struct {
	StartMS    int
	EndMS      int
	Text       string
	Confidence float64
	Speaker    string // local diarization label, empty until step 1 of fusion
}

// Midpoint returns the token's temporal center, used to align it against
// diarization intervals.
func (t Token) Midpoint() int {
	return (t.StartMS + t.EndMS) / 2
}

// TokenStream is the ordered sequence of ASR tokens for one split.
type TokenStream struct {
	Tokens []Token
}

// NewTokenStream validates start < end and non-decreasing start times,
// dropping (with the caller's warning channel left to the operator layer)
// is not performed here — callers filter zero-duration tokens before
// construction per §4.4's edge case.
func NewTokenStream(tokens []Token) (TokenStream, error) {
	lastStart := -1
	for i, tok := range tokens {
		if tok.StartMS >= tok.EndMS {
			return TokenStream{}, apperrors.Wrap(apperrors.ErrConsistency, "transcription", "",
				fmt.Sprintf("token %d: start %d >= end %d", i, tok.StartMS, tok.EndMS), nil)
		}
		if tok.StartMS < lastStart {
			return TokenStream{}, apperrors.Wrap(apperrors.ErrConsistency, "transcription", "",
				fmt.Sprintf("token %d: start %d precedes previous token start %d", i, tok.StartMS, lastStart), nil)
		}
		lastStart = tok.StartMS
	}
	return TokenStream{Tokens: tokens}, nil
}

// DiarizationInterval attributes a span of a split to one locally-scoped
// speaker label.
type DiarizationInterval struct {
	Label   string
	StartS  float64
	EndS    float64
}

// DiarizationTrack is the ordered set of diarization intervals for a split,
// produced by exactly one backend (pyannote, wespeaker, or 3dspeaker).
type DiarizationTrack struct {
	Backend   string
	Intervals []DiarizationInterval
}

// NewDiarizationTrack validates start < end for every interval. Labels are
// opaque and local to the split; no ordering invariant is required between
// intervals of different labels beyond start < end.
func NewDiarizationTrack(backend string, intervals []DiarizationInterval) (DiarizationTrack, error) {
	for i, iv := range intervals {
		if iv.StartS >= iv.EndS {
			return DiarizationTrack{}, apperrors.Wrap(apperrors.ErrConsistency, "diarize", "",
				fmt.Sprintf("interval %d: start %.3f >= end %.3f", i, iv.StartS, iv.EndS), nil)
		}
	}
	return DiarizationTrack{Backend: backend, Intervals: intervals}, nil
}

// SpeakerEmbedding is a fixed-dimension, unit-normalized real vector
// associated with a global speaker identity.
type SpeakerEmbedding struct {
	SpeakerID int
	Vector    []float64
}
