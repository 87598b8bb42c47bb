package operator

import (
	"context"
	"path/filepath"

	"loom/internal/artifact"
	"loom/internal/audio"
)

// MetadataWriter is stage 8: aggregates one file's per-split segment data
// into a summary for that file. Unlike the ML-backed stages this runs entirely
// in-process — there is no external black-box collaborator for counting
// segments and speakers.
type MetadataWriter struct {
	Store *artifact.Store
}

type MetadataInputs struct {
	File    string
	Splits  []SplitSegments
}

// SplitSegments pairs a split with its fused segments so the writer can
// summarize without re-reading artifacts itself.
type SplitSegments struct {
	SplitID  string
	Segments []audio.Segment
}

type datasetMetadata struct {
	File           string         `json:"file"`
	SplitCount     int            `json:"split_count"`
	SegmentCount   int            `json:"segment_count"`
	GoodSegments   int            `json:"good_segments"`
	BadSegments    int            `json:"bad_segments"`
	SpeakerIDs     []int          `json:"speaker_ids"`
}

type MetadataOutputs struct {
	Path string
}

func (m *MetadataWriter) Name() string { return "metadata" }

func (m *MetadataWriter) Run(_ context.Context, rawInputs, _ any, sink ProgressSink) (any, error) {
	in := rawInputs.(MetadataInputs)
	if sink == nil {
		sink = NoopSink{}
	}

	path := filepath.Join(m.Store.FileDir(in.File), in.File+"_metadata.json")
	segmentInputs := make([]string, len(in.Splits))
	for i, split := range in.Splits {
		segmentInputs[i] = m.Store.SegmentsPath(split.SplitID)
	}
	if done, _ := AlreadyDone(artifact.NewerThan, []string{path}, segmentInputs); done {
		sink.Step("metadata up to date", 1.0)
		return MetadataOutputs{Path: path}, nil
	}

	meta := datasetMetadata{File: in.File, SplitCount: len(in.Splits)}
	speakerSeen := map[int]struct{}{}
	for _, split := range in.Splits {
		for _, seg := range split.Segments {
			meta.SegmentCount++
			if seg.Status == audio.StatusGood {
				meta.GoodSegments++
			} else {
				meta.BadSegments++
			}
			speakerSeen[seg.Main.SpeakerID] = struct{}{}
		}
	}
	for id := range speakerSeen {
		meta.SpeakerIDs = append(meta.SpeakerIDs, id)
	}
	sink.Step("writing metadata", 1.0)

	if err := artifact.WriteJSON(path, meta); err != nil {
		return nil, err
	}
	return MetadataOutputs{Path: path}, nil
}
