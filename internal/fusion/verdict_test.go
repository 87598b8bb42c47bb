package fusion

import (
	"testing"

	"loom/internal/audio"
)

// Two main segments whose ranges overlap are both flagged bad, regardless
// of their individual confidence.
func TestResolveOverlapsFlagsBothDirections(t *testing.T) {
	segments := []audio.Segment{
		{Main: audio.SegRange{StartMS: 0, EndMS: 1000, MinConfidence: 0.9}, Status: audio.StatusGood},
		{Main: audio.SegRange{StartMS: 900, EndMS: 2000, MinConfidence: 0.9}, Status: audio.StatusGood},
	}

	out := resolveOverlaps(segments)

	for i, seg := range out {
		if seg.Status != audio.StatusBad {
			t.Errorf("segment %d: expected bad from overlap, got %s", i, seg.Status)
		}
	}
}

// Non-overlapping segments keep whatever verdict they started with.
func TestResolveOverlapsLeavesDisjointSegmentsUntouched(t *testing.T) {
	segments := []audio.Segment{
		{Main: audio.SegRange{StartMS: 0, EndMS: 1000}, Status: audio.StatusGood},
		{Main: audio.SegRange{StartMS: 1000, EndMS: 2000}, Status: audio.StatusGood},
	}

	out := resolveOverlaps(segments)

	for i, seg := range out {
		if seg.Status != audio.StatusGood {
			t.Errorf("segment %d: expected good, got %s", i, seg.Status)
		}
	}
}

func TestClassifyDefaultVerdictUsesConfidenceFloor(t *testing.T) {
	segments := []audio.Segment{
		{Main: audio.SegRange{MinConfidence: 0.59}},
		{Main: audio.SegRange{MinConfidence: 0.60}},
	}

	out := classifyDefaultVerdict(segments)

	if out[0].Status != audio.StatusBad {
		t.Errorf("expected below-floor confidence to default bad, got %s", out[0].Status)
	}
	if out[1].Status != audio.StatusGood {
		t.Errorf("expected at-floor confidence to default good, got %s", out[1].Status)
	}
}
