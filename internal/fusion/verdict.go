package fusion

import "loom/internal/audio"

// confidenceFloor is the default-verdict cutoff from §4.4 step 8: segments
// below it start life flagged bad, independent of any later overlap check.
const confidenceFloor = 0.60

// classifyDefaultVerdict is step 8: sets each segment's baseline verdict
// from its minimum token confidence. Overlap resolution (step 7) is
// applied afterward in Fuse and can only push a segment from good to bad,
// never the reverse — bad is a monotonic property through the remaining
// passes.
func classifyDefaultVerdict(segments []audio.Segment) []audio.Segment {
	out := make([]audio.Segment, len(segments))
	for i, seg := range segments {
		if seg.Main.MinConfidence < confidenceFloor {
			seg.Status = audio.StatusBad
		} else {
			seg.Status = audio.StatusGood
		}
		out[i] = seg
	}
	return out
}

// resolveOverlaps is step 7: any main segment whose range overlaps a
// neighbor's is marked bad, in both directions. Sub-segments are checked
// the same way within their own parent, since padding can push adjacent
// subs into overlap even though they were built from disjoint clauses.
func resolveOverlaps(segments []audio.Segment) []audio.Segment {
	out := make([]audio.Segment, len(segments))
	copy(out, segments)

	for i := range out {
		for j := i + 1; j < len(out); j++ {
			if out[i].Main.Overlaps(out[j].Main) {
				out[i].Status = audio.StatusBad
				out[j].Status = audio.StatusBad
			}
		}
	}

	for i := range out {
		subs := out[i].Subs
		for a := 0; a < len(subs); a++ {
			for b := a + 1; b < len(subs); b++ {
				if subs[a].Overlaps(subs[b]) {
					out[i].Status = audio.StatusBad
				}
			}
		}
	}

	return out
}
