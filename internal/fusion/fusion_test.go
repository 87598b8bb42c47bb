package fusion_test

import (
	"testing"

	"loom/internal/audio"
	"loom/internal/fusion"
)

type staticAssigner struct {
	ids map[string]int
}

func (a staticAssigner) Assign(embedding []float64) (int, error) {
	// The fixtures below key embeddings on a single sentinel value per
	// label so the assigner can look the id up directly.
	return a.ids[embeddingKey(embedding)], nil
}

func embeddingKey(v []float64) string {
	if len(v) == 0 {
		return ""
	}
	switch v[0] {
	case 1:
		return "a"
	case 2:
		return "b"
	default:
		return "?"
	}
}

func mustTokens(t *testing.T, toks []audio.Token) audio.TokenStream {
	t.Helper()
	ts, err := audio.NewTokenStream(toks)
	if err != nil {
		t.Fatalf("NewTokenStream: %v", err)
	}
	return ts
}

func mustSilences(t *testing.T, ivs []audio.SilenceInterval) audio.SilenceMap {
	t.Helper()
	sm, err := audio.NewSilenceMap(ivs)
	if err != nil {
		t.Fatalf("NewSilenceMap: %v", err)
	}
	return sm
}

func mustDiar(t *testing.T, ivs []audio.DiarizationInterval) audio.DiarizationTrack {
	t.Helper()
	dt, err := audio.NewDiarizationTrack("pyannote", ivs)
	if err != nil {
		t.Fatalf("NewDiarizationTrack: %v", err)
	}
	return dt
}

// A single long silence splits two sentences into distinct segments even
// though both come from the same speaker.
func TestFuseSplitsOnSilenceBoundary(t *testing.T) {
	tokens := mustTokens(t, []audio.Token{
		{StartMS: 0, EndMS: 500, Text: "hello", Confidence: 0.9},
		{StartMS: 2000, EndMS: 2500, Text: "world", Confidence: 0.9},
	})
	diar := mustDiar(t, []audio.DiarizationInterval{{Label: "spk0", StartS: 0, EndS: 3}})
	silences := mustSilences(t, []audio.SilenceInterval{{StartMS: 500, EndMS: 2000}})
	embeddings := map[string][]float64{"spk0": {1}}
	assigner := staticAssigner{ids: map[string]int{"a": 7}}

	segments, err := fusion.Fuse(tokens, diar, silences, embeddings, assigner, fusion.Settings{
		SilencePadMS:       50,
		MinSilenceLengthMS: 500,
	})
	if err != nil {
		t.Fatalf("Fuse: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments from silence split, got %d", len(segments))
	}
	for _, seg := range segments {
		if seg.Main.SpeakerID != 7 {
			t.Errorf("expected speaker 7, got %d", seg.Main.SpeakerID)
		}
	}
}

// A speaker change mid-clip starts a new segment even without an
// intervening silence.
func TestFuseSplitsOnSpeakerChange(t *testing.T) {
	tokens := mustTokens(t, []audio.Token{
		{StartMS: 0, EndMS: 500, Text: "hello", Confidence: 0.9},
		{StartMS: 500, EndMS: 1000, Text: "there", Confidence: 0.9},
	})
	diar := mustDiar(t, []audio.DiarizationInterval{
		{Label: "spk0", StartS: 0, EndS: 0.5},
		{Label: "spk1", StartS: 0.5, EndS: 1.0},
	})
	silences := mustSilences(t, nil)
	embeddings := map[string][]float64{"spk0": {1}, "spk1": {2}}
	assigner := staticAssigner{ids: map[string]int{"a": 1, "b": 2}}

	segments, err := fusion.Fuse(tokens, diar, silences, embeddings, assigner, fusion.Settings{
		SilencePadMS:       50,
		MinSilenceLengthMS: 500,
	})
	if err != nil {
		t.Fatalf("Fuse: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments from speaker change, got %d", len(segments))
	}
	if segments[0].Main.SpeakerID == segments[1].Main.SpeakerID {
		t.Errorf("expected distinct speakers across the change, got %d twice", segments[0].Main.SpeakerID)
	}
}

// A segment whose minimum token confidence falls below the default floor
// starts out bad even without any overlap.
func TestFuseDefaultVerdictFromConfidence(t *testing.T) {
	tokens := mustTokens(t, []audio.Token{
		{StartMS: 0, EndMS: 500, Text: "mumble", Confidence: 0.40},
	})
	diar := mustDiar(t, []audio.DiarizationInterval{{Label: "spk0", StartS: 0, EndS: 1}})
	silences := mustSilences(t, nil)
	embeddings := map[string][]float64{"spk0": {1}}
	assigner := staticAssigner{ids: map[string]int{"a": 1}}

	segments, err := fusion.Fuse(tokens, diar, silences, embeddings, assigner, fusion.Settings{
		SilencePadMS:       50,
		MinSilenceLengthMS: 500,
	})
	if err != nil {
		t.Fatalf("Fuse: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
	if segments[0].Status != audio.StatusBad {
		t.Errorf("expected low-confidence segment to default to bad, got %s", segments[0].Status)
	}
}

// Tokens attributed to an unmapped local label fall back to the unknown
// speaker sentinel rather than failing the split.
func TestFuseUnknownSpeakerOnMissingEmbedding(t *testing.T) {
	tokens := mustTokens(t, []audio.Token{
		{StartMS: 0, EndMS: 500, Text: "hi", Confidence: 0.9},
	})
	diar := mustDiar(t, []audio.DiarizationInterval{{Label: "spk0", StartS: 0, EndS: 1}})
	silences := mustSilences(t, nil)

	segments, err := fusion.Fuse(tokens, diar, silences, map[string][]float64{}, staticAssigner{}, fusion.Settings{
		SilencePadMS:       50,
		MinSilenceLengthMS: 500,
	})
	if err != nil {
		t.Fatalf("Fuse: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
	if segments[0].Main.SpeakerID != -1 {
		t.Errorf("expected unknown speaker sentinel -1, got %d", segments[0].Main.SpeakerID)
	}
}

// Literal scenario 1: two tokens bridged by a short silence form one
// segment whose end already sits on the following silence's start, so
// padding must not push end_ms past it.
func TestFusePadsEndToFollowingSilenceStart(t *testing.T) {
	tokens := mustTokens(t, []audio.Token{
		{StartMS: 0, EndMS: 500, Text: "Hello", Confidence: 0.9},
		{StartMS: 600, EndMS: 900, Text: "world.", Confidence: 0.9},
	})
	diar := mustDiar(t, []audio.DiarizationInterval{{Label: "spk0", StartS: 0, EndS: 1.5}})
	silences := mustSilences(t, []audio.SilenceInterval{
		{StartMS: 500, EndMS: 600},
		{StartMS: 900, EndMS: 1500},
	})
	embeddings := map[string][]float64{"spk0": {1}}
	assigner := staticAssigner{ids: map[string]int{"a": 0}}

	segments, err := fusion.Fuse(tokens, diar, silences, embeddings, assigner, fusion.Settings{
		SilencePadMS:       50,
		MinSilenceLengthMS: 500,
	})
	if err != nil {
		t.Fatalf("Fuse: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
	seg := segments[0]
	if seg.Main.StartMS != 0 || seg.Main.EndMS != 900 {
		t.Fatalf("expected start_ms:0 end_ms:900, got start_ms:%d end_ms:%d", seg.Main.StartMS, seg.Main.EndMS)
	}
	if seg.Main.Text != "Hello world." {
		t.Errorf("expected text %q, got %q", "Hello world.", seg.Main.Text)
	}
	if seg.Main.PadEndMS > 50 {
		t.Errorf("expected pad_end_ms <= 50, got %d", seg.Main.PadEndMS)
	}
	if seg.Status != audio.StatusGood {
		t.Errorf("expected status good, got %s", seg.Status)
	}
}
