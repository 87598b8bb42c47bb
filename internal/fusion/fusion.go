// Package fusion implements the pipeline's hardest algorithm (C4): joining
// word-level ASR tokens, diarization intervals, and silence regions into
// speaker-attributed segments with padding, confidence, and an overlap
// verdict. The nine-step algorithm follows §4.4 of the specification
// exactly; each step is a named, independently testable pass.
package fusion

import (
	"sort"
	"strings"
	"unicode"

	"loom/internal/audio"
)

// Settings controls fusion behavior; every field corresponds to a project
// setting from the external settings table.
type Settings struct {
	SilencePadMS       int
	MinSilenceLengthMS int
	BuildSubsegments   bool
	JoinSubsegments    bool
	MaxSubDurationMS   int // default 15000 when zero
	Language           string
}

// Assigner resolves a speaker embedding to a stable global speaker id. The
// speaker DB (C3) implements this; fusion never persists identity itself.
type Assigner interface {
	Assign(embedding []float64) (int, error)
}

const unknownSpeaker = -1

const sentenceTerminators = ".?!"

// noSpeaker is the global id fusion assigns to tokens whose local label has
// no embedding (empty diarization, or an assignment error, per §7:
// "speaker-DB assignment errors downgrade the affected tokens to
// speaker=unknown rather than failing the split").
const noSpeaker = unknownSpeaker

type fusedToken struct {
	audio.Token
	globalSpeaker int
}

// Fuse runs the full nine-step algorithm. labelEmbeddings supplies one
// embedding per local diarization label (step 2 is explicit that exactly
// one embedding is extracted per label — the embedding extractor itself is
// a black-box ML operator out of scope here).
func Fuse(tokens audio.TokenStream, diar audio.DiarizationTrack, silences audio.SilenceMap, labelEmbeddings map[string][]float64, assigner Assigner, settings Settings) ([]audio.Segment, error) {
	if settings.MaxSubDurationMS <= 0 {
		settings.MaxSubDurationMS = 15000
	}

	attributed := alignTokensToDiarization(tokens.Tokens, diar, settings.SilencePadMS)
	globalByLabel, err := mapSpeakersToGlobal(attributed, labelEmbeddings, assigner)
	if err != nil {
		return nil, err
	}
	fused := applyGlobalSpeakers(attributed, globalByLabel)

	raw, tokenSets := formRawSegments(fused, silences, settings.MinSilenceLengthMS)
	padded := padToSilence(raw, silences, settings.SilencePadMS)

	var withSubs []audio.Segment
	if settings.BuildSubsegments {
		withSubs = buildSubsegments(padded, tokenSets, settings)
	} else {
		withSubs = padded
	}

	verdicted := classifyDefaultVerdict(withSubs)
	final := resolveOverlaps(verdicted)

	return final, nil
}

// alignTokensToDiarization is step 1: attaches each token to the
// diarization interval containing its midpoint, falling back to the
// nearest interval within silence_pad_ms, else "unknown".
func alignTokensToDiarization(tokens []audio.Token, diar audio.DiarizationTrack, silencePadMS int) []audio.Token {
	out := make([]audio.Token, len(tokens))
	for i, t := range tokens {
		out[i] = t
		midMS := t.Midpoint()
		midS := float64(midMS) / 1000.0

		if label, ok := containingLabel(diar, midS); ok {
			out[i].Speaker = label
			continue
		}
		if label, ok := nearestLabel(diar, midS, float64(silencePadMS)/1000.0); ok {
			out[i].Speaker = label
			continue
		}
		out[i].Speaker = ""
	}
	return out
}

func containingLabel(diar audio.DiarizationTrack, midS float64) (string, bool) {
	for _, iv := range diar.Intervals {
		if midS >= iv.StartS && midS < iv.EndS {
			return iv.Label, true
		}
	}
	return "", false
}

func nearestLabel(diar audio.DiarizationTrack, midS, padS float64) (string, bool) {
	best := ""
	bestDist := padS
	found := false
	for _, iv := range diar.Intervals {
		var dist float64
		switch {
		case midS < iv.StartS:
			dist = iv.StartS - midS
		case midS >= iv.EndS:
			dist = midS - iv.EndS
		default:
			dist = 0
		}
		if dist <= bestDist {
			best = iv.Label
			bestDist = dist
			found = true
		}
	}
	return best, found
}

// mapSpeakersToGlobal is step 2: resolves each distinct local label (in
// first-encountered order, resolving the §9 tie-break choice explicitly)
// to a global speaker id via the speaker DB.
func mapSpeakersToGlobal(tokens []audio.Token, labelEmbeddings map[string][]float64, assigner Assigner) (map[string]int, error) {
	result := make(map[string]int)
	seen := make(map[string]bool)
	for _, t := range tokens {
		if t.Speaker == "" || seen[t.Speaker] {
			continue
		}
		seen[t.Speaker] = true
		embedding, ok := labelEmbeddings[t.Speaker]
		if !ok || assigner == nil {
			result[t.Speaker] = noSpeaker
			continue
		}
		id, err := assigner.Assign(embedding)
		if err != nil {
			result[t.Speaker] = noSpeaker
			continue
		}
		result[t.Speaker] = id
	}
	return result, nil
}

func applyGlobalSpeakers(tokens []audio.Token, globalByLabel map[string]int) []fusedToken {
	out := make([]fusedToken, len(tokens))
	for i, t := range tokens {
		gid := noSpeaker
		if t.Speaker != "" {
			if id, ok := globalByLabel[t.Speaker]; ok {
				gid = id
			}
		}
		out[i] = fusedToken{Token: t, globalSpeaker: gid}
	}
	return out
}

func endsSentence(text string) bool {
	text = strings.TrimRightFunc(text, unicode.IsSpace)
	if text == "" {
		return false
	}
	last := text[len(text)-1]
	return strings.IndexByte(sentenceTerminators, last) >= 0
}

func gapInsideSilence(gapStart, gapEnd int, silences audio.SilenceMap) bool {
	for _, iv := range silences.Intervals {
		if iv.StartMS <= gapStart && gapEnd <= iv.EndMS {
			return true
		}
	}
	return false
}

// formRawSegments is step 3: scans tokens in order, starting a new segment
// on speaker change, a silence-bounded gap, or trailing sentence-terminal
// punctuation. It also returns each segment's contained tokens, parallel by
// index, since step 6 (sub-segments) needs per-token timing that the fused
// text alone no longer carries.
func formRawSegments(tokens []fusedToken, silences audio.SilenceMap, minSilenceLengthMS int) ([]audio.Segment, [][]fusedToken) {
	var segments []audio.Segment
	var tokenSets [][]fusedToken
	var current []fusedToken

	flush := func() {
		if len(current) == 0 {
			return
		}
		segments = append(segments, buildSegmentFromTokens(current))
		tokenSets = append(tokenSets, current)
		current = nil
	}

	for _, t := range tokens {
		if len(current) > 0 {
			prev := current[len(current)-1]
			gap := t.StartMS - prev.EndMS
			speakerChanged := t.globalSpeaker != prev.globalSpeaker
			silenceBoundary := gap >= minSilenceLengthMS && gapInsideSilence(prev.EndMS, t.StartMS, silences)
			sentenceEnded := endsSentence(prev.Text)
			if speakerChanged || silenceBoundary || sentenceEnded {
				flush()
			}
		}
		current = append(current, t)
	}
	flush()
	return segments, tokenSets
}

func buildSegmentFromTokens(tokens []fusedToken) audio.Segment {
	counts := map[int]int{}
	for _, t := range tokens {
		if t.globalSpeaker != noSpeaker {
			counts[t.globalSpeaker]++
		}
	}
	majority := noSpeaker
	best := -1
	// Deterministic tie-break: lowest speaker id wins among equal counts.
	ids := make([]int, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if counts[id] > best {
			best = counts[id]
			majority = id
		}
	}

	text, minConfidence := segmentTextAndConfidence(tokens)

	return audio.Segment{
		Main: audio.SegRange{
			StartMS:       tokens[0].StartMS,
			EndMS:         tokens[len(tokens)-1].EndMS,
			SpeakerID:     majority,
			Text:          text,
			MinConfidence: minConfidence,
		},
	}
}

// segmentTextAndConfidence is step 5: joins contained tokens' text with a
// single space and tracks the minimum per-token confidence.
func segmentTextAndConfidence(tokens []fusedToken) (string, float64) {
	var b strings.Builder
	minConfidence := 1.0
	for i, t := range tokens {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strings.TrimSpace(t.Text))
		if t.Confidence < minConfidence {
			minConfidence = t.Confidence
		}
	}
	return b.String(), minConfidence
}

// padToSilence is step 4: snaps each main segment's boundaries to the
// nearest preceding/following silence, capped by silence_pad_ms, never
// crossing into a neighboring segment's body.
func padToSilence(segments []audio.Segment, silences audio.SilenceMap, silencePadMS int) []audio.Segment {
	out := make([]audio.Segment, len(segments))
	copy(out, segments)

	for i := range out {
		main := out[i].Main
		lowerBound := 0
		if i > 0 {
			lowerBound = out[i-1].Main.EndMS
		}
		upperBound := -1
		if i < len(out)-1 {
			upperBound = out[i+1].Main.StartMS
		}

		newStart := main.StartMS
		if iv, ok := silenceAtOrBefore(silences, main.StartMS); ok && iv.EndMS >= main.StartMS-silencePadMS {
			candidate := iv.EndMS
			if candidate < main.StartMS-silencePadMS {
				candidate = main.StartMS - silencePadMS
			}
			if candidate >= lowerBound && candidate < main.StartMS {
				newStart = candidate
			}
		}

		newEnd := main.EndMS
		if iv, ok := silenceAtOrAfter(silences, main.EndMS); ok && iv.StartMS <= main.EndMS+silencePadMS {
			candidate := iv.StartMS
			if candidate > main.EndMS+silencePadMS {
				candidate = main.EndMS + silencePadMS
			}
			if (upperBound < 0 || candidate <= upperBound) && candidate > main.EndMS {
				newEnd = candidate
			}
		}

		main.PadStartMS = main.StartMS - newStart
		main.PadEndMS = newEnd - main.EndMS
		main.StartMS = newStart
		main.EndMS = newEnd
		out[i].Main = main
	}
	return out
}

// silenceAtOrBefore returns the last silence interval that has not fully
// started after ms (StartMS < ms), which is the candidate to pad a
// segment's start backward into.
func silenceAtOrBefore(silences audio.SilenceMap, ms int) (audio.SilenceInterval, bool) {
	var best audio.SilenceInterval
	found := false
	for _, iv := range silences.Intervals {
		if iv.StartMS < ms {
			best = iv
			found = true
		}
	}
	return best, found
}

// silenceAtOrAfter returns the first silence interval that has not fully
// ended before ms (EndMS > ms), the candidate to pad a segment's end
// forward into.
func silenceAtOrAfter(silences audio.SilenceMap, ms int) (audio.SilenceInterval, bool) {
	for _, iv := range silences.Intervals {
		if iv.EndMS > ms {
			return iv, true
		}
	}
	return audio.SilenceInterval{}, false
}

