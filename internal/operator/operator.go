// Package operator defines the uniform stage contract (C1): every one of
// the ten pipeline transformations — denoise, silence detection, split,
// transcribe, diarize, segment, validate, metadata, phonetic-align, archive
// — implements Operator so the orchestrator can sequence, cache, and skip
// them identically regardless of what each stage actually does.
package operator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// ProgressSink receives fine-grained progress events from a running
// operator. Every operator accepts one unconditionally; callers that do not
// care about progress pass NoopSink{} rather than branching on nil.
type ProgressSink interface {
	Step(message string, fraction float64)
}

// NoopSink discards every event.
type NoopSink struct{}

func (NoopSink) Step(string, float64) {}

// CacheKey identifies one operator invocation for skip/already_done checks.
// Version captures documented ML backend non-determinism: bumping it
// invalidates every cache entry produced by the prior version.
type CacheKey struct {
	Name        string
	Version     string
	SplitID     string
	OptionsHash string
}

// HashOptions canonicalizes an options value to a stable hash, independent
// of Go map key ordering, so the same logical options always produce the
// same cache key.
func HashOptions(opts any) (string, error) {
	normalized, err := normalize(opts)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(normalized)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return sortKeys(generic), nil
}

func sortKeys(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make(map[string]any, len(val))
		for _, k := range keys {
			ordered[k] = sortKeys(val[k])
		}
		return ordered
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sortKeys(item)
		}
		return out
	default:
		return val
	}
}

// Operator is the uniform contract every pipeline stage implements: a pure
// function from (inputs, options) to outputs, reporting progress along the
// way. Idempotence and skippability are properties of a conforming
// implementation, not the interface itself — AlreadyDone below is the
// shared helper every operator should use to honor them.
type Operator interface {
	// Name identifies the stage for cache keys, logs, and job status.
	Name() string
	// Run executes the stage. inputs and outputs are operator-specific;
	// concrete operators document their own shapes.
	Run(ctx context.Context, inputs, options any, progress ProgressSink) (outputs any, err error)
}

// AlreadyDone reports whether every output locator exists and none are
// older than any input locator, per §4.1's skippability rule.
func AlreadyDone(newerThan func(output string, inputs ...string) (bool, error), outputs, inputs []string) (bool, error) {
	if len(outputs) == 0 {
		return false, nil
	}
	for _, out := range outputs {
		fresh, err := newerThan(out, inputs...)
		if err != nil {
			return false, nil //nolint:nilerr // missing output means not done, not an error
		}
		if !fresh {
			return false, nil
		}
	}
	return true, nil
}
