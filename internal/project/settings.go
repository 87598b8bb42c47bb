// Package project implements the project and settings model (C9, §6):
// per-project persisted settings, path ownership, and the single-instance
// lock guarding a project directory against two concurrent orchestrator
// runs.
package project

import "loom/internal/speakerdb"

// Settings covers every row of the external settings table. JSON tags
// match the persisted settings.json field names exactly.
type Settings struct {
	SilenceThresholdDB         float64 `json:"silence_threshold_db"`
	MinSilenceLengthMS         int     `json:"min_silence_length_ms"`
	SilencePadMS               int     `json:"silence_pad_ms"`
	MaxSpeakers                int     `json:"max_speakers"`
	Language                   string  `json:"language"`
	BuildSubsegments           bool    `json:"build_subsegments"`
	JoinSubsegments            bool    `json:"join_subsegments"`
	DiarizationBackend         string  `json:"diarization_backend"`
	SpeakerSimilarityThreshold float64 `json:"speaker_similarity_threshold"`
	ValidationThreshold        int     `json:"validation_threshold"`
	MaxWorkers                 int     `json:"max_workers"`
}

// DefaultSettings returns the settings table's documented defaults.
// SpeakerSimilarityThreshold is left at zero, meaning "use the
// diarization backend's default" (resolved by EffectiveSimilarityThreshold).
func DefaultSettings() Settings {
	return Settings{
		SilenceThresholdDB:  -40,
		MinSilenceLengthMS:  500,
		SilencePadMS:        50,
		MaxSpeakers:         0,
		Language:            "sl",
		BuildSubsegments:    true,
		JoinSubsegments:     false,
		DiarizationBackend:  "pyannote",
		ValidationThreshold: 85,
		MaxWorkers:          4,
	}
}

// EffectiveSimilarityThreshold resolves the backend-default fallback: an
// explicit zero value (unset) defers to speakerdb.DefaultThreshold for the
// configured backend.
func (s Settings) EffectiveSimilarityThreshold() float64 {
	if s.SpeakerSimilarityThreshold > 0 {
		return s.SpeakerSimilarityThreshold
	}
	return speakerdb.DefaultThreshold(s.DiarizationBackend)
}

// Override holds a per-file or per-split settings override. Every field is
// a pointer so an unset override falls back to the project's settings
// rather than zero-valuing it.
type Override struct {
	SilenceThresholdDB *float64 `json:"silence_threshold_db,omitempty"`
	MinSilenceLengthMS *int     `json:"min_silence_length_ms,omitempty"`
	SilencePadMS       *int     `json:"silence_pad_ms,omitempty"`
	Language           *string  `json:"language,omitempty"`
}

// Resolve applies a possibly-nil override on top of base, returning the
// effective settings for one file or split.
func Resolve(base Settings, override *Override) Settings {
	if override == nil {
		return base
	}
	resolved := base
	if override.SilenceThresholdDB != nil {
		resolved.SilenceThresholdDB = *override.SilenceThresholdDB
	}
	if override.MinSilenceLengthMS != nil {
		resolved.MinSilenceLengthMS = *override.MinSilenceLengthMS
	}
	if override.SilencePadMS != nil {
		resolved.SilencePadMS = *override.SilencePadMS
	}
	if override.Language != nil {
		resolved.Language = *override.Language
	}
	return resolved
}
