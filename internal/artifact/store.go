// Package artifact is loom's content-addressed-by-name file store: every
// stage output lives at a canonical path under a project's directory tree,
// writes are atomic (temp file + rename), and readers tolerate missing
// siblings — the orchestrator, not the store, enforces dependency order.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"loom/internal/apperrors"
)

// Store resolves canonical artifact paths under a single project directory
// and performs atomic reads/writes against them.
type Store struct {
	ProjectDir string
}

func New(projectDir string) *Store {
	return &Store{ProjectDir: projectDir}
}

// EnsureProjectLayout creates the directory skeleton described in the
// artifact layout table: raw/, splits/, and audio/.
func (s *Store) EnsureProjectLayout() error {
	for _, dir := range []string{s.RawDir(), s.SplitsDir(), s.AudioDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperrors.Wrap(apperrors.ErrConfig, "artifact", "", "create project layout", err)
		}
	}
	return nil
}

// ArchivePath is the project-wide packaged-dataset output, rebuilt from
// audio/ once validation and copy have materialized the curated clips.
func (s *Store) ArchivePath() string        { return filepath.Join(s.ProjectDir, "dataset.tar") }
func (s *Store) SettingsPath() string      { return filepath.Join(s.ProjectDir, "settings.json") }
func (s *Store) BadSegmentsPath() string   { return filepath.Join(s.ProjectDir, "bad_segments.json") }
func (s *Store) SpeakerDBPath() string     { return filepath.Join(s.ProjectDir, "speaker_db.sqlite") }
func (s *Store) RawDir() string            { return filepath.Join(s.ProjectDir, "raw") }
func (s *Store) RawPath(file string) string { return filepath.Join(s.RawDir(), file) }
func (s *Store) SplitsDir() string         { return filepath.Join(s.ProjectDir, "splits") }
func (s *Store) AudioDir() string          { return filepath.Join(s.ProjectDir, "audio") }

// FileDir returns the splits/<file>/ directory holding every per-split
// artifact for one raw file.
func (s *Store) FileDir(file string) string {
	return filepath.Join(s.SplitsDir(), file)
}

// ListRawFiles returns the basenames of every ingested file under raw/, in
// directory order, so CLI commands can enumerate "every file in the
// project" without a separate manifest.
func (s *Store) ListRawFiles() ([]string, error) {
	entries, err := os.ReadDir(s.RawDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.ErrConfig, "artifact", "", "list raw files", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// ListSplitIDs returns every split ID with a persisted _segments.json under
// splits/<file>/, by scanning the file's directory for that suffix.
func (s *Store) ListSplitIDs(file string) ([]string, error) {
	entries, err := os.ReadDir(s.FileDir(file))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.ErrConfig, "artifact", "", "list splits", err)
	}
	const suffix = "_segments.json"
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			ids = append(ids, name[:len(name)-len(suffix)])
		}
	}
	return ids, nil
}

// BadSegmentRecord describes one segment a validation pass rejected,
// persisted to bad_segments.json so a reviewer can find every flagged
// segment across a project without re-scanning every split's segments file.
type BadSegmentRecord struct {
	SplitID    string  `json:"split_id"`
	SegIdx     int     `json:"seg_idx"`
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
}

// AppendBadSegments merges newly bad segments into bad_segments.json,
// keyed by (SplitID, SegIdx) so re-validating the same split updates its
// entry in place instead of duplicating it.
func (s *Store) AppendBadSegments(records []BadSegmentRecord) error {
	var existing []BadSegmentRecord
	if err := ReadJSON(s.BadSegmentsPath(), &existing); err != nil && !os.IsNotExist(err) {
		return err
	}
	index := make(map[string]int, len(existing))
	for i, r := range existing {
		index[badSegmentKey(r.SplitID, r.SegIdx)] = i
	}
	for _, r := range records {
		key := badSegmentKey(r.SplitID, r.SegIdx)
		if i, ok := index[key]; ok {
			existing[i] = r
			continue
		}
		index[key] = len(existing)
		existing = append(existing, r)
	}
	return WriteJSON(s.BadSegmentsPath(), existing)
}

func badSegmentKey(splitID string, segIdx int) string {
	return fmt.Sprintf("%s#%d", splitID, segIdx)
}

func (s *Store) CleanedAudioPath(file string) string {
	return filepath.Join(s.FileDir(file), fmt.Sprintf("%s_cleaned_audio.wav", file))
}

func (s *Store) SplitAudioPath(splitID string) string {
	return s.splitPath(splitID, ".wav")
}

func (s *Store) SilencesPath(splitID string) string {
	return s.splitPath(splitID, "_silences.json")
}

func (s *Store) TranscriptionPath(splitID string) string {
	return s.splitPath(splitID, "_transcription.json")
}

// DiarizationPath returns the CSV path for the named backend
// ("pyannote", "wespeaker", or "3dspeaker").
func (s *Store) DiarizationPath(splitID, backend string) string {
	return s.splitPath(splitID, fmt.Sprintf("_%s.csv", backend))
}

func (s *Store) SegmentsPath(splitID string) string {
	return s.splitPath(splitID, "_segments.json")
}

func (s *Store) SegmentsRawPath(splitID string) string {
	return s.splitPath(splitID, "_segments_raw.json")
}

// SpeakerEmbeddingsPath returns the per-label embedding artifact a
// diarization backend emits alongside its CSV intervals, keyed by local
// label, for fusion step 2's label-to-global-speaker mapping.
func (s *Store) SpeakerEmbeddingsPath(splitID, backend string) string {
	return s.splitPath(splitID, fmt.Sprintf("_%s_embeddings.json", backend))
}

// PhonemesPath returns the phonetic-alignment artifact for a split. Not
// named in the original artifact layout table; added so stage 9 (phonetic
// alignment) has a concrete home, matching the treatment of every other
// stage's output.
func (s *Store) PhonemesPath(splitID string) string {
	return s.splitPath(splitID, "_phonemes.json")
}

// SpeakerClipDir returns the directory holding curated clips for one global
// speaker id within a split's sub-segment tree.
func (s *Store) SpeakerClipDir(splitID string, globalSpeakerID int) string {
	return filepath.Join(s.splitPath(splitID, "_segments"), "speakers", fmt.Sprintf("%d", globalSpeakerID))
}

// CuratedSpeakerDir returns audio/speaker_<nn>/, the final archive location
// for good clips.
func (s *Store) CuratedSpeakerDir(globalSpeakerID int) string {
	return filepath.Join(s.AudioDir(), fmt.Sprintf("speaker_%02d", globalSpeakerID))
}

func (s *Store) splitPath(splitID, suffix string) string {
	file := fileFromSplitID(splitID)
	return filepath.Join(s.FileDir(file), splitID+suffix)
}

func fileFromSplitID(splitID string) string {
	for i := len(splitID) - 1; i >= 0; i-- {
		if splitID[i] == '_' {
			return splitID[:i]
		}
	}
	return splitID
}

// Exists reports whether path is present on disk.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// NewerThan reports whether path's mtime is at or after every one of
// inputs' mtimes, satisfying the operator skippability contract in §4.1:
// an operator is already_done if all outputs exist and none are older than
// any input.
func NewerThan(path string, inputs ...string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	for _, input := range inputs {
		inInfo, err := os.Stat(input)
		if err != nil {
			continue // missing input is not this function's concern
		}
		if inInfo.ModTime().After(info.ModTime()) {
			return false, nil
		}
	}
	return true, nil
}

// WriteJSON atomically serializes v to path using a temp-file-then-rename
// sequence so readers never observe a partial write. It is a function
// rather than a Store method because callers often write artifacts (e.g.
// fusion output) outside of any one split's canonical path.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return apperrors.Wrap(apperrors.ErrConsistency, "artifact", "", "marshal "+path, err)
	}
	return WriteBytes(path, data)
}

// ReadJSON deserializes path into v. A missing file is reported via a plain
// os.IsNotExist-compatible error so callers (the orchestrator) can treat it
// as "not yet produced" rather than a consistency violation.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.Wrap(apperrors.ErrConsistency, "artifact", "", "unmarshal "+path, err)
	}
	return nil
}

// WriteBytes atomically writes data to path.
func WriteBytes(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.Wrap(apperrors.ErrConfig, "artifact", "", "create directory for "+path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return apperrors.Wrap(apperrors.ErrConfig, "artifact", "", "create temp file for "+path, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return apperrors.Wrap(apperrors.ErrConsistency, "artifact", "", "write "+path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return apperrors.Wrap(apperrors.ErrConsistency, "artifact", "", "close "+path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return apperrors.Wrap(apperrors.ErrConsistency, "artifact", "", "rename into place "+path, err)
	}
	return nil
}
