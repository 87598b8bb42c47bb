// Package orchestrator implements the pipeline orchestrator (C6, §4.6):
// per-file dependency-ordered stage execution, override policy flags, and
// progress publication through jobstatus/progress on every transition.
// It generalizes the teacher's workflow.Manager, which drove a single
// linear queue-item status machine, into a topological stage graph keyed
// by (split, stage name), with each stage injected as an operator.Operator
// so tests can substitute fakes the way the teacher substitutes fake
// stage.Handlers.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"loom/internal/apperrors"
	"loom/internal/artifact"
	"loom/internal/audio"
	"loom/internal/fileutil"
	"loom/internal/fusion"
	"loom/internal/jobstatus"
	"loom/internal/logging"
	"loom/internal/operator"
	"loom/internal/progress"
	"loom/internal/project"
	"loom/internal/speakerdb"
	"loom/internal/validation"
)

// Binaries names the external black-box tool each ML-backed stage shells
// out to.
type Binaries struct {
	Denoise    string
	Silence    string
	Split      string
	Transcribe string
	Diarize    string
	Clip       string
	Validate   string
	Align      string
	Archive    string
}

// Policy carries the override flags from `process`/`run`: which stages to
// force, where to stop, and which post-run housekeeping to perform.
type Policy struct {
	Override bool // force every stage to re-run, ignoring cached outputs
	Segment  bool // force stage 6 (segment) onward to re-run
	Skip     bool // stop after stage 6 (segment); never run validate/align
	Validate bool // run validation + phonetic alignment
	Clean    bool // remove temporaries after a successful run
	Copy     bool // materialize good clips under audio/speaker_<nn>/
	Meta     bool // run stage 8 (metadata)
	Archive  bool // run stage 10 (archive) once this file's splits finish
}

// stages bundles every pipeline stage as its uniform operator.Operator
// interface, letting the manager's sequencing logic stay agnostic of each
// stage's concrete type and letting tests substitute fakes per stage.
type stages struct {
	denoise    operator.Operator
	split      operator.Operator
	silence    operator.Operator
	transcribe operator.Operator
	diarize    operator.Operator
	segment    operator.Operator
	validate   operator.Operator
	align      operator.Operator
	clip       operator.Operator
	metadata   operator.Operator
	archive    operator.Operator
}

// Manager drives one project's file processing: per-file stage sequencing,
// per-(project,file) exclusivity, and progress publication.
type Manager struct {
	Project   *project.Project
	SpeakerDB *speakerdb.DB
	Registry  *jobstatus.Registry
	Reporter  *progress.Reporter
	Logger    *slog.Logger

	stages stages
}

// New builds a Manager wired to real subprocess-backed operators for the
// given binaries. logger may be nil, in which case every component logs to
// a no-op sink.
func New(proj *project.Project, bin Binaries, db *speakerdb.DB, registry *jobstatus.Registry, reporter *progress.Reporter, logger *slog.Logger) *Manager {
	store := proj.Store
	return &Manager{
		Project:   proj,
		SpeakerDB: db,
		Registry:  registry,
		Reporter:  reporter,
		Logger:    logger,
		stages: stages{
			denoise:    &operator.Denoiser{Store: store, Binary: bin.Denoise},
			split:      &operator.Splitter{Store: store, Binary: bin.Split},
			silence:    &operator.SilenceDetector{Store: store, Binary: bin.Silence},
			transcribe: &operator.Transcriber{Store: store, Binary: bin.Transcribe},
			diarize:    &operator.Diarizer{Store: store, Binary: bin.Diarize},
			segment:    &operator.Segmenter{Store: store, Logger: logging.NewComponentLogger(logger, "segment")},
			validate:   &operator.Validator{Store: store, Binary: bin.Validate, Logger: logging.NewComponentLogger(logger, "validate")},
			align:      &operator.PhoneticAligner{Store: store, Binary: bin.Align},
			clip:       &operator.Clipper{Store: store, Binary: bin.Clip},
			metadata:   &operator.MetadataWriter{Store: store},
			archive:    &operator.Archiver{Store: store, Binary: bin.Archive, Logger: logging.NewComponentLogger(logger, "archive")},
		},
	}
}

// splitStageGraph declares the per-split dependency graph once; runSplit
// always executes the topologically-sorted order derived from it.
func splitStageGraph() []stageNode {
	return []stageNode{
		{name: "silence"},
		{name: "transcribe"},
		{name: "diarize"},
		{name: "segment", dependsOn: []string{"silence", "transcribe", "diarize"}},
		{name: "validate", dependsOn: []string{"segment"}},
		{name: "align", dependsOn: []string{"validate"}},
	}
}

// RunFile processes one raw file end to end: denoise, split, then for each
// emitted split the per-split chain in dependency order, then file-level
// metadata. Per §5's ordering guarantee, splits are processed sequentially
// within a file so speaker_id numbering stays deterministic.
func (m *Manager) RunFile(ctx context.Context, file string, overrides project.Overrides, policy Policy) error {
	ctx = logging.WithRunSession(ctx, file)
	key := jobstatus.Key{Project: m.Project.Dir, File: file}
	if snap, ok := m.Registry.Snapshot(key); ok && snap.State == jobstatus.StateRunning {
		return apperrors.Wrap(apperrors.ErrConsistency, "orchestrator", file, "already_processing", nil)
	}
	m.Registry.Start(key)

	err := m.runFile(ctx, file, overrides, policy, key)
	state := jobstatus.StateFinished
	if err != nil {
		state = mapFailureState(err)
	}
	m.Registry.Finish(key, state, err)
	return err
}

func mapFailureState(err error) jobstatus.State {
	if apperrors.Resolve(err) == apperrors.StateCancelled {
		return jobstatus.StateCancelled
	}
	return jobstatus.StateFailed
}

func (m *Manager) runFile(ctx context.Context, file string, overrides project.Overrides, policy Policy, key jobstatus.Key) error {
	store := m.Project.Store
	settings := m.Project.EffectiveSettings(overrides, file, "")

	rawPath := store.RawPath(file)
	if !artifact.Exists(rawPath) {
		return apperrors.Wrap(apperrors.ErrInput, "orchestrator", file, "raw file not found: "+rawPath, nil)
	}

	m.Registry.Update(key, "denoise", "cleaning audio", 0)
	if policy.Override {
		_ = os.Remove(store.CleanedAudioPath(file))
	}
	denoiseOut, err := m.stages.denoise.Run(ctx, operator.DenoiseInputs{File: file, RawPath: rawPath}, nil, m.Reporter.StageSink(file))
	if err != nil {
		return err
	}
	cleanedPath := denoiseOut.(operator.DenoiseOutputs).CleanedPath

	m.Registry.Update(key, "split", "splitting audio", 0)
	splitOut, err := m.stages.split.Run(ctx, operator.SplitInputs{File: file, CleanedPath: cleanedPath}, nil, m.Reporter.StageSink(file))
	if err != nil {
		return err
	}
	splits := splitOut.(operator.SplitOutputs).Splits
	m.Reporter.SetTotal(progress.LevelSplit, len(splits), file)

	var allSplits []operator.SplitSegments
	for _, split := range splits {
		splitID := split.ID()
		splitSettings := m.Project.EffectiveSettings(overrides, file, splitID)
		segments, err := m.runSplit(ctx, key, store, splitID, split, splitSettings, policy)
		if err != nil {
			return err
		}
		allSplits = append(allSplits, operator.SplitSegments{SplitID: splitID, Segments: segments})
		m.Reporter.Advance(progress.LevelSplit)
	}

	if policy.Meta {
		m.Registry.Update(key, "metadata", "writing metadata", 0.9)
		if _, err := m.stages.metadata.Run(ctx, operator.MetadataInputs{File: file, Splits: allSplits}, nil, m.Reporter.StageSink(file)); err != nil {
			return err
		}
	}

	if policy.Copy {
		if err := m.copyGoodClips(ctx, store, allSplits); err != nil {
			return err
		}
	}

	if policy.Archive {
		m.Registry.Update(key, "archive", "packaging archive", 0.95)
		if _, err := m.stages.archive.Run(logging.WithStage(ctx, "archive"), operator.ArchiveInputs{
			ProjectDir: m.Project.Dir,
			OutputPath: store.ArchivePath(),
		}, nil, m.Reporter.StageSink(file)); err != nil {
			return err
		}
	}

	if policy.Clean {
		_ = os.Remove(cleanedPath)
	}

	m.Registry.Update(key, "done", "file complete", 1.0)
	return nil
}

// runSplit executes one split's stage chain in topological order, honoring
// the skip/segment/override policy flags, and returns its final segments.
func (m *Manager) runSplit(ctx context.Context, key jobstatus.Key, store *artifact.Store, splitID string, split audio.Split, settings project.Settings, policy Policy) ([]audio.Segment, error) {
	order, err := topoSort(splitStageGraph())
	if err != nil {
		return nil, err
	}

	audioPath := store.SplitAudioPath(splitID)
	sink := m.Reporter.StageSink(splitID)
	ctx = logging.WithSplitID(ctx, splitID)

	var (
		silences   audio.SilenceMap
		tokens     audio.TokenStream
		diarTrack  audio.DiarizationTrack
		embeddings map[string][]float64
		segments   []audio.Segment
	)

	forceFrom6 := policy.Override || policy.Segment

	for _, stage := range order {
		switch stage {
		case "silence":
			m.Registry.Update(key, "silence:"+splitID, "detecting silence", 0.1)
			if policy.Override {
				_ = os.Remove(store.SilencesPath(splitID))
			}
			out, err := m.stages.silence.Run(ctx, operator.SilenceInputs{
				SplitID: splitID, AudioPath: audioPath,
				ThresholdDB: settings.SilenceThresholdDB, MinSilenceMS: settings.MinSilenceLengthMS,
			}, nil, sink)
			if err != nil {
				return nil, err
			}
			silences = out.(operator.SilenceOutputs).Map

		case "transcribe":
			m.Registry.Update(key, "transcribe:"+splitID, "transcribing", 0.3)
			if policy.Override {
				_ = os.Remove(store.TranscriptionPath(splitID))
			}
			out, err := m.stages.transcribe.Run(ctx, operator.TranscribeInputs{
				SplitID: splitID, AudioPath: audioPath, Language: settings.Language,
			}, nil, sink)
			if err != nil {
				return nil, err
			}
			tokens = out.(operator.TranscribeOutputs).Tokens

		case "diarize":
			m.Registry.Update(key, "diarize:"+splitID, "diarizing", 0.5)
			if policy.Override {
				_ = os.Remove(store.DiarizationPath(splitID, settings.DiarizationBackend))
				_ = os.Remove(store.SpeakerEmbeddingsPath(splitID, settings.DiarizationBackend))
			}
			out, err := m.stages.diarize.Run(ctx, operator.DiarizeInputs{
				SplitID: splitID, AudioPath: audioPath,
				Backend: settings.DiarizationBackend, MaxSpeakers: settings.MaxSpeakers,
			}, nil, sink)
			if err != nil {
				return nil, err
			}
			diarOut := out.(operator.DiarizeOutputs)
			diarTrack = diarOut.Track
			embeddings = diarOut.Embeddings

		case "segment":
			m.Registry.Update(key, "segment:"+splitID, "fusing segments", 0.7)
			if forceFrom6 {
				_ = os.Remove(store.SegmentsPath(splitID))
				_ = os.Remove(store.SegmentsRawPath(splitID))
			}
			out, err := m.stages.segment.Run(logging.WithStage(ctx, "segment"), operator.SegmentInputs{
				SplitID:         splitID,
				Tokens:          tokens,
				Diarization:     diarTrack,
				Silences:        silences,
				LabelEmbeddings: embeddings,
				Assigner:        m.SpeakerDB,
				TokensPath:      store.TranscriptionPath(splitID),
				DiarizationPath: store.DiarizationPath(splitID, settings.DiarizationBackend),
				SilencesPath:    store.SilencesPath(splitID),
				Settings: fusion.Settings{
					SilencePadMS:       settings.SilencePadMS,
					MinSilenceLengthMS: settings.MinSilenceLengthMS,
					BuildSubsegments:   settings.BuildSubsegments,
					JoinSubsegments:    settings.JoinSubsegments,
					Language:           settings.Language,
				},
			}, nil, sink)
			if err != nil {
				return nil, err
			}
			segments = out.(operator.SegmentOutputs).Segments

		case "validate":
			if policy.Skip || !policy.Validate {
				continue
			}
			m.Registry.Update(key, "validate:"+splitID, "validating", 0.85)
			clipPath := func(segIdx int) string {
				seg := findSegment(segments, segIdx)
				out := fmt.Sprintf("%s/%03d.wav", store.SpeakerClipDir(splitID, seg.Main.SpeakerID), segIdx)
				_, _ = m.stages.clip.Run(ctx, operator.ClipInputs{
					SplitID: splitID, AudioPath: audioPath,
					StartMS: seg.Main.StartMS, EndMS: seg.Main.EndMS, OutPath: out,
				}, nil, operator.NoopSink{})
				return out
			}
			out, err := m.stages.validate.Run(logging.WithStage(ctx, "validate"), operator.ValidateInputs{
				SplitID:  splitID,
				Segments: segments,
				Settings: validationSettings(settings),
				ClipPath: clipPath,
			}, nil, sink)
			if err != nil {
				return nil, err
			}
			segments = out.(operator.ValidateOutputs).Segments

		case "align":
			if policy.Skip || !policy.Validate {
				continue
			}
			m.Registry.Update(key, "align:"+splitID, "aligning phonemes", 0.95)
			if _, err := m.stages.align.Run(ctx, operator.AlignInputs{
				SplitID: splitID, SegmentsPath: store.SegmentsPath(splitID),
				AudioPath: audioPath, Language: settings.Language,
			}, nil, sink); err != nil {
				return nil, err
			}
		}
	}

	return segments, nil
}

func findSegment(segments []audio.Segment, segIdx int) audio.Segment {
	for _, s := range segments {
		if s.SegIdx == segIdx {
			return s
		}
	}
	return audio.Segment{}
}

func validationSettings(s project.Settings) validation.Settings {
	return validation.Settings{
		ThresholdPercent: s.ValidationThreshold,
		MaxWorkers:       s.MaxWorkers,
		CheckpointEvery:  50,
	}
}

// copyGoodClips materializes every good segment's clip under
// audio/speaker_<nn>/, per the `copy` policy flag.
func (m *Manager) copyGoodClips(ctx context.Context, store *artifact.Store, splits []operator.SplitSegments) error {
	for _, split := range splits {
		audioPath := store.SplitAudioPath(split.SplitID)
		for _, seg := range split.Segments {
			if seg.Status != audio.StatusGood {
				continue
			}
			src := fmt.Sprintf("%s/%03d.wav", store.SpeakerClipDir(split.SplitID, seg.Main.SpeakerID), seg.SegIdx)
			if !artifact.Exists(src) {
				out, err := m.stages.clip.Run(ctx, operator.ClipInputs{
					SplitID: split.SplitID, AudioPath: audioPath,
					StartMS: seg.Main.StartMS, EndMS: seg.Main.EndMS, OutPath: src,
				}, nil, operator.NoopSink{})
				if err != nil {
					return err
				}
				src = out.(operator.ClipOutputs).ClipPath
			}
			dstDir := store.CuratedSpeakerDir(seg.Main.SpeakerID)
			if err := os.MkdirAll(dstDir, 0o755); err != nil {
				return err
			}
			dst := fmt.Sprintf("%s/%s_%03d.wav", dstDir, split.SplitID, seg.SegIdx)
			if err := fileutil.CopyFileVerified(src, dst); err != nil {
				return err
			}
		}
	}
	return nil
}
