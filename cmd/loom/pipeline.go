package main

import (
	"fmt"
	"log/slog"

	"loom/internal/config"
	"loom/internal/jobstatus"
	"loom/internal/orchestrator"
	"loom/internal/progress"
	"loom/internal/project"
	"loom/internal/speakerdb"
)

// pipelineRun bundles the objects every process/run invocation constructs:
// a loaded project, its speaker database, and a wired Manager. Callers are
// responsible for closing db and the reporter.
type pipelineRun struct {
	Project  *project.Project
	Manager  *orchestrator.Manager
	DB       *speakerdb.DB
	Reporter *progress.Reporter
}

func openPipelineRun(cfg *config.Config, projDir string, logger *slog.Logger) (*pipelineRun, error) {
	proj, err := project.Load(projDir)
	if err != nil {
		return nil, err
	}

	threshold := proj.Settings.SpeakerSimilarityThreshold
	if threshold <= 0 {
		threshold = speakerdb.DefaultThreshold(proj.Settings.DiarizationBackend)
	}
	db, err := speakerdb.Open(proj.Store.SpeakerDBPath(), threshold)
	if err != nil {
		return nil, err
	}
	db.SetLogger(logger)

	bin := orchestrator.Binaries{
		Denoise:    cfg.DenoiseBin,
		Silence:    cfg.SilenceBin,
		Split:      cfg.SplitBin,
		Transcribe: cfg.TranscribeBin,
		Diarize:    cfg.DiarizeBin,
		Clip:       cfg.ClipBin,
		Validate:   cfg.TranscribeBin,
		Align:      cfg.AlignBin,
		Archive:    cfg.ArchiveBin,
	}

	registry := jobstatus.New()
	reporter := progress.New(stderrTarget())
	mgr := orchestrator.New(proj, bin, db, registry, reporter, logger)

	return &pipelineRun{Project: proj, Manager: mgr, DB: db, Reporter: reporter}, nil
}

func (p *pipelineRun) Close() {
	p.Reporter.Close()
	if err := p.DB.Close(); err != nil {
		fmt.Fprintln(errWriter(), "close speaker db:", err)
	}
	if err := p.Project.Unlock(); err != nil {
		fmt.Fprintln(errWriter(), "release project lock:", err)
	}
}
