package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"loom/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a daemon config seeded with a unique temp directory per
// test, with fast heartbeat/worker defaults so tests don't wait on the
// production timing. Any provided options are applied afterward.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.ProjectsDir = filepath.Join(base, "projects")
	cfgVal.LogDir = filepath.Join(base, "logs")
	cfgVal.LogFormat = "console"
	cfgVal.LogLevel = "debug"
	cfgVal.FileWorkers = 1
	cfgVal.MaxWorkers = 1
	cfgVal.HeartbeatInterval = 1
	cfgVal.HeartbeatTimeout = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure config directories: %v", err)
	}

	return builder.cfg
}

// WithHuggingFaceToken sets the Hugging Face token on the test config,
// overriding whatever HUGGING_FACE_HUB_TOKEN/HF_TOKEN normalize() picked up
// from the test process's environment.
func WithHuggingFaceToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.HuggingFaceToken = token
	}
}

// WithWorkers overrides the file/split worker counts on the test config.
func WithWorkers(fileWorkers, maxWorkers int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.FileWorkers = fileWorkers
		b.cfg.MaxWorkers = maxWorkers
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends their directory to PATH, restoring it on test cleanup. If names
// is empty, every loom operator binary named in config.Config is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{
				"loom-denoise",
				"loom-silence",
				"loom-split",
				"loom-transcribe",
				"loom-diarize",
				"loom-align",
				"loom-archive",
				"loom-clip",
			}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})

		b.cfg.DenoiseBin = "loom-denoise"
		b.cfg.SilenceBin = "loom-silence"
		b.cfg.SplitBin = "loom-split"
		b.cfg.TranscribeBin = "loom-transcribe"
		b.cfg.DiarizeBin = "loom-diarize"
		b.cfg.AlignBin = "loom-align"
		b.cfg.ArchiveBin = "loom-archive"
		b.cfg.ClipBin = "loom-clip"
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.ProjectsDir)
}
