// Package config loads and validates loom's daemon-level configuration: the
// settings that apply across every project (external tool locations, log
// behavior, service credentials), as distinct from per-project settings,
// which live in internal/project and travel with settings.json.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config encapsulates the process-wide configuration for loom.
type Config struct {
	ProjectsDir      string `toml:"projects_dir"`
	LogDir           string `toml:"log_dir"`
	LogFormat        string `toml:"log_format"`
	LogLevel         string `toml:"log_level"`
	LogRetentionDays int    `toml:"log_retention_days"`

	DenoiseBin    string `toml:"denoise_bin"`
	SilenceBin    string `toml:"silence_bin"`
	SplitBin      string `toml:"split_bin"`
	TranscribeBin string `toml:"transcribe_bin"`
	DiarizeBin    string `toml:"diarize_bin"`
	AlignBin      string `toml:"align_bin"`
	ArchiveBin    string `toml:"archive_bin"`
	ClipBin       string `toml:"clip_bin"`

	HuggingFaceToken string `toml:"hugging_face_token"`

	FileWorkers       int `toml:"file_workers"`
	MaxWorkers        int `toml:"max_workers"`
	HeartbeatInterval int `toml:"heartbeat_interval"`
	HeartbeatTimeout  int `toml:"heartbeat_timeout"`
}

const (
	defaultProjectsDir       = "~/.local/share/loom/projects"
	defaultLogDir            = "~/.local/share/loom/logs"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultDenoiseBin        = "loom-denoise"
	defaultSilenceBin        = "loom-silence"
	defaultSplitBin          = "loom-split"
	defaultTranscribeBin     = "loom-transcribe"
	defaultDiarizeBin        = "loom-diarize"
	defaultAlignBin          = "loom-align"
	defaultArchiveBin        = "loom-archive"
	defaultClipBin           = "loom-clip"
	defaultFileWorkers       = 1
	defaultMaxWorkers        = 4
	defaultHeartbeatInterval = 15
	defaultHeartbeatTimeout  = 120
	defaultLogRetentionDays  = 14
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		ProjectsDir:       defaultProjectsDir,
		LogDir:            defaultLogDir,
		LogFormat:         defaultLogFormat,
		LogLevel:          defaultLogLevel,
		LogRetentionDays:  defaultLogRetentionDays,
		DenoiseBin:        defaultDenoiseBin,
		SilenceBin:        defaultSilenceBin,
		SplitBin:          defaultSplitBin,
		TranscribeBin:     defaultTranscribeBin,
		DiarizeBin:        defaultDiarizeBin,
		AlignBin:          defaultAlignBin,
		ArchiveBin:        defaultArchiveBin,
		ClipBin:           defaultClipBin,
		FileWorkers:       defaultFileWorkers,
		MaxWorkers:        defaultMaxWorkers,
		HeartbeatInterval: defaultHeartbeatInterval,
		HeartbeatTimeout:  defaultHeartbeatTimeout,
	}
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/loom/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/loom/config.toml")
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("loom.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon-level config owns.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.ProjectsDir, c.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := `# loom configuration
# ===================

# Root directory holding every project. Each project gets a subdirectory
# named after it: <projects_dir>/<project>/.
projects_dir = "~/.local/share/loom/projects"
log_dir = "~/.local/share/loom/logs"
log_format = "console"                  # "console" or "json"
log_level = "info"                      # debug, info, warn, error

# External black-box operator binaries. Each is invoked as a subprocess and
# must emit newline-delimited JSON progress events on stdout.
denoise_bin = "loom-denoise"
silence_bin = "loom-silence"
split_bin = "loom-split"
transcribe_bin = "loom-transcribe"
diarize_bin = "loom-diarize"
align_bin = "loom-align"
archive_bin = "loom-archive"
clip_bin = "loom-clip"

# Optional Hugging Face token for diarization backends that require it.
# Falls back to the HUGGING_FACE_HUB_TOKEN / HF_TOKEN environment variables.
hugging_face_token = ""

# Concurrency defaults (overridable per project).
file_workers = 1
max_workers = 4
heartbeat_interval = 15
heartbeat_timeout = 120
`
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
