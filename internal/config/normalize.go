package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if c.ProjectsDir, err = expandPath(c.ProjectsDir); err != nil {
		return fmt.Errorf("projects_dir: %w", err)
	}
	if c.LogDir, err = expandPath(c.LogDir); err != nil {
		return fmt.Errorf("log_dir: %w", err)
	}

	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	switch c.LogFormat {
	case "":
		c.LogFormat = defaultLogFormat
	case "console", "json":
	default:
		return fmt.Errorf("log_format: unsupported value %q", c.LogFormat)
	}

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}

	if strings.TrimSpace(c.DenoiseBin) == "" {
		c.DenoiseBin = defaultDenoiseBin
	}
	if strings.TrimSpace(c.SilenceBin) == "" {
		c.SilenceBin = defaultSilenceBin
	}
	if strings.TrimSpace(c.SplitBin) == "" {
		c.SplitBin = defaultSplitBin
	}
	if strings.TrimSpace(c.TranscribeBin) == "" {
		c.TranscribeBin = defaultTranscribeBin
	}
	if strings.TrimSpace(c.DiarizeBin) == "" {
		c.DiarizeBin = defaultDiarizeBin
	}
	if strings.TrimSpace(c.AlignBin) == "" {
		c.AlignBin = defaultAlignBin
	}
	if strings.TrimSpace(c.ArchiveBin) == "" {
		c.ArchiveBin = defaultArchiveBin
	}
	if strings.TrimSpace(c.ClipBin) == "" {
		c.ClipBin = defaultClipBin
	}

	c.HuggingFaceToken = strings.TrimSpace(c.HuggingFaceToken)
	if c.HuggingFaceToken == "" {
		if value, ok := os.LookupEnv("HUGGING_FACE_HUB_TOKEN"); ok {
			c.HuggingFaceToken = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("HF_TOKEN"); ok {
			c.HuggingFaceToken = strings.TrimSpace(value)
		}
	}

	if c.FileWorkers <= 0 {
		c.FileWorkers = defaultFileWorkers
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = defaultMaxWorkers
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	return nil
}
