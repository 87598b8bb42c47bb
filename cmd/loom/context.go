package main

import (
	"log/slog"
	"path/filepath"

	"loom/internal/config"
	"loom/internal/logging"
)

// appContext resolves and caches the daemon-level config and logger shared
// by every subcommand, the way the teacher's cmd/spindle commandContext
// resolves the config/socket flags once per invocation.
type appContext struct {
	configFlag   *string
	logLevelFlag *string
	logFormat    *string

	cfg    *config.Config
	logger *slog.Logger
}

func newAppContext(configFlag, logLevelFlag, logFormat *string) *appContext {
	return &appContext{configFlag: configFlag, logLevelFlag: logLevelFlag, logFormat: logFormat}
}

func (a *appContext) ensureConfig() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, _, _, err := config.Load(*a.configFlag)
	if err != nil {
		return nil, err
	}
	if level := trimmedOrEmpty(a.logLevelFlag); level != "" {
		cfg.LogLevel = level
	}
	if format := trimmedOrEmpty(a.logFormat); format != "" {
		cfg.LogFormat = format
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

func (a *appContext) ensureLogger() (*slog.Logger, error) {
	if a.logger != nil {
		return a.logger, nil
	}
	cfg, err := a.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.logger = logger
	return logger, nil
}

// projectDir resolves a project name (or absolute/relative path) to the
// directory orchestrator.Manager/project.Project operate on.
func (a *appContext) projectDir(name string) (string, error) {
	cfg, err := a.ensureConfig()
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(name) {
		return filepath.Clean(name), nil
	}
	return filepath.Join(cfg.ProjectsDir, name), nil
}

func trimmedOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
