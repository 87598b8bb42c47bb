package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.ProjectsDir == "" {
		return errors.New("projects_dir must be set")
	}
	if c.LogDir == "" {
		return errors.New("log_dir must be set")
	}
	if err := ensurePositiveMap(map[string]int{
		"file_workers":       c.FileWorkers,
		"max_workers":        c.MaxWorkers,
		"heartbeat_interval": c.HeartbeatInterval,
		"heartbeat_timeout":  c.HeartbeatTimeout,
	}); err != nil {
		return err
	}
	if c.HeartbeatTimeout <= c.HeartbeatInterval {
		return errors.New("heartbeat_timeout must be greater than heartbeat_interval")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
