package testsupport

import (
	"path/filepath"
	"testing"

	"loom/internal/config"
	"loom/internal/project"
)

// MustInitProject creates a new project under cfg.ProjectsDir and fails the
// test on error.
func MustInitProject(t testing.TB, cfg *config.Config, name string) *project.Project {
	t.Helper()

	dir := filepath.Join(cfg.ProjectsDir, name)
	proj, err := project.Init(dir)
	if err != nil {
		t.Fatalf("project.Init: %v", err)
	}
	return proj
}

// MustAddRawFile writes size bytes of placeholder audio content under the
// project's raw/ directory and returns the file's basename, as accepted by
// artifact.Store.RawPath.
func MustAddRawFile(t testing.TB, proj *project.Project, name string, size int64) string {
	t.Helper()

	WriteFile(t, proj.Store.RawPath(name), size)
	return name
}
