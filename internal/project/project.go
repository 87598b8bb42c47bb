package project

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"loom/internal/apperrors"
	"loom/internal/artifact"
)

// Project owns a project directory's paths, its persisted settings, and
// the lock preventing two orchestrator runs against it at once.
type Project struct {
	Dir      string
	Settings Settings
	Store    *artifact.Store

	lock *flock.Flock
}

func lockPath(dir string) string {
	return filepath.Join(dir, ".loom.lock")
}

// Init creates a new project directory with default settings.
func Init(dir string) (*Project, error) {
	store := artifact.New(dir)
	if err := store.EnsureProjectLayout(); err != nil {
		return nil, err
	}
	p := &Project{
		Dir:      dir,
		Settings: DefaultSettings(),
		Store:    store,
		lock:     flock.New(lockPath(dir)),
	}
	if err := p.Save(); err != nil {
		return nil, err
	}
	return p, nil
}

// Load reads an existing project's settings.json.
func Load(dir string) (*Project, error) {
	store := artifact.New(dir)
	var settings Settings
	if err := artifact.ReadJSON(store.SettingsPath(), &settings); err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Wrap(apperrors.ErrConfig, "project", "", "project not initialized: "+dir, err)
		}
		return nil, err
	}
	return &Project{
		Dir:      dir,
		Settings: settings,
		Store:    store,
		lock:     flock.New(lockPath(dir)),
	}, nil
}

// Save persists the project's current settings.
func (p *Project) Save() error {
	return artifact.WriteJSON(p.Store.SettingsPath(), p.Settings)
}

// TryLock attempts to acquire exclusive access to the project directory,
// matching spec.md §5's already_processing rejection: a second orchestrator
// run against the same project must fail fast rather than corrupt state.
func (p *Project) TryLock() (bool, error) {
	ok, err := p.lock.TryLock()
	if err != nil {
		return false, apperrors.Wrap(apperrors.ErrConfig, "project", "", "acquire project lock", err)
	}
	return ok, nil
}

// Unlock releases the project lock. Safe to call even if TryLock was never
// called or failed.
func (p *Project) Unlock() error {
	if p.lock == nil {
		return nil
	}
	return p.lock.Unlock()
}

// OverridesPath is where per-file/per-split overrides are persisted,
// alongside settings.json but kept separate so the common case (no
// overrides) never touches it.
func (p *Project) OverridesPath() string {
	return filepath.Join(p.Dir, "overrides.json")
}

// Overrides is the full set of per-file and per-split overrides for a
// project, loaded on demand.
type Overrides struct {
	Files  map[string]Override `json:"files"`
	Splits map[string]Override `json:"splits"`
}

// LoadOverrides reads the project's overrides file, returning an empty set
// if none has been saved yet.
func (p *Project) LoadOverrides() (Overrides, error) {
	var overrides Overrides
	if err := artifact.ReadJSON(p.OverridesPath(), &overrides); err != nil {
		if os.IsNotExist(err) {
			return Overrides{Files: map[string]Override{}, Splits: map[string]Override{}}, nil
		}
		return Overrides{}, err
	}
	if overrides.Files == nil {
		overrides.Files = map[string]Override{}
	}
	if overrides.Splits == nil {
		overrides.Splits = map[string]Override{}
	}
	return overrides, nil
}

// EffectiveSettings resolves a file or split's settings: split override
// takes precedence over file override, which takes precedence over the
// project default.
func (p *Project) EffectiveSettings(overrides Overrides, file, splitID string) Settings {
	resolved := p.Settings
	if fileOverride, ok := overrides.Files[file]; ok {
		resolved = Resolve(resolved, &fileOverride)
	}
	if splitID != "" {
		if splitOverride, ok := overrides.Splits[splitID]; ok {
			resolved = Resolve(resolved, &splitOverride)
		}
	}
	return resolved
}
