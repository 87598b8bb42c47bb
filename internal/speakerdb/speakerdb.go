// Package speakerdb is the project-scoped global speaker identity store
// (C3, §4.3): cosine-similarity matching of per-label embeddings against a
// SQLite-backed catalog of previously-seen speakers, with manual
// merge/recheck operations. Storage and migration follow the same
// embed.FS-backed SQLite pattern used elsewhere in this codebase for
// lightweight, single-file project state.
package speakerdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite"

	"loom/internal/apperrors"
	"loom/internal/logging"
)

// DefaultThreshold returns a diarization backend's default cosine-similarity
// acceptance threshold per the external settings table.
func DefaultThreshold(backend string) float64 {
	switch backend {
	case "wespeaker":
		return 0.70
	case "3dspeaker":
		return 0.50
	default: // pyannote
		return 0.60
	}
}

// DB is the speaker identity store for a single project. mu is the
// process-wide lock per §4.3/§5: Assign's read-then-decide-then-write
// sequence and createSpeaker's count-then-insert both need to run as one
// atomic step whenever two splits are fused concurrently (§4.6 allows
// per-file/per-split parallelism), so every Assign holds mu for its
// duration. Merge and Recheck are invoked only from an explicit management
// command, never concurrently with pipeline assignment. Merge does not take
// mu itself; its caller holds it via Lock/Unlock. Recheck only reads the
// catalog and runs without mu.
type DB struct {
	db        *sql.DB
	threshold float64
	mu        sync.Mutex
	logger    *slog.Logger
}

// Lock acquires the process-wide speaker assignment lock. Callers that
// mutate the catalog outside of Assign (Merge, a future Recheck-apply) must
// hold it for the duration of their change.
func (d *DB) Lock() { d.mu.Lock() }

// Unlock releases the lock acquired by Lock.
func (d *DB) Unlock() { d.mu.Unlock() }

// SetLogger attaches a structured logger used for assignment decisions
// (match-vs-create) and catalog-mutation warnings. Safe to call with nil.
func (d *DB) SetLogger(logger *slog.Logger) {
	d.logger = logging.NewComponentLogger(logger, "speakerdb")
}

// Open initializes or connects to the speaker database at path and applies
// migrations.
func Open(path string, threshold float64) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfig, "speakerdb", "", "open sqlite db", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, apperrors.Wrap(apperrors.ErrConfig, "speakerdb", "", fmt.Sprintf("apply pragma %q", pragma), err)
		}
	}

	store := &DB{db: db, threshold: threshold}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// SpeakerCount returns the number of distinct speakers catalogued so far,
// for project-level reporting (`loom stats`).
func (d *DB) SpeakerCount(ctx context.Context) (int, error) {
	var count int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM speakers").Scan(&count); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrConsistency, "speakerdb", "", "count speakers", err)
	}
	return count, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}
