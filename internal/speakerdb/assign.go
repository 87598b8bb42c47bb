package speakerdb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"

	"loom/internal/apperrors"
	"loom/internal/logging"
)

// embeddingRow is one stored embedding, with the global speaker id it
// currently belongs to.
type embeddingRow struct {
	SpeakerID int
	Vector    []float64
}

// Assign resolves an embedding to a global speaker id per §4.3: if the best
// cosine similarity against every stored embedding meets the configured
// threshold, the embedding is appended under that speaker and its id is
// returned; otherwise a new speaker is created (dense ids starting at 0)
// and the embedding becomes its first entry.
func (d *DB) Assign(embedding []float64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx := context.Background()
	rows, err := d.listEmbeddings(ctx)
	if err != nil {
		return 0, err
	}

	bestID := -1
	bestSim := -1.0
	for _, row := range rows {
		sim := cosineSimilarity(embedding, row.Vector)
		if sim > bestSim {
			bestSim = sim
			bestID = row.SpeakerID
		}
	}

	if bestID >= 0 && bestSim >= d.threshold {
		if err := d.appendEmbedding(ctx, bestID, embedding); err != nil {
			return 0, err
		}
		d.logDecision("matched", fmt.Sprintf("speaker %d, similarity %.3f >= threshold %.3f", bestID, bestSim, d.threshold))
		return bestID, nil
	}

	speakerID, err := d.createSpeaker(ctx)
	if err != nil {
		return 0, err
	}
	if err := d.appendEmbedding(ctx, speakerID, embedding); err != nil {
		return 0, err
	}
	d.logDecision("created", fmt.Sprintf("best similarity %.3f below threshold %.3f", bestSim, d.threshold))
	return speakerID, nil
}

func (d *DB) logDecision(result, reason string) {
	if d.logger == nil {
		return
	}
	d.logger.Debug("speaker assignment", logging.Args(logging.DecisionAttrs("speaker_assign", result, reason)...)...)
}

// Merge folds speaker "from" into speaker "to": every embedding belonging
// to "from" is reassigned to "to", and "from" is removed from the catalog.
// Merge never runs during pipeline execution, only via an explicit
// management command.
func (d *DB) Merge(ctx context.Context, from, to int) error {
	if _, err := d.db.ExecContext(ctx,
		"UPDATE speaker_embeddings SET speaker_id = ? WHERE speaker_id = ?", to, from); err != nil {
		return apperrors.Wrap(apperrors.ErrConsistency, "speakerdb", "", "reassign embeddings", err)
	}
	if _, err := d.db.ExecContext(ctx, "DELETE FROM speakers WHERE id = ?", from); err != nil {
		return apperrors.Wrap(apperrors.ErrConsistency, "speakerdb", "", "delete merged speaker", err)
	}
	d.logDecision("merged", fmt.Sprintf("speaker %d folded into speaker %d", from, to))
	return nil
}

// Reassignment is one proposed change from Recheck's plan: embedding
// currently owned by From would instead be assigned to To under the new
// threshold.
type Reassignment struct {
	EmbeddingID int
	From        int
	To          int
	Similarity  float64
}

// Recheck re-runs assignment for every stored embedding against the rest
// of the catalog using newThreshold, returning a plan of proposed
// reassignments. It never mutates the database — per §4.3, a caller must
// confirm the plan before it is applied (via Merge, or a future Apply).
func (d *DB) Recheck(ctx context.Context, newThreshold float64) ([]Reassignment, error) {
	rows, err := d.listEmbeddingsWithID(ctx)
	if err != nil {
		return nil, err
	}

	var plan []Reassignment
	for i, row := range rows {
		bestID := -1
		bestSim := -1.0
		for j, other := range rows {
			if i == j {
				continue
			}
			sim := cosineSimilarity(row.vector, other.vector)
			if sim > bestSim {
				bestSim = sim
				bestID = other.speakerID
			}
		}
		if bestID >= 0 && bestSim >= newThreshold && bestID != row.speakerID {
			plan = append(plan, Reassignment{
				EmbeddingID: row.id,
				From:        row.speakerID,
				To:          bestID,
				Similarity:  bestSim,
			})
		}
	}
	return plan, nil
}

type embeddingWithID struct {
	id        int
	speakerID int
	vector    []float64
}

func (d *DB) listEmbeddingsWithID(ctx context.Context) ([]embeddingWithID, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT id, speaker_id, embedding_json FROM speaker_embeddings")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConsistency, "speakerdb", "", "list embeddings", err)
	}
	defer rows.Close()

	var out []embeddingWithID
	for rows.Next() {
		var e embeddingWithID
		var embeddingJSON string
		if err := rows.Scan(&e.id, &e.speakerID, &embeddingJSON); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrConsistency, "speakerdb", "", "scan embedding row", err)
		}
		if err := json.Unmarshal([]byte(embeddingJSON), &e.vector); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrConsistency, "speakerdb", "", "unmarshal embedding", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (d *DB) listEmbeddings(ctx context.Context) ([]embeddingRow, error) {
	withID, err := d.listEmbeddingsWithID(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]embeddingRow, len(withID))
	for i, e := range withID {
		out[i] = embeddingRow{SpeakerID: e.speakerID, Vector: e.vector}
	}
	return out, nil
}

// createSpeaker inserts a new speaker row with the next dense id (starting
// at 0), serialized inside a transaction so concurrent assigns can't race
// on the same id.
func (d *DB) createSpeaker(ctx context.Context) (int, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrConsistency, "speakerdb", "", "begin create-speaker tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM speakers").Scan(&count); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrConsistency, "speakerdb", "", "count speakers", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO speakers (id, label, created_at) VALUES (?, ?, ?)", count, "", nowRFC3339()); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrConsistency, "speakerdb", "", "insert speaker", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrConsistency, "speakerdb", "", "commit create-speaker tx", err)
	}
	return count, nil
}

func (d *DB) appendEmbedding(ctx context.Context, speakerID int, embedding []float64) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrConsistency, "speakerdb", "", "marshal embedding", err)
	}
	if _, err := d.db.ExecContext(ctx,
		"INSERT INTO speaker_embeddings (speaker_id, embedding_json, created_at) VALUES (?, ?, ?)",
		speakerID, string(data), nowRFC3339()); err != nil {
		return apperrors.Wrap(apperrors.ErrConsistency, "speakerdb", "", "append embedding", err)
	}
	return nil
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return -1
	}
	dot := floats.Dot(a, b)
	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA == 0 || normB == 0 {
		return -1
	}
	return dot / (normA * normB)
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
