// Package sqlite provides a CGO-free SQLite implementation of the semantic
// store. Embeddings are stored as JSON and similarity is computed in process,
// which keeps the backend dependency-light for embedded deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/relaydesk/switchboard/internal/store"
	"github.com/relaydesk/switchboard/pkg/types"
)

// Schema is the fragments table. All statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS fragments (
	id TEXT PRIMARY KEY,
	customer_id TEXT NOT NULL,
	channel TEXT NOT NULL,
	direction TEXT NOT NULL,
	ts TEXT NOT NULL,
	content TEXT NOT NULL,
	intent TEXT NOT NULL DEFAULT '',
	sentiment TEXT NOT NULL DEFAULT '',
	urgency TEXT NOT NULL DEFAULT '',
	tags TEXT,
	embedding TEXT
);

CREATE INDEX IF NOT EXISTS idx_fragments_customer_ts ON fragments (customer_id, ts DESC);
CREATE INDEX IF NOT EXISTS idx_fragments_ts ON fragments (ts);
`

// scanLimit bounds the rows pulled for the in-process similarity scan when no
// customer filter is given.
const scanLimit = 500

// Store implements store.SemanticStore using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) a SQLite-backed store at the given path.
// Use ":memory:" for an ephemeral database.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// Single writer; WAL lets readers proceed during writes.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		log.Printf("Warning: sqlite: failed to enable WAL mode: %v", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Put implements store.SemanticStore with upsert semantics.
func (s *Store) Put(ctx context.Context, f *types.ConversationFragment) error {
	if f == nil || f.ID == "" {
		return fmt.Errorf("sqlite: %w: fragment ID is required", store.ErrInvalidInput)
	}

	tags, err := json.Marshal(f.Metadata.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal tags: %w", err)
	}
	emb, err := json.Marshal(f.Embedding)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal embedding: %w", err)
	}

	const q = `
		INSERT INTO fragments (id, customer_id, channel, direction, ts, content, intent, sentiment, urgency, tags, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			customer_id = excluded.customer_id,
			tags = excluded.tags,
			embedding = excluded.embedding
	`
	_, err = s.db.ExecContext(ctx, q,
		f.ID, f.CustomerID, string(f.Channel), string(f.Direction),
		f.Timestamp.UTC().Format(time.RFC3339Nano),
		f.Text, f.Metadata.Intent, string(f.Metadata.Sentiment), string(f.Metadata.Urgency),
		string(tags), string(emb))
	if err != nil {
		return fmt.Errorf("sqlite: failed to insert fragment %s: %w", f.ID, err)
	}
	return nil
}

const fragmentColumns = `id, customer_id, channel, direction, ts, content, intent, sentiment, urgency, tags, embedding`

// GetByCustomer implements store.SemanticStore.
func (s *Store) GetByCustomer(ctx context.Context, customerID string, opts store.FetchOptions) ([]*types.ConversationFragment, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = store.DefaultFetchLimit
	}
	since := opts.Since
	if since.IsZero() {
		since = time.Unix(0, 0).UTC()
	}

	const q = `
		SELECT ` + fragmentColumns + `
		FROM fragments
		WHERE customer_id = ? AND ts >= ?
		ORDER BY ts DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, q, customerID, since.UTC().Format(time.RFC3339Nano), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: GetByCustomer %s: %w", customerID, err)
	}
	defer func() { _ = rows.Close() }()

	return scanFragments(rows)
}

// NearestNeighbors implements store.SemanticStore. Similarity is cosine,
// computed in process over the candidate rows.
func (s *Store) NearestNeighbors(ctx context.Context, embedding []float32, customerID string, k int, minSimilarity float64) ([]store.ScoredFragment, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("sqlite: %w: embedding is required", store.ErrInvalidInput)
	}
	if k <= 0 {
		k = 10
	}

	const q = `
		SELECT ` + fragmentColumns + `
		FROM fragments
		WHERE (? = '' OR customer_id = ?)
		ORDER BY ts DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, q, customerID, customerID, scanLimit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: NearestNeighbors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	frags, err := scanFragments(rows)
	if err != nil {
		return nil, err
	}

	var scored []store.ScoredFragment
	for _, f := range frags {
		if len(f.Embedding) == 0 {
			continue
		}
		sim := store.Cosine(embedding, f.Embedding)
		if sim < minSimilarity {
			continue
		}
		scored = append(scored, store.ScoredFragment{Fragment: f, Similarity: sim})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].Fragment.ID < scored[j].Fragment.ID
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// UpdateCustomerIdentity implements store.SemanticStore.
func (s *Store) UpdateCustomerIdentity(ctx context.Context, fragmentID, newCustomerID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE fragments SET customer_id = ? WHERE id = ?`, newCustomerID, fragmentID)
	if err != nil {
		return fmt.Errorf("sqlite: UpdateCustomerIdentity %s: %w", fragmentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: UpdateCustomerIdentity %s: %w", fragmentID, err)
	}
	if n == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM fragments WHERE id = ?)`, fragmentID).Scan(&exists); err != nil {
			return fmt.Errorf("sqlite: UpdateCustomerIdentity %s: %w", fragmentID, err)
		}
		if !exists {
			return fmt.Errorf("sqlite: %w: %s", store.ErrNotFound, fragmentID)
		}
	}
	return nil
}

// CountByCustomer implements store.SemanticStore.
func (s *Store) CountByCustomer(ctx context.Context, customerID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM fragments WHERE customer_id = ?`, customerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: CountByCustomer %s: %w", customerID, err)
	}
	return n, nil
}

// DeleteOlderThan implements store.SemanticStore.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM fragments WHERE ts < ?`, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("sqlite: DeleteOlderThan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: DeleteOlderThan: %w", err)
	}
	return int(n), nil
}

// Close implements store.SemanticStore.
func (s *Store) Close() error {
	return s.db.Close()
}

// scanFragments drains rows into fragments, skipping malformed rows
// (logged at warning level, never fatal).
func scanFragments(rows *sql.Rows) ([]*types.ConversationFragment, error) {
	var out []*types.ConversationFragment
	for rows.Next() {
		var (
			f       types.ConversationFragment
			channel string
			dir     string
			ts      string
			sent    string
			urg     string
			tags    sql.NullString
			emb     sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.CustomerID, &channel, &dir, &ts, &f.Text,
			&f.Metadata.Intent, &sent, &urg, &tags, &emb); err != nil {
			log.Printf("Warning: sqlite: skipping malformed fragment row: %v", err)
			continue
		}

		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			log.Printf("Warning: sqlite: skipping fragment %s with malformed timestamp %q: %v", f.ID, ts, err)
			continue
		}
		f.Timestamp = parsed.UTC()
		f.Channel = types.Channel(channel)
		f.Direction = types.Direction(dir)
		f.Metadata.Sentiment = types.Sentiment(sent)
		f.Metadata.Urgency = types.Urgency(urg)

		if tags.Valid && tags.String != "" {
			if err := json.Unmarshal([]byte(tags.String), &f.Metadata.Tags); err != nil {
				log.Printf("Warning: sqlite: skipping fragment %s with malformed tags: %v", f.ID, err)
				continue
			}
		}
		if emb.Valid && emb.String != "" {
			if err := json.Unmarshal([]byte(emb.String), &f.Embedding); err != nil {
				log.Printf("Warning: sqlite: skipping fragment %s with malformed embedding: %v", f.ID, err)
				continue
			}
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

var _ store.SemanticStore = (*Store)(nil)
