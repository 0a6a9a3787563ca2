package postgres

// Schema is the base schema for the fragments table. Every statement is
// idempotent (IF NOT EXISTS) so applying it on startup is safe.
const Schema = `
CREATE TABLE IF NOT EXISTS fragments (
	id TEXT PRIMARY KEY,
	customer_id TEXT NOT NULL,
	channel TEXT NOT NULL,
	direction TEXT NOT NULL,
	ts TIMESTAMPTZ NOT NULL,
	content TEXT NOT NULL,
	intent TEXT NOT NULL DEFAULT '',
	sentiment TEXT NOT NULL DEFAULT '',
	urgency TEXT NOT NULL DEFAULT '',
	tags JSONB,
	embedding_json JSONB
);

CREATE INDEX IF NOT EXISTS idx_fragments_customer_ts ON fragments (customer_id, ts DESC);
CREATE INDEX IF NOT EXISTS idx_fragments_ts ON fragments (ts);
`

// MigrationPgvector adds the native vector column used for nearest-neighbor
// search. Applied only when the pgvector extension is present. The column is
// untyped (no fixed dimension) because the embedding function is a black box;
// queries fall back to a sequential scan, which is acceptable at per-customer
// fragment volumes.
const MigrationPgvector = `
ALTER TABLE fragments ADD COLUMN IF NOT EXISTS embedding vector;
`
