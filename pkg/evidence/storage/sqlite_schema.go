package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the evidence database schema.
const Schema = `
-- Deception events
CREATE TABLE IF NOT EXISTS deception_events (
    id TEXT PRIMARY KEY,
    occurred_at INTEGER NOT NULL, -- Unix nanoseconds

    pid INTEGER NOT NULL,
    process TEXT NOT NULL,
    fd INTEGER NOT NULL,

    kind TEXT NOT NULL,
    honeywire TEXT NOT NULL,
    path TEXT,
    detail TEXT
);

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_deception_events_occurred_at ON deception_events(occurred_at);
CREATE INDEX IF NOT EXISTS idx_deception_events_kind ON deception_events(kind);
CREATE INDEX IF NOT EXISTS idx_deception_events_honeywire ON deception_events(honeywire);
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const eventColumns = "id, occurred_at, pid, process, fd, kind, honeywire, path, detail"
