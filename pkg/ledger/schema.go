package ledger

// Timestamps are unix milliseconds so day-range queries stay integer comparisons.
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id             INTEGER PRIMARY KEY AUTOINCREMENT,
	file_name          TEXT    NOT NULL,
	status             TEXT    NOT NULL,
	started_at         INTEGER NOT NULL,
	ended_at           INTEGER,
	error_message      TEXT,
	last_processed_row INTEGER
);

CREATE TABLE IF NOT EXISTS emails (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        INTEGER NOT NULL REFERENCES runs(run_id),
	row_index     INTEGER NOT NULL,
	profile_url   TEXT    NOT NULL,
	subject       TEXT    NOT NULL DEFAULT '',
	email_text    TEXT    NOT NULL DEFAULT '',
	email_status  TEXT    NOT NULL,
	reason        TEXT    NOT NULL DEFAULT '',
	error_message TEXT,
	created_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_file_name ON runs(file_name);
CREATE INDEX IF NOT EXISTS idx_emails_run ON emails(run_id);
CREATE INDEX IF NOT EXISTS idx_emails_status_created ON emails(email_status, created_at);
`
