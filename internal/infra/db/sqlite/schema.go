package sqlite

// schemaSQL mirrors deploy/postgres/init.sql. Timestamps are fixed-width UTC
// text so that string comparison orders them.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS recipients (
    id                  TEXT PRIMARY KEY,
    name                TEXT NOT NULL,
    reference_image_url TEXT NOT NULL DEFAULT '',
    created_at          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS distribution_accounts (
    id           TEXT PRIMARY KEY,
    recipient_id TEXT NOT NULL REFERENCES recipients(id) ON DELETE CASCADE,
    platform     TEXT NOT NULL,
    handle       TEXT NOT NULL DEFAULT '',
    active       INTEGER NOT NULL DEFAULT 1,
    created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_accounts_recipient ON distribution_accounts (recipient_id);

CREATE TABLE IF NOT EXISTS batches (
    id               TEXT PRIMARY KEY,
    name             TEXT NOT NULL,
    status           TEXT NOT NULL CHECK (status IN ('pending','processing','completed','failed','partial')),
    total_jobs       INTEGER NOT NULL CHECK (total_jobs >= 0),
    completed_jobs   INTEGER NOT NULL DEFAULT 0,
    failed_jobs      INTEGER NOT NULL DEFAULT 0,
    template         TEXT NOT NULL,
    source_video_url TEXT NOT NULL DEFAULT '',
    is_master        INTEGER NOT NULL DEFAULT 0,
    master_config    TEXT,
    created_at       TEXT NOT NULL,
    updated_at       TEXT NOT NULL,
    CHECK (completed_jobs >= 0 AND failed_jobs >= 0 AND completed_jobs + failed_jobs <= total_jobs)
);

CREATE TABLE IF NOT EXISTS jobs (
    id                  TEXT PRIMARY KEY,
    source_url          TEXT NOT NULL,
    reference_image_url TEXT NOT NULL,
    status              TEXT NOT NULL CHECK (status IN ('queued','processing','completed','failed')),
    progress            TEXT NOT NULL DEFAULT '',
    output_url          TEXT NOT NULL DEFAULT '',
    provider_request_id TEXT,
    batch_id            TEXT REFERENCES batches(id) ON DELETE SET NULL,
    error_message       TEXT NOT NULL DEFAULT '',
    recovery_attempts   INTEGER NOT NULL DEFAULT 0,
    created_at          TEXT NOT NULL,
    updated_at          TEXT NOT NULL,
    completed_at        TEXT
);
CREATE INDEX IF NOT EXISTS idx_jobs_request ON jobs (provider_request_id);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs (status, updated_at);

CREATE TABLE IF NOT EXISTS pipeline_jobs (
    id                  TEXT PRIMARY KEY,
    name                TEXT NOT NULL,
    steps               TEXT NOT NULL,
    current_step        INTEGER NOT NULL DEFAULT 0,
    total_steps         INTEGER NOT NULL,
    status              TEXT NOT NULL CHECK (status IN ('queued','processing','completed','failed')),
    progress            TEXT NOT NULL DEFAULT '',
    step_results        TEXT NOT NULL DEFAULT '[]',
    source_video_url    TEXT NOT NULL DEFAULT '',
    provider_request_id TEXT,
    batch_id            TEXT REFERENCES batches(id) ON DELETE SET NULL,
    recipient_id        TEXT,
    regenerated_from    TEXT,
    publish             TEXT,
    publish_status      TEXT CHECK (publish_status IN ('posted','rejected')),
    output_url          TEXT NOT NULL DEFAULT '',
    error_message       TEXT NOT NULL DEFAULT '',
    recovery_attempts   INTEGER NOT NULL DEFAULT 0,
    created_at          TEXT NOT NULL,
    updated_at          TEXT NOT NULL,
    completed_at        TEXT,
    CHECK (current_step >= 0 AND current_step <= total_steps)
);
CREATE INDEX IF NOT EXISTS idx_pipeline_jobs_request ON pipeline_jobs (provider_request_id);
CREATE INDEX IF NOT EXISTS idx_pipeline_jobs_batch ON pipeline_jobs (batch_id);
CREATE INDEX IF NOT EXISTS idx_pipeline_jobs_status ON pipeline_jobs (status, updated_at);

CREATE TABLE IF NOT EXISTS posts (
    id            TEXT PRIMARY KEY,
    job_id        TEXT NOT NULL,
    account_id    TEXT NOT NULL,
    platform      TEXT NOT NULL,
    caption       TEXT NOT NULL DEFAULT '',
    media_url     TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL CHECK (status IN ('draft','pending','publishing','scheduled','published','failed','partial','cancelled')),
    external_id   TEXT NOT NULL DEFAULT '',
    external_url  TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    created_by    TEXT NOT NULL DEFAULT '',
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL,
    UNIQUE (job_id, account_id, platform)
);

CREATE TABLE IF NOT EXISTS idempotency_keys (
    key        TEXT PRIMARY KEY,
    scope      TEXT NOT NULL,
    status     TEXT NOT NULL CHECK (status IN ('processing','completed')),
    response   TEXT,
    created_at TEXT NOT NULL,
    expires_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS post_locks (
    key         TEXT PRIMARY KEY,
    token       TEXT NOT NULL,
    acquired_at TEXT NOT NULL,
    expires_at  TEXT NOT NULL
);
`
