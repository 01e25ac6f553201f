package store

// schema holds the DDL for all verification tables. The uniqueness
// constraints back the idempotence contracts: one completion per
// (subject, method), one non-terminal attempt per (subject, method),
// one confirmation per (attempt, slot).
const schema = `
CREATE TABLE IF NOT EXISTS method_completions (
    subject_id               TEXT        NOT NULL,
    method                   TEXT        NOT NULL,
    completed_at             TIMESTAMPTZ NOT NULL,
    count                    INT         NOT NULL,
    points_awarded           INT         NOT NULL,
    expires_at               TIMESTAMPTZ,
    metadata                 JSONB       NOT NULL DEFAULT '{}',
    source_verification_id   TEXT,
    PRIMARY KEY (subject_id, method)
);

CREATE TABLE IF NOT EXISTS verification_attempts (
    attempt_id  TEXT        PRIMARY KEY,
    subject_id  TEXT        NOT NULL,
    method      TEXT        NOT NULL,
    state       TEXT        NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL,
    deadline    TIMESTAMPTZ NOT NULL,
    saga_step   INT         NOT NULL DEFAULT 0,
    data        JSONB       NOT NULL DEFAULT '{}'
);

CREATE UNIQUE INDEX IF NOT EXISTS verification_attempts_active
    ON verification_attempts (subject_id, method)
    WHERE state NOT IN ('completed', 'rejected', 'expired', 'revoked');

CREATE TABLE IF NOT EXISTS qr_tokens (
    token        TEXT        PRIMARY KEY,
    attempt_id   TEXT        NOT NULL,
    slot         INT         NOT NULL CHECK (slot IN (1, 2)),
    issued_at    TIMESTAMPTZ NOT NULL,
    expires_at   TIMESTAMPTZ NOT NULL,
    consumed_by  TEXT,
    consumed_at  TIMESTAMPTZ,
    invalidated  BOOLEAN     NOT NULL DEFAULT FALSE,
    UNIQUE (attempt_id, slot)
);

CREATE TABLE IF NOT EXISTS verifier_confirmations (
    attempt_id   TEXT        NOT NULL,
    slot         INT         NOT NULL,
    verifier_id  TEXT        NOT NULL,
    confirmed_at TIMESTAMPTZ NOT NULL,
    location     TEXT,
    device_fp    TEXT,
    revoked      BOOLEAN     NOT NULL DEFAULT FALSE,
    PRIMARY KEY (attempt_id, slot)
);

CREATE TABLE IF NOT EXISTS verifier_profiles (
    principal_id             TEXT        PRIMARY KEY,
    authorized               BOOLEAN     NOT NULL DEFAULT FALSE,
    auto_qualified           BOOLEAN     NOT NULL DEFAULT FALSE,
    credentials              TEXT[]      NOT NULL DEFAULT '{}',
    attested_count           INT         NOT NULL DEFAULT 0,
    rejection_count          INT         NOT NULL DEFAULT 0,
    rating                   REAL        NOT NULL DEFAULT 0,
    revoked                  BOOLEAN     NOT NULL DEFAULT FALSE,
    revoked_reason           TEXT,
    last_credential_check_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS audit_events (
    event_id                 TEXT        PRIMARY KEY,
    subject_id               TEXT        NOT NULL,
    occurred_at              TIMESTAMPTZ NOT NULL,
    kind                     TEXT        NOT NULL,
    method                   TEXT,
    attempt_id               TEXT,
    actor_id                 TEXT,
    data                     JSONB       NOT NULL DEFAULT '{}',
    orchestrator_instance_id TEXT
);

CREATE INDEX IF NOT EXISTS audit_events_subject
    ON audit_events (subject_id, occurred_at);
`
