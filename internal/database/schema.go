package database

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS beneficiaries (
    id TEXT PRIMARY KEY,
    inn TEXT NOT NULL,
    name TEXT NOT NULL,
    kpp TEXT NOT NULL,
    ogrn TEXT,
    is_branch BOOLEAN,
    added_to_settlement BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS charity_projects (
    id TEXT PRIMARY KEY,
    beneficiary_id TEXT NOT NULL REFERENCES beneficiaries(id),
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    cap BIGINT NOT NULL DEFAULT 0,
    collected BIGINT NOT NULL DEFAULT 0 CHECK (collected >= 0),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (beneficiary_id, name)
);

CREATE TABLE IF NOT EXISTS pending_donations (
    qr_code_id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL REFERENCES charity_projects(id),
    amount BIGINT NOT NULL CHECK (amount > 0),
    state TEXT NOT NULL DEFAULT 'awaiting_payment',
    payment_id TEXT NOT NULL DEFAULT '',
    reason TEXT NOT NULL DEFAULT '',
    credited BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS beneficiary_documents (
    id TEXT PRIMARY KEY,
    beneficiary_id TEXT NOT NULL REFERENCES beneficiaries(id),
    type TEXT NOT NULL,
    number TEXT NOT NULL,
    date TEXT NOT NULL,
    content_type TEXT NOT NULL,
    uploaded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_charity_projects_beneficiary ON charity_projects(beneficiary_id);
CREATE INDEX IF NOT EXISTS idx_pending_donations_state ON pending_donations(state);
CREATE INDEX IF NOT EXISTS idx_beneficiary_documents_beneficiary ON beneficiary_documents(beneficiary_id);
`

func InitSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}
