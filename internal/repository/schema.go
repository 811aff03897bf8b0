package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is idempotent and applied on startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		slug       TEXT NOT NULL UNIQUE,
		settings   JSONB NOT NULL DEFAULT '{}',
		is_active  BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		tenant_id     TEXT NOT NULL REFERENCES tenants(id),
		email         TEXT NOT NULL UNIQUE,
		display_name  TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL,
		is_active     BOOLEAN NOT NULL DEFAULT TRUE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS equipment (
		id             TEXT PRIMARY KEY,
		tenant_id      TEXT NOT NULL REFERENCES tenants(id),
		category       TEXT NOT NULL DEFAULT '',
		name           TEXT NOT NULL,
		total_quantity INTEGER NOT NULL CHECK (total_quantity > 0),
		condition      TEXT NOT NULL,
		is_active      BOOLEAN NOT NULL DEFAULT TRUE,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_equipment_tenant ON equipment (tenant_id, category)`,
	`CREATE TABLE IF NOT EXISTS equipment_dependencies (
		equipment_id  TEXT NOT NULL REFERENCES equipment(id),
		depends_on_id TEXT NOT NULL REFERENCES equipment(id),
		tenant_id     TEXT NOT NULL,
		kind          TEXT NOT NULL,
		quantity      INTEGER NOT NULL CHECK (quantity > 0),
		PRIMARY KEY (equipment_id, depends_on_id),
		CHECK (equipment_id <> depends_on_id)
	)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id            TEXT PRIMARY KEY,
		tenant_id     TEXT NOT NULL REFERENCES tenants(id),
		user_id       TEXT NOT NULL,
		purpose       TEXT NOT NULL DEFAULT '',
		start_at      TIMESTAMPTZ NOT NULL,
		end_at        TIMESTAMPTZ NOT NULL,
		status        TEXT NOT NULL,
		version       BIGINT NOT NULL DEFAULT 1,
		approved_by   TEXT NOT NULL DEFAULT '',
		decision_note TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (end_at > start_at)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_window ON reservations (tenant_id, status, start_at, end_at)`,
	`CREATE TABLE IF NOT EXISTS reservation_items (
		reservation_id     TEXT NOT NULL REFERENCES reservations(id),
		equipment_id       TEXT NOT NULL REFERENCES equipment(id),
		quantity           INTEGER NOT NULL CHECK (quantity > 0),
		derived_from       TEXT NOT NULL DEFAULT '',
		checkout_condition TEXT NOT NULL DEFAULT '',
		checkin_condition  TEXT NOT NULL DEFAULT '',
		damage_delta       INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (reservation_id, equipment_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reservation_items_equipment ON reservation_items (equipment_id)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		sequence      BIGSERIAL PRIMARY KEY,
		tenant_id     TEXT NOT NULL,
		actor_id      TEXT NOT NULL,
		action        TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		resource_id   TEXT NOT NULL DEFAULT '',
		before        JSONB,
		after         JSONB,
		result        TEXT NOT NULL,
		error_code    TEXT NOT NULL DEFAULT '',
		request_id    TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_tenant ON audit_log (tenant_id, sequence)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_resource ON audit_log (tenant_id, resource_id)`,
}

// Migrate creates the tables the repositories use.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
