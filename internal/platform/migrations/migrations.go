// Package migrations applies the database schema. Statements are idempotent
// so Apply can run on every startup.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email TEXT NOT NULL,
		password TEXT NOT NULL,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		phone_number TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_key ON users (LOWER(email))`,

	`CREATE TABLE IF NOT EXISTS packages (
		package_id BIGSERIAL PRIMARY KEY,
		package_title TEXT NOT NULL UNIQUE,
		package_description TEXT NOT NULL,
		package_price DOUBLE PRECISION NOT NULL CHECK (package_price >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS adones (
		ad_id BIGSERIAL PRIMARY KEY,
		ad_title TEXT NOT NULL,
		ad_price DOUBLE PRECISION NOT NULL CHECK (ad_price >= 0),
		ad_description TEXT NOT NULL,
		ad_information TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS adones_title_lower_key ON adones (LOWER(ad_title))`,

	`CREATE TABLE IF NOT EXISTS requests (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		company_name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'completed', 'rejected')),
		user_id BIGINT NOT NULL REFERENCES users (id) ON DELETE RESTRICT,
		package_id BIGINT NOT NULL REFERENCES packages (package_id) ON DELETE RESTRICT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS requests_package_id_idx ON requests (package_id)`,

	`CREATE TABLE IF NOT EXISTS request_adones (
		request_id BIGINT NOT NULL REFERENCES requests (id) ON DELETE CASCADE,
		ad_id BIGINT NOT NULL REFERENCES adones (ad_id) ON DELETE RESTRICT,
		PRIMARY KEY (request_id, ad_id)
	)`,

	`CREATE INDEX IF NOT EXISTS request_adones_ad_id_idx ON request_adones (ad_id)`,
}

// Apply runs every schema statement in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
