package store

import (
	"database/sql"
	"fmt"
)

// Schema defines soft-delete on both tables, a partial-unique index on the
// live (key_lat, key_lng, radius_m) tuple, and the request_landmark join
// table that lets one landmark be shared across requests.
const Schema = `
CREATE TABLE IF NOT EXISTS request_record (
	id UUID PRIMARY KEY,
	key_lat NUMERIC(9,6) NOT NULL,
	key_lng NUMERIC(9,6) NOT NULL,
	radius_m INT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('PENDING','FOUND','EMPTY','ERROR')),
	error_message TEXT,
	requested_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted_at TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS request_record_live_key_idx
	ON request_record (key_lat, key_lng, radius_m)
	WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS landmark_record (
	id UUID PRIMARY KEY,
	osm_type TEXT NOT NULL CHECK (osm_type IN ('way','relation','node')),
	osm_id BIGINT NOT NULL,
	name TEXT,
	lat NUMERIC(9,6) NOT NULL,
	lng NUMERIC(9,6) NOT NULL,
	tags JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted_at TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS landmark_record_live_osm_idx
	ON landmark_record (osm_type, osm_id)
	WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS request_landmark (
	request_id UUID NOT NULL REFERENCES request_record(id),
	landmark_id UUID NOT NULL REFERENCES landmark_record(id),
	PRIMARY KEY (request_id, landmark_id)
);
`

// InitializeSchema creates the tables and indexes if they do not exist.
func InitializeSchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}
