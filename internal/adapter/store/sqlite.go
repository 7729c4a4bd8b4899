// Package store persists audit records in SQLite for later chain replay.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"opsledger/internal/domain"
)

// SQLiteRecordStore implements domain.RecordStore using SQLite. Each record
// is stored as its full wire JSON so verification replays exactly the bytes
// that were committed, never a lossy reconstruction.
type SQLiteRecordStore struct {
	db *sql.DB
}

// NewSQLiteRecordStore opens (or creates) a SQLite database at dbPath
// and runs the schema migration.
func NewSQLiteRecordStore(dbPath string) (*SQLiteRecordStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open record db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate record db: %w", err)
	}
	return &SQLiteRecordStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			engagement_id TEXT    NOT NULL,
			sequence      INTEGER NOT NULL,
			chain_hash    TEXT    NOT NULL,
			record        TEXT    NOT NULL,
			PRIMARY KEY (engagement_id, sequence)
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteRecordStore) Close() error {
	return s.db.Close()
}

// Append stores one emitted record. The (engagement, sequence) primary key
// makes sequence reuse a constraint violation rather than a silent overwrite.
func (s *SQLiteRecordStore) Append(ctx context.Context, rec domain.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return domain.NewDomainError("SQLiteRecordStore.Append", domain.ErrStore, err.Error())
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO records (engagement_id, sequence, chain_hash, record) VALUES (?, ?, ?, ?)",
		rec.EngagementID, rec.Sequence, rec.ChainHash, string(data),
	)
	if err != nil {
		return domain.NewDomainError("SQLiteRecordStore.Append", domain.ErrStore, err.Error())
	}
	return nil
}

// Chain returns the stored records of one engagement in sequence order as
// wire mappings, ready for chain verification.
func (s *SQLiteRecordStore) Chain(ctx context.Context, engagementID string) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT record FROM records WHERE engagement_id = ? ORDER BY sequence", engagementID,
	)
	if err != nil {
		return nil, domain.NewDomainError("SQLiteRecordStore.Chain", domain.ErrStore, err.Error())
	}
	defer rows.Close()

	var records []map[string]any
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, domain.NewDomainError("SQLiteRecordStore.Chain", domain.ErrStore, err.Error())
		}
		// UseNumber keeps numeric fields as their stored digit strings, so
		// re-encoding a reloaded record reproduces the hashed bytes exactly.
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			return nil, domain.NewDomainError("SQLiteRecordStore.Chain", domain.ErrStore, err.Error())
		}
		records = append(records, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewDomainError("SQLiteRecordStore.Chain", domain.ErrStore, err.Error())
	}
	return records, nil
}

// Engagements lists the engagement IDs that have stored records.
func (s *SQLiteRecordStore) Engagements(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT engagement_id FROM records ORDER BY engagement_id",
	)
	if err != nil {
		return nil, domain.NewDomainError("SQLiteRecordStore.Engagements", domain.ErrStore, err.Error())
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.NewDomainError("SQLiteRecordStore.Engagements", domain.ErrStore, err.Error())
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewDomainError("SQLiteRecordStore.Engagements", domain.ErrStore, err.Error())
	}
	return ids, nil
}
