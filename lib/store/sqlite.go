// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/gatekeeper/lib/document"
	"github.com/bureau-foundation/gatekeeper/lib/ref"
	"github.com/bureau-foundation/gatekeeper/lib/sqlitepool"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	partial_id TEXT NOT NULL,
	guild_id   TEXT NOT NULL,
	open       INTEGER NOT NULL,
	payload    BLOB NOT NULL,
	PRIMARY KEY (collection, partial_id)
);
CREATE INDEX IF NOT EXISTS documents_open_by_guild
	ON documents (collection, guild_id, open);
`

// SQLiteBackend stores records in a single SQLite table.
type SQLiteBackend struct {
	pool *sqlitepool.Pool
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteBackend, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, sqliteSchema, nil)
		},
	})
	if err != nil {
		return nil, err
	}
	return &SQLiteBackend{pool: pool}, nil
}

func (s *SQLiteBackend) Get(ctx context.Context, id document.ID) (Record, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Record{}, err
	}
	defer s.pool.Put(conn)
	return selectRecord(conn, id)
}

func (s *SQLiteBackend) Create(ctx context.Context, record Record) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer endTransaction(&err)

	if _, err := selectRecord(conn, record.ID); err == nil {
		return ErrExists
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return sqlitex.Execute(conn,
		`INSERT INTO documents (collection, partial_id, guild_id, open, payload) VALUES (?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: recordArgs(record)})
}

func (s *SQLiteBackend) Update(ctx context.Context, id document.ID, mutate func(Record) (Record, error)) (updated Record, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Record{}, err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return Record{}, fmt.Errorf("store: begin: %w", err)
	}
	defer endTransaction(&err)

	current, err := selectRecord(conn, id)
	if err != nil {
		return Record{}, err
	}
	updated, err = mutate(current)
	if err != nil {
		if errors.Is(err, ErrNoChange) {
			// endTransaction rolls back on any error; nothing was
			// written so that is harmless.
			return current, ErrNoChange
		}
		return Record{}, err
	}
	updated.ID = id
	err = sqlitex.Execute(conn,
		`UPDATE documents SET guild_id = ?, open = ?, payload = ? WHERE collection = ? AND partial_id = ?`,
		&sqlitex.ExecOptions{Args: []any{
			updated.Guild.String(), boolToInt(updated.Open), updated.Payload,
			string(id.Collection), id.PartialID,
		}})
	if err != nil {
		return Record{}, fmt.Errorf("store: updating %s: %w", id, err)
	}
	return updated, nil
}

func (s *SQLiteBackend) QueryOpen(ctx context.Context, kind document.Kind, guild ref.RoomID) ([]Record, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var records []Record
	err = sqlitex.Execute(conn,
		`SELECT collection, partial_id, guild_id, open, payload FROM documents
		 WHERE collection = ? AND guild_id = ? AND open = 1 ORDER BY partial_id`,
		&sqlitex.ExecOptions{
			Args: []any{string(kind), guild.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				record, err := scanRecord(stmt)
				if err != nil {
					return err
				}
				records = append(records, record)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: querying open %s in %s: %w", kind, guild, err)
	}
	return records, nil
}

// Close closes the connection pool.
func (s *SQLiteBackend) Close() error {
	return s.pool.Close()
}

func selectRecord(conn *sqlite.Conn, id document.ID) (Record, error) {
	var (
		record Record
		found  bool
		err    error
	)
	execErr := sqlitex.Execute(conn,
		`SELECT collection, partial_id, guild_id, open, payload FROM documents WHERE collection = ? AND partial_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{string(id.Collection), id.PartialID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				record, err = scanRecord(stmt)
				found = true
				return err
			},
		})
	if execErr != nil {
		return Record{}, fmt.Errorf("store: reading %s: %w", id, execErr)
	}
	if !found {
		return Record{}, ErrNotFound
	}
	return record, nil
}

func scanRecord(stmt *sqlite.Stmt) (Record, error) {
	guild, err := ref.ParseRoomID(stmt.ColumnText(2))
	if err != nil {
		return Record{}, fmt.Errorf("store: stored guild: %w", err)
	}
	payload := make([]byte, stmt.ColumnLen(4))
	stmt.ColumnBytes(4, payload)
	return Record{
		ID: document.ID{
			Collection: document.Kind(stmt.ColumnText(0)),
			PartialID:  stmt.ColumnText(1),
		},
		Guild:   guild,
		Open:    stmt.ColumnInt(3) != 0,
		Payload: payload,
	}, nil
}

func recordArgs(record Record) []any {
	return []any{
		string(record.ID.Collection), record.ID.PartialID,
		record.Guild.String(), boolToInt(record.Open), record.Payload,
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
