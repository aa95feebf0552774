// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/nullspace-chat/core/lib/clock"
	"github.com/nullspace-chat/core/lib/sqlitepool"
)

// Store is the client's single source of truth, backed by one SQLite
// database file per identity. All mutation goes through Store methods,
// each wrapped in its own transaction; readers see committed state
// only. After a mutating call returns successfully, the caller's
// change has already been signalled on the returned [Notifier].
type Store struct {
	pool     *sqlitepool.Pool
	clock    clock.Clock
	logger   *slog.Logger
	notifier *Notifier
}

// Config holds the parameters for opening a store.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist.
	Path string

	// PoolSize is the number of pooled connections. Defaults to 4.
	PoolSize int

	// Clock provides the current time for created_at timestamps.
	// Required.
	Clock clock.Clock

	// Logger receives operational messages. If nil, a no-op logger is
	// used.
	Logger *slog.Logger
}

// Open opens (creating if necessary) the store's database file and
// ensures its schema exists.
func Open(cfg Config) (*Store, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("store: Clock is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:      cfg.Path,
		PoolSize:  poolSize,
		Logger:    logger,
		OnConnect: createSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	return &Store{
		pool:     pool,
		clock:    cfg.Clock,
		logger:   logger,
		notifier: NewNotifier(),
	}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Notifier returns the store's change-notification watch cell. Every
// mutating method calls Notify on it after its transaction commits.
func (s *Store) Notifier() *Notifier {
	return s.notifier
}

// createSchema runs once per pooled connection, creating every table
// this package owns if it does not already exist. Mirrors the
// teacher's sqlitepool.Config.OnConnect hook used elsewhere for the
// same purpose.
func createSchema(conn *sqlite.Conn) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS client_identity (
			id                     INTEGER PRIMARY KEY CHECK (id = 1),
			username               TEXT NOT NULL,
			server_name            TEXT NOT NULL,
			device_signing_seed    BLOB NOT NULL,
			cert_chain             BLOB NOT NULL,
			medium_secret_current  BLOB NOT NULL,
			medium_secret_previous BLOB
		);

		CREATE TABLE IF NOT EXISTS convos (
			id           TEXT PRIMARY KEY,
			kind         INTEGER NOT NULL,
			counterparty TEXT NOT NULL,
			created_at   INTEGER NOT NULL,
			UNIQUE (kind, counterparty)
		);

		CREATE TABLE IF NOT EXISTS convo_messages (
			id              TEXT PRIMARY KEY,
			convo_id        TEXT NOT NULL REFERENCES convos(id),
			sender_username TEXT NOT NULL,
			mime            TEXT NOT NULL,
			body            BLOB NOT NULL,
			send_error      TEXT,
			received_at     INTEGER,
			UNIQUE (convo_id, sender_username, received_at)
		);
		CREATE INDEX IF NOT EXISTS idx_convo_messages_convo
			ON convo_messages(convo_id, received_at);

		CREATE TABLE IF NOT EXISTS groups (
			group_id           TEXT PRIMARY KEY,
			descriptor         BLOB NOT NULL,
			server_name        TEXT NOT NULL,
			group_token        BLOB NOT NULL,
			group_key_current  BLOB NOT NULL,
			group_key_previous BLOB,
			roster_version     INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS group_members (
			group_id TEXT NOT NULL REFERENCES groups(group_id),
			username TEXT NOT NULL,
			status   INTEGER NOT NULL,
			is_admin INTEGER NOT NULL,
			PRIMARY KEY (group_id, username)
		);

		CREATE TABLE IF NOT EXISTS mailbox_cursors (
			server_name     TEXT NOT NULL,
			mailbox_id      TEXT NOT NULL,
			after_timestamp INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (server_name, mailbox_id)
		);
	`
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("store: creating schema: %w", err)
	}
	return nil
}
