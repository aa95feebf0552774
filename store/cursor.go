// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/nullspace-chat/core/lib/ref"
)

// MailboxCursor returns the current after_timestamp for a mailbox,
// defaulting to 0 (the beginning) if no cursor row exists yet.
func (s *Store) MailboxCursor(ctx context.Context, serverName ref.ServerName, mailboxID ref.MailboxID) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: mailbox cursor: %w", err)
	}
	defer s.pool.Put(conn)

	var after int64
	err = sqlitex.Execute(conn,
		`SELECT after_timestamp FROM mailbox_cursors WHERE server_name = ? AND mailbox_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{serverName.String(), mailboxID.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				after = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return 0, fmt.Errorf("store: mailbox cursor: %w", err)
	}
	return after, nil
}

// ListMailboxCursors returns every known mailbox cursor, for
// diagnostics — reporting per-mailbox receive lag without exposing any
// mailbox's decrypted contents.
func (s *Store) ListMailboxCursors(ctx context.Context) ([]MailboxCursor, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list mailbox cursors: %w", err)
	}
	defer s.pool.Put(conn)

	var cursors []MailboxCursor
	err = sqlitex.Execute(conn,
		`SELECT server_name, mailbox_id, after_timestamp FROM mailbox_cursors`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				serverName, err := ref.ParseServerName(stmt.ColumnText(0))
				if err != nil {
					return fmt.Errorf("store: mailbox cursor server name: %w", err)
				}
				mailboxID, err := ref.ParseMailboxID(stmt.ColumnText(1))
				if err != nil {
					return fmt.Errorf("store: mailbox cursor mailbox id: %w", err)
				}
				cursors = append(cursors, MailboxCursor{
					ServerName:     serverName,
					MailboxID:      mailboxID,
					AfterTimestamp: stmt.ColumnInt64(2),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: list mailbox cursors: %w", err)
	}
	return cursors, nil
}

// AdvanceMailboxCursor sets a mailbox's after_timestamp to newAfter,
// only if newAfter is greater than the stored value — cursors are
// monotonic per spec.md §8 and must never regress across restarts,
// including when a stale poll result races a newer one.
func (s *Store) AdvanceMailboxCursor(ctx context.Context, serverName ref.ServerName, mailboxID ref.MailboxID, newAfter int64) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: advance mailbox cursor: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO mailbox_cursors (server_name, mailbox_id, after_timestamp)
		VALUES (?, ?, ?)
		ON CONFLICT (server_name, mailbox_id) DO UPDATE SET
			after_timestamp = MAX(after_timestamp, excluded.after_timestamp)
	`, &sqlitex.ExecOptions{
		Args: []any{serverName.String(), mailboxID.String(), newAfter},
	})
	if err != nil {
		return fmt.Errorf("store: advance mailbox cursor: %w", err)
	}
	return nil
}
