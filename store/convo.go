// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/nullspace-chat/core/lib/ref"
)

// EnsureConversation returns the conversation identified by (kind,
// counterparty), creating it if it does not already exist. Idempotent:
// concurrent callers racing to create the same conversation all
// observe the same row.
func (s *Store) EnsureConversation(ctx context.Context, kind ConvoKind, counterparty string) (Conversation, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Conversation{}, fmt.Errorf("store: ensure conversation: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return Conversation{}, fmt.Errorf("store: ensure conversation: begin: %w", err)
	}
	defer endTransaction(&err)

	existing, found, err := lookupConversation(conn, kind, counterparty)
	if err != nil {
		return Conversation{}, err
	}
	if found {
		return existing, nil
	}

	convo := Conversation{
		ID:           uuid.NewString(),
		Kind:         kind,
		Counterparty: counterparty,
		CreatedAt:    s.clock.Now().UTC(),
	}
	err = sqlitex.Execute(conn,
		`INSERT INTO convos (id, kind, counterparty, created_at) VALUES (?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{convo.ID, int(convo.Kind), convo.Counterparty, convo.CreatedAt.Unix()},
		})
	if err != nil {
		return Conversation{}, fmt.Errorf("store: ensure conversation: insert: %w", err)
	}

	s.notifier.Notify()
	return convo, nil
}

func lookupConversation(conn *sqlite.Conn, kind ConvoKind, counterparty string) (Conversation, bool, error) {
	var convo Conversation
	var found bool
	err := sqlitex.Execute(conn,
		`SELECT id, kind, counterparty, created_at FROM convos WHERE kind = ? AND counterparty = ?`,
		&sqlitex.ExecOptions{
			Args: []any{int(kind), counterparty},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				convo = scanConversation(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return Conversation{}, false, fmt.Errorf("store: lookup conversation: %w", err)
	}
	return convo, found, nil
}

func scanConversation(stmt *sqlite.Stmt) Conversation {
	return Conversation{
		ID:           stmt.ColumnText(0),
		Kind:         ConvoKind(stmt.ColumnInt(1)),
		Counterparty: stmt.ColumnText(2),
		CreatedAt:    time.Unix(stmt.ColumnInt64(3), 0).UTC(),
	}
}

// LoadConversation returns a conversation by id. ok is false if no
// such conversation is known locally.
func (s *Store) LoadConversation(ctx context.Context, id string) (Conversation, bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Conversation{}, false, fmt.Errorf("store: load conversation: %w", err)
	}
	defer s.pool.Put(conn)

	var convo Conversation
	var found bool
	err = sqlitex.Execute(conn,
		`SELECT id, kind, counterparty, created_at FROM convos WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				convo = scanConversation(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return Conversation{}, false, fmt.Errorf("store: load conversation: %w", err)
	}
	return convo, found, nil
}

// ListConversations returns every conversation, most recently created
// first.
func (s *Store) ListConversations(ctx context.Context) ([]Conversation, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list conversations: %w", err)
	}
	defer s.pool.Put(conn)

	var convos []Conversation
	err = sqlitex.Execute(conn,
		`SELECT id, kind, counterparty, created_at FROM convos ORDER BY created_at DESC`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				convos = append(convos, scanConversation(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: list conversations: %w", err)
	}
	return convos, nil
}

// EnqueuePending inserts a new outbound message with no received_at,
// for the send loop to pick up. Returns the assigned message id.
func (s *Store) EnqueuePending(ctx context.Context, convoID string, sender ref.Username, mime string, body []byte) (string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return "", fmt.Errorf("store: enqueue pending: %w", err)
	}
	defer s.pool.Put(conn)

	id := uuid.NewString()
	err = sqlitex.Execute(conn,
		`INSERT INTO convo_messages (id, convo_id, sender_username, mime, body, send_error, received_at)
		 VALUES (?, ?, ?, ?, ?, NULL, NULL)`,
		&sqlitex.ExecOptions{
			Args: []any{id, convoID, sender.String(), mime, body},
		})
	if err != nil {
		return "", fmt.Errorf("store: enqueue pending: %w", err)
	}

	s.notifier.Notify()
	return id, nil
}

// PendingMessages returns every message with no received_at, in
// insertion order, for the send loop to drain. Rows are ordered by
// rowid, so messages come back in the order EnqueuePending was called.
func (s *Store) PendingMessages(ctx context.Context) ([]Message, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: pending messages: %w", err)
	}
	defer s.pool.Put(conn)

	var messages []Message
	err = sqlitex.Execute(conn,
		`SELECT id, convo_id, sender_username, mime, body, send_error, received_at
		   FROM convo_messages WHERE received_at IS NULL ORDER BY rowid`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				msg, err := scanMessage(stmt)
				if err != nil {
					return err
				}
				messages = append(messages, msg)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: pending messages: %w", err)
	}
	return messages, nil
}

// MarkSent records that a pending message was accepted by the server
// at receivedAt.
func (s *Store) MarkSent(ctx context.Context, messageID string, receivedAt time.Time) error {
	return s.markOutcome(ctx, messageID, "", receivedAt)
}

// MarkSendFailed records a terminal send failure for a pending
// message. Per spec.md §3, send_error non-null implies received_at
// non-null, so the failure is stamped with the current time.
func (s *Store) MarkSendFailed(ctx context.Context, messageID string, sendErr error) error {
	return s.markOutcome(ctx, messageID, sendErr.Error(), s.clock.Now().UTC())
}

func (s *Store) markOutcome(ctx context.Context, messageID, sendError string, receivedAt time.Time) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: mark message outcome: %w", err)
	}
	defer s.pool.Put(conn)

	var sendErrorArg any
	if sendError != "" {
		sendErrorArg = sendError
	}

	err = sqlitex.Execute(conn,
		`UPDATE convo_messages SET send_error = ?, received_at = ? WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{sendErrorArg, receivedAt.UnixNano(), messageID},
		})
	if err != nil {
		return fmt.Errorf("store: mark message outcome: %w", err)
	}

	s.notifier.Notify()
	return nil
}

// InsertReceived inserts a message received from a mailbox poll.
// Deduplicates on (convo_id, sender, received_at) at nanosecond
// resolution — matching the precision the mailbox cursor and
// MessageEvent.SentAt already use — so two distinct messages from the
// same sender arriving within the same wall-clock second remain
// distinct rows; only a byte-identical redelivery collides. This is
// spec.md §8's "send idempotence under duplicate delivery" property:
// if a row with the same key already exists, InsertReceived is a
// silent no-op and inserted reports false.
func (s *Store) InsertReceived(ctx context.Context, msg Message) (inserted bool, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("store: insert received: %w", err)
	}
	defer s.pool.Put(conn)

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	var sendErrorArg any
	if msg.SendError != "" {
		sendErrorArg = msg.SendError
	}

	err = sqlitex.Execute(conn,
		`INSERT OR IGNORE INTO convo_messages
			(id, convo_id, sender_username, mime, body, send_error, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{msg.ID, msg.ConvoID, msg.SenderUsername.String(), msg.MIME, msg.Body, sendErrorArg, msg.ReceivedAt.UnixNano()},
		})
	if err != nil {
		return false, fmt.Errorf("store: insert received: %w", err)
	}

	var changes int64
	err = sqlitex.Execute(conn, `SELECT changes()`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			changes = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("store: insert received: changes: %w", err)
	}

	inserted = changes > 0
	if inserted {
		s.notifier.Notify()
	}
	return inserted, nil
}

// LoadMessage returns a message by id. ok is false if no such message
// is known locally.
func (s *Store) LoadMessage(ctx context.Context, id string) (Message, bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Message{}, false, fmt.Errorf("store: load message: %w", err)
	}
	defer s.pool.Put(conn)

	var msg Message
	var found bool
	err = sqlitex.Execute(conn,
		`SELECT id, convo_id, sender_username, mime, body, send_error, received_at
		   FROM convo_messages WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				var scanErr error
				msg, scanErr = scanMessage(stmt)
				found = true
				return scanErr
			},
		})
	if err != nil {
		return Message{}, false, fmt.Errorf("store: load message: %w", err)
	}
	return msg, found, nil
}

// History returns messages for a conversation, most recent first,
// optionally bounded by before/after UnixNano timestamps (zero means
// unbounded) and capped at limit (0 means the default of 100).
func (s *Store) History(ctx context.Context, convoID string, before, after int64, limit int) ([]Message, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: history: %w", err)
	}
	defer s.pool.Put(conn)

	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, convo_id, sender_username, mime, body, send_error, received_at
	            FROM convo_messages WHERE convo_id = ? AND received_at IS NOT NULL`
	args := []any{convoID}
	if before > 0 {
		query += ` AND received_at < ?`
		args = append(args, before)
	}
	if after > 0 {
		query += ` AND received_at > ?`
		args = append(args, after)
	}
	query += ` ORDER BY received_at DESC LIMIT ?`
	args = append(args, limit)

	var messages []Message
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			msg, err := scanMessage(stmt)
			if err != nil {
				return err
			}
			messages = append(messages, msg)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: history: %w", err)
	}
	return messages, nil
}

func scanMessage(stmt *sqlite.Stmt) (Message, error) {
	sender, err := ref.ParseUsername(stmt.ColumnText(2))
	if err != nil {
		return Message{}, fmt.Errorf("store: message sender: %w", err)
	}

	body := make([]byte, stmt.ColumnLen(4))
	stmt.ColumnBytes(4, body)

	msg := Message{
		ID:             stmt.ColumnText(0),
		ConvoID:        stmt.ColumnText(1),
		SenderUsername: sender,
		MIME:           stmt.ColumnText(3),
		Body:           body,
	}
	if !stmt.ColumnIsNull(5) {
		msg.SendError = stmt.ColumnText(5)
	}
	if !stmt.ColumnIsNull(6) {
		msg.ReceivedAt = time.Unix(0, stmt.ColumnInt64(6)).UTC()
	}
	return msg, nil
}
