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

// SaveGroup inserts or updates a group's descriptor, server, token,
// and key material. Used both when a group is first created locally
// and after a key-rotation loop rotates group_key_current.
func (s *Store) SaveGroup(ctx context.Context, g Group) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: save group: %w", err)
	}
	defer s.pool.Put(conn)

	var previousKey any
	if len(g.GroupKeyPrevious) > 0 {
		previousKey = g.GroupKeyPrevious
	}

	err = sqlitex.Execute(conn, `
		INSERT INTO groups
			(group_id, descriptor, server_name, group_token,
			 group_key_current, group_key_previous, roster_version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (group_id) DO UPDATE SET
			descriptor         = excluded.descriptor,
			server_name        = excluded.server_name,
			group_token        = excluded.group_token,
			group_key_current  = excluded.group_key_current,
			group_key_previous = excluded.group_key_previous,
			roster_version     = excluded.roster_version
	`, &sqlitex.ExecOptions{
		Args: []any{
			g.GroupID.String(), g.Descriptor, g.ServerName.String(),
			g.GroupToken, g.GroupKeyCurrent, previousKey, int64(g.RosterVersion),
		},
	})
	if err != nil {
		return fmt.Errorf("store: save group: %w", err)
	}

	s.notifier.Notify()
	return nil
}

// LoadGroup returns a group by id. ok is false if no such group is
// known locally.
func (s *Store) LoadGroup(ctx context.Context, id ref.GroupID) (group Group, ok bool, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Group{}, false, fmt.Errorf("store: load group: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		SELECT group_id, descriptor, server_name, group_token,
		       group_key_current, group_key_previous, roster_version
		  FROM groups WHERE group_id = ?
	`, &sqlitex.ExecOptions{
		Args: []any{id.String()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			var scanErr error
			group, scanErr = scanGroup(stmt)
			ok = true
			return scanErr
		},
	})
	if err != nil {
		return Group{}, false, fmt.Errorf("store: load group: %w", err)
	}
	return group, ok, nil
}

// ListGroups returns every group known locally.
func (s *Store) ListGroups(ctx context.Context) ([]Group, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list groups: %w", err)
	}
	defer s.pool.Put(conn)

	var groups []Group
	err = sqlitex.Execute(conn, `
		SELECT group_id, descriptor, server_name, group_token,
		       group_key_current, group_key_previous, roster_version
		  FROM groups
	`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			g, err := scanGroup(stmt)
			if err != nil {
				return err
			}
			groups = append(groups, g)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: list groups: %w", err)
	}
	return groups, nil
}

func scanGroup(stmt *sqlite.Stmt) (Group, error) {
	id, err := ref.ParseGroupID(stmt.ColumnText(0))
	if err != nil {
		return Group{}, fmt.Errorf("store: group id: %w", err)
	}
	serverName, err := ref.ParseServerName(stmt.ColumnText(2))
	if err != nil {
		return Group{}, fmt.Errorf("store: group server name: %w", err)
	}

	descriptor := make([]byte, stmt.ColumnLen(1))
	stmt.ColumnBytes(1, descriptor)
	token := make([]byte, stmt.ColumnLen(3))
	stmt.ColumnBytes(3, token)
	keyCurrent := make([]byte, stmt.ColumnLen(4))
	stmt.ColumnBytes(4, keyCurrent)

	var keyPrevious []byte
	if !stmt.ColumnIsNull(5) {
		keyPrevious = make([]byte, stmt.ColumnLen(5))
		stmt.ColumnBytes(5, keyPrevious)
	}

	return Group{
		GroupID:          id,
		Descriptor:       descriptor,
		ServerName:       serverName,
		GroupToken:       token,
		GroupKeyCurrent:  keyCurrent,
		GroupKeyPrevious: keyPrevious,
		RosterVersion:    uint64(stmt.ColumnInt64(6)),
	}, nil
}

// ReplaceRoster overwrites a group's member rows with the given set,
// the output of roster.Replay after folding the management log. This
// is the only writer of group_members: membership is derived state,
// never mutated directly (spec.md §3).
func (s *Store) ReplaceRoster(ctx context.Context, groupID ref.GroupID, members []GroupMember) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: replace roster: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("store: replace roster: begin: %w", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn, `DELETE FROM group_members WHERE group_id = ?`, &sqlitex.ExecOptions{
		Args: []any{groupID.String()},
	})
	if err != nil {
		return fmt.Errorf("store: replace roster: clear: %w", err)
	}

	for _, m := range members {
		isAdmin := 0
		if m.IsAdmin {
			isAdmin = 1
		}
		err = sqlitex.Execute(conn,
			`INSERT INTO group_members (group_id, username, status, is_admin) VALUES (?, ?, ?, ?)`,
			&sqlitex.ExecOptions{
				Args: []any{groupID.String(), m.Username.String(), int(m.Status), isAdmin},
			})
		if err != nil {
			return fmt.Errorf("store: replace roster: insert member: %w", err)
		}
	}

	err = sqlitex.Execute(conn,
		`UPDATE groups SET roster_version = roster_version + 1 WHERE group_id = ?`,
		&sqlitex.ExecOptions{Args: []any{groupID.String()}})
	if err != nil {
		return fmt.Errorf("store: replace roster: bump version: %w", err)
	}

	s.notifier.Notify()
	return nil
}

// GroupMembers returns a group's current roster.
func (s *Store) GroupMembers(ctx context.Context, groupID ref.GroupID) ([]GroupMember, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: group members: %w", err)
	}
	defer s.pool.Put(conn)

	var members []GroupMember
	err = sqlitex.Execute(conn,
		`SELECT username, status, is_admin FROM group_members WHERE group_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{groupID.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				username, err := ref.ParseUsername(stmt.ColumnText(0))
				if err != nil {
					return fmt.Errorf("store: group member username: %w", err)
				}
				members = append(members, GroupMember{
					GroupID:  groupID,
					Username: username,
					Status:   MemberStatus(stmt.ColumnInt(1)),
					IsAdmin:  stmt.ColumnInt(2) != 0,
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: group members: %w", err)
	}
	return members, nil
}
