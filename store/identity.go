// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/nullspace-chat/core/cert"
	"github.com/nullspace-chat/core/lib/codec"
	"github.com/nullspace-chat/core/lib/ref"
	"github.com/nullspace-chat/core/lib/secret"
)

// SaveIdentity writes the process's identity row, replacing any
// previous row (there is exactly one, per spec.md §3's "the process
// holds exactly one identity"). Signals the notifier on success.
func (s *Store) SaveIdentity(ctx context.Context, id Identity) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: save identity: %w", err)
	}
	defer s.pool.Put(conn)

	chainBytes := codec.Marshal(id.CertChain)

	var mediumPrevious any
	if id.MediumSecretPrevious != nil {
		mediumPrevious = id.MediumSecretPrevious.Bytes()
	}

	err = sqlitex.Execute(conn, `
		INSERT INTO client_identity
			(id, username, server_name, device_signing_seed, cert_chain,
			 medium_secret_current, medium_secret_previous)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username               = excluded.username,
			server_name            = excluded.server_name,
			device_signing_seed    = excluded.device_signing_seed,
			cert_chain             = excluded.cert_chain,
			medium_secret_current  = excluded.medium_secret_current,
			medium_secret_previous = excluded.medium_secret_previous
	`, &sqlitex.ExecOptions{
		Args: []any{
			id.Username.String(),
			id.ServerName.String(),
			id.DeviceSigningSeed.Bytes(),
			chainBytes,
			id.MediumSecretCurrent.Bytes(),
			mediumPrevious,
		},
	})
	if err != nil {
		return fmt.Errorf("store: save identity: %w", err)
	}

	s.notifier.Notify()
	return nil
}

// LoadIdentity returns the process's identity row. ok is false if no
// identity has been created yet (registration has not completed).
// The returned Identity's secret buffers must be Closed by the caller.
func (s *Store) LoadIdentity(ctx context.Context) (id Identity, ok bool, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Identity{}, false, fmt.Errorf("store: load identity: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`SELECT username, server_name, device_signing_seed, cert_chain,
		        medium_secret_current, medium_secret_previous
		   FROM client_identity WHERE id = 1`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				var scanErr error
				id, scanErr = scanIdentity(stmt)
				ok = true
				return scanErr
			},
		})
	if err != nil {
		return Identity{}, false, fmt.Errorf("store: load identity: %w", err)
	}
	return id, ok, nil
}

func scanIdentity(stmt *sqlite.Stmt) (Identity, error) {
	username, err := ref.ParseUsername(stmt.ColumnText(0))
	if err != nil {
		return Identity{}, fmt.Errorf("store: identity username: %w", err)
	}
	serverName, err := ref.ParseServerName(stmt.ColumnText(1))
	if err != nil {
		return Identity{}, fmt.Errorf("store: identity server name: %w", err)
	}

	signingSeed := make([]byte, stmt.ColumnLen(2))
	stmt.ColumnBytes(2, signingSeed)
	signingSecret, err := secret.NewFromBytes(signingSeed)
	if err != nil {
		return Identity{}, fmt.Errorf("store: identity device signing seed: %w", err)
	}

	chainBytes := make([]byte, stmt.ColumnLen(3))
	stmt.ColumnBytes(3, chainBytes)
	var chain cert.Chain
	if err := codec.Unmarshal(chainBytes, &chain); err != nil {
		signingSecret.Close()
		return Identity{}, fmt.Errorf("store: identity cert chain: %w", err)
	}

	mediumCurrentRaw := make([]byte, stmt.ColumnLen(4))
	stmt.ColumnBytes(4, mediumCurrentRaw)
	mediumCurrent, err := secret.NewFromBytes(mediumCurrentRaw)
	if err != nil {
		signingSecret.Close()
		return Identity{}, fmt.Errorf("store: identity medium secret: %w", err)
	}

	var mediumPrevious *secret.Buffer
	if !stmt.ColumnIsNull(5) {
		mediumPreviousRaw := make([]byte, stmt.ColumnLen(5))
		stmt.ColumnBytes(5, mediumPreviousRaw)
		mediumPrevious, err = secret.NewFromBytes(mediumPreviousRaw)
		if err != nil {
			signingSecret.Close()
			mediumCurrent.Close()
			return Identity{}, fmt.Errorf("store: identity previous medium secret: %w", err)
		}
	}

	return Identity{
		Username:             username,
		ServerName:           serverName,
		DeviceSigningSeed:    signingSecret,
		CertChain:            chain,
		MediumSecretCurrent:  mediumCurrent,
		MediumSecretPrevious: mediumPrevious,
	}, nil
}
