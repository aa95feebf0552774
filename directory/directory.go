// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"errors"

	"github.com/nullspace-chat/core/lib/ncrypto"
	"github.com/nullspace-chat/core/lib/ref"
)

// ErrUserNotFound is returned by ResolveUser when username has no
// directory entry — the signal registration uses to tell a free
// username from one that already has an account.
var ErrUserNotFound = errors.New("directory: user not found")

// UserRecord is the directory's answer to resolving a username: which
// server hosts their mailboxes, and the hash anchoring their device
// certificate chain.
type UserRecord struct {
	ServerName ref.ServerName
	RootHash   [ncrypto.DigestSize]byte
}

// ServerRecord is the directory's answer to resolving a server name:
// its reachable URLs and its signing public key.
type ServerRecord struct {
	URLs     []string
	ServerPK ncrypto.VerifyingKey
}

// Directory is the abstract collaborator the core uses to resolve
// identities. Every method call may perform network I/O; callers pass
// a context to bound that I/O and must be prepared for it to return a
// context error.
//
// Implementations must verify every response against a client-cached
// signed trust anchor (an inclusion proof) before returning it —
// returning an answer the anchor does not cover is a contract
// violation even if the underlying transport succeeded.
type Directory interface {
	// ResolveUser looks up which server hosts username's mailboxes and
	// the root hash anchoring their certificate chain. Returns
	// ErrUserNotFound if username has no directory entry.
	ResolveUser(ctx context.Context, username ref.Username) (UserRecord, error)

	// ResolveServer looks up a server's reachable URLs and signing key.
	ResolveServer(ctx context.Context, name ref.ServerName) (ServerRecord, error)

	// RegisterUser registers a new username as hosted by serverName,
	// anchored at rootHash. Used only during account registration.
	RegisterUser(ctx context.Context, username ref.Username, serverName ref.ServerName, rootHash [ncrypto.DigestSize]byte) error

	// AddOwner grants an additional device root the right to act as an
	// owner of username's identity, for multi-device enrollment. Used
	// only during registration/device-bundle import.
	AddOwner(ctx context.Context, username ref.Username, ownerRootHash [ncrypto.DigestSize]byte) error

	// SetUserDescriptor publishes opaque profile metadata (display
	// name, avatar reference) under username. Used only during
	// registration; later updates go through the same call.
	SetUserDescriptor(ctx context.Context, username ref.Username, descriptor []byte) error
}
