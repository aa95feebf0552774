// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package serverapi

import (
	"context"
	"time"

	"github.com/nullspace-chat/core/cert"
	"github.com/nullspace-chat/core/lib/ncrypto"
	"github.com/nullspace-chat/core/lib/ref"
)

// AuthToken is an opaque bearer token a server issues after verifying
// a device's certificate chain. The core presents it on subsequent
// calls that require proof of device identity (ACL edits, sends).
type AuthToken []byte

// SignedMediumPK is a medium X25519 public key together with the
// device signature over it, as published to and fetched from a
// server. The signature lets any recipient verify the key came from a
// device in the sender's certificate chain without trusting the
// server that relayed it.
type SignedMediumPK struct {
	PublicKey ncrypto.DHPublicKey
	Sender    ref.Username
	Chain     cert.Chain
	Signature []byte
	PublishedAt time.Time
}

// MailboxACL controls who may act on a mailbox once its id is known.
type MailboxACL struct {
	CanSend    bool
	CanRecv    bool
	CanEditACL bool
}

// MailboxEntry is one record returned by a mailbox poll.
type MailboxEntry struct {
	EntryID    string
	ReceivedAt time.Time
	Kind       string
	Body       []byte
	// SenderTokenHash is set when the server records which auth token
	// posted the entry; it is routing metadata only, never a substitute
	// for verifying the device signature inside Body.
	SenderTokenHash []byte
}

// Server is the abstract collaborator hosting mailboxes and device
// metadata for one user. Every method may perform network I/O bounded
// by ctx.
type Server interface {
	// DeviceAuth exchanges a certificate chain for a bearer token
	// scoped to the chain's leaf device.
	DeviceAuth(ctx context.Context, chain cert.Chain) (AuthToken, error)

	// PublishMediumPK publishes a signed medium public key under the
	// authenticated device's identity.
	PublishMediumPK(ctx context.Context, token AuthToken, signed SignedMediumPK) error

	// FetchMediumPKs returns every medium public key currently
	// published for username, so a sender can encrypt to whichever
	// keys are live.
	FetchMediumPKs(ctx context.Context, username ref.Username) ([]SignedMediumPK, error)

	// FetchCertChain returns username's current device certificate
	// chain, rooted at the identity the directory anchors.
	FetchCertChain(ctx context.Context, username ref.Username) (cert.Chain, error)

	// RegisterGroup registers groupID as a known mailbox pair on this
	// server, ahead of any ACL or send calls against it.
	RegisterGroup(ctx context.Context, groupID ref.GroupID) error

	// SetMailboxACL grants or revokes send/receive/edit-acl rights on
	// mailboxID to the holder of token.
	SetMailboxACL(ctx context.Context, mailboxID ref.MailboxID, token AuthToken, acl MailboxACL) error

	// MailboxSend appends one entry of the given kind and body to
	// mailboxID.
	MailboxSend(ctx context.Context, mailboxID ref.MailboxID, kind string, body []byte) error

	// MailboxPoll returns entries appended to mailboxID after
	// afterTimestamp, oldest first. Implementations may long-poll
	// internally; the core's adaptive backoff lives above this call,
	// in the receive worker, not inside it.
	MailboxPoll(ctx context.Context, mailboxID ref.MailboxID, afterTimestamp time.Time) ([]MailboxEntry, error)
}
