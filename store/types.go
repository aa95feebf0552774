// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"time"

	"github.com/nullspace-chat/core/cert"
	"github.com/nullspace-chat/core/lib/ref"
	"github.com/nullspace-chat/core/lib/secret"
)

// ConvoKind distinguishes a direct conversation from a group
// conversation, per spec.md §3.
type ConvoKind uint8

const (
	ConvoDirect ConvoKind = iota
	ConvoGroup
)

// Conversation is a row of the conversations table: (id, kind,
// counterparty, created_at). Counterparty is a username's handle for
// a direct conversation, a group id's hex digest for a group
// conversation. Unique on (kind, counterparty).
type Conversation struct {
	ID           string
	Kind         ConvoKind
	Counterparty string
	CreatedAt    time.Time
}

// Message is a row of the convo_messages table. A pending outbound
// message has a zero ReceivedAt and an empty SendError; once the
// server confirms delivery, ReceivedAt is set. SendError set implies
// ReceivedAt is also set (spec.md §3's invariant): the message
// recorded a terminal send failure rather than a pending state.
type Message struct {
	ID             string
	ConvoID        string
	SenderUsername ref.Username
	MIME           string
	Body           []byte
	SendError      string
	ReceivedAt     time.Time
}

// Pending reports whether this message has not yet been confirmed
// delivered or failed.
func (m Message) Pending() bool { return m.ReceivedAt.IsZero() }

// MemberStatus is a group member's standing in the roster, per
// spec.md §3 and the roster engine's replay in package roster.
type MemberStatus uint8

const (
	MemberPending MemberStatus = iota
	MemberAccepted
	MemberBanned
)

// GroupMember is a row of the group_members table. It is derived from
// replaying the group's management log (package roster), never
// written directly except by that replay.
type GroupMember struct {
	GroupID  ref.GroupID
	Username ref.Username
	Status   MemberStatus
	IsAdmin  bool
}

// Group is a row of the groups table: (group_id, descriptor,
// server_name, group_token, group_key_current, group_key_previous,
// roster_version). Descriptor, the group token, and both group keys
// are stored as the lib/codec canonical encoding of their respective
// values — never JSON, since they feed the group id hash and AEAD
// construction.
type Group struct {
	GroupID          ref.GroupID
	Descriptor       []byte
	ServerName       ref.ServerName
	GroupToken       []byte
	GroupKeyCurrent  []byte
	GroupKeyPrevious []byte
	RosterVersion    uint64
}

// MailboxCursor is a row of the mailbox_cursors table: (server_name,
// mailbox_id) → after_timestamp. Monotonic per mailbox — see
// [Store.AdvanceMailboxCursor].
type MailboxCursor struct {
	ServerName     ref.ServerName
	MailboxID      ref.MailboxID
	AfterTimestamp int64
}

// Identity is the process's single, exclusive identity row: username,
// home server, device signing secret, certificate chain, and the
// current (and, during rotation overlap, previous) medium-term X25519
// secret. Secret key material is held in [secret.Buffer]s so it is
// never observed in a Go-heap byte slice once loaded; callers must
// Close the buffers when the identity is no longer needed.
type Identity struct {
	Username             ref.Username
	ServerName           ref.ServerName
	DeviceSigningSeed    *secret.Buffer
	CertChain            cert.Chain
	MediumSecretCurrent  *secret.Buffer
	MediumSecretPrevious *secret.Buffer // nil if no rotation has happened yet
}

// Close releases the secret buffers held by this identity. Safe to
// call with a nil MediumSecretPrevious.
func (id *Identity) Close() {
	if id.DeviceSigningSeed != nil {
		id.DeviceSigningSeed.Close()
	}
	if id.MediumSecretCurrent != nil {
		id.MediumSecretCurrent.Close()
	}
	if id.MediumSecretPrevious != nil {
		id.MediumSecretPrevious.Close()
	}
}
