// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"encoding/hex"
	"fmt"
)

// hashSize is the output length of BLAKE3 as used throughout the
// core: 32 bytes, the conventional digest size for content hashes,
// group identifiers, and mailbox identifiers.
const hashSize = 32

// Hash32 is a 32-byte digest. GroupID, MailboxID, and RootHash are all
// Hash32 under the hood — distinct named types so the compiler catches
// a group ID passed where a mailbox ID was expected, even though the
// wire representation is identical.
type Hash32 [hashSize]byte

// ParseHash32 decodes a hex-encoded 32-byte digest.
func ParseHash32(hexString string) (Hash32, error) {
	raw, err := hex.DecodeString(hexString)
	if err != nil {
		return Hash32{}, fmt.Errorf("invalid hash %q: %w", hexString, err)
	}
	if len(raw) != hashSize {
		return Hash32{}, fmt.Errorf("invalid hash %q: %d bytes, want %d", hexString, len(raw), hashSize)
	}
	var h Hash32
	copy(h[:], raw)
	return h, nil
}

// String returns the lowercase hex encoding of the digest.
func (h Hash32) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether every byte of the digest is zero — the
// uninitialized value, never a real hash output (whose collision
// probability is negligible).
func (h Hash32) IsZero() bool { return h == Hash32{} }

// Bytes returns the digest as a byte slice.
func (h Hash32) Bytes() []byte { return h[:] }

// GroupID identifies a group: BLAKE3(encode(descriptor)) per spec §3.
type GroupID Hash32

// ParseGroupID decodes a hex-encoded group id.
func ParseGroupID(hexString string) (GroupID, error) {
	h, err := ParseHash32(hexString)
	return GroupID(h), err
}

func (g GroupID) String() string   { return Hash32(g).String() }
func (g GroupID) IsZero() bool     { return Hash32(g).IsZero() }
func (g GroupID) Bytes() []byte    { return Hash32(g).Bytes() }
func (g GroupID) Equal(o GroupID) bool { return g == o }

func (g GroupID) MarshalText() ([]byte, error) {
	if g.IsZero() {
		return nil, fmt.Errorf("cannot marshal zero-value GroupID")
	}
	return []byte(g.String()), nil
}

func (g *GroupID) UnmarshalText(data []byte) error {
	parsed, err := ParseGroupID(string(data))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// MailboxID identifies an append-only queue on a server, derived from
// a keyed BLAKE3 hash (spec §4.6) for group mailboxes, or assigned by
// convention for a user's own DM mailbox.
type MailboxID Hash32

// ParseMailboxID decodes a hex-encoded mailbox id.
func ParseMailboxID(hexString string) (MailboxID, error) {
	h, err := ParseHash32(hexString)
	return MailboxID(h), err
}

func (m MailboxID) String() string    { return Hash32(m).String() }
func (m MailboxID) IsZero() bool      { return Hash32(m).IsZero() }
func (m MailboxID) Bytes() []byte     { return Hash32(m).Bytes() }
func (m MailboxID) Equal(o MailboxID) bool { return m == o }

// RootHash is BLAKE3(encode(pk)) for a user's root device public key —
// the anchor the directory publishes and certificate-chain
// verification walks up to (spec §4.2).
type RootHash Hash32

func (r RootHash) String() string  { return Hash32(r).String() }
func (r RootHash) IsZero() bool    { return Hash32(r).IsZero() }
func (r RootHash) Equal(o RootHash) bool { return r == o }
