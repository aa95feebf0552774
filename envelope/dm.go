// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"fmt"

	"github.com/nullspace-chat/core/cert"
	"github.com/nullspace-chat/core/lib/ncrypto"
	"github.com/nullspace-chat/core/lib/ref"
)

// DirectMessageKind is the mailbox entry kind a packaged direct
// message is sent under (spec.md §4.5).
const DirectMessageKind = "v1.direct_message"

// PackageDirectMessage builds the wire bytes for one outbound direct
// message: wraps event as message content, device-signs it, and
// header-encrypts the result to every one of the recipient's current
// medium public keys.
func PackageDirectMessage(signingKey ncrypto.SigningKey, sender ref.Username, chain cert.Chain, recipientMPKs []ncrypto.DHPublicKey, event MessageEvent) ([]byte, error) {
	blob := packageMessageContent(event)
	signed := DeviceSign(signingKey, sender, chain, blob)
	envelope, err := HeaderEncrypt(recipientMPKs, signed)
	if err != nil {
		return nil, fmt.Errorf("envelope: package direct message: %w", err)
	}
	return envelope, nil
}

// DeriveDMMailboxID computes the mailbox id backing a user's own
// direct-message mailbox: a keyed hash of their root hash, mirroring
// DeriveMailboxIDs' use of a fixed context string as the hashed data
// and a 32-byte digest as the key.
func DeriveDMMailboxID(rootHash [ncrypto.DigestSize]byte) (ref.MailboxID, error) {
	digest, err := ncrypto.KeyedHash(rootHash[:], []byte("dm-mailbox"))
	if err != nil {
		return ref.MailboxID{}, fmt.Errorf("envelope: derive dm mailbox id: %w", err)
	}
	return ref.MailboxID(digest), nil
}
