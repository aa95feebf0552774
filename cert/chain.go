// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cert

import (
	"fmt"
	"time"

	"github.com/nullspace-chat/core/lib/codec"
	"github.com/nullspace-chat/core/lib/ncrypto"
)

// Chain is an ordered device-certificate chain: Ancestors holds the
// issuing certificates in order from the root's issuances down, and
// This is the leaf certificate the chain vouches for. A root chain
// (the identity's own root device) has an empty Ancestors and a
// self-signed This.
type Chain struct {
	Ancestors []Certificate
	This      Certificate
}

// Encode writes the chain as a sequence of ancestors followed by the leaf.
func (c Chain) Encode(w *codec.Writer) {
	w.SeqLen(len(c.Ancestors))
	for _, a := range c.Ancestors {
		a.Encode(w)
	}
	c.This.Encode(w)
}

// Decode reads a chain.
func (c *Chain) Decode(r *codec.Reader) error {
	n := r.SeqLen()
	ancestors := make([]Certificate, n)
	for i := range ancestors {
		if err := ancestors[i].Decode(r); err != nil {
			return err
		}
	}
	var leaf Certificate
	if err := leaf.Decode(r); err != nil {
		return err
	}
	if err := r.Err(); err != nil {
		return err
	}
	c.Ancestors = ancestors
	c.This = leaf
	return nil
}

// Leaf returns the chain's leaf public key — the device key that
// signs envelopes on behalf of this chain.
func (c Chain) Leaf() ncrypto.VerifyingKey { return c.This.PublicKey }

// Verify checks chain against rootHash, per the left-to-right
// trusted-signer-set fold:
//
//  1. Locate a certificate in Ancestors ∪ {This} whose
//     BLAKE3(encode(pk)) equals rootHash; it must be self-signed.
//  2. Initialize the trusted-signer set with that root's public key.
//  3. Walk Ancestors in order: for each non-expired certificate whose
//     signature verifies under some signer already in the set, if its
//     CanIssue is true, add its public key to the set. Expired
//     certificates are skipped, never treated as a failure.
//  4. This must be non-expired and verify under the trusted-signer
//     set.
//
// Verify performs no network I/O; it trusts only what it is given.
func Verify(chain Chain, rootHash [ncrypto.DigestSize]byte, now time.Time) error {
	root, rootIdx, err := findRoot(chain, rootHash)
	if err != nil {
		return err
	}

	trusted := map[string]ncrypto.VerifyingKey{keyOf(root.PublicKey): root.PublicKey}

	for i, c := range chain.Ancestors {
		if i == rootIdx {
			continue
		}
		if c.IsExpired(now) {
			continue
		}
		if !verifiedByAny(c, trusted) {
			continue
		}
		if c.CanIssue {
			trusted[keyOf(c.PublicKey)] = c.PublicKey
		}
	}

	if chain.This.IsExpired(now) {
		return fmt.Errorf("cert: leaf certificate expired at %s", chain.This.Expiry)
	}
	if !verifiedByAny(chain.This, trusted) {
		return fmt.Errorf("cert: leaf certificate does not verify under the trusted-signer set")
	}
	return nil
}

// findRoot locates the certificate in Ancestors ∪ {This} anchoring the
// chain to rootHash, and confirms it is self-signed. rootIdx is the
// index into chain.Ancestors, or -1 if the root is the leaf itself (a
// bare self-signed root chain with no ancestors).
func findRoot(chain Chain, rootHash [ncrypto.DigestSize]byte) (Certificate, int, error) {
	for i, c := range chain.Ancestors {
		if RootHash(c.PublicKey) == rootHash {
			if !c.SelfSigned() {
				return Certificate{}, 0, fmt.Errorf("cert: root certificate is not self-signed")
			}
			return c, i, nil
		}
	}
	if RootHash(chain.This.PublicKey) == rootHash {
		if !chain.This.SelfSigned() {
			return Certificate{}, 0, fmt.Errorf("cert: root certificate is not self-signed")
		}
		return chain.This, -1, nil
	}
	return Certificate{}, 0, fmt.Errorf("cert: no certificate in chain anchors to the trusted root hash")
}

// verifiedByAny reports whether c's signature verifies under any key
// currently in the trusted set.
func verifiedByAny(c Certificate, trusted map[string]ncrypto.VerifyingKey) bool {
	for _, signer := range trusted {
		if c.VerifiedBy(signer) {
			return true
		}
	}
	return false
}

func keyOf(pk ncrypto.VerifyingKey) string { return string(pk.Bytes()) }
