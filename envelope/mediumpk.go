// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"errors"
	"fmt"
	"time"

	"github.com/nullspace-chat/core/cert"
	"github.com/nullspace-chat/core/lib/codec"
	"github.com/nullspace-chat/core/lib/ncrypto"
	"github.com/nullspace-chat/core/lib/ref"
)

func mediumPKSignedFields(sender ref.Username, chain cert.Chain, publicKey ncrypto.DHPublicKey) []byte {
	w := codec.NewWriter()
	w.String(sender.String())
	chain.Encode(w)
	w.FixedBytes(publicKey.Bytes())
	return w.Bytes()
}

// SignMediumPK signs a fresh medium-term public key on behalf of
// sender's device chain, for publication through the server's
// PublishMediumPK.
func SignMediumPK(signingKey ncrypto.SigningKey, sender ref.Username, chain cert.Chain, publicKey ncrypto.DHPublicKey) []byte {
	return signingKey.Sign(mediumPKSignedFields(sender, chain, publicKey))
}

// VerifyMediumPK checks that a published medium public key was signed
// by a device in good standing under rootHash at the time it was
// published.
func VerifyMediumPK(sender ref.Username, chain cert.Chain, publicKey ncrypto.DHPublicKey, signature []byte, rootHash [ncrypto.DigestSize]byte, now time.Time) error {
	if err := cert.Verify(chain, rootHash, now); err != nil {
		return fmt.Errorf("envelope: verify medium pk: chain: %w", err)
	}
	if !chain.Leaf().Verify(mediumPKSignedFields(sender, chain, publicKey), signature) {
		return errors.New("envelope: verify medium pk: signature does not verify")
	}
	return nil
}
