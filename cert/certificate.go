// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cert

import (
	"time"

	"github.com/nullspace-chat/core/lib/codec"
	"github.com/nullspace-chat/core/lib/ncrypto"
)

// Certificate is a device certificate: a device signing key, its
// expiry, whether it may issue further certificates, and the
// signature of the issuer over those three fields.
type Certificate struct {
	PublicKey ncrypto.VerifyingKey
	Expiry    time.Time
	CanIssue  bool
	Signature []byte
}

// signedFields returns the canonical encoding of (pk, expiry,
// can_issue) — the bytes the issuer's signature covers. Expiry is
// encoded as Unix seconds so the canonical form does not depend on a
// time.Time's internal monotonic reading.
func (c Certificate) signedFields() []byte {
	w := codec.NewWriter()
	w.FixedBytes(c.PublicKey.Bytes())
	w.Int64(c.Expiry.Unix())
	w.Bool(c.CanIssue)
	return w.Bytes()
}

// Encode writes the full certificate, including its signature.
func (c Certificate) Encode(w *codec.Writer) {
	w.FixedBytes(c.PublicKey.Bytes())
	w.Int64(c.Expiry.Unix())
	w.Bool(c.CanIssue)
	w.WriteBytes(c.Signature)
}

// Decode reads a full certificate.
func (c *Certificate) Decode(r *codec.Reader) error {
	pkBytes := r.FixedBytes(ncrypto.VerifyingKeySize)
	expiry := r.Int64()
	canIssue := r.Bool()
	sig := r.ReadBytes()
	if err := r.Err(); err != nil {
		return err
	}
	pk, err := ncrypto.VerifyingKeyFromBytes(pkBytes)
	if err != nil {
		return err
	}
	c.PublicKey = pk
	c.Expiry = time.Unix(expiry, 0).UTC()
	c.CanIssue = canIssue
	c.Signature = append([]byte(nil), sig...)
	return nil
}

// IsExpired reports whether the certificate has expired as of now.
func (c Certificate) IsExpired(now time.Time) bool {
	return !now.Before(c.Expiry)
}

// SelfSigned reports whether the certificate's signature verifies
// under its own public key.
func (c Certificate) SelfSigned() bool {
	return c.PublicKey.Verify(c.signedFields(), c.Signature)
}

// VerifiedBy reports whether the certificate's signature verifies
// under issuer.
func (c Certificate) VerifiedBy(issuer ncrypto.VerifyingKey) bool {
	return issuer.Verify(c.signedFields(), c.Signature)
}

// Sign issues a certificate for subjectKey, signed by issuer.
func Sign(issuer ncrypto.SigningKey, subjectKey ncrypto.VerifyingKey, expiry time.Time, canIssue bool) Certificate {
	c := Certificate{PublicKey: subjectKey, Expiry: expiry, CanIssue: canIssue}
	c.Signature = issuer.Sign(c.signedFields())
	return c
}

// SignSelf issues a self-signed root certificate: the device's own
// signing key both signs and is bound by the certificate.
func SignSelf(key ncrypto.SigningKey, expiry time.Time) Certificate {
	return Sign(key, key.Public(), expiry, true)
}

// RootHash computes BLAKE3(encode(pk)) for pk, the anchor a directory
// publishes and a chain verification walks up to.
func RootHash(pk ncrypto.VerifyingKey) [ncrypto.DigestSize]byte {
	return ncrypto.Hash(pk.Bytes())
}
