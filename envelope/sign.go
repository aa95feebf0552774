// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"fmt"
	"time"

	"github.com/nullspace-chat/core/cert"
	"github.com/nullspace-chat/core/lib/codec"
	"github.com/nullspace-chat/core/lib/ncrypto"
	"github.com/nullspace-chat/core/lib/ref"
)

// Signed is a device-signed payload (spec.md §4.4): the signature
// covers the full tuple of sender, chain, and body, so the surrounding
// envelope cannot be tampered with independently of its content.
type Signed struct {
	Sender    ref.Username
	Chain     cert.Chain
	Body      []byte
	Signature []byte
}

func (s Signed) signedFields() []byte {
	w := codec.NewWriter()
	w.String(s.Sender.String())
	s.Chain.Encode(w)
	w.WriteBytes(s.Body)
	return w.Bytes()
}

// Encode writes the full signed value, including its signature.
func (s Signed) Encode(w *codec.Writer) {
	w.String(s.Sender.String())
	s.Chain.Encode(w)
	w.WriteBytes(s.Body)
	w.WriteBytes(s.Signature)
}

// Decode reads a full signed value.
func (s *Signed) Decode(r *codec.Reader) error {
	senderRaw := r.String()
	var chain cert.Chain
	if err := chain.Decode(r); err != nil {
		return err
	}
	body := r.ReadBytes()
	sig := r.ReadBytes()
	if err := r.Err(); err != nil {
		return err
	}
	sender, err := ref.ParseUsername(senderRaw)
	if err != nil {
		return fmt.Errorf("envelope: signed sender: %w", err)
	}
	s.Sender = sender
	s.Chain = chain
	s.Body = append([]byte(nil), body...)
	s.Signature = append([]byte(nil), sig...)
	return nil
}

// DeviceSign signs body on behalf of sender's device chain and returns
// the canonical encoding of the resulting Signed value.
func DeviceSign(signingKey ncrypto.SigningKey, sender ref.Username, chain cert.Chain, body []byte) []byte {
	s := Signed{Sender: sender, Chain: chain, Body: body}
	s.Signature = signingKey.Sign(s.signedFields())
	return codec.Marshal(s)
}

// PeekSender decodes only the sender field of a device-signed payload,
// without verifying anything. Callers use it to resolve a root hash
// from the directory before calling DeviceVerify, since the root hash
// to verify against depends on who the payload claims to be from.
func PeekSender(signedBytes []byte) (ref.Username, error) {
	r := codec.NewReader(signedBytes)
	raw := r.String()
	if err := r.Err(); err != nil {
		return ref.Username{}, fmt.Errorf("envelope: peek sender: %w", err)
	}
	return ref.ParseUsername(raw)
}

// DeviceVerify decodes signedBytes and verifies its certificate chain
// against rootHash and its signature against the chain's leaf key.
func DeviceVerify(signedBytes []byte, rootHash [ncrypto.DigestSize]byte, now time.Time) (Signed, error) {
	var s Signed
	if err := codec.Unmarshal(signedBytes, &s); err != nil {
		return Signed{}, fmt.Errorf("envelope: device verify: decode: %w", err)
	}
	if err := cert.Verify(s.Chain, rootHash, now); err != nil {
		return Signed{}, fmt.Errorf("envelope: device verify: chain: %w", err)
	}
	if !s.Chain.Leaf().Verify(s.signedFields(), s.Signature) {
		return Signed{}, fmt.Errorf("envelope: device verify: signature does not verify")
	}
	return s, nil
}
