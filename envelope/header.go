// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/nullspace-chat/core/lib/codec"
	"github.com/nullspace-chat/core/lib/ncrypto"
)

// errNoRecipientMatch is returned by HeaderDecryptAny when none of the
// caller's medium secrets unwrap any header entry, or every match that
// is found fails AEAD authentication. The 2-byte short tag is only a
// hint (spec.md §4.3): a collision is expected to happen occasionally,
// so every matching entry is tried before this is returned.
var errNoRecipientMatch = errors.New("envelope: header decrypt: no recipient key opened the body")

// zeroStreamNonce and zeroAEADNonce are the all-zero nonces spec.md
// §4.3 mandates for header wrapping and the body seal. Both the DH
// shared secret and the per-message symmetric key k are fresh for
// every call, so nonce reuse never occurs despite the fixed nonce.
var (
	zeroStreamNonce = make([]byte, ncrypto.StreamNonceSize)
	zeroAEADNonce   = make([]byte, ncrypto.AEADNonceSize)
)

type headerEntry struct {
	short [2]byte
	wrap  []byte
}

// HeaderEncrypt implements the multi-recipient DH envelope of
// spec.md §4.3: any holder of one of the recipients' medium secrets
// can recover plaintext, but the layer provides no authentication of
// its own — callers compose it with device signing.
func HeaderEncrypt(recipients []ncrypto.DHPublicKey, plaintext []byte) ([]byte, error) {
	senderKey, err := ncrypto.GenerateDHKey()
	if err != nil {
		return nil, fmt.Errorf("envelope: header encrypt: %w", err)
	}

	k := make([]byte, ncrypto.AEADKeySize)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		return nil, fmt.Errorf("envelope: header encrypt: generate body key: %w", err)
	}

	entries := make([]headerEntry, 0, len(recipients))
	for _, mpk := range recipients {
		ss, err := senderKey.SharedSecret(mpk)
		if err != nil {
			return nil, fmt.Errorf("envelope: header encrypt: dh: %w", err)
		}
		digest := ncrypto.Hash(mpk.Bytes())
		wrap, err := ncrypto.WrapKey(ss, zeroStreamNonce, k)
		if err != nil {
			return nil, fmt.Errorf("envelope: header encrypt: wrap: %w", err)
		}
		var short [2]byte
		copy(short[:], digest[:2])
		entries = append(entries, headerEntry{short: short, wrap: wrap})
	}

	aad := encodeHeaderAAD(senderKey.Public(), entries)
	body, err := ncrypto.Seal(k, zeroAEADNonce, plaintext, aad)
	if err != nil {
		return nil, fmt.Errorf("envelope: header encrypt: seal: %w", err)
	}

	w := codec.NewWriter()
	w.FixedBytes(senderKey.Public().Bytes())
	writeHeaderEntries(w, entries)
	w.WriteBytes(body)
	return w.Bytes(), nil
}

// HeaderDecryptAny tries each of keys in order (typically the current
// medium secret, then the previous one still retained across
// rotation) and returns the plaintext recovered by the first one that
// both matches a header entry's short tag and opens the AEAD body.
func HeaderDecryptAny(keys []ncrypto.DHPrivateKey, envelope []byte) ([]byte, error) {
	var lastErr error = errNoRecipientMatch
	for _, key := range keys {
		plaintext, err := headerDecryptOne(key, envelope)
		if err == nil {
			return plaintext, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func headerDecryptOne(mediumSecret ncrypto.DHPrivateKey, envelope []byte) ([]byte, error) {
	r := codec.NewReader(envelope)
	senderEPKBytes := r.FixedBytes(ncrypto.DHKeySize)
	entries, err := readHeaderEntries(r)
	if err != nil {
		return nil, fmt.Errorf("envelope: header decrypt: %w", err)
	}
	body := r.ReadBytes()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("envelope: header decrypt: %w", err)
	}

	senderEPK, err := ncrypto.DHPublicKeyFromBytes(senderEPKBytes)
	if err != nil {
		return nil, fmt.Errorf("envelope: header decrypt: %w", err)
	}

	ownDigest := ncrypto.Hash(mediumSecret.Public().Bytes())
	var ownShort [2]byte
	copy(ownShort[:], ownDigest[:2])

	ss, err := mediumSecret.SharedSecret(senderEPK)
	if err != nil {
		return nil, fmt.Errorf("envelope: header decrypt: dh: %w", err)
	}

	aad := encodeHeaderAAD(senderEPK, entries)

	var lastErr error = errNoRecipientMatch
	for _, entry := range entries {
		if entry.short != ownShort {
			continue
		}
		k, err := ncrypto.WrapKey(ss, zeroStreamNonce, entry.wrap)
		if err != nil {
			lastErr = err
			continue
		}
		plaintext, err := ncrypto.Open(k, zeroAEADNonce, body, aad)
		if err != nil {
			lastErr = err
			continue
		}
		return plaintext, nil
	}
	return nil, lastErr
}

func writeHeaderEntries(w *codec.Writer, entries []headerEntry) {
	w.SeqLen(len(entries))
	for _, e := range entries {
		w.FixedBytes(e.short[:])
		w.FixedBytes(e.wrap)
	}
}

func readHeaderEntries(r *codec.Reader) ([]headerEntry, error) {
	n := r.SeqLen()
	entries := make([]headerEntry, n)
	for i := range entries {
		short := r.FixedBytes(2)
		wrap := r.FixedBytes(ncrypto.AEADKeySize)
		if r.Err() != nil {
			return nil, r.Err()
		}
		copy(entries[i].short[:], short)
		entries[i].wrap = append([]byte(nil), wrap...)
	}
	return entries, nil
}

// encodeHeaderAAD encodes (sender_epk, headers), the associated data
// covering both the body seal and each header's implicit binding to
// the entry list.
func encodeHeaderAAD(senderEPK ncrypto.DHPublicKey, entries []headerEntry) []byte {
	w := codec.NewWriter()
	w.FixedBytes(senderEPK.Bytes())
	writeHeaderEntries(w, entries)
	return w.Bytes()
}
