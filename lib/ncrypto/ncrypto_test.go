// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ncrypto

import (
	"bytes"
	"testing"
)

func TestSignVerify(t *testing.T) {
	key, err := GenerateSigningKey()
	if err != nil {
		t.Fatal(err)
	}
	msg := []byte("device certificate tuple")
	sig := key.Sign(msg)

	if !key.Public().Verify(msg, sig) {
		t.Fatal("valid signature failed to verify")
	}
	if key.Public().Verify([]byte("tampered"), sig) {
		t.Fatal("signature verified over the wrong message")
	}
}

func TestSigningKeyFromSeedDeterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, SigningKeySize/2)
	k1, err := SigningKeyFromSeed(seed)
	if err != nil {
		t.Fatal(err)
	}
	k2, err := SigningKeyFromSeed(seed)
	if err != nil {
		t.Fatal(err)
	}
	if !k1.Public().Equal(k2.Public()) {
		t.Fatal("same seed produced different public keys")
	}
}

func TestDHSharedSecretAgreement(t *testing.T) {
	alice, err := GenerateDHKey()
	if err != nil {
		t.Fatal(err)
	}
	bob, err := GenerateDHKey()
	if err != nil {
		t.Fatal(err)
	}

	secretA, err := alice.SharedSecret(bob.Public())
	if err != nil {
		t.Fatal(err)
	}
	secretB, err := bob.SharedSecret(alice.Public())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(secretA, secretB) {
		t.Fatal("x25519 agreement did not converge")
	}
}

func TestWrapKeyIsInvolution(t *testing.T) {
	wrapKey := bytes.Repeat([]byte{0x11}, AEADKeySize)
	nonce := bytes.Repeat([]byte{0x22}, StreamNonceSize)
	plain := []byte("thirty-two byte symmetric key!!!")

	wrapped, err := WrapKey(wrapKey, nonce, plain)
	if err != nil {
		t.Fatal(err)
	}
	unwrapped, err := WrapKey(wrapKey, nonce, wrapped)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(unwrapped, plain) {
		t.Fatal("wrap/unwrap did not round trip")
	}
}

func TestAEADSealOpenRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x33}, AEADKeySize)
	nonce, err := NewAEADNonce()
	if err != nil {
		t.Fatal(err)
	}
	plaintext := []byte("message body")
	ad := []byte("sender||chain")

	ciphertext, err := Seal(key, nonce, plaintext, ad)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Open(key, nonce, ciphertext, ad)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatal("seal/open did not round trip")
	}

	if _, err := Open(key, nonce, ciphertext, []byte("wrong ad")); err == nil {
		t.Fatal("open succeeded with mismatched associated data")
	}
	tampered := append([]byte(nil), ciphertext...)
	tampered[0] ^= 1
	if _, err := Open(key, nonce, tampered, ad); err == nil {
		t.Fatal("open succeeded on tampered ciphertext")
	}
}

func TestHashDeterministic(t *testing.T) {
	data := []byte("group descriptor bytes")
	if Hash(data) != Hash(data) {
		t.Fatal("Hash is not deterministic")
	}
	if Hash(data) == Hash([]byte("different")) {
		t.Fatal("Hash collided on distinct inputs")
	}
}

func TestKeyedHashRequiresFullKey(t *testing.T) {
	if _, err := KeyedHash([]byte("short"), []byte("data")); err == nil {
		t.Fatal("expected error for short keyed-hash key")
	}
}

func TestDeriveKeyDomainSeparation(t *testing.T) {
	secret := bytes.Repeat([]byte{0x44}, 32)
	a := DeriveKey(secret, "body-key")
	b := DeriveKey(secret, "wrap-key")
	if a == b {
		t.Fatal("distinct labels derived the same key")
	}
}
