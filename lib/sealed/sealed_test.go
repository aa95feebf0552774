// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
)

func TestGenerateKeypair(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	defer keypair.Close()

	if !strings.HasPrefix(keypair.PrivateKey.String(), "AGE-SECRET-KEY-1") {
		t.Errorf("PrivateKey = %q, want prefix AGE-SECRET-KEY-1", keypair.PrivateKey.String())
	}
	if !strings.HasPrefix(keypair.PublicKey, "age1") {
		t.Errorf("PublicKey = %q, want prefix age1", keypair.PublicKey)
	}
}

func TestGenerateKeypairUnique(t *testing.T) {
	k1, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	defer k1.Close()
	k2, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	defer k2.Close()

	if k1.PrivateKey.String() == k2.PrivateKey.String() {
		t.Error("two generated keypairs have identical private keys")
	}
	if k1.PublicKey == k2.PublicKey {
		t.Error("two generated keypairs have identical public keys")
	}
}

func TestEncryptDecryptSingleRecipient(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	defer keypair.Close()

	plaintext := []byte("device signing seed + medium seed + cert chain")
	ciphertext, err := Encrypt(plaintext, []string{keypair.PublicKey})
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if _, err := base64.StdEncoding.DecodeString(ciphertext); err != nil {
		t.Errorf("Encrypt() returned invalid base64: %v", err)
	}

	decrypted, err := Decrypt(ciphertext, keypair.PrivateKey)
	if err != nil {
		t.Fatalf("Decrypt() error: %v", err)
	}
	defer decrypted.Close()
	if decrypted.String() != string(plaintext) {
		t.Errorf("Decrypt() = %q, want %q", decrypted.String(), plaintext)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	defer keypair.Close()
	wrong, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	defer wrong.Close()

	ciphertext, err := Encrypt([]byte("bundle"), []string{keypair.PublicKey})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decrypt(ciphertext, wrong.PrivateKey); err == nil {
		t.Error("Decrypt() with wrong key should return error")
	}
}

func TestEncryptNoRecipients(t *testing.T) {
	if _, err := Encrypt([]byte("data"), nil); err == nil {
		t.Error("expected error with no recipients")
	}
}

func TestEncryptInvalidRecipientKey(t *testing.T) {
	if _, err := Encrypt([]byte("data"), []string{"not-a-valid-key"}); err == nil {
		t.Error("expected error for invalid recipient key")
	}
}

func TestDecryptInvalidBase64(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	defer keypair.Close()

	if _, err := Decrypt("not-valid-base64!!!", keypair.PrivateKey); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestEncryptDecryptEmptyPlaintext(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	defer keypair.Close()

	ciphertext, err := Encrypt([]byte{}, []string{keypair.PublicKey})
	if err != nil {
		t.Fatal(err)
	}
	decrypted, err := Decrypt(ciphertext, keypair.PrivateKey)
	if err != nil {
		t.Fatal(err)
	}
	defer decrypted.Close()
	if decrypted.Len() != 0 {
		t.Errorf("Decrypt(empty) length = %d, want 0", decrypted.Len())
	}
}

func TestDeviceBundleRoundTrip(t *testing.T) {
	joiningDevice, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	defer joiningDevice.Close()

	bundle := map[string]string{
		"username":            "@alice",
		"device_signing_seed": "0102030405060708090a0b0c0d0e0f10",
		"cert_chain":          "deadbeef",
	}
	jsonPayload, err := json.Marshal(bundle)
	if err != nil {
		t.Fatal(err)
	}

	ciphertext, err := EncryptDeviceBundle(jsonPayload, []string{joiningDevice.PublicKey})
	if err != nil {
		t.Fatalf("EncryptDeviceBundle() error: %v", err)
	}

	decrypted, err := DecryptDeviceBundle(ciphertext, joiningDevice.PrivateKey)
	if err != nil {
		t.Fatalf("DecryptDeviceBundle() error: %v", err)
	}
	defer decrypted.Close()

	var got map[string]string
	if err := json.Unmarshal(decrypted.Bytes(), &got); err != nil {
		t.Fatalf("json.Unmarshal() error: %v", err)
	}
	for k, want := range bundle {
		if got[k] != want {
			t.Errorf("bundle[%q] = %q, want %q", k, got[k], want)
		}
	}
}

func TestParsePublicKey(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	defer keypair.Close()

	if err := ParsePublicKey(keypair.PublicKey); err != nil {
		t.Errorf("ParsePublicKey(valid) error: %v", err)
	}
	if err := ParsePublicKey("not-a-valid-key"); err == nil {
		t.Error("ParsePublicKey(invalid) should return error")
	}
}

func TestParsePrivateKey(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	defer keypair.Close()

	if err := ParsePrivateKey(keypair.PrivateKey); err != nil {
		t.Errorf("ParsePrivateKey(valid) error: %v", err)
	}
}
