// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nullspace-chat/core/cert"
	"github.com/nullspace-chat/core/lib/codec"
	"github.com/nullspace-chat/core/lib/ncrypto"
	"github.com/nullspace-chat/core/lib/ref"
	"github.com/nullspace-chat/core/lib/sealed"
	"github.com/nullspace-chat/core/lib/secret"
)

// wireDeviceBundle is the JSON shape sealed inside a device bundle.
// CertChain is the lib/codec canonical encoding of a cert.Chain, kept
// as opaque bytes here rather than a nested struct so the sealed
// payload round-trips through exactly the same bytes cert.Verify was
// grounded on.
type wireDeviceBundle struct {
	Username          string `json:"username"`
	ServerName        string `json:"server_name"`
	DeviceSigningSeed []byte `json:"device_signing_seed"`
	CertChain         []byte `json:"cert_chain"`
}

// deviceBundlePayload is a decoded, verified-shape device bundle. The
// caller still owns verifying the chain against a trusted root hash.
type deviceBundlePayload struct {
	username   ref.Username
	serverName ref.ServerName
	deviceSeed *secret.Buffer
	chain      cert.Chain
}

// NewDeviceBundle issues a new device certificate under the caller's
// own certificate chain and seals it, together with a freshly
// generated device signing seed, to recipientPublicKey — the age
// public key an enrolling device generated locally (via
// sealed.GenerateKeypair) and displayed out-of-band (a QR code, a
// pasted string) to the device that already holds the identity.
//
// canIssue controls whether the new device may itself issue further
// device certificates. NewDeviceBundle fails with ErrAccessDenied if
// the caller's own leaf certificate cannot issue.
func (c *Client) NewDeviceBundle(ctx context.Context, recipientPublicKey string, canIssue bool, expiry time.Time) (string, error) {
	id, ok, err := c.wc.Store.LoadIdentity(ctx)
	if err != nil {
		return "", fmt.Errorf("client: new device bundle: load identity: %w", err)
	}
	if !ok {
		return "", ErrNotReady
	}
	defer id.Close()

	if !id.CertChain.This.CanIssue {
		return "", ErrAccessDenied
	}

	issuerKey, err := loadSigningKey(id)
	if err != nil {
		return "", err
	}

	newDeviceKey, err := ncrypto.GenerateSigningKey()
	if err != nil {
		return "", fmt.Errorf("client: new device bundle: generate device key: %w", err)
	}
	newCert := cert.Sign(issuerKey, newDeviceKey.Public(), expiry.UTC(), canIssue)
	newChain := cert.Chain{
		Ancestors: append(append([]cert.Certificate(nil), id.CertChain.Ancestors...), id.CertChain.This),
		This:      newCert,
	}

	wire := wireDeviceBundle{
		Username:          id.Username.String(),
		ServerName:        id.ServerName.String(),
		DeviceSigningSeed: newDeviceKey.Seed(),
		CertChain:         codec.Marshal(newChain),
	}
	plaintext, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("client: new device bundle: encode: %w", err)
	}

	sealedBundle, err := sealed.EncryptDeviceBundle(plaintext, []string{recipientPublicKey})
	if err != nil {
		return "", fmt.Errorf("client: new device bundle: seal: %w", err)
	}
	return sealedBundle, nil
}

// decodeDeviceBundle unseals a bundle produced by NewDeviceBundle
// against the enrolling device's own private key. It does not verify
// the enclosed chain against a directory root hash; the caller must
// do that separately once it has resolved the claimed username.
func decodeDeviceBundle(ciphertext string, recipientKey *sealed.Keypair) (deviceBundlePayload, error) {
	plaintext, err := sealed.DecryptDeviceBundle(ciphertext, recipientKey.PrivateKey)
	if err != nil {
		return deviceBundlePayload{}, fmt.Errorf("decrypt: %w", err)
	}
	defer plaintext.Close()

	var wire wireDeviceBundle
	if err := json.Unmarshal(plaintext.Bytes(), &wire); err != nil {
		return deviceBundlePayload{}, fmt.Errorf("decode: %w", err)
	}

	username, err := ref.ParseUsername(wire.Username)
	if err != nil {
		return deviceBundlePayload{}, fmt.Errorf("bundle username: %w", err)
	}
	serverName, err := ref.ParseServerName(wire.ServerName)
	if err != nil {
		return deviceBundlePayload{}, fmt.Errorf("bundle server name: %w", err)
	}
	var chain cert.Chain
	if err := codec.Unmarshal(wire.CertChain, &chain); err != nil {
		return deviceBundlePayload{}, fmt.Errorf("bundle cert chain: %w", err)
	}

	seedCopy := append([]byte(nil), wire.DeviceSigningSeed...)
	deviceSeed, err := secret.NewFromBytes(seedCopy)
	if err != nil {
		return deviceBundlePayload{}, fmt.Errorf("protect bundle device seed: %w", err)
	}

	return deviceBundlePayload{
		username:   username,
		serverName: serverName,
		deviceSeed: deviceSeed,
		chain:      chain,
	}, nil
}
