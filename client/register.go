// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nullspace-chat/core/cert"
	"github.com/nullspace-chat/core/directory"
	"github.com/nullspace-chat/core/envelope"
	"github.com/nullspace-chat/core/lib/ncrypto"
	"github.com/nullspace-chat/core/lib/ref"
	"github.com/nullspace-chat/core/lib/sealed"
	"github.com/nullspace-chat/core/lib/secret"
	"github.com/nullspace-chat/core/serverapi"
	"github.com/nullspace-chat/core/store"
)

// rootCertLifetime is how long a bootstrapped identity's self-signed
// root certificate is valid for. Root certificates are not rotated;
// device certificates issued under them are what expires and gets
// reissued via NewDeviceBundle.
const rootCertLifetime = 100 * 365 * 24 * time.Hour

// RegisterStartInfo reports where an already-registered username
// lives, so a caller enrolling a new device knows which server and
// root hash to import against.
type RegisterStartInfo struct {
	Username   ref.Username
	ServerName ref.ServerName
}

// RegisterStart reports whether username already has a directory
// entry. taken is false and info is the zero value when the username
// is free to bootstrap; taken is true and info names where the
// existing identity lives when it is not.
func (c *Client) RegisterStart(ctx context.Context, username ref.Username) (info RegisterStartInfo, taken bool, err error) {
	rec, err := c.wc.Directory.ResolveUser(ctx, username)
	if errors.Is(err, directory.ErrUserNotFound) {
		return RegisterStartInfo{}, false, nil
	}
	if err != nil {
		return RegisterStartInfo{}, false, fmt.Errorf("client: register start: %w", err)
	}
	return RegisterStartInfo{Username: username, ServerName: rec.ServerName}, true, nil
}

// RegisterFinishRequest distinguishes bootstrapping a brand-new
// identity from importing one via a sealed device bundle.
type RegisterFinishRequest interface {
	isRegisterFinishRequest()
}

// BootstrapNewUser creates a new identity: username must be free (see
// RegisterStart) and serverName is the home server it will be hosted
// on.
type BootstrapNewUser struct {
	Username   ref.Username
	ServerName ref.ServerName
}

func (BootstrapNewUser) isRegisterFinishRequest() {}

// AddDevice imports an identity from a sealed bundle produced by
// another of that identity's devices via [Client.NewDeviceBundle].
// RecipientKey is the age keypair this device generated and whose
// public half it handed to the issuing device out-of-band; it is
// closed by RegisterFinish once the bundle is decrypted.
type AddDevice struct {
	Bundle       string
	RecipientKey *sealed.Keypair
}

func (AddDevice) isRegisterFinishRequest() {}

// RegisterFinish completes registration, either bootstrapping a fresh
// identity or importing one from a sealed device bundle, and persists
// the result as the process's local identity.
func (c *Client) RegisterFinish(ctx context.Context, req RegisterFinishRequest) error {
	switch r := req.(type) {
	case BootstrapNewUser:
		return c.registerBootstrap(ctx, r.Username, r.ServerName)
	case AddDevice:
		return c.registerAddDevice(ctx, r.Bundle, r.RecipientKey)
	default:
		return fmt.Errorf("client: register finish: unrecognized request type %T", req)
	}
}

func (c *Client) registerBootstrap(ctx context.Context, username ref.Username, serverName ref.ServerName) error {
	if _, taken, err := c.RegisterStart(ctx, username); err != nil {
		return err
	} else if taken {
		return fmt.Errorf("client: register bootstrap: username %s is already registered", username)
	}

	deviceKey, err := ncrypto.GenerateSigningKey()
	if err != nil {
		return fmt.Errorf("client: register bootstrap: generate device key: %w", err)
	}
	rootCert := cert.SignSelf(deviceKey, c.wc.Clock.Now().UTC().Add(rootCertLifetime))
	chain := cert.Chain{This: rootCert}
	rootHash := cert.RootHash(deviceKey.Public())

	if err := c.wc.Directory.RegisterUser(ctx, username, serverName, rootHash); err != nil {
		return fmt.Errorf("client: register bootstrap: register user: %w", err)
	}

	return c.finishDeviceEnrollment(ctx, username, serverName, deviceKey, chain)
}

func (c *Client) registerAddDevice(ctx context.Context, bundle string, recipientKey *sealed.Keypair) error {
	payload, err := decodeDeviceBundle(bundle, recipientKey)
	if err != nil {
		return fmt.Errorf("client: register add device: %w", err)
	}
	defer payload.deviceSeed.Close()

	deviceKey, err := ncrypto.SigningKeyFromSeed(payload.deviceSeed.Bytes())
	if err != nil {
		return fmt.Errorf("client: register add device: reconstruct device key: %w", err)
	}

	rec, err := c.wc.Directory.ResolveUser(ctx, payload.username)
	if err != nil {
		return fmt.Errorf("client: register add device: resolve identity: %w", err)
	}
	if err := cert.Verify(payload.chain, rec.RootHash, c.wc.Clock.Now().UTC()); err != nil {
		return fmt.Errorf("client: register add device: verify bundled chain: %w", err)
	}
	if !payload.chain.Leaf().Equal(deviceKey.Public()) {
		return fmt.Errorf("client: register add device: bundled chain does not vouch for the bundled device key")
	}

	return c.finishDeviceEnrollment(ctx, payload.username, rec.ServerName, deviceKey, payload.chain)
}

// finishDeviceEnrollment runs the sequence common to both registration
// paths once a device signing key and its certificate chain are in
// hand: authenticate to the home server, publish an initial medium
// key, and persist the local identity.
func (c *Client) finishDeviceEnrollment(ctx context.Context, username ref.Username, serverName ref.ServerName, deviceKey ncrypto.SigningKey, chain cert.Chain) error {
	server, err := c.wc.Dial(ctx, serverName)
	if err != nil {
		return fmt.Errorf("client: register: dial: %w", err)
	}
	token, err := server.DeviceAuth(ctx, chain)
	if err != nil {
		return fmt.Errorf("client: register: device auth: %w", err)
	}

	mediumKey, err := ncrypto.GenerateDHKey()
	if err != nil {
		return fmt.Errorf("client: register: generate medium key: %w", err)
	}
	signature := envelope.SignMediumPK(deviceKey, username, chain, mediumKey.Public())
	published := serverapi.SignedMediumPK{
		PublicKey:   mediumKey.Public(),
		Sender:      username,
		Chain:       chain,
		Signature:   signature,
		PublishedAt: c.wc.Clock.Now().UTC(),
	}
	if err := server.PublishMediumPK(ctx, token, published); err != nil {
		return fmt.Errorf("client: register: publish medium key: %w", err)
	}

	deviceSeedCopy := append([]byte(nil), deviceKey.Seed()...)
	deviceSeedSecret, err := secret.NewFromBytes(deviceSeedCopy)
	if err != nil {
		return fmt.Errorf("client: register: protect device seed: %w", err)
	}
	mediumSeedCopy := append([]byte(nil), mediumKey.Seed()...)
	mediumSeedSecret, err := secret.NewFromBytes(mediumSeedCopy)
	if err != nil {
		deviceSeedSecret.Close()
		return fmt.Errorf("client: register: protect medium seed: %w", err)
	}

	id := store.Identity{
		Username:            username,
		ServerName:          serverName,
		DeviceSigningSeed:   deviceSeedSecret,
		CertChain:           chain,
		MediumSecretCurrent: mediumSeedSecret,
	}
	if err := c.wc.Store.SaveIdentity(ctx, id); err != nil {
		deviceSeedSecret.Close()
		mediumSeedSecret.Close()
		return fmt.Errorf("client: register: save identity: %w", err)
	}
	return nil
}
