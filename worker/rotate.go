// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/nullspace-chat/core/envelope"
	"github.com/nullspace-chat/core/lib/ncrypto"
	"github.com/nullspace-chat/core/lib/secret"
	"github.com/nullspace-chat/core/serverapi"
	"github.com/nullspace-chat/core/store"
)

const (
	rotationInterval = time.Hour
	rotationJitter   = 5 * time.Minute
)

// RotateLoop periodically publishes a fresh medium-term X25519 key
// pair, retaining the superseded key as MediumSecretPrevious for the
// header-decrypt overlap window, until ctx is cancelled.
func RotateLoop(ctx context.Context, wc *Context) error {
	for {
		wait := rotationInterval + time.Duration(rand.Int64N(int64(rotationJitter)))
		select {
		case <-wc.Clock.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}

		if err := rotateOnce(ctx, wc); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wc.Logger.Warn("rotate: failed", "error", err)
		}
	}
}

func rotateOnce(ctx context.Context, wc *Context) error {
	id, ok, err := wc.Store.LoadIdentity(ctx)
	if err != nil {
		return fmt.Errorf("worker: rotate: load identity: %w", err)
	}
	if !ok {
		return fmt.Errorf("worker: rotate: no local identity")
	}
	defer id.Close()

	signingKey, err := loadSigningKey(id)
	if err != nil {
		return err
	}

	newKey, err := ncrypto.GenerateDHKey()
	if err != nil {
		return fmt.Errorf("worker: rotate: generate key: %w", err)
	}

	server, err := wc.Dial(ctx, id.ServerName)
	if err != nil {
		return fmt.Errorf("worker: rotate: dial: %w", err)
	}
	token, err := server.DeviceAuth(ctx, id.CertChain)
	if err != nil {
		return fmt.Errorf("worker: rotate: device auth: %w", err)
	}

	signature := envelope.SignMediumPK(signingKey, id.Username, id.CertChain, newKey.Public())
	published := serverapi.SignedMediumPK{
		PublicKey:   newKey.Public(),
		Sender:      id.Username,
		Chain:       id.CertChain,
		Signature:   signature,
		PublishedAt: wc.Clock.Now().UTC(),
	}
	if err := server.PublishMediumPK(ctx, token, published); err != nil {
		return fmt.Errorf("worker: rotate: publish: %w", err)
	}

	currentSeedCopy := append([]byte(nil), id.MediumSecretCurrent.Bytes()...)
	previousSecret, err := secret.NewFromBytes(currentSeedCopy)
	if err != nil {
		return fmt.Errorf("worker: rotate: retain previous secret: %w", err)
	}

	newSeed := newKey.Seed()
	newSeedCopy := append([]byte(nil), newSeed...)
	newSecret, err := secret.NewFromBytes(newSeedCopy)
	if err != nil {
		previousSecret.Close()
		return fmt.Errorf("worker: rotate: store new secret: %w", err)
	}

	oldCurrent := id.MediumSecretCurrent
	oldPrevious := id.MediumSecretPrevious

	updated := store.Identity{
		Username:             id.Username,
		ServerName:           id.ServerName,
		DeviceSigningSeed:    id.DeviceSigningSeed,
		CertChain:            id.CertChain,
		MediumSecretCurrent:  newSecret,
		MediumSecretPrevious: previousSecret,
	}
	if err := wc.Store.SaveIdentity(ctx, updated); err != nil {
		newSecret.Close()
		previousSecret.Close()
		return fmt.Errorf("worker: rotate: save identity: %w", err)
	}

	newSecret.Close()
	previousSecret.Close()
	oldCurrent.Close()
	if oldPrevious != nil {
		oldPrevious.Close()
	}
	return nil
}
