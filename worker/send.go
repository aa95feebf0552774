// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nullspace-chat/core/envelope"
	"github.com/nullspace-chat/core/lib/ncrypto"
	"github.com/nullspace-chat/core/lib/ref"
	"github.com/nullspace-chat/core/serverapi"
	"github.com/nullspace-chat/core/store"
)

const (
	sendRetryAttempts  = 3
	sendRetryBaseDelay = time.Second
)

// SendLoop drains the outbound message queue once at startup, then
// blocks on the store's notifier and drains again every time it fires,
// until ctx is cancelled.
func SendLoop(ctx context.Context, wc *Context) error {
	generation := wc.Store.Notifier().Generation()
	if err := drainPending(ctx, wc); err != nil {
		return err
	}
	for {
		var err error
		generation, err = wc.Store.Notifier().Wait(ctx, generation)
		if err != nil {
			return fmt.Errorf("worker: send loop: %w", err)
		}
		if err := drainPending(ctx, wc); err != nil {
			return err
		}
	}
}

// drainPending sends every currently pending message, logging and
// continuing past any one message's failure so a single bad message
// never blocks the rest of the queue.
func drainPending(ctx context.Context, wc *Context) error {
	pending, err := wc.Store.PendingMessages(ctx)
	if err != nil {
		return fmt.Errorf("worker: drain pending: %w", err)
	}
	for _, msg := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sendOne(ctx, wc, msg); err != nil {
			wc.Logger.Warn("send message failed", "message_id", msg.ID, "error", err)
		}
	}
	return nil
}

func sendOne(ctx context.Context, wc *Context, msg store.Message) error {
	convo, found, err := wc.Store.LoadConversation(ctx, msg.ConvoID)
	if err != nil {
		return fmt.Errorf("worker: send %s: load conversation: %w", msg.ID, err)
	}
	if !found {
		return fmt.Errorf("worker: send %s: conversation %s not found", msg.ID, msg.ConvoID)
	}

	id, ok, err := wc.Store.LoadIdentity(ctx)
	if err != nil {
		return fmt.Errorf("worker: send %s: load identity: %w", msg.ID, err)
	}
	if !ok {
		return fmt.Errorf("worker: send %s: no local identity", msg.ID)
	}
	defer id.Close()

	serverName, mailboxID, kind, body, err := packageOutbound(ctx, wc, id, convo, msg)
	if err != nil {
		return wc.Store.MarkSendFailed(ctx, msg.ID, err)
	}

	server, err := wc.Dial(ctx, serverName)
	if err != nil {
		return wc.Store.MarkSendFailed(ctx, msg.ID, fmt.Errorf("dial %s: %w", serverName, err))
	}

	if err := sendWithRetry(ctx, wc, server, mailboxID, kind, body); err != nil {
		return wc.Store.MarkSendFailed(ctx, msg.ID, err)
	}
	return wc.Store.MarkSent(ctx, msg.ID, wc.Clock.Now().UTC())
}

// packageOutbound builds the wire body and destination for one
// outbound message, branching on the conversation kind.
func packageOutbound(ctx context.Context, wc *Context, id store.Identity, convo store.Conversation, msg store.Message) (ref.ServerName, ref.MailboxID, string, []byte, error) {
	signingKey, err := loadSigningKey(id)
	if err != nil {
		return ref.ServerName{}, ref.MailboxID{}, "", nil, err
	}

	event := envelope.MessageEvent{SentAt: wc.Clock.Now().UTC(), MIME: msg.MIME, Body: msg.Body}

	switch convo.Kind {
	case store.ConvoDirect:
		recipient, err := ref.ParseUsername(convo.Counterparty)
		if err != nil {
			return ref.ServerName{}, ref.MailboxID{}, "", nil, fmt.Errorf("parse recipient: %w", err)
		}
		event.Recipient = recipient

		userRecord, err := wc.Directory.ResolveUser(ctx, recipient)
		if err != nil {
			return ref.ServerName{}, ref.MailboxID{}, "", nil, fmt.Errorf("resolve recipient: %w", err)
		}

		mpks, err := fetchMediumPKs(ctx, wc, recipient, userRecord.ServerName)
		if err != nil {
			return ref.ServerName{}, ref.MailboxID{}, "", nil, fmt.Errorf("fetch recipient medium keys: %w", err)
		}
		keys := verifiedMediumPKs(wc, recipient, userRecord.RootHash, mpks)
		if len(keys) == 0 {
			return ref.ServerName{}, ref.MailboxID{}, "", nil, fmt.Errorf("no verified medium keys for %s", recipient)
		}

		body, err := envelope.PackageDirectMessage(signingKey, id.Username, id.CertChain, keys, event)
		if err != nil {
			return ref.ServerName{}, ref.MailboxID{}, "", nil, fmt.Errorf("package direct message: %w", err)
		}
		mailboxID, err := envelope.DeriveDMMailboxID(userRecord.RootHash)
		if err != nil {
			return ref.ServerName{}, ref.MailboxID{}, "", nil, fmt.Errorf("derive dm mailbox: %w", err)
		}
		return userRecord.ServerName, mailboxID, envelope.DirectMessageKind, body, nil

	case store.ConvoGroup:
		groupID, err := ref.ParseGroupID(convo.Counterparty)
		if err != nil {
			return ref.ServerName{}, ref.MailboxID{}, "", nil, fmt.Errorf("parse group id: %w", err)
		}
		group, ok, err := wc.Store.LoadGroup(ctx, groupID)
		if err != nil {
			return ref.ServerName{}, ref.MailboxID{}, "", nil, fmt.Errorf("load group: %w", err)
		}
		if !ok {
			return ref.ServerName{}, ref.MailboxID{}, "", nil, fmt.Errorf("group %s not found", groupID)
		}
		body, err := envelope.PackageGroupMessage(signingKey, groupID, id.Username, id.CertChain, group.GroupKeyCurrent, event)
		if err != nil {
			return ref.ServerName{}, ref.MailboxID{}, "", nil, fmt.Errorf("package group message: %w", err)
		}
		messages, _, err := envelope.DeriveMailboxIDs(groupID)
		if err != nil {
			return ref.ServerName{}, ref.MailboxID{}, "", nil, fmt.Errorf("derive group mailboxes: %w", err)
		}
		return group.ServerName, messages, envelope.GroupMessageKind, body, nil

	default:
		return ref.ServerName{}, ref.MailboxID{}, "", nil, fmt.Errorf("unknown conversation kind %d", convo.Kind)
	}
}

// fetchMediumPKs consults the cache before dialing the recipient's
// server, populating the cache on a miss.
func fetchMediumPKs(ctx context.Context, wc *Context, recipient ref.Username, serverName ref.ServerName) ([]serverapi.SignedMediumPK, error) {
	if cached, ok := wc.MPKCache.Get(recipient); ok {
		return cached, nil
	}
	server, err := wc.Dial(ctx, serverName)
	if err != nil {
		return nil, err
	}
	keys, err := server.FetchMediumPKs(ctx, recipient)
	if err != nil {
		return nil, err
	}
	wc.MPKCache.Put(recipient, keys)
	return keys, nil
}

// verifiedMediumPKs keeps only the keys in mpks whose chain and
// signature verify under recipient's directory root hash, dropping —
// and logging — any the rest of the set can't vouch for. The server
// that served mpks is untrusted (spec.md §1: clients never trust
// servers with identity); without this check a malicious server could
// substitute its own key for the recipient's and read every message
// header-wrapped to it.
func verifiedMediumPKs(wc *Context, recipient ref.Username, rootHash [ncrypto.DigestSize]byte, mpks []serverapi.SignedMediumPK) []ncrypto.DHPublicKey {
	now := wc.Clock.Now().UTC()
	keys := make([]ncrypto.DHPublicKey, 0, len(mpks))
	for _, mpk := range mpks {
		if err := envelope.VerifyMediumPK(mpk.Sender, mpk.Chain, mpk.PublicKey, mpk.Signature, rootHash, now); err != nil {
			wc.Logger.Warn("dropping unverifiable medium key", "recipient", recipient, "error", err)
			continue
		}
		if !mpk.Sender.Equal(recipient) {
			wc.Logger.Warn("dropping medium key signed by a different sender", "recipient", recipient, "sender", mpk.Sender)
			continue
		}
		keys = append(keys, mpk.PublicKey)
	}
	return keys
}

// sendWithRetry attempts to append body to mailboxID, retrying with
// fixed doubling backoff on transport failure before giving up.
func sendWithRetry(ctx context.Context, wc *Context, server serverapi.Server, mailboxID ref.MailboxID, kind string, body []byte) error {
	delay := sendRetryBaseDelay
	var lastErr error
	for attempt := 0; attempt < sendRetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-wc.Clock.After(delay):
			}
			delay *= 2
		}
		err := server.MailboxSend(ctx, mailboxID, kind, body)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("worker: send: exhausted retries: %w", lastErr)
}
