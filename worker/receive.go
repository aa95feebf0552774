// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nullspace-chat/core/envelope"
	"github.com/nullspace-chat/core/lib/codec"
	"github.com/nullspace-chat/core/lib/ref"
	"github.com/nullspace-chat/core/roster"
	"github.com/nullspace-chat/core/serverapi"
	"github.com/nullspace-chat/core/store"
)

const (
	longPollMin       = 15 * time.Second
	longPollMax       = 30 * time.Minute
	longPollIncrement = 5 * time.Second
	longPollDecFactor = 0.5

	receiveErrorPause = time.Second
)

func aimdIncrease(current time.Duration) time.Duration {
	next := current + longPollIncrement
	if next > longPollMax {
		return longPollMax
	}
	return next
}

func aimdDecrease(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * longPollDecFactor)
	if next < longPollMin {
		return longPollMin
	}
	return next
}

// Dispatch handles one mailbox entry already retrieved from a poll.
// Implementations decrypt, verify, and persist; ReceiveMailbox treats
// a returned error as non-fatal and keeps polling.
type Dispatch func(ctx context.Context, entry serverapi.MailboxEntry) error

// ReceiveMailbox long-polls one mailbox forever, dispatching every
// entry it sees and advancing the store cursor past it, until ctx is
// cancelled. The poll timeout adapts within [longPollMin, longPollMax]:
// idle polls grow it additively, errors shrink it multiplicatively so
// a struggling server is retried sooner rather than held open longer.
func ReceiveMailbox(ctx context.Context, wc *Context, serverName ref.ServerName, mailboxID ref.MailboxID, dispatch Dispatch) error {
	timeout := longPollMin
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		after, err := wc.Store.MailboxCursor(ctx, serverName, mailboxID)
		if err != nil {
			return fmt.Errorf("worker: receive %s: cursor: %w", mailboxID, err)
		}

		server, err := wc.Dial(ctx, serverName)
		if err != nil {
			wc.Logger.Warn("receive: dial failed", "server", serverName, "mailbox", mailboxID, "error", err)
			timeout = aimdDecrease(timeout)
			if !sleepOrDone(ctx, wc, receiveErrorPause) {
				return ctx.Err()
			}
			continue
		}

		pollCtx, cancel := context.WithTimeout(ctx, timeout)
		entries, err := server.MailboxPoll(pollCtx, mailboxID, time.Unix(0, after))
		cancel()
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return ctx.Err()
			}
			wc.Logger.Warn("receive: poll failed", "server", serverName, "mailbox", mailboxID, "error", err)
			timeout = aimdDecrease(timeout)
			if !sleepOrDone(ctx, wc, receiveErrorPause) {
				return ctx.Err()
			}
			continue
		}

		if len(entries) == 0 {
			timeout = aimdIncrease(timeout)
			continue
		}

		latest := after
		for _, entry := range entries {
			if err := dispatch(ctx, entry); err != nil {
				wc.Logger.Warn("receive: dispatch failed", "mailbox", mailboxID, "entry", entry.EntryID, "error", err)
			}
			if ts := entry.ReceivedAt.UnixNano(); ts > latest {
				latest = ts
			}
		}
		if err := wc.Store.AdvanceMailboxCursor(ctx, serverName, mailboxID, latest); err != nil {
			return fmt.Errorf("worker: receive %s: advance cursor: %w", mailboxID, err)
		}
	}
}

func sleepOrDone(ctx context.Context, wc *Context, d time.Duration) bool {
	select {
	case <-wc.Clock.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// DirectMessageDispatcher handles entries on the caller's own
// direct-message mailbox: header-decrypt with the current (and, during
// rotation overlap, previous) medium key, verify the device chain
// against the sender's directory-resolved root hash, then persist.
func DirectMessageDispatcher(wc *Context) Dispatch {
	return func(ctx context.Context, entry serverapi.MailboxEntry) error {
		if entry.Kind != envelope.DirectMessageKind {
			return fmt.Errorf("worker: direct dispatch: unexpected kind %q", entry.Kind)
		}

		id, ok, err := wc.Store.LoadIdentity(ctx)
		if err != nil {
			return fmt.Errorf("load identity: %w", err)
		}
		if !ok {
			return errors.New("no local identity")
		}
		defer id.Close()

		mediumKeys, err := loadMediumKeys(id)
		if err != nil {
			return err
		}

		signedBytes, err := envelope.HeaderDecryptAny(mediumKeys, entry.Body)
		if err != nil {
			return fmt.Errorf("header decrypt: %w", err)
		}

		sender, err := envelope.PeekSender(signedBytes)
		if err != nil {
			return fmt.Errorf("peek sender: %w", err)
		}
		senderRecord, err := wc.Directory.ResolveUser(ctx, sender)
		if err != nil {
			return fmt.Errorf("resolve sender: %w", err)
		}
		signed, err := envelope.DeviceVerify(signedBytes, senderRecord.RootHash, wc.Clock.Now().UTC())
		if err != nil {
			return fmt.Errorf("device verify: %w", err)
		}

		event, err := envelope.UnpackageMessageContent(signed.Body)
		if err != nil {
			return fmt.Errorf("message content: %w", err)
		}

		convo, err := wc.Store.EnsureConversation(ctx, store.ConvoDirect, sender.String())
		if err != nil {
			return fmt.Errorf("ensure conversation: %w", err)
		}
		_, err = wc.Store.InsertReceived(ctx, store.Message{
			ConvoID:        convo.ID,
			SenderUsername: sender,
			MIME:           event.MIME,
			Body:           event.Body,
			ReceivedAt:     entry.ReceivedAt,
		})
		if err != nil {
			return fmt.Errorf("insert received: %w", err)
		}
		return nil
	}
}

// GroupMessageDispatcher handles entries on one group's messages
// mailbox: chat messages and rekey announcements share this mailbox
// and are told apart by entry.Kind.
func GroupMessageDispatcher(wc *Context, groupID ref.GroupID) Dispatch {
	return func(ctx context.Context, entry serverapi.MailboxEntry) error {
		group, ok, err := wc.Store.LoadGroup(ctx, groupID)
		if err != nil {
			return fmt.Errorf("load group: %w", err)
		}
		if !ok {
			return fmt.Errorf("group %s not found", groupID)
		}

		switch entry.Kind {
		case envelope.GroupMessageKind:
			return dispatchGroupChat(ctx, wc, groupID, group, entry)
		case envelope.GroupRekeyKind:
			return acceptRekey(ctx, wc, groupID, group, entry)
		default:
			return fmt.Errorf("worker: group dispatch: unexpected kind %q", entry.Kind)
		}
	}
}

func dispatchGroupChat(ctx context.Context, wc *Context, groupID ref.GroupID, group store.Group, entry serverapi.MailboxEntry) error {
	signed, err := envelope.UnpackageGroupMessage(group.GroupKeyCurrent, group.GroupKeyPrevious, groupID, entry.Body)
	if err != nil {
		return fmt.Errorf("unpackage group message: %w", err)
	}
	senderRecord, err := wc.Directory.ResolveUser(ctx, signed.Sender)
	if err != nil {
		return fmt.Errorf("resolve sender: %w", err)
	}
	if err := signed.Verify(senderRecord.RootHash, wc.Clock.Now().UTC()); err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	id, ok, err := wc.Store.LoadIdentity(ctx)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	if !ok {
		return errors.New("no local identity")
	}
	self := id.Username
	id.Close()
	if signed.Sender.Equal(self) {
		// A member sees her own group posts twice: once locally when
		// MarkSent stamps the outbound row, once more here when the
		// group's message mailbox echoes it back to every member,
		// herself included. The echo carries no client message id to
		// reconcile against the row already inserted at send time, so
		// drop it here instead of double-inserting.
		return nil
	}

	event, err := envelope.UnpackageMessageContent(signed.Blob)
	if err != nil {
		return fmt.Errorf("message content: %w", err)
	}

	convo, err := wc.Store.EnsureConversation(ctx, store.ConvoGroup, groupID.String())
	if err != nil {
		return fmt.Errorf("ensure conversation: %w", err)
	}
	_, err = wc.Store.InsertReceived(ctx, store.Message{
		ConvoID:        convo.ID,
		SenderUsername: signed.Sender,
		MIME:           event.MIME,
		Body:           event.Body,
		ReceivedAt:     entry.ReceivedAt,
	})
	if err != nil {
		return fmt.Errorf("insert received: %w", err)
	}
	return nil
}

// acceptRekey verifies and applies a group key rotation announcement.
// Only a current active admin may rotate the group key; a rekey from
// anyone else is not applied and is returned as an error, which
// ReceiveMailbox logs as a dispatch failure.
func acceptRekey(ctx context.Context, wc *Context, groupID ref.GroupID, group store.Group, entry serverapi.MailboxEntry) error {
	id, ok, err := wc.Store.LoadIdentity(ctx)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	if !ok {
		return errors.New("no local identity")
	}
	defer id.Close()

	mediumKeys, err := loadMediumKeys(id)
	if err != nil {
		return err
	}

	signedBytes, err := envelope.HeaderDecryptAny(mediumKeys, entry.Body)
	if err != nil {
		return fmt.Errorf("header decrypt: %w", err)
	}

	sender, err := envelope.PeekSender(signedBytes)
	if err != nil {
		return fmt.Errorf("peek sender: %w", err)
	}
	senderRecord, err := wc.Directory.ResolveUser(ctx, sender)
	if err != nil {
		return fmt.Errorf("resolve sender: %w", err)
	}
	signed, err := envelope.DeviceVerify(signedBytes, senderRecord.RootHash, wc.Clock.Now().UTC())
	if err != nil {
		return fmt.Errorf("device verify: %w", err)
	}

	payload, err := envelope.UnpackageRekey(signed)
	if err != nil {
		return fmt.Errorf("unpackage rekey: %w", err)
	}
	if !payload.GroupID.Equal(groupID) {
		return fmt.Errorf("rekey group id mismatch")
	}

	members, err := wc.Store.GroupMembers(ctx, groupID)
	if err != nil {
		return fmt.Errorf("group members: %w", err)
	}
	if !roster.FromGroupMembers(members).ActiveAdmin(sender) {
		return fmt.Errorf("rekey from non-admin %s dropped", sender)
	}

	group.GroupKeyPrevious = group.GroupKeyCurrent
	group.GroupKeyCurrent = payload.NewGroupKey
	if err := wc.Store.SaveGroup(ctx, group); err != nil {
		return fmt.Errorf("save group: %w", err)
	}
	return nil
}

// GroupManagementDispatcher handles entries on one group's management
// mailbox: each is one verified event, applied incrementally onto the
// currently persisted roster.
func GroupManagementDispatcher(wc *Context, groupID ref.GroupID) Dispatch {
	return func(ctx context.Context, entry serverapi.MailboxEntry) error {
		group, ok, err := wc.Store.LoadGroup(ctx, groupID)
		if err != nil {
			return fmt.Errorf("load group: %w", err)
		}
		if !ok {
			return fmt.Errorf("group %s not found", groupID)
		}
		descriptor, err := loadGroupDescriptor(group)
		if err != nil {
			return err
		}

		signed, event, err := envelope.UnpackageManagement(descriptor.ManagementKey, groupID, entry.Body)
		if err != nil {
			return fmt.Errorf("unpackage management: %w", err)
		}
		senderRecord, err := wc.Directory.ResolveUser(ctx, signed.Sender)
		if err != nil {
			return fmt.Errorf("resolve sender: %w", err)
		}
		if err := signed.Verify(senderRecord.RootHash, wc.Clock.Now().UTC()); err != nil {
			return fmt.Errorf("verify: %w", err)
		}

		members, err := wc.Store.GroupMembers(ctx, groupID)
		if err != nil {
			return fmt.Errorf("group members: %w", err)
		}
		current := roster.FromGroupMembers(members)
		current.Apply(roster.VerifiedManagementEvent{Sender: signed.Sender, Event: event})

		if err := wc.Store.ReplaceRoster(ctx, groupID, current.GroupMembers(groupID)); err != nil {
			return fmt.Errorf("replace roster: %w", err)
		}
		return nil
	}
}

func loadGroupDescriptor(g store.Group) (envelope.GroupDescriptor, error) {
	var d envelope.GroupDescriptor
	if err := codec.Unmarshal(g.Descriptor, &d); err != nil {
		return envelope.GroupDescriptor{}, fmt.Errorf("worker: group descriptor: %w", err)
	}
	return d, nil
}
