// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"

	"github.com/nullspace-chat/core/lib/ref"
	"github.com/nullspace-chat/core/store"
)

// ConvoList returns every conversation known locally, most recently
// created first.
func (c *Client) ConvoList(ctx context.Context) ([]store.Conversation, error) {
	convos, err := c.wc.Store.ListConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("client: convo list: %w", err)
	}
	return convos, nil
}

// ConvoOpenDirect returns the direct conversation with username,
// creating it locally if this is the first message exchanged. It does
// not, by itself, contact username's server; the send loop resolves
// their medium keys lazily the first time a message is actually sent.
func (c *Client) ConvoOpenDirect(ctx context.Context, username ref.Username) (store.Conversation, error) {
	convo, err := c.wc.Store.EnsureConversation(ctx, store.ConvoDirect, username.String())
	if err != nil {
		return store.Conversation{}, fmt.Errorf("client: convo open direct: %w", err)
	}
	return convo, nil
}

// ConvoHistory returns convoID's messages, most recent first, bounded
// by before/after UnixNano timestamps (zero means unbounded) and
// capped at limit (0 selects the default).
func (c *Client) ConvoHistory(ctx context.Context, convoID string, before, after int64, limit int) ([]store.Message, error) {
	messages, err := c.wc.Store.History(ctx, convoID, before, after, limit)
	if err != nil {
		return nil, fmt.Errorf("client: convo history: %w", err)
	}
	return messages, nil
}

// ConvoSend enqueues a message for delivery on an already-known
// conversation (see ConvoOpenDirect or ConvoCreateGroup) and returns
// its locally-assigned id. The send loop launched by Run picks it up,
// packages it for the conversation's kind, and marks it sent or
// failed; ConvoSend itself never blocks on network I/O.
func (c *Client) ConvoSend(ctx context.Context, convoID string, mime string, body []byte) (string, error) {
	id, ok, err := c.wc.Store.LoadIdentity(ctx)
	if err != nil {
		return "", fmt.Errorf("client: convo send: load identity: %w", err)
	}
	if !ok {
		return "", ErrNotReady
	}
	sender := id.Username
	id.Close()

	if _, ok, err := c.wc.Store.LoadConversation(ctx, convoID); err != nil {
		return "", fmt.Errorf("client: convo send: load conversation: %w", err)
	} else if !ok {
		return "", fmt.Errorf("client: convo send: conversation %s not found", convoID)
	}

	messageID, err := c.wc.Store.EnqueuePending(ctx, convoID, sender, mime, body)
	if err != nil {
		return "", fmt.Errorf("client: convo send: enqueue: %w", err)
	}
	return messageID, nil
}

// OwnServer returns the home server of the local identity.
func (c *Client) OwnServer(ctx context.Context) (ref.ServerName, error) {
	id, ok, err := c.wc.Store.LoadIdentity(ctx)
	if err != nil {
		return ref.ServerName{}, fmt.Errorf("client: own server: %w", err)
	}
	if !ok {
		return ref.ServerName{}, ErrNotReady
	}
	id.Close()
	return id.ServerName, nil
}
