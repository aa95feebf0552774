// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// mailboxLag is one mailbox's diagnostic snapshot: which server and
// mailbox, and the last after_timestamp the receive loop advanced
// past. It carries no message content.
type mailboxLag struct {
	ServerName string `cbor:"server_name"`
	MailboxID  string `cbor:"mailbox_id"`
	After      int64  `cbor:"after_timestamp"`
}

// groupSummary is one group's diagnostic snapshot: its id, roster
// size, and the persisted roster version, without the group's key
// material or its descriptor's management key.
type groupSummary struct {
	GroupID       string `cbor:"group_id"`
	MemberCount   int    `cbor:"member_count"`
	RosterVersion uint64 `cbor:"roster_version"`
}

// diagnostics is the full support-bundle snapshot DumpDiagnostics
// produces: enough to triage a stuck receive loop or a missing group
// without a support engineer ever needing message plaintext or key
// material.
type diagnostics struct {
	ConversationCount int            `cbor:"conversation_count"`
	PendingSendCount  int            `cbor:"pending_send_count"`
	Groups            []groupSummary `cbor:"groups"`
	MailboxLag        []mailboxLag   `cbor:"mailbox_lag"`
}

// DumpDiagnostics returns a CBOR-encoded operational snapshot for a
// support bundle: conversation and pending-send counts, each known
// group's roster size, and per-mailbox receive lag. It never includes
// secret key material or message plaintext.
func (c *Client) DumpDiagnostics(ctx context.Context) ([]byte, error) {
	convos, err := c.wc.Store.ListConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("client: dump diagnostics: list conversations: %w", err)
	}
	pending, err := c.wc.Store.PendingMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("client: dump diagnostics: pending messages: %w", err)
	}
	groups, err := c.wc.Store.ListGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("client: dump diagnostics: list groups: %w", err)
	}
	cursors, err := c.wc.Store.ListMailboxCursors(ctx)
	if err != nil {
		return nil, fmt.Errorf("client: dump diagnostics: list cursors: %w", err)
	}

	d := diagnostics{
		ConversationCount: len(convos),
		PendingSendCount:  len(pending),
	}
	for _, g := range groups {
		members, err := c.wc.Store.GroupMembers(ctx, g.GroupID)
		if err != nil {
			return nil, fmt.Errorf("client: dump diagnostics: group members: %w", err)
		}
		d.Groups = append(d.Groups, groupSummary{
			GroupID:       g.GroupID.String(),
			MemberCount:   len(members),
			RosterVersion: g.RosterVersion,
		})
	}
	for _, cur := range cursors {
		d.MailboxLag = append(d.MailboxLag, mailboxLag{
			ServerName: cur.ServerName.String(),
			MailboxID:  cur.MailboxID.String(),
			After:      cur.AfterTimestamp,
		})
	}

	encoded, err := cbor.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("client: dump diagnostics: encode: %w", err)
	}
	return encoded, nil
}
