// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"github.com/nullspace-chat/core/envelope"
	"github.com/nullspace-chat/core/lib/codec"
	"github.com/nullspace-chat/core/lib/ncrypto"
	"github.com/nullspace-chat/core/lib/ref"
	"github.com/nullspace-chat/core/roster"
	"github.com/nullspace-chat/core/serverapi"
	"github.com/nullspace-chat/core/store"
)

// groupInviteMIME marks a direct message as carrying a group invite:
// the descriptor and current group key an invitee needs to decrypt
// the group's traffic, which the management log itself never carries.
const groupInviteMIME = "application/vnd.nullspace.v1.group_invite"

// groupInvitePayload is this client's own encrypted-DM shape, not the
// management log's wire format; it never leaves an end-to-end
// encrypted channel between two devices, so it does not need to match
// spec.md §6's illustrative sketch field-for-field.
type groupInvitePayload struct {
	GroupID         string `json:"group_id"`
	Descriptor      []byte `json:"descriptor"`
	GroupKeyCurrent []byte `json:"group_key_current"`
}

// ConvoCreateGroup creates a brand-new group hosted on server, with
// the caller as its sole founding admin, and returns its id.
func (c *Client) ConvoCreateGroup(ctx context.Context, server ref.ServerName) (ref.GroupID, error) {
	id, ok, err := c.wc.Store.LoadIdentity(ctx)
	if err != nil {
		return ref.GroupID{}, fmt.Errorf("client: create group: load identity: %w", err)
	}
	if !ok {
		return ref.GroupID{}, ErrNotReady
	}
	defer id.Close()

	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return ref.GroupID{}, fmt.Errorf("client: create group: nonce: %w", err)
	}
	managementKey := make([]byte, ncrypto.AEADKeySize)
	if _, err := rand.Read(managementKey); err != nil {
		return ref.GroupID{}, fmt.Errorf("client: create group: management key: %w", err)
	}
	groupKey := make([]byte, ncrypto.AEADKeySize)
	if _, err := rand.Read(groupKey); err != nil {
		return ref.GroupID{}, fmt.Errorf("client: create group: group key: %w", err)
	}

	descriptor := envelope.GroupDescriptor{
		Nonce:         nonce,
		InitAdmin:     id.Username,
		CreatedAt:     c.wc.Clock.Now().UTC(),
		ServerName:    server,
		ManagementKey: managementKey,
	}
	groupID := envelope.DeriveGroupID(descriptor)
	messagesMailbox, managementMailbox, err := envelope.DeriveMailboxIDs(groupID)
	if err != nil {
		return ref.GroupID{}, fmt.Errorf("client: create group: derive mailboxes: %w", err)
	}

	srv, err := c.wc.Dial(ctx, server)
	if err != nil {
		return ref.GroupID{}, fmt.Errorf("client: create group: dial: %w", err)
	}
	if err := srv.RegisterGroup(ctx, groupID); err != nil {
		return ref.GroupID{}, fmt.Errorf("client: create group: register: %w", err)
	}
	token, err := srv.DeviceAuth(ctx, id.CertChain)
	if err != nil {
		return ref.GroupID{}, fmt.Errorf("client: create group: device auth: %w", err)
	}
	fullACL := serverapi.MailboxACL{CanSend: true, CanRecv: true, CanEditACL: true}
	if err := srv.SetMailboxACL(ctx, messagesMailbox, token, fullACL); err != nil {
		return ref.GroupID{}, fmt.Errorf("client: create group: acl messages: %w", err)
	}
	if err := srv.SetMailboxACL(ctx, managementMailbox, token, fullACL); err != nil {
		return ref.GroupID{}, fmt.Errorf("client: create group: acl management: %w", err)
	}

	group := store.Group{
		GroupID:         groupID,
		Descriptor:      codec.Marshal(descriptor),
		ServerName:      server,
		GroupToken:      token,
		GroupKeyCurrent: groupKey,
	}
	if err := c.wc.Store.SaveGroup(ctx, group); err != nil {
		return ref.GroupID{}, fmt.Errorf("client: create group: save group: %w", err)
	}

	initial := roster.Replay(id.Username, nil)
	if err := c.wc.Store.ReplaceRoster(ctx, groupID, initial.GroupMembers(groupID)); err != nil {
		return ref.GroupID{}, fmt.Errorf("client: create group: replace roster: %w", err)
	}
	if _, err := c.wc.Store.EnsureConversation(ctx, store.ConvoGroup, groupID.String()); err != nil {
		return ref.GroupID{}, fmt.Errorf("client: create group: ensure conversation: %w", err)
	}
	c.notifyGroupJoined(group)
	return groupID, nil
}

// GroupInvite grants username access to groupID's mailboxes, hands
// them the group's descriptor and current key over a direct message,
// and records the invite in the group's management log. The caller
// must currently be an active admin of the group.
func (c *Client) GroupInvite(ctx context.Context, groupID ref.GroupID, username ref.Username) error {
	id, ok, err := c.wc.Store.LoadIdentity(ctx)
	if err != nil {
		return fmt.Errorf("client: group invite: load identity: %w", err)
	}
	if !ok {
		return ErrNotReady
	}
	defer id.Close()

	group, ok, err := c.wc.Store.LoadGroup(ctx, groupID)
	if err != nil {
		return fmt.Errorf("client: group invite: load group: %w", err)
	}
	if !ok {
		return fmt.Errorf("client: group invite: group %s not found", groupID)
	}
	descriptor, err := decodeGroupDescriptor(group)
	if err != nil {
		return fmt.Errorf("client: group invite: %w", err)
	}

	members, err := c.wc.Store.GroupMembers(ctx, groupID)
	if err != nil {
		return fmt.Errorf("client: group invite: group members: %w", err)
	}
	if !roster.FromGroupMembers(members).ActiveAdmin(id.Username) {
		return ErrAccessDenied
	}

	if _, err := c.wc.Directory.ResolveUser(ctx, username); err != nil {
		return fmt.Errorf("client: group invite: resolve invitee: %w", err)
	}

	srv, err := c.wc.Dial(ctx, group.ServerName)
	if err != nil {
		return fmt.Errorf("client: group invite: dial: %w", err)
	}
	inviteeChain, err := srv.FetchCertChain(ctx, username)
	if err != nil {
		return fmt.Errorf("client: group invite: fetch invitee chain: %w", err)
	}
	inviteeToken, err := srv.DeviceAuth(ctx, inviteeChain)
	if err != nil {
		return fmt.Errorf("client: group invite: invitee device auth: %w", err)
	}
	messagesMailbox, managementMailbox, err := envelope.DeriveMailboxIDs(groupID)
	if err != nil {
		return fmt.Errorf("client: group invite: derive mailboxes: %w", err)
	}
	memberACL := serverapi.MailboxACL{CanSend: true, CanRecv: true}
	if err := srv.SetMailboxACL(ctx, messagesMailbox, inviteeToken, memberACL); err != nil {
		return fmt.Errorf("client: group invite: acl messages: %w", err)
	}
	if err := srv.SetMailboxACL(ctx, managementMailbox, inviteeToken, memberACL); err != nil {
		return fmt.Errorf("client: group invite: acl management: %w", err)
	}

	payload, err := json.Marshal(groupInvitePayload{
		GroupID:         groupID.String(),
		Descriptor:      group.Descriptor,
		GroupKeyCurrent: group.GroupKeyCurrent,
	})
	if err != nil {
		return fmt.Errorf("client: group invite: encode invite: %w", err)
	}
	convo, err := c.wc.Store.EnsureConversation(ctx, store.ConvoDirect, username.String())
	if err != nil {
		return fmt.Errorf("client: group invite: ensure dm conversation: %w", err)
	}
	if _, err := c.wc.Store.EnqueuePending(ctx, convo.ID, id.Username, groupInviteMIME, payload); err != nil {
		return fmt.Errorf("client: group invite: enqueue invite dm: %w", err)
	}

	return c.postManagementEvent(ctx, id, groupID, group, descriptor, envelope.ManagementEvent{
		Kind:     envelope.EventInviteSent,
		Username: username,
	})
}

// GroupAcceptInvite accepts a pending invite delivered as a direct
// message (see GroupInvite), joining the group locally and recording
// acceptance in its management log.
func (c *Client) GroupAcceptInvite(ctx context.Context, dmMessageID string) (ref.GroupID, error) {
	id, ok, err := c.wc.Store.LoadIdentity(ctx)
	if err != nil {
		return ref.GroupID{}, fmt.Errorf("client: accept invite: load identity: %w", err)
	}
	if !ok {
		return ref.GroupID{}, ErrNotReady
	}
	defer id.Close()

	msg, ok, err := c.wc.Store.LoadMessage(ctx, dmMessageID)
	if err != nil {
		return ref.GroupID{}, fmt.Errorf("client: accept invite: load message: %w", err)
	}
	if !ok {
		return ref.GroupID{}, fmt.Errorf("client: accept invite: message %s not found", dmMessageID)
	}
	if msg.MIME != groupInviteMIME {
		return ref.GroupID{}, fmt.Errorf("client: accept invite: message %s is not a group invite", dmMessageID)
	}

	var payload groupInvitePayload
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		return ref.GroupID{}, fmt.Errorf("client: accept invite: decode invite: %w", err)
	}
	claimedID, err := ref.ParseGroupID(payload.GroupID)
	if err != nil {
		return ref.GroupID{}, fmt.Errorf("client: accept invite: parse group id: %w", err)
	}
	var descriptor envelope.GroupDescriptor
	if err := codec.Unmarshal(payload.Descriptor, &descriptor); err != nil {
		return ref.GroupID{}, fmt.Errorf("client: accept invite: decode descriptor: %w", err)
	}
	groupID := envelope.DeriveGroupID(descriptor)
	if !groupID.Equal(claimedID) {
		return ref.GroupID{}, fmt.Errorf("client: accept invite: descriptor does not match claimed group id")
	}

	group := store.Group{
		GroupID:         groupID,
		Descriptor:      payload.Descriptor,
		ServerName:      descriptor.ServerName,
		GroupKeyCurrent: payload.GroupKeyCurrent,
	}
	if err := c.wc.Store.SaveGroup(ctx, group); err != nil {
		return ref.GroupID{}, fmt.Errorf("client: accept invite: save group: %w", err)
	}
	if _, err := c.wc.Store.EnsureConversation(ctx, store.ConvoGroup, groupID.String()); err != nil {
		return ref.GroupID{}, fmt.Errorf("client: accept invite: ensure conversation: %w", err)
	}
	c.notifyGroupJoined(group)

	if err := c.postManagementEvent(ctx, id, groupID, group, descriptor, envelope.ManagementEvent{
		Kind: envelope.EventInviteAccepted,
	}); err != nil {
		return ref.GroupID{}, err
	}
	return groupID, nil
}

// GroupMembers returns groupID's currently known roster.
func (c *Client) GroupMembers(ctx context.Context, groupID ref.GroupID) ([]store.GroupMember, error) {
	members, err := c.wc.Store.GroupMembers(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("client: group members: %w", err)
	}
	return members, nil
}

// postManagementEvent signs, sends, and locally folds one management
// event, so the caller's own roster view reflects the change without
// waiting on a round trip through its own management mailbox.
func (c *Client) postManagementEvent(ctx context.Context, id store.Identity, groupID ref.GroupID, group store.Group, descriptor envelope.GroupDescriptor, event envelope.ManagementEvent) error {
	signingKey, err := loadSigningKey(id)
	if err != nil {
		return err
	}
	body, err := envelope.PackageManagement(signingKey, groupID, id.Username, id.CertChain, descriptor.ManagementKey, event, c.wc.Clock.Now().UTC())
	if err != nil {
		return fmt.Errorf("client: post management event: package: %w", err)
	}

	srv, err := c.wc.Dial(ctx, group.ServerName)
	if err != nil {
		return fmt.Errorf("client: post management event: dial: %w", err)
	}
	_, managementMailbox, err := envelope.DeriveMailboxIDs(groupID)
	if err != nil {
		return fmt.Errorf("client: post management event: derive mailboxes: %w", err)
	}
	if err := srv.MailboxSend(ctx, managementMailbox, envelope.GroupManagementKind, body); err != nil {
		return fmt.Errorf("client: post management event: send: %w", err)
	}

	members, err := c.wc.Store.GroupMembers(ctx, groupID)
	if err != nil {
		return fmt.Errorf("client: post management event: group members: %w", err)
	}
	current := roster.FromGroupMembers(members)
	current.Apply(roster.VerifiedManagementEvent{Sender: id.Username, Event: event})
	if err := c.wc.Store.ReplaceRoster(ctx, groupID, current.GroupMembers(groupID)); err != nil {
		return fmt.Errorf("client: post management event: replace roster: %w", err)
	}
	return nil
}

func decodeGroupDescriptor(g store.Group) (envelope.GroupDescriptor, error) {
	var d envelope.GroupDescriptor
	if err := codec.Unmarshal(g.Descriptor, &d); err != nil {
		return envelope.GroupDescriptor{}, fmt.Errorf("group descriptor: %w", err)
	}
	return d, nil
}
