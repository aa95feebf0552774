// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/nullspace-chat/core/directory"
	"github.com/nullspace-chat/core/envelope"
	"github.com/nullspace-chat/core/event"
	"github.com/nullspace-chat/core/lib/clock"
	"github.com/nullspace-chat/core/lib/mpkcache"
	"github.com/nullspace-chat/core/lib/ref"
	"github.com/nullspace-chat/core/store"
	"github.com/nullspace-chat/core/worker"
)

// Client is the host application's handle onto one local identity: a
// store, a directory and server dialer, and the event stream that
// reports what changed. The zero value is not usable; construct with
// New.
type Client struct {
	wc     *worker.Context
	events *event.Loop

	// joined carries newly created or accepted groups to a running
	// Run so it can launch their receive loops without a restart.
	// Buffered and drained best-effort: if Run isn't currently active
	// the send is dropped, since the next Run call picks the group up
	// via ListGroups anyway.
	joined chan store.Group
}

const joinedGroupBacklog = 16

// Config holds the collaborators a Client needs. Store, Directory, and
// Dial are required. Clock defaults to clock.Real, Logger to a discard
// logger.
type Config struct {
	Store     *store.Store
	Directory directory.Directory
	Dial      worker.ServerDialer
	Clock     clock.Clock
	Logger    *slog.Logger
}

// New constructs a Client over an already-opened store, taking an
// initial snapshot of its event stream (see [event.New]: only changes
// after this call are ever reported).
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("client: new: Store is required")
	}
	if cfg.Directory == nil {
		return nil, fmt.Errorf("client: new: Directory is required")
	}
	if cfg.Dial == nil {
		return nil, fmt.Errorf("client: new: Dial is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	loop, err := event.New(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("client: new: %w", err)
	}

	wc := &worker.Context{
		Store:     cfg.Store,
		Directory: cfg.Directory,
		Dial:      cfg.Dial,
		Clock:     cfg.Clock,
		Logger:    cfg.Logger,
		MPKCache:  mpkcache.New(cfg.Clock),
	}

	return &Client{wc: wc, events: loop, joined: make(chan store.Group, joinedGroupBacklog)}, nil
}

// notifyGroupJoined tells a running Run about a group created or
// accepted after Run started, so it can launch that group's receive
// loops immediately instead of waiting for a restart. A no-op if Run
// is not currently draining the channel.
func (c *Client) notifyGroupJoined(group store.Group) {
	select {
	case c.joined <- group:
	default:
	}
}

// NextEvent blocks until the store changes in a way worth telling a
// UI about, then returns the next queued event. See [event.Loop.Next].
func (c *Client) NextEvent(ctx context.Context) (event.Event, error) {
	return c.events.Next(ctx)
}

// Run launches the client's background loops — sending, rotating the
// medium key, and receiving on the caller's own direct-message mailbox
// plus every known group's mailboxes — and blocks until ctx is
// cancelled or one of them returns a terminal error, at which point
// every other loop is cancelled too.
//
// Run requires a local identity to already exist; call RegisterFinish
// first. A group created or accepted after Run has already started
// gets its receive loops launched immediately, fed over the channel
// ConvoCreateGroup and GroupAcceptInvite publish to; it does not wait
// for a restart.
func (c *Client) Run(ctx context.Context) error {
	id, ok, err := c.wc.Store.LoadIdentity(ctx)
	if err != nil {
		return fmt.Errorf("client: run: load identity: %w", err)
	}
	if !ok {
		return ErrNotReady
	}
	username := id.Username
	id.Close()

	self, err := c.wc.Directory.ResolveUser(ctx, username)
	if err != nil {
		return fmt.Errorf("client: run: resolve self: %w", err)
	}
	dmMailbox, err := envelope.DeriveDMMailboxID(self.RootHash)
	if err != nil {
		return fmt.Errorf("client: run: derive dm mailbox: %w", err)
	}

	groups, err := c.wc.Store.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("client: run: list groups: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return worker.SendLoop(ctx, c.wc) })
	g.Go(func() error { return worker.RotateLoop(ctx, c.wc) })
	g.Go(func() error {
		return worker.ReceiveMailbox(ctx, c.wc, self.ServerName, dmMailbox, worker.DirectMessageDispatcher(c.wc))
	})

	launched := make(map[ref.GroupID]bool, len(groups))
	for _, grp := range groups {
		if err := launchGroupLoops(g, ctx, c, grp); err != nil {
			return err
		}
		launched[grp.GroupID] = true
	}

	g.Go(func() error {
		for {
			select {
			case grp := <-c.joined:
				if launched[grp.GroupID] {
					continue
				}
				launched[grp.GroupID] = true
				if err := launchGroupLoops(g, ctx, c, grp); err != nil {
					return err
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	return g.Wait()
}

// launchGroupLoops starts one group's message and management receive
// loops under g, deriving its mailbox ids from its group id.
func launchGroupLoops(g *errgroup.Group, ctx context.Context, c *Client, grp store.Group) error {
	groupID := grp.GroupID
	serverName := grp.ServerName
	messagesMailbox, managementMailbox, err := envelope.DeriveMailboxIDs(groupID)
	if err != nil {
		return fmt.Errorf("client: run: derive mailboxes for group %s: %w", groupID, err)
	}
	g.Go(func() error {
		return worker.ReceiveMailbox(ctx, c.wc, serverName, messagesMailbox, worker.GroupMessageDispatcher(c.wc, groupID))
	})
	g.Go(func() error {
		return worker.ReceiveMailbox(ctx, c.wc, serverName, managementMailbox, worker.GroupManagementDispatcher(c.wc, groupID))
	})
	return nil
}
