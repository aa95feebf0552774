// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"context"
	"fmt"
	"sync"

	"github.com/nullspace-chat/core/lib/ref"
	"github.com/nullspace-chat/core/store"
)

// convoFingerprint identifies the most recent history-visible state of
// one conversation, cheaply comparable across two snapshots without
// hashing the message body.
type convoFingerprint struct {
	lastMessageID string
	receivedAt    int64
}

type snapshot struct {
	identityPresent bool
	convos          map[string]convoFingerprint
	groups          map[ref.GroupID]uint64
}

// Loop watches a store and turns its notifier's generation counter
// into an ordered stream of Events. The zero value is not usable;
// construct with New.
//
// Loop is not safe for concurrent use by multiple goroutines calling
// Next — a client façade owns exactly one Loop and serializes access
// to it, same restriction the teacher's RoomWatcher documents.
type Loop struct {
	store *store.Store

	mu         sync.Mutex
	generation uint64
	pending    []Event
	snapshot   snapshot
}

// New constructs a Loop anchored at the store's current state: only
// changes after this call are ever reported, matching the teacher's
// WatchRoom "only sees events arriving after this call" contract.
func New(ctx context.Context, s *store.Store) (*Loop, error) {
	l := &Loop{
		store:      s,
		generation: s.Notifier().Generation(),
	}
	snap, _, err := l.observe(ctx)
	if err != nil {
		return nil, fmt.Errorf("event: new loop: %w", err)
	}
	l.snapshot = snap
	return l, nil
}

// Next blocks until the store changes, then returns the next queued
// Event. Multiple store writes that land in the same notifier wakeup
// surface as multiple Events returned by successive Next calls, never
// collapsed into one. Next only returns an error when ctx is
// cancelled or the store itself fails to answer a query — a change in
// application state never produces an error.
func (l *Loop) Next(ctx context.Context) (Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for len(l.pending) == 0 {
		generation, err := l.store.Notifier().Wait(ctx, l.generation)
		if err != nil {
			return nil, fmt.Errorf("event: next: %w", err)
		}
		l.generation = generation

		snap, events, err := l.observe(ctx)
		if err != nil {
			return nil, fmt.Errorf("event: next: %w", err)
		}
		l.snapshot = snap
		l.pending = append(l.pending, events...)
	}

	next := l.pending[0]
	l.pending = l.pending[1:]
	return next, nil
}

// observe reads the store's current state and returns both a fresh
// snapshot and the events that distinguish it from l.snapshot. Order
// matters: identity transitions are reported before conversation and
// group changes discovered in the same pass, so a UI never observes a
// ConvoUpdated for a conversation before the State that logged it in
// (spec's monotonic-view ordering guarantee).
func (l *Loop) observe(ctx context.Context) (snapshot, []Event, error) {
	var events []Event

	id, ok, err := l.store.LoadIdentity(ctx)
	if err != nil {
		return snapshot{}, nil, fmt.Errorf("load identity: %w", err)
	}
	if ok {
		id.Close()
	}
	if ok != l.snapshot.identityPresent {
		events = append(events, State{LoggedIn: ok})
	}

	convos, err := l.store.ListConversations(ctx)
	if err != nil {
		return snapshot{}, nil, fmt.Errorf("list conversations: %w", err)
	}
	convoSnap := make(map[string]convoFingerprint, len(convos))
	for _, c := range convos {
		fp, err := latestConvoFingerprint(ctx, l.store, c.ID)
		if err != nil {
			return snapshot{}, nil, fmt.Errorf("convo %s fingerprint: %w", c.ID, err)
		}
		convoSnap[c.ID] = fp
		if prev, existed := l.snapshot.convos[c.ID]; !existed || prev != fp {
			events = append(events, ConvoUpdated{ConvoID: c.ID})
		}
	}

	groups, err := l.store.ListGroups(ctx)
	if err != nil {
		return snapshot{}, nil, fmt.Errorf("list groups: %w", err)
	}
	groupSnap := make(map[ref.GroupID]uint64, len(groups))
	for _, g := range groups {
		groupSnap[g.GroupID] = g.RosterVersion
		if prev, existed := l.snapshot.groups[g.GroupID]; !existed || prev != g.RosterVersion {
			events = append(events, GroupUpdated{GroupID: g.GroupID})
		}
	}

	return snapshot{identityPresent: ok, convos: convoSnap, groups: groupSnap}, events, nil
}

// latestConvoFingerprint returns a fingerprint of the most recent
// history-visible message in convoID, or the zero fingerprint if the
// conversation has none yet (it was just created with no traffic).
func latestConvoFingerprint(ctx context.Context, s *store.Store, convoID string) (convoFingerprint, error) {
	messages, err := s.History(ctx, convoID, 0, 0, 1)
	if err != nil {
		return convoFingerprint{}, err
	}
	if len(messages) == 0 {
		return convoFingerprint{}, nil
	}
	latest := messages[0]
	return convoFingerprint{lastMessageID: latest.ID, receivedAt: latest.ReceivedAt.UnixNano()}, nil
}
