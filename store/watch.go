// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"sync"
)

// Notifier is a watch cell: a generation counter plus a broadcast
// channel, per spec.md §9's "change notification without callbacks"
// design. Writers call Notify after a transaction commits; waiters
// call Wait to block until the generation advances past the value
// they last observed.
//
// Wait is level-triggered, not edge-triggered: if the generation has
// already advanced since the caller's last observed value, Wait
// returns immediately. Multiple notifications before a waiter gets
// scheduled coalesce into one wakeup — callers must re-read the store
// to discover everything that changed, never assume one wakeup
// corresponds to one write.
//
// Notifier is safe for concurrent use. The zero value is not usable;
// construct one with NewNotifier.
type Notifier struct {
	mu         sync.Mutex
	generation uint64
	changed    chan struct{}
}

// NewNotifier returns a Notifier at generation 0.
func NewNotifier() *Notifier {
	return &Notifier{changed: make(chan struct{})}
}

// Generation returns the current generation counter. Callers pass the
// returned value to a later Wait call to block until something has
// changed since this observation.
func (n *Notifier) Generation() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.generation
}

// Notify advances the generation counter and wakes every waiter
// blocked in Wait.
func (n *Notifier) Notify() {
	n.mu.Lock()
	n.generation++
	closing := n.changed
	n.changed = make(chan struct{})
	n.mu.Unlock()
	close(closing)
}

// Wait blocks until the generation counter advances past observed, ctx
// is cancelled, or the generation has already advanced (in which case
// Wait returns immediately). It returns the generation observed at
// return time.
func (n *Notifier) Wait(ctx context.Context, observed uint64) (uint64, error) {
	for {
		n.mu.Lock()
		current := n.generation
		wake := n.changed
		n.mu.Unlock()

		if current != observed {
			return current, nil
		}

		select {
		case <-wake:
			continue
		case <-ctx.Done():
			return current, ctx.Err()
		}
	}
}
