// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/nullspace-chat/core/lib/clock"
	"github.com/nullspace-chat/core/lib/ref"
	"github.com/nullspace-chat/core/serverapi"
)

func TestConvoOpenDirectAndSendEnqueuesPending(t *testing.T) {
	ctx := context.Background()
	fakeClock := clock.Fake(time.Unix(1_700_000_000, 0))

	alice := newTestDevice(t, "@alice", "~home")
	bob := newTestDevice(t, "@bob", "~home")
	dir := newFakeDirectory()
	dir.register(alice)
	dir.register(bob)
	server := newFakeServer(fakeClock)
	dial := func(ctx context.Context, name ref.ServerName) (serverapi.Server, error) { return server, nil }

	s := openTestStore(t, fakeClock)
	saveIdentity(t, ctx, s, alice)
	cl := newTestClient(t, ctx, s, dir, dial, fakeClock)

	convo, err := cl.ConvoOpenDirect(ctx, bob.username)
	if err != nil {
		t.Fatalf("ConvoOpenDirect: %v", err)
	}

	// Reopening the same conversation must not create a duplicate.
	again, err := cl.ConvoOpenDirect(ctx, bob.username)
	if err != nil {
		t.Fatalf("ConvoOpenDirect (again): %v", err)
	}
	if again.ID != convo.ID {
		t.Fatalf("expected idempotent conversation id, got %s and %s", convo.ID, again.ID)
	}

	msgID, err := cl.ConvoSend(ctx, convo.ID, "text/plain", []byte("hi bob"))
	if err != nil {
		t.Fatalf("ConvoSend: %v", err)
	}
	if msgID == "" {
		t.Fatal("expected a non-empty message id")
	}

	pending, err := s.PendingMessages(ctx)
	if err != nil {
		t.Fatalf("PendingMessages: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != msgID {
		t.Fatalf("expected the sent message enqueued as pending, got %+v", pending)
	}
	if string(pending[0].Body) != "hi bob" {
		t.Fatalf("expected body to round-trip, got %q", pending[0].Body)
	}

	list, err := cl.ConvoList(ctx)
	if err != nil {
		t.Fatalf("ConvoList: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one conversation, got %d", len(list))
	}
}

func TestConvoSendUnknownConversationFails(t *testing.T) {
	ctx := context.Background()
	fakeClock := clock.Fake(time.Unix(1_700_000_000, 0))

	alice := newTestDevice(t, "@alice", "~home")
	dir := newFakeDirectory()
	dir.register(alice)
	server := newFakeServer(fakeClock)
	dial := func(ctx context.Context, name ref.ServerName) (serverapi.Server, error) { return server, nil }

	s := openTestStore(t, fakeClock)
	saveIdentity(t, ctx, s, alice)
	cl := newTestClient(t, ctx, s, dir, dial, fakeClock)

	if _, err := cl.ConvoSend(ctx, "does-not-exist", "text/plain", []byte("hi")); err == nil {
		t.Fatal("expected ConvoSend against an unknown conversation id to fail")
	}
}

func TestDumpDiagnosticsNeverIncludesSecretMaterial(t *testing.T) {
	ctx := context.Background()
	fakeClock := clock.Fake(time.Unix(1_700_000_000, 0))

	alice := newTestDevice(t, "@alice", "~home")
	bob := newTestDevice(t, "@bob", "~home")
	dir := newFakeDirectory()
	dir.register(alice)
	dir.register(bob)
	server := newFakeServer(fakeClock)
	server.registerChain(bob)
	dial := func(ctx context.Context, name ref.ServerName) (serverapi.Server, error) { return server, nil }

	s := openTestStore(t, fakeClock)
	saveIdentity(t, ctx, s, alice)
	cl := newTestClient(t, ctx, s, dir, dial, fakeClock)

	convo, err := cl.ConvoOpenDirect(ctx, bob.username)
	if err != nil {
		t.Fatalf("ConvoOpenDirect: %v", err)
	}
	if _, err := cl.ConvoSend(ctx, convo.ID, "text/plain", []byte("hi")); err != nil {
		t.Fatalf("ConvoSend: %v", err)
	}
	if _, err := cl.ConvoCreateGroup(ctx, alice.serverName); err != nil {
		t.Fatalf("ConvoCreateGroup: %v", err)
	}

	encoded, err := cl.DumpDiagnostics(ctx)
	if err != nil {
		t.Fatalf("DumpDiagnostics: %v", err)
	}

	var decoded map[string]any
	if err := cbor.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("cbor.Unmarshal: %v", err)
	}
	if decoded["conversation_count"] != uint64(2) {
		t.Fatalf("expected 2 conversations (dm + group), got %+v", decoded)
	}
	if decoded["pending_send_count"] != uint64(1) {
		t.Fatalf("expected 1 pending send, got %+v", decoded)
	}

	groups, ok := decoded["groups"].([]any)
	if !ok || len(groups) != 1 {
		t.Fatalf("expected one group summary, got %+v", decoded["groups"])
	}
	group, ok := groups[0].(map[any]any)
	if !ok {
		t.Fatalf("expected group summary to be a map, got %T", groups[0])
	}
	for _, forbidden := range []string{"management_key", "group_key_current", "group_key_previous", "descriptor"} {
		if _, present := group[forbidden]; present {
			t.Fatalf("diagnostics leaked key material field %q", forbidden)
		}
	}
}
