// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package worker_test

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nullspace-chat/core/cert"
	"github.com/nullspace-chat/core/directory"
	"github.com/nullspace-chat/core/envelope"
	"github.com/nullspace-chat/core/lib/clock"
	"github.com/nullspace-chat/core/lib/codec"
	"github.com/nullspace-chat/core/lib/mpkcache"
	"github.com/nullspace-chat/core/lib/ncrypto"
	"github.com/nullspace-chat/core/lib/ref"
	"github.com/nullspace-chat/core/lib/secret"
	"github.com/nullspace-chat/core/serverapi"
	"github.com/nullspace-chat/core/store"
	"github.com/nullspace-chat/core/worker"
)

// testDevice bundles the material a fake user needs to look, sign,
// and verify like a real device: its signing key, self-signed root
// chain, and X25519 medium key.
type testDevice struct {
	username   ref.Username
	serverName ref.ServerName
	signing    ncrypto.SigningKey
	chain      cert.Chain
	rootHash   [ncrypto.DigestSize]byte
	mediumKey  ncrypto.DHPrivateKey
}

func newTestDevice(t *testing.T, name, serverName string) *testDevice {
	t.Helper()
	username, err := ref.ParseUsername(name)
	if err != nil {
		t.Fatalf("ParseUsername: %v", err)
	}
	server, err := ref.ParseServerName(serverName)
	if err != nil {
		t.Fatalf("ParseServerName: %v", err)
	}
	signing, err := ncrypto.GenerateSigningKey()
	if err != nil {
		t.Fatalf("GenerateSigningKey: %v", err)
	}
	root := cert.SignSelf(signing, time.Now().Add(24*time.Hour))
	mediumKey, err := ncrypto.GenerateDHKey()
	if err != nil {
		t.Fatalf("GenerateDHKey: %v", err)
	}
	return &testDevice{
		username:   username,
		serverName: server,
		signing:    signing,
		chain:      cert.Chain{This: root},
		rootHash:   cert.RootHash(signing.Public()),
		mediumKey:  mediumKey,
	}
}

// fakeDirectory resolves every device registered with it and nothing
// else.
type fakeDirectory struct {
	mu    sync.Mutex
	users map[string]directory.UserRecord
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{users: make(map[string]directory.UserRecord)}
}

func (d *fakeDirectory) register(dev *testDevice) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[dev.username.String()] = directory.UserRecord{ServerName: dev.serverName, RootHash: dev.rootHash}
}

func (d *fakeDirectory) ResolveUser(ctx context.Context, username ref.Username) (directory.UserRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.users[username.String()]
	if !ok {
		return directory.UserRecord{}, fmt.Errorf("fake directory: unknown user %s", username)
	}
	return rec, nil
}

func (d *fakeDirectory) ResolveServer(ctx context.Context, name ref.ServerName) (directory.ServerRecord, error) {
	return directory.ServerRecord{}, fmt.Errorf("fake directory: ResolveServer not implemented")
}

func (d *fakeDirectory) RegisterUser(ctx context.Context, username ref.Username, serverName ref.ServerName, rootHash [ncrypto.DigestSize]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[username.String()] = directory.UserRecord{ServerName: serverName, RootHash: rootHash}
	return nil
}

func (d *fakeDirectory) AddOwner(ctx context.Context, username ref.Username, ownerRootHash [ncrypto.DigestSize]byte) error {
	return nil
}

func (d *fakeDirectory) SetUserDescriptor(ctx context.Context, username ref.Username, descriptor []byte) error {
	return nil
}

// fakeServer is a single in-memory mailbox server shared by every
// device that resolves to it in a test.
type fakeServer struct {
	mu       sync.Mutex
	mailbox  map[string][]serverapi.MailboxEntry
	mpks     map[string][]serverapi.SignedMediumPK
	clock    clock.Clock
	failNext bool
}

func newFakeServer(c clock.Clock) *fakeServer {
	return &fakeServer{
		mailbox: make(map[string][]serverapi.MailboxEntry),
		mpks:    make(map[string][]serverapi.SignedMediumPK),
		clock:   c,
	}
}

func (s *fakeServer) DeviceAuth(ctx context.Context, chain cert.Chain) (serverapi.AuthToken, error) {
	return serverapi.AuthToken("token"), nil
}

func (s *fakeServer) PublishMediumPK(ctx context.Context, token serverapi.AuthToken, signed serverapi.SignedMediumPK) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mpks[signed.Sender.String()] = append(s.mpks[signed.Sender.String()], signed)
	return nil
}

func (s *fakeServer) FetchMediumPKs(ctx context.Context, username ref.Username) ([]serverapi.SignedMediumPK, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]serverapi.SignedMediumPK(nil), s.mpks[username.String()]...), nil
}

func (s *fakeServer) FetchCertChain(ctx context.Context, username ref.Username) (cert.Chain, error) {
	return cert.Chain{}, fmt.Errorf("fake server: FetchCertChain not implemented")
}

func (s *fakeServer) RegisterGroup(ctx context.Context, groupID ref.GroupID) error { return nil }

func (s *fakeServer) SetMailboxACL(ctx context.Context, mailboxID ref.MailboxID, token serverapi.AuthToken, acl serverapi.MailboxACL) error {
	return nil
}

func (s *fakeServer) MailboxSend(ctx context.Context, mailboxID ref.MailboxID, kind string, body []byte) error {
	if s.failNext {
		s.failNext = false
		return fmt.Errorf("fake server: injected send failure")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := serverapi.MailboxEntry{
		EntryID:    fmt.Sprintf("%s-%d", mailboxID, len(s.mailbox[mailboxID.String()])),
		ReceivedAt: s.clock.Now().UTC(),
		Kind:       kind,
		Body:       body,
	}
	s.mailbox[mailboxID.String()] = append(s.mailbox[mailboxID.String()], entry)
	return nil
}

func (s *fakeServer) MailboxPoll(ctx context.Context, mailboxID ref.MailboxID, afterTimestamp time.Time) ([]serverapi.MailboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []serverapi.MailboxEntry
	for _, e := range s.mailbox[mailboxID.String()] {
		if e.ReceivedAt.After(afterTimestamp) {
			out = append(out, e)
		}
	}
	return out, nil
}

func openTestStore(t *testing.T, c clock.Clock) *store.Store {
	t.Helper()
	s, err := store.Open(store.Config{
		Path:  filepath.Join(t.TempDir(), "core.db"),
		Clock: c,
	})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func newSecret(t *testing.T, raw []byte) *secret.Buffer {
	t.Helper()
	buf, err := secret.NewFromBytes(append([]byte(nil), raw...))
	if err != nil {
		t.Fatalf("secret.NewFromBytes: %v", err)
	}
	return buf
}

func saveIdentity(t *testing.T, ctx context.Context, s *store.Store, dev *testDevice) {
	t.Helper()
	id := store.Identity{
		Username:            dev.username,
		ServerName:          dev.serverName,
		DeviceSigningSeed:   newSecret(t, dev.signing.Seed()),
		CertChain:           dev.chain,
		MediumSecretCurrent: newSecret(t, dev.mediumKey.Seed()),
	}
	if err := s.SaveIdentity(ctx, id); err != nil {
		t.Fatalf("SaveIdentity: %v", err)
	}
}

func TestAIMDBackoffGrowsAndShrinksWithinBounds(t *testing.T) {
	timeout := 15 * time.Second

	for i := 0; i < 400; i++ {
		timeout = worker.AimdIncreaseForTest(timeout)
	}
	if timeout != 30*time.Minute {
		t.Fatalf("expected timeout clamped at ceiling, got %v", timeout)
	}

	for i := 0; i < 100; i++ {
		timeout = worker.AimdDecreaseForTest(timeout)
	}
	if timeout != 15*time.Second {
		t.Fatalf("expected timeout clamped at floor, got %v", timeout)
	}
}

func TestDirectMessageRoundTrip(t *testing.T) {
	ctx := context.Background()
	fakeClock := clock.Fake(time.Unix(1_700_000_000, 0))

	sender := newTestDevice(t, "@alice", "~home")
	recipient := newTestDevice(t, "@bob", "~home")

	dir := newFakeDirectory()
	dir.register(sender)
	dir.register(recipient)

	server := newFakeServer(fakeClock)
	dial := func(ctx context.Context, name ref.ServerName) (serverapi.Server, error) { return server, nil }

	senderStore := openTestStore(t, fakeClock)
	saveIdentity(t, ctx, senderStore, sender)

	senderCtx := &worker.Context{
		Store:     senderStore,
		Directory: dir,
		Dial:      dial,
		Clock:     fakeClock,
		Logger:    slog.New(slog.DiscardHandler),
		MPKCache:  mpkcache.New(fakeClock),
	}

	// Recipient publishes a medium key the way rotateOnce would.
	recipientToken, err := server.DeviceAuth(ctx, recipient.chain)
	if err != nil {
		t.Fatalf("DeviceAuth: %v", err)
	}
	sig := envelope.SignMediumPK(recipient.signing, recipient.username, recipient.chain, recipient.mediumKey.Public())
	if err := server.PublishMediumPK(ctx, recipientToken, serverapi.SignedMediumPK{
		PublicKey: recipient.mediumKey.Public(),
		Sender:    recipient.username,
		Chain:     recipient.chain,
		Signature: sig,
	}); err != nil {
		t.Fatalf("PublishMediumPK: %v", err)
	}

	convo, err := senderStore.EnsureConversation(ctx, store.ConvoDirect, recipient.username.String())
	if err != nil {
		t.Fatalf("EnsureConversation: %v", err)
	}
	msgID, err := senderStore.EnqueuePending(ctx, convo.ID, sender.username, "text/plain", []byte("hello bob"))
	if err != nil {
		t.Fatalf("EnqueuePending: %v", err)
	}

	if err := worker.SendLoopDrainOnceForTest(ctx, senderCtx); err != nil {
		t.Fatalf("drain pending: %v", err)
	}

	history, err := senderStore.History(ctx, convo.ID, 0, 0, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].ID != msgID {
		t.Fatalf("expected sent message recorded, got %+v", history)
	}
	if history[0].Pending() {
		t.Fatal("expected message no longer pending after send")
	}

	// Now play the recipient's receive side against the same fake
	// server, and confirm it decrypts and stores the same content.
	recipientStore := openTestStore(t, fakeClock)
	saveIdentity(t, ctx, recipientStore, recipient)

	recipientCtx := &worker.Context{
		Store:     recipientStore,
		Directory: dir,
		Dial:      dial,
		Clock:     fakeClock,
		Logger:    slog.New(slog.DiscardHandler),
		MPKCache:  mpkcache.New(fakeClock),
	}

	mailboxID, err := envelope.DeriveDMMailboxID(recipient.rootHash)
	if err != nil {
		t.Fatalf("DeriveDMMailboxID: %v", err)
	}
	entries, err := server.MailboxPoll(ctx, mailboxID, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("MailboxPoll: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one entry on recipient mailbox, got %d", len(entries))
	}

	dispatch := worker.DirectMessageDispatcher(recipientCtx)
	if err := dispatch(ctx, entries[0]); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	convos, err := recipientStore.ListConversations(ctx)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(convos) != 1 {
		t.Fatalf("expected one conversation on recipient side, got %d", len(convos))
	}
	received, err := recipientStore.History(ctx, convos[0].ID, 0, 0, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(received) != 1 || string(received[0].Body) != "hello bob" {
		t.Fatalf("expected decrypted body to round-trip, got %+v", received)
	}
	if !received[0].SenderUsername.Equal(sender.username) {
		t.Fatalf("expected sender %s, got %s", sender.username, received[0].SenderUsername)
	}
}

func TestSendSucceedsAfterOneRetry(t *testing.T) {
	ctx := context.Background()
	fakeClock := clock.Fake(time.Unix(1_700_000_000, 0))

	sender := newTestDevice(t, "@alice", "~home")
	recipient := newTestDevice(t, "@bob", "~home")

	dir := newFakeDirectory()
	dir.register(sender)
	dir.register(recipient)

	server := newFakeServer(fakeClock)
	dial := func(ctx context.Context, name ref.ServerName) (serverapi.Server, error) { return server, nil }

	s := openTestStore(t, fakeClock)
	saveIdentity(t, ctx, s, sender)

	wc := &worker.Context{
		Store:     s,
		Directory: dir,
		Dial:      dial,
		Clock:     fakeClock,
		Logger:    slog.New(slog.DiscardHandler),
		MPKCache:  mpkcache.New(fakeClock),
	}

	token, err := server.DeviceAuth(ctx, recipient.chain)
	if err != nil {
		t.Fatalf("DeviceAuth: %v", err)
	}
	sig := envelope.SignMediumPK(recipient.signing, recipient.username, recipient.chain, recipient.mediumKey.Public())
	if err := server.PublishMediumPK(ctx, token, serverapi.SignedMediumPK{
		PublicKey: recipient.mediumKey.Public(), Sender: recipient.username, Chain: recipient.chain, Signature: sig,
	}); err != nil {
		t.Fatalf("PublishMediumPK: %v", err)
	}

	server.failNext = true

	convo, err := s.EnsureConversation(ctx, store.ConvoDirect, recipient.username.String())
	if err != nil {
		t.Fatalf("EnsureConversation: %v", err)
	}
	if _, err := s.EnqueuePending(ctx, convo.ID, sender.username, "text/plain", []byte("hi")); err != nil {
		t.Fatalf("EnqueuePending: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- worker.SendLoopDrainOnceForTest(ctx, wc) }()

	// One retry attempt sleeps once at sendRetryBaseDelay before the
	// server accepts on the second attempt.
	fakeClock.WaitForTimers(1)
	fakeClock.Advance(2 * time.Second)

	if err := <-done; err != nil {
		t.Fatalf("drain pending: %v", err)
	}

	history, err := s.History(ctx, convo.ID, 0, 0, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].Pending() || history[0].SendError != "" {
		t.Fatalf("expected message to succeed after one retry, got %+v", history)
	}
}

func TestRotateOncePublishesAndRetainsPreviousKey(t *testing.T) {
	ctx := context.Background()
	fakeClock := clock.Fake(time.Unix(1_700_000_000, 0))

	dev := newTestDevice(t, "@alice", "~home")
	dir := newFakeDirectory()
	dir.register(dev)

	server := newFakeServer(fakeClock)
	dial := func(ctx context.Context, name ref.ServerName) (serverapi.Server, error) { return server, nil }

	s := openTestStore(t, fakeClock)
	saveIdentity(t, ctx, s, dev)

	wc := &worker.Context{
		Store:     s,
		Directory: dir,
		Dial:      dial,
		Clock:     fakeClock,
		Logger:    slog.New(slog.DiscardHandler),
		MPKCache:  mpkcache.New(fakeClock),
	}

	originalCurrent, ok, err := s.LoadIdentity(ctx)
	if err != nil || !ok {
		t.Fatalf("LoadIdentity: ok=%v err=%v", ok, err)
	}
	originalSeed := append([]byte(nil), originalCurrent.MediumSecretCurrent.Bytes()...)
	originalCurrent.Close()

	if err := worker.RotateOnceForTest(ctx, wc); err != nil {
		t.Fatalf("rotateOnce: %v", err)
	}

	published, err := server.FetchMediumPKs(ctx, dev.username)
	if err != nil {
		t.Fatalf("FetchMediumPKs: %v", err)
	}
	if len(published) != 1 {
		t.Fatalf("expected one published medium key, got %d", len(published))
	}

	rotated, ok, err := s.LoadIdentity(ctx)
	if err != nil || !ok {
		t.Fatalf("LoadIdentity after rotate: ok=%v err=%v", ok, err)
	}
	defer rotated.Close()

	if rotated.MediumSecretPrevious == nil {
		t.Fatal("expected previous medium secret retained after rotation")
	}
	if string(rotated.MediumSecretPrevious.Bytes()) != string(originalSeed) {
		t.Fatal("expected previous medium secret to be the pre-rotation current key")
	}
	if string(rotated.MediumSecretCurrent.Bytes()) == string(originalSeed) {
		t.Fatal("expected current medium secret to change after rotation")
	}
	if !published[0].PublicKey.Equal(mustDHPublicKeyFromSecret(t, rotated.MediumSecretCurrent.Bytes())) {
		t.Fatal("expected published key to match the new current secret")
	}
}

func mustDHPublicKeyFromSecret(t *testing.T, seed []byte) ncrypto.DHPublicKey {
	t.Helper()
	key, err := ncrypto.DHKeyFromSeed(append([]byte(nil), seed...))
	if err != nil {
		t.Fatalf("DHKeyFromSeed: %v", err)
	}
	return key.Public()
}

// TestSendDropsUnverifiableMediumKey covers a server that answers
// FetchMediumPKs for the recipient with a key signed by someone else
// entirely — what a malicious or compromised server would do to get
// itself (or a third party) substituted into the DM's header
// encryption. The send must refuse rather than wrap to the
// unverifiable key.
func TestSendDropsUnverifiableMediumKey(t *testing.T) {
	ctx := context.Background()
	fakeClock := clock.Fake(time.Unix(1_700_000_000, 0))

	sender := newTestDevice(t, "@alice", "~home")
	recipient := newTestDevice(t, "@bob", "~home")
	attacker := newTestDevice(t, "@mallory", "~home")

	dir := newFakeDirectory()
	dir.register(sender)
	dir.register(recipient)

	server := newFakeServer(fakeClock)
	dial := func(ctx context.Context, name ref.ServerName) (serverapi.Server, error) { return server, nil }

	s := openTestStore(t, fakeClock)
	saveIdentity(t, ctx, s, sender)

	wc := &worker.Context{
		Store:     s,
		Directory: dir,
		Dial:      dial,
		Clock:     fakeClock,
		Logger:    slog.New(slog.DiscardHandler),
		MPKCache:  mpkcache.New(fakeClock),
	}

	// Plant mallory's validly-signed key under bob's fetch slot,
	// mimicking a server that lies about whose key it is serving.
	spoofedSig := envelope.SignMediumPK(attacker.signing, attacker.username, attacker.chain, attacker.mediumKey.Public())
	server.mu.Lock()
	server.mpks[recipient.username.String()] = []serverapi.SignedMediumPK{{
		PublicKey: attacker.mediumKey.Public(),
		Sender:    attacker.username,
		Chain:     attacker.chain,
		Signature: spoofedSig,
	}}
	server.mu.Unlock()

	convo, err := s.EnsureConversation(ctx, store.ConvoDirect, recipient.username.String())
	if err != nil {
		t.Fatalf("EnsureConversation: %v", err)
	}
	msgID, err := s.EnqueuePending(ctx, convo.ID, sender.username, "text/plain", []byte("hi bob"))
	if err != nil {
		t.Fatalf("EnqueuePending: %v", err)
	}

	if err := worker.SendLoopDrainOnceForTest(ctx, wc); err != nil {
		t.Fatalf("drain pending: %v", err)
	}

	history, err := s.History(ctx, convo.ID, 0, 0, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].ID != msgID {
		t.Fatalf("expected the message row to persist, got %+v", history)
	}
	if history[0].Pending() || history[0].SendError == "" {
		t.Fatalf("expected send to terminally fail with a recorded error, got %+v", history[0])
	}

	mailboxID, err := envelope.DeriveDMMailboxID(recipient.rootHash)
	if err != nil {
		t.Fatalf("DeriveDMMailboxID: %v", err)
	}
	entries, err := server.MailboxPoll(ctx, mailboxID, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("MailboxPoll: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected nothing delivered to bob's mailbox, got %d entries", len(entries))
	}
}

// TestGroupMessageDispatcherSuppressesSelfEcho covers a member
// dispatching an entry from her own group's messages mailbox that
// turns out to be the echo of a message she just sent: it must not
// produce a second, duplicate row alongside the one MarkSent already
// recorded at send time.
func TestGroupMessageDispatcherSuppressesSelfEcho(t *testing.T) {
	ctx := context.Background()
	fakeClock := clock.Fake(time.Unix(1_700_000_000, 0))

	alice := newTestDevice(t, "@alice", "~home")
	dir := newFakeDirectory()
	dir.register(alice)

	server := newFakeServer(fakeClock)
	dial := func(ctx context.Context, name ref.ServerName) (serverapi.Server, error) { return server, nil }

	s := openTestStore(t, fakeClock)
	saveIdentity(t, ctx, s, alice)

	wc := &worker.Context{
		Store:     s,
		Directory: dir,
		Dial:      dial,
		Clock:     fakeClock,
		Logger:    slog.New(slog.DiscardHandler),
		MPKCache:  mpkcache.New(fakeClock),
	}

	descriptor := envelope.GroupDescriptor{
		InitAdmin:     alice.username,
		CreatedAt:     fakeClock.Now().UTC(),
		ServerName:    alice.serverName,
		ManagementKey: []byte("0123456789abcdef0123456789abcde"),
	}
	groupID := envelope.DeriveGroupID(descriptor)
	group := store.Group{
		GroupID:         groupID,
		Descriptor:      codec.Marshal(descriptor),
		ServerName:      alice.serverName,
		GroupKeyCurrent: []byte("0123456789abcdef0123456789abcdef"),
	}
	if err := s.SaveGroup(ctx, group); err != nil {
		t.Fatalf("SaveGroup: %v", err)
	}
	convo, err := s.EnsureConversation(ctx, store.ConvoGroup, groupID.String())
	if err != nil {
		t.Fatalf("EnsureConversation: %v", err)
	}

	msgID, err := s.EnqueuePending(ctx, convo.ID, alice.username, "text/plain", []byte("hello group"))
	if err != nil {
		t.Fatalf("EnqueuePending: %v", err)
	}
	if err := worker.SendLoopDrainOnceForTest(ctx, wc); err != nil {
		t.Fatalf("drain pending: %v", err)
	}

	history, err := s.History(ctx, convo.ID, 0, 0, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].ID != msgID {
		t.Fatalf("expected alice's own sent message recorded, got %+v", history)
	}

	messagesMailbox, _, err := envelope.DeriveMailboxIDs(groupID)
	if err != nil {
		t.Fatalf("DeriveMailboxIDs: %v", err)
	}
	entries, err := server.MailboxPoll(ctx, messagesMailbox, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("MailboxPoll: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected alice's own group message echoed on the messages mailbox, got %d entries", len(entries))
	}

	dispatch := worker.GroupMessageDispatcher(wc, groupID)
	if err := dispatch(ctx, entries[0]); err != nil {
		t.Fatalf("dispatch self-echo: %v", err)
	}

	history, err = s.History(ctx, convo.ID, 0, 0, 0)
	if err != nil {
		t.Fatalf("History after self-echo: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected self-echo not to double the history, got %+v", history)
	}
}
