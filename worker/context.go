// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"log/slog"

	"github.com/nullspace-chat/core/directory"
	"github.com/nullspace-chat/core/lib/clock"
	"github.com/nullspace-chat/core/lib/mpkcache"
	"github.com/nullspace-chat/core/lib/ref"
	"github.com/nullspace-chat/core/serverapi"
	"github.com/nullspace-chat/core/store"
)

// ServerDialer resolves a server name to a live serverapi.Server
// collaborator. The core never imports a concrete transport; callers
// inject whatever dials and authenticates against the real wire
// protocol.
type ServerDialer func(ctx context.Context, serverName ref.ServerName) (serverapi.Server, error)

// Context is the shared state every worker loop closes over: the
// store, the abstract directory and server collaborators, an
// injectable clock, and a logger. Constructed once by the client
// façade and passed to every loop it launches.
type Context struct {
	Store     *store.Store
	Directory directory.Directory
	Dial      ServerDialer
	Clock     clock.Clock
	Logger    *slog.Logger

	// MPKCache holds recently fetched medium-key sets so the send loop
	// does not re-fetch a recipient's keys on every outbound direct
	// message.
	MPKCache *mpkcache.Cache
}
