// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import "errors"

// ErrNotReady is returned by any operation that requires a local
// identity when none has been registered yet.
var ErrNotReady = errors.New("client: identity not registered")

// ErrAccessDenied is returned when a caller attempts an operation its
// current device certificate does not authorize — issuing a new
// device bundle from a certificate that cannot issue, or acting as a
// group admin without being one.
var ErrAccessDenied = errors.New("client: access denied")
