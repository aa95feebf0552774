// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import "context"

// The functions below exist only to give worker_test (an external test
// package, so it exercises the same import graph a real caller would)
// access to unexported mechanism used by the package's own tests.

var AimdIncreaseForTest = aimdIncrease
var AimdDecreaseForTest = aimdDecrease

// SendLoopDrainOnceForTest runs a single drain pass without entering
// SendLoop's blocking wait, so tests can assert on one round of
// sending without racing the notifier.
func SendLoopDrainOnceForTest(ctx context.Context, wc *Context) error {
	return drainPending(ctx, wc)
}

// RotateOnceForTest runs a single rotation without entering RotateLoop's
// blocking sleep.
func RotateOnceForTest(ctx context.Context, wc *Context) error {
	return rotateOnce(ctx, wc)
}
