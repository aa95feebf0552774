// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

// The functions below exist only to give client_test (an external test
// package, so it exercises the same import graph a real caller would)
// access to unexported mechanism used by the package's own tests.

// PendingJoinedGroupsForTest reports how many groups are currently
// queued on c.joined, waiting for a running Run to pick them up.
func PendingJoinedGroupsForTest(c *Client) int {
	return len(c.joined)
}
