// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package directory defines the abstract directory collaborator the
// core consults to resolve usernames and server names to their
// current affiliation and root of trust.
//
// The core treats every directory response as untrusted transport
// data until it is checked against a client-side-cached signed trust
// anchor — Directory implementations are responsible for that
// verification and must return an error rather than an unverified
// answer if the anchor does not cover a response.
package directory
