// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

const maxServerNameLength = 63

// ServerName is a validated handle identifying a server that hosts
// mailboxes and publishes device metadata (e.g., "~relay"). The
// directory maps a ServerName to its public URLs and its public key;
// the core treats servers as untrusted transports, never as a source
// of identity.
//
// ServerName is an immutable value type. The zero value is not valid;
// use IsZero to check.
type ServerName struct {
	name string
}

// ParseServerName validates and wraps a handle of the form "~name".
func ParseServerName(raw string) (ServerName, error) {
	if len(raw) < 2 || raw[0] != '~' {
		return ServerName{}, fmt.Errorf("invalid server name %q: must start with ~", raw)
	}
	name := raw[1:]
	if err := validateHandleName(name, "server name", maxServerNameLength); err != nil {
		return ServerName{}, err
	}
	return ServerName{name: name}, nil
}

// String returns the full handle (e.g., "~relay").
func (s ServerName) String() string {
	if s.name == "" {
		return ""
	}
	return "~" + s.name
}

// Name returns the bare name without the ~ sigil.
func (s ServerName) Name() string { return s.name }

// IsZero reports whether this is an uninitialized zero-value ServerName.
func (s ServerName) IsZero() bool { return s.name == "" }

// Equal reports whether two server names name the same server.
func (s ServerName) Equal(other ServerName) bool { return s.name == other.name }

// MarshalText implements encoding.TextMarshaler.
func (s ServerName) MarshalText() ([]byte, error) {
	if s.IsZero() {
		return nil, fmt.Errorf("cannot marshal zero-value ServerName")
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ServerName) UnmarshalText(data []byte) error {
	parsed, err := ParseServerName(string(data))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
