// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "testing"

func TestParseUsername(t *testing.T) {
	cases := []struct {
		raw     string
		wantErr bool
	}{
		{"@alice", false},
		{"@a.b-c_d", false},
		{"alice", true},
		{"@", true},
		{"@Alice", true},
		{"@" + string(make([]byte, 64)), true},
	}
	for _, c := range cases {
		_, err := ParseUsername(c.raw)
		if (err != nil) != c.wantErr {
			t.Errorf("ParseUsername(%q): err=%v, wantErr=%v", c.raw, err, c.wantErr)
		}
	}
}

func TestUsernameRoundTrip(t *testing.T) {
	u, err := ParseUsername("@alice")
	if err != nil {
		t.Fatal(err)
	}
	text, err := u.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	var back Username
	if err := back.UnmarshalText(text); err != nil {
		t.Fatal(err)
	}
	if !back.Equal(u) {
		t.Fatalf("round trip mismatch: %v != %v", back, u)
	}
}

func TestParseServerName(t *testing.T) {
	if _, err := ParseServerName("~relay"); err != nil {
		t.Fatal(err)
	}
	if _, err := ParseServerName("relay"); err == nil {
		t.Fatal("expected error for missing sigil")
	}
}

func TestHash32ZeroValue(t *testing.T) {
	var h Hash32
	if !h.IsZero() {
		t.Fatal("zero Hash32 should report IsZero")
	}
	h[0] = 1
	if h.IsZero() {
		t.Fatal("non-zero Hash32 should not report IsZero")
	}
}

func TestGroupIDHexRoundTrip(t *testing.T) {
	var raw Hash32
	raw[0] = 0xab
	raw[31] = 0xcd
	g := GroupID(raw)
	parsed, err := ParseGroupID(g.String())
	if err != nil {
		t.Fatal(err)
	}
	if !parsed.Equal(g) {
		t.Fatalf("round trip mismatch: %v != %v", parsed, g)
	}
}
