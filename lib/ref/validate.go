// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// allowedHandleChars is the set of characters permitted in the bare
// name portion of a username or server name (after the sigil):
// lowercase letters, digits, and the symbols . _ -.
var allowedHandleChars [256]bool

func init() {
	for c := byte('a'); c <= 'z'; c++ {
		allowedHandleChars[c] = true
	}
	for c := byte('0'); c <= '9'; c++ {
		allowedHandleChars[c] = true
	}
	allowedHandleChars['.'] = true
	allowedHandleChars['_'] = true
	allowedHandleChars['-'] = true
}

// validateHandleName validates the bare name after a sigil (@ or ~):
// non-empty, at most maxLen bytes, drawn only from allowedHandleChars.
func validateHandleName(name, label string, maxLen int) error {
	if name == "" {
		return fmt.Errorf("%s: name is empty", label)
	}
	if len(name) > maxLen {
		return fmt.Errorf("%s: name %q is %d bytes, maximum is %d", label, name, len(name), maxLen)
	}
	for i := 0; i < len(name); i++ {
		if !allowedHandleChars[name[i]] {
			return fmt.Errorf("%s: invalid character %q at position %d in %q", label, name[i], i, name)
		}
	}
	return nil
}
