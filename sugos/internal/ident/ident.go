// Package ident parses free-text identifier input.
package ident

import (
	"errors"
	"strings"
)

// Separator splits identifiers in the raw input.
const Separator = ","

// ErrNoIdentifiers is returned when the input holds no usable identifier.
var ErrNoIdentifiers = errors.New("ident: no identifiers")

// Normalize splits raw on Separator, trims each token, drops empty ones and
// removes duplicates keeping the first occurrence. It also returns how many
// duplicate tokens were dropped.
func Normalize(raw string) ([]string, int, error) {
	seen := make(map[string]struct{})
	var out []string
	dups := 0
	for _, tok := range strings.Split(raw, Separator) {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if _, ok := seen[tok]; ok {
			dups++
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	if len(out) == 0 {
		return nil, 0, ErrNoIdentifiers
	}
	return out, dups, nil
}

// Join renders identifiers back into the input form.
func Join(ids []string) string {
	return strings.Join(ids, Separator+" ")
}
