// Package asset handles payout asset identifiers.
//
// Identifiers are either plain symbols ("USDC") or fully qualified coin
// types ("0x2::sui::SUI"). The engine treats them as opaque keys; this
// package only validates their shape.
package asset

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidAsset is returned for malformed asset identifiers.
var ErrInvalidAsset = errors.New("asset: invalid identifier")

// idRegex matches: a leading alphanumeric, then up to 127 of [A-Za-z0-9_:.-].
// Examples: USDC, 0x2::sui::SUI, bonus-token.v2
var idRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_:.\-]{0,127}$`)

// ID identifies a fungible asset held in the ledger.
type ID string

// Parse validates s and returns it as an ID.
func Parse(s string) (ID, error) {
	if !idRegex.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAsset, s)
	}
	return ID(s), nil
}

// ParseAll validates every identifier in order, failing on the first bad one.
func ParseAll(ss []string) ([]ID, error) {
	out := make([]ID, len(ss))
	for i, s := range ss {
		id, err := Parse(s)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}

// Symbol returns the last "::"-separated segment, e.g. SUI for 0x2::sui::SUI.
func (id ID) Symbol() string {
	s := string(id)
	if i := strings.LastIndex(s, "::"); i >= 0 {
		return s[i+2:]
	}
	return s
}

func (id ID) String() string { return string(id) }
