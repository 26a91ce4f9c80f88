// Package idcodec provides the stable, compact textual encoding for node and
// file identifiers, plus the content-hash helpers used to build
// "hash(repo_id, fqn, span_start)" node IDs.
//
// Base-63 alphabet: A-Z (0-25), a-z (26-51), 0-9 (52-61), _ (62). This gives
// ~6 character IDs for typical projects, versus ~16 for hex.
package idcodec

import (
	"errors"
	"fmt"
)

const (
	Base     = 63
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_"
)

var (
	ErrEmptyString = errors.New("idcodec: empty encoded string")
	ErrInvalidChar = errors.New("idcodec: invalid character in encoded string")
	ErrOverflow    = errors.New("idcodec: decoded value overflow")
)

// Encode encodes a uint64 value to a base-63 string. Returns "A" for zero
// (the minimum non-empty encoding).
func Encode(value uint64) string {
	if value == 0 {
		return "A"
	}
	var buf [11]byte // 11 base-63 digits cover the full uint64 range
	pos := len(buf)
	for value > 0 {
		pos--
		buf[pos] = Alphabet[value%Base]
		value /= Base
	}
	return string(buf[pos:])
}

// EncodeNoZero encodes value, returning "" for zero (used where 0 means
// "absent" in a composite identifier).
func EncodeNoZero(value uint64) string {
	if value == 0 {
		return ""
	}
	return Encode(value)
}

// Decode decodes a base-63 string to a uint64.
func Decode(encoded string) (uint64, error) {
	if encoded == "" {
		return 0, ErrEmptyString
	}
	var value uint64
	for _, c := range encoded {
		charVal, err := charToValue(c)
		if err != nil {
			return 0, err
		}
		if value > (^uint64(0))/Base {
			return 0, ErrOverflow
		}
		value = value*Base + charVal
	}
	return value, nil
}

// IsValid reports whether encoded decodes without error.
func IsValid(encoded string) bool {
	if encoded == "" {
		return false
	}
	for _, c := range encoded {
		if _, err := charToValue(c); err != nil {
			return false
		}
	}
	return true
}

func charToValue(c rune) (uint64, error) {
	switch {
	case c >= 'A' && c <= 'Z':
		return uint64(c - 'A'), nil
	case c >= 'a' && c <= 'z':
		return uint64(c-'a') + 26, nil
	case c >= '0' && c <= '9':
		return uint64(c-'0') + 52, nil
	case c == '_':
		return 62, nil
	default:
		return 0, fmt.Errorf("%w: %c", ErrInvalidChar, c)
	}
}
