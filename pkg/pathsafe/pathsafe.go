// Package pathsafe normalises arbitrary source keys into filesystem-safe,
// traversal-proof relative paths.
package pathsafe

import (
	"errors"
	"regexp"
	"strings"
)

// ErrEmpty is returned when the input normalises to the empty string.
var ErrEmpty = errors.New("pathsafe: empty key")

var unsafeChars = regexp.MustCompile(`[?&=%"<>\\ ]`)
var repeatUnderscore = regexp.MustCompile(`_+`)

// Normalise replaces the reserved character set with "_", collapses repeats,
// strips a leading "/" and any ".." segments, and rejects the empty result.
// The output is always a relative, slash-separated path.
func Normalise(key string) (string, error) {
	s := unsafeChars.ReplaceAllString(key, "_")
	s = repeatUnderscore.ReplaceAllString(s, "_")
	s = strings.TrimPrefix(s, "/")

	parts := strings.Split(s, "/")
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == ".." || part == "." || part == "" {
			continue
		}
		kept = append(kept, part)
	}

	out := strings.Join(kept, "/")
	if out == "" {
		return "", ErrEmpty
	}
	return out, nil
}

// NoOp passes s through unchanged, for trusted inputs that have already been
// normalised (e.g. a fingerprint-derived sharded path).
func NoOp(s string) (string, error) {
	if s == "" {
		return "", ErrEmpty
	}
	return s, nil
}
