// Package normalization maps free-form configuration strings onto typed
// enumeration values. Lookups are case-insensitive and whitespace-tolerant
// so hand-edited YAML like "  Warn " still resolves to a known constant.
package normalization

import (
	"fmt"
	"sort"
	"strings"
)

// Normalizer resolves raw strings to values of a single enum type.
type Normalizer[T comparable] struct {
	values   map[string]T
	fallback T
	keys     []string // sorted, for stable error messages
}

// NewNormalizer builds a normalizer from canonical key/value pairs.
// Keys are canonicalized the same way raw input is, so callers may list
// them in any case.
func NewNormalizer[T comparable](values map[string]T, fallback T) *Normalizer[T] {
	canon := make(map[string]T, len(values))
	keys := make([]string, 0, len(values))
	for k, v := range values {
		ck := canonicalize(k)
		canon[ck] = v
		keys = append(keys, ck)
	}
	sort.Strings(keys)
	return &Normalizer[T]{values: canon, fallback: fallback, keys: keys}
}

// Normalize resolves raw to its enum value, returning the fallback for
// anything unrecognized. Use Parse when unknown input should be an error.
func (n *Normalizer[T]) Normalize(raw string) T {
	if v, ok := n.values[canonicalize(raw)]; ok {
		return v
	}
	return n.fallback
}

// Parse resolves raw strictly, rejecting unknown input with an error that
// lists the accepted spellings.
func (n *Normalizer[T]) Parse(raw string) (T, error) {
	if v, ok := n.values[canonicalize(raw)]; ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("unknown value %q (valid: %s)", raw, strings.Join(n.keys, ", "))
}

// Values returns the accepted canonical spellings in sorted order.
func (n *Normalizer[T]) Values() []string {
	out := make([]string, len(n.keys))
	copy(out, n.keys)
	return out
}

func canonicalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
