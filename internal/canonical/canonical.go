// Package canonical produces deterministic JSON serializations and
// content hashes. Record identity (dedup, blob addressing) depends on
// every caller hashing the same bytes for semantically equal values, so
// object keys are sorted at every nesting level and the distinction
// between a null-valued key and an absent key is preserved.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Marshal serializes v to canonical JSON: object keys sorted
// lexicographically at every level, array order preserved, primitives
// per encoding/json. Struct values are round-tripped through
// encoding/json first so struct tags and omitempty apply before
// canonicalization.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("serializing value: %w", err)
	}

	var generic any
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decoding intermediate form: %w", err)
	}

	var b strings.Builder
	if err := writeCanonical(&b, generic); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

// Hash returns the lowercase hex SHA-256 of the canonical serialization of v.
func Hash(v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return HashBytes(data), nil
}

// HashBytes returns the lowercase hex SHA-256 of raw bytes. Used directly
// for file content (images) where no canonicalization applies.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func writeCanonical(b *strings.Builder, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			keyJSON, err := json.Marshal(k)
			if err != nil {
				return fmt.Errorf("serializing key %q: %w", k, err)
			}
			b.Write(keyJSON)
			b.WriteByte(':')
			if err := writeCanonical(b, val[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
		return nil

	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := writeCanonical(b, item); err != nil {
				return err
			}
		}
		b.WriteByte(']')
		return nil

	case json.Number:
		b.WriteString(val.String())
		return nil

	default:
		// string, bool, nil
		leaf, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("serializing leaf: %w", err)
		}
		b.Write(leaf)
		return nil
	}
}
