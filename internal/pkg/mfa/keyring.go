package mfa

import (
	"encoding/base64"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// MinKeySize is the shortest key material accepted in a key ring.
const MinKeySize = 16

// KeyRing maps key ids to symmetric key material.
//
// New secrets are always encrypted under the current id; any id present may
// be used to decrypt, so old envelopes stay readable after a rotation.
type KeyRing struct {
	keys    map[string][]byte
	current string
}

// NewKeyRing validates keys and returns a KeyRing.
//
// When current is empty the lexicographically greatest id becomes current,
// so naming keys by date ("2024-01", "2025-06") makes the newest one win.
func NewKeyRing(keys map[string][]byte, current string) (*KeyRing, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: at least one key is required", ErrInvalidConfig)
	}

	ring := &KeyRing{keys: make(map[string][]byte, len(keys))}
	for id, key := range keys {
		if strings.TrimSpace(id) == "" || id != strings.TrimSpace(id) {
			return nil, fmt.Errorf("%w: key id %q must be non-blank without surrounding spaces", ErrInvalidConfig, id)
		}
		if len(key) < MinKeySize {
			return nil, fmt.Errorf("%w: key %q is %d bytes, want at least %d", ErrInvalidConfig, id, len(key), MinKeySize)
		}
		ring.keys[id] = slices.Clone(key)
	}

	current = strings.TrimSpace(current)
	if current == "" {
		current = lo.Max(lo.Keys(ring.keys))
	}
	if _, ok := ring.keys[current]; !ok {
		return nil, fmt.Errorf("%w: current key id %q is not in the key ring", ErrInvalidConfig, current)
	}
	ring.current = current

	return ring, nil
}

// ParseKeySpec parses "kid:base64key,kid2:base64key" into raw key material.
//
// Unlike a lenient map reader, any malformed entry is an error so a typo in
// configuration cannot silently drop a decryption key.
func ParseKeySpec(spec string) (map[string][]byte, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("%w: key spec is empty", ErrInvalidConfig)
	}

	keys := make(map[string][]byte)
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		id, encoded, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("%w: entry %q is not kid:base64key", ErrInvalidConfig, entry)
		}
		id = strings.TrimSpace(id)
		if _, dup := keys[id]; dup {
			return nil, fmt.Errorf("%w: duplicate key id %q", ErrInvalidConfig, id)
		}

		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
		if err != nil {
			return nil, fmt.Errorf("%w: key %q is not valid base64: %w", ErrInvalidConfig, id, err)
		}
		keys[id] = raw
	}

	return keys, nil
}

// Current returns the id used for new encryptions.
func (r *KeyRing) Current() string {
	return r.current
}

// IDs returns all key ids in sorted order.
func (r *KeyRing) IDs() []string {
	ids := lo.Keys(r.keys)
	slices.Sort(ids)
	return ids
}

func (r *KeyRing) key(id string) ([]byte, bool) {
	k, ok := r.keys[id]
	return k, ok
}
