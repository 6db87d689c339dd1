package shardsift

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"regexp"
	"strings"
	"sync"
)

// leadingGarbage matches the run of non-alphanumeric characters that breach
// dumps commonly prepend to emails (quotes, dashes, tildes, list bullets).
var leadingGarbage = regexp.MustCompile(`^[^a-z0-9]+`)

// NormalizeEmail canonicalizes a raw email so that trivially different
// spellings of the same address hash identically:
//
//  1. ASCII whitespace is trimmed.
//  2. The address is lowercased.
//  3. A leading run of non-alphanumeric characters is stripped.
//  4. A +tag alias in the local part is dropped.
//
// The second return value is false when the result does not contain an @
// and must be skipped downstream.
func NormalizeEmail(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = leadingGarbage.ReplaceAllString(s, "")

	if at := strings.IndexByte(s, '@'); at > 0 {
		local, domain := s[:at], s[at+1:]
		if plus := strings.IndexByte(local, '+'); plus >= 0 {
			local = local[:plus]
		}
		s = local + "@" + domain
	}

	if !strings.ContainsRune(s, '@') {
		return "", false
	}
	return s, true
}

// Hasher computes keyed digests of normalized emails.
// It is safe for concurrent use; HMAC states are pooled per call.
type Hasher struct {
	pool sync.Pool
}

// NewHasher creates a Hasher for the given HMAC-SHA-256 key.
// The key must be exactly 32 bytes.
func NewHasher(key []byte) (*Hasher, error) {
	if len(key) != hashKeyLen {
		return nil, newConfigError([]error{
			fmt.Errorf("hash key must be %d bytes, got %d", hashKeyLen, len(key)),
		})
	}
	// Copy so later mutation of the caller's slice cannot change digests.
	k := append([]byte(nil), key...)
	return &Hasher{
		pool: sync.Pool{
			New: func() interface{} {
				return hmac.New(sha256.New, k)
			},
		},
	}, nil
}

// Sum returns the 64-character lowercase hex HMAC-SHA-256 of email.
func (h *Hasher) Sum(email string) string {
	mac := h.pool.Get().(hash.Hash)
	mac.Reset()
	mac.Write([]byte(email))
	var out [sha256.Size]byte
	sum := mac.Sum(out[:0])
	h.pool.Put(mac)
	return hex.EncodeToString(sum)
}
