// Package digest is the single place where the engine's hash function is
// chosen. Every other package asks a Digester for hex digests, so switching
// algorithms is a configuration change (HASH_ALGORITHM) rather than a code
// change.
package digest

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Supported algorithm names.
const (
	SHA256  = "sha256"
	SHA512  = "sha512"
	BLAKE2b = "blake2b"
)

// Digester produces lowercase hex digests. Implementations are stateless and
// safe for concurrent use.
type Digester interface {
	// Name returns the algorithm identifier.
	Name() string
	// Hex hashes data and returns the hex-encoded digest.
	Hex(data []byte) string
	// HexString is a convenience wrapper over Hex for string input.
	HexString(s string) string
}

type hashDigester struct {
	name string
	new  func() hash.Hash
}

func (d hashDigester) Name() string { return d.name }

func (d hashDigester) Hex(data []byte) string {
	h := d.new()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func (d hashDigester) HexString(s string) string { return d.Hex([]byte(s)) }

// New returns the Digester for algo. An empty name selects SHA-256.
func New(algo string) (Digester, error) {
	switch strings.ToLower(strings.TrimSpace(algo)) {
	case "", SHA256:
		return hashDigester{name: SHA256, new: sha256.New}, nil
	case SHA512:
		return hashDigester{name: SHA512, new: sha512.New}, nil
	case BLAKE2b, "blake2b-256":
		return hashDigester{name: BLAKE2b, new: newBlake2b256}, nil
	default:
		return nil, fmt.Errorf("digest: unsupported algorithm %q", algo)
	}
}

// Must is New that panics on an unknown algorithm. Intended for tests and
// package-level defaults.
func Must(algo string) Digester {
	d, err := New(algo)
	if err != nil {
		panic(err)
	}
	return d
}

// Default returns the SHA-256 digester.
func Default() Digester { return Must(SHA256) }

// newBlake2b256 never fails for a nil key.
func newBlake2b256() hash.Hash {
	h, _ := blake2b.New256(nil)
	return h
}
