// Package secret generates numeric passcodes and computes their salted
// one-way digests. Randomness comes from crypto/rand only: a predictable
// passcode source is a correctness defect here, not a style choice.
package secret

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"

	"golang.org/x/crypto/argon2"
)

const saltLength = 16

// Argon2id parameters. Passcodes have a tiny keyspace, so the digest cost is
// what stands between a leaked record and an offline brute force.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// Codec produces passcodes of a fixed decimal length and their digests.
type Codec struct {
	length int
	min    *big.Int
	span   *big.Int
}

// NewCodec builds a codec for passcodes of the given length (4-9 digits).
func NewCodec(length int) (*Codec, error) {
	if length < 4 || length > 9 {
		return nil, fmt.Errorf("passcode length must be between 4 and 9, got %d", length)
	}

	min := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length-1)), nil)
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	span := new(big.Int).Sub(max, min)

	return &Codec{length: length, min: min, span: span}, nil
}

// Generate returns a passcode drawn uniformly from the full range of the
// configured length, e.g. 100000-999999 for six digits.
func (c *Codec) Generate() (string, error) {
	n, err := rand.Int(rand.Reader, c.span)
	if err != nil {
		return "", fmt.Errorf("generate passcode: %w", err)
	}
	n.Add(n, c.min)
	return n.String(), nil
}

// NewSalt returns a fresh random salt. Salts are never reused across records,
// even for the same identifier.
func (c *Codec) NewSalt() ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// Digest computes the deterministic salted one-way digest of a passcode.
func (c *Codec) Digest(passcode string, salt []byte) []byte {
	return argon2.IDKey([]byte(passcode), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// Match recomputes the digest of candidate under salt and compares it against
// digest in constant time.
func (c *Codec) Match(candidate string, salt, digest []byte) bool {
	computed := c.Digest(candidate, salt)
	return subtle.ConstantTimeCompare(computed, digest) == 1
}
