// Package apikey implements the bearer-token wire format: generation,
// password-hash storage, lookup, and display masking.
package apikey

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const (
	prefix     = "sk-llmweaver-"
	secretLen  = 32
	alphabet   = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Generate returns a new opaque bearer token: prefix + 32 random
// alphanumeric characters.
func Generate() (string, error) {
	buf := make([]byte, secretLen)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", errors.Wrap(err, "generate api key")
		}
		buf[i] = alphabet[n.Int64()]
	}
	return prefix + string(buf), nil
}

// Lookup returns a deterministic, indexable digest of key, used as the
// storage-layer lookup column so a credential row can be fetched in O(1)
// before the slow bcrypt comparison below runs.
func Lookup(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Hash returns the password-hash stored for a key; keys are never stored
// in plaintext, only as this hash.
func Hash(key string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "hash api key")
	}
	return string(hashed), nil
}

// Verify reports whether key matches the stored password-hash.
func Verify(hash, key string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

// Mask renders a stored hash for display: prefix + stars + the hash's
// last 4 characters.
func Mask(hash string) string {
	last4 := hash
	if len(hash) > 4 {
		last4 = hash[len(hash)-4:]
	}
	return prefix + strings.Repeat("*", 4) + "…" + last4
}
