// Package recovery generates and verifies single-use backup codes. Codes are
// never stored in plaintext; only a PBKDF2-HMAC-SHA256 hash, a random salt,
// and a short display hint survive generation.
package recovery

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Alphabet omits 0/O/1/I to avoid transcription mistakes.
	Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	CodeLength = 8
	HintLength = 4

	// Iterations matches the OWASP floor for PBKDF2-HMAC-SHA256.
	Iterations = 600_000

	saltSize = 16
	keySize  = 32

	DefaultCount = 5
)

// GenerateCode returns a fresh code in XXXX-XXXX form.
func GenerateCode() (string, error) {
	raw := make([]byte, CodeLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("recovery: %w", err)
	}
	buf := make([]byte, 0, CodeLength+1)
	for i, b := range raw {
		if i == CodeLength/2 {
			buf = append(buf, '-')
		}
		buf = append(buf, Alphabet[int(b)%len(Alphabet)])
	}
	return string(buf), nil
}

// Hint returns the displayable prefix of a code.
func Hint(code string) string {
	if len(code) <= HintLength {
		return code
	}
	return code[:HintLength]
}

// HashCode derives a slow hash for storage alongside a fresh salt.
func HashCode(code string) (hash, salt []byte, iterations int, err error) {
	salt = make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, 0, fmt.Errorf("recovery: %w", err)
	}
	hash = pbkdf2.Key([]byte(code), salt, Iterations, keySize, sha256.New)
	return hash, salt, Iterations, nil
}

// VerifyCode recomputes the hash with the stored parameters and compares in
// constant time.
func VerifyCode(code string, hash, salt []byte, iterations int) bool {
	if iterations <= 0 || len(salt) == 0 || len(hash) == 0 {
		return false
	}
	derived := pbkdf2.Key([]byte(code), salt, iterations, len(hash), sha256.New)
	return subtle.ConstantTimeCompare(derived, hash) == 1
}
