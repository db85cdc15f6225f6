// Package totp implements RFC 6238 time-based one-time passwords on top of
// RFC 4226 HOTP. All functions are pure and safe for concurrent use; secrets
// are Base32 strings without padding.
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultPeriod = 30
	DefaultDigits = 6

	// MinSecretBits is the minimum entropy for generated secrets.
	MinSecretBits = 160
)

type Algorithm string

const (
	SHA1   Algorithm = "SHA1"
	SHA256 Algorithm = "SHA256"
	SHA512 Algorithm = "SHA512"
)

var (
	ErrWeakSecret   = errors.New("totp: secret entropy below 160 bits")
	ErrBadSecret    = errors.New("totp: secret is not valid base32")
	ErrBadAlgorithm = errors.New("totp: unsupported algorithm")
	ErrBadDigits    = errors.New("totp: digits must be 6 or 8")
	ErrBadPeriod    = errors.New("totp: period must be positive")
)

// Params carries the per-secret TOTP configuration.
type Params struct {
	Period    int
	Digits    int
	Algorithm Algorithm
}

// DefaultParams matches the provisioning defaults: SHA256, 6 digits, 30s.
func DefaultParams() Params {
	return Params{Period: DefaultPeriod, Digits: DefaultDigits, Algorithm: SHA256}
}

func (p Params) validate() error {
	if p.Period <= 0 {
		return ErrBadPeriod
	}
	if p.Digits != 6 && p.Digits != 8 {
		return ErrBadDigits
	}
	if _, err := p.Algorithm.hashFunc(); err != nil {
		return err
	}
	return nil
}

func (a Algorithm) hashFunc() (func() hash.Hash, error) {
	switch a {
	case SHA1:
		return sha1.New, nil
	case SHA256:
		return sha256.New, nil
	case SHA512:
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadAlgorithm, string(a))
	}
}

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateSecret returns a fresh random secret as unpadded uppercase Base32.
// entropyBits below MinSecretBits is rejected.
func GenerateSecret(entropyBits int) (string, error) {
	if entropyBits < MinSecretBits {
		return "", ErrWeakSecret
	}
	raw := make([]byte, (entropyBits+7)/8)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return b32.EncodeToString(raw), nil
}

func decodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.TrimRight(strings.TrimSpace(secret), "="))
	raw, err := b32.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSecret, err)
	}
	return raw, nil
}

// hotp computes the RFC 4226 code for a counter value.
func hotp(key []byte, counter uint64, digits int, newHash func() hash.Hash) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], counter)

	mac := hmac.New(newHash, key)
	mac.Write(buf[:])
	sum := mac.Sum(nil)

	// Dynamic truncation, RFC 4226 section 5.3.
	offset := sum[len(sum)-1] & 0x0f
	code := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, code%mod)
}

// Generate returns the code for the time bucket containing t.
func Generate(secret string, t time.Time, p Params) (string, error) {
	if err := p.validate(); err != nil {
		return "", err
	}
	key, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	newHash, err := p.Algorithm.hashFunc()
	if err != nil {
		return "", err
	}
	counter := uint64(t.Unix() / int64(p.Period))
	return hotp(key, counter, p.Digits, newHash), nil
}

// Verify checks code against the buckets [-window, window] around t using a
// constant-time comparison per candidate. It returns whether any bucket
// matched and the matching offset in periods (0 means the exact bucket,
// negative means the client clock runs behind). Nothing beyond match/offset
// is derivable from the return values.
func Verify(secret, code string, t time.Time, p Params, window int) (bool, int, error) {
	if err := p.validate(); err != nil {
		return false, 0, err
	}
	key, err := decodeSecret(secret)
	if err != nil {
		return false, 0, err
	}
	newHash, err := p.Algorithm.hashFunc()
	if err != nil {
		return false, 0, err
	}
	if window < 0 {
		window = 0
	}
	base := t.Unix() / int64(p.Period)
	for offset := -window; offset <= window; offset++ {
		counter := base + int64(offset)
		if counter < 0 {
			continue
		}
		want := hotp(key, uint64(counter), p.Digits, newHash)
		if subtle.ConstantTimeCompare([]byte(code), []byte(want)) == 1 {
			return true, offset, nil
		}
	}
	return false, 0, nil
}

// ProvisioningURI renders the otpauth:// URI understood by authenticator
// apps (Google Authenticator key URI format).
func ProvisioningURI(secret, account, issuer string, p Params) string {
	label := url.PathEscape(issuer) + ":" + url.PathEscape(account)
	q := url.Values{}
	q.Set("secret", secret)
	q.Set("issuer", issuer)
	q.Set("algorithm", string(p.Algorithm))
	q.Set("digits", fmt.Sprintf("%d", p.Digits))
	q.Set("period", fmt.Sprintf("%d", p.Period))
	return "otpauth://totp/" + label + "?" + q.Encode()
}
