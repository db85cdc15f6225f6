package impl

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Signer is a closed set of signing strategies selected at startup. Verify
// always pins the configured algorithm; tokens signed any other way are
// rejected before claims are even looked at.
type Signer interface {
	Alg() string
	Method() jwt.SigningMethod
	SignKey() any
	VerifyKey() any
}

var ErrBadSigner = errors.New("unsupported signing algorithm")

// NewSigner builds a signer from config. HS256 needs a shared secret; the
// asymmetric algorithms take a PEM private key, or generate an ephemeral
// keypair when none is configured (good for local dev, useless across
// restarts).
func NewSigner(alg string, secret []byte, privPEM []byte) (Signer, error) {
	switch alg {
	case "HS256":
		if len(secret) < 32 {
			return nil, errors.New("HS256 secret must be at least 32 bytes")
		}
		return hmacSigner{key: secret}, nil
	case "ES256":
		if len(privPEM) == 0 {
			key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
			if err != nil {
				return nil, fmt.Errorf("generate ecdsa key: %w", err)
			}
			return ecdsaSigner{key: key}, nil
		}
		key, err := jwt.ParseECPrivateKeyFromPEM(privPEM)
		if err != nil {
			return nil, fmt.Errorf("parse ecdsa key: %w", err)
		}
		return ecdsaSigner{key: key}, nil
	case "RS256":
		if len(privPEM) == 0 {
			return nil, errors.New("RS256 requires a PEM private key")
		}
		key, err := jwt.ParseRSAPrivateKeyFromPEM(privPEM)
		if err != nil {
			return nil, fmt.Errorf("parse rsa key: %w", err)
		}
		return rsaSigner{key: key}, nil
	case "EdDSA":
		if len(privPEM) == 0 {
			_, key, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return nil, fmt.Errorf("generate ed25519 key: %w", err)
			}
			return ed25519Signer{key: key}, nil
		}
		parsed, err := jwt.ParseEdPrivateKeyFromPEM(privPEM)
		if err != nil {
			return nil, fmt.Errorf("parse ed25519 key: %w", err)
		}
		key, ok := parsed.(ed25519.PrivateKey)
		if !ok {
			return nil, errors.New("PEM is not an ed25519 private key")
		}
		return ed25519Signer{key: key}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadSigner, alg)
	}
}

type hmacSigner struct{ key []byte }

func (s hmacSigner) Alg() string               { return jwt.SigningMethodHS256.Alg() }
func (s hmacSigner) Method() jwt.SigningMethod { return jwt.SigningMethodHS256 }
func (s hmacSigner) SignKey() any              { return s.key }
func (s hmacSigner) VerifyKey() any            { return s.key }

type ecdsaSigner struct{ key *ecdsa.PrivateKey }

func (s ecdsaSigner) Alg() string               { return jwt.SigningMethodES256.Alg() }
func (s ecdsaSigner) Method() jwt.SigningMethod { return jwt.SigningMethodES256 }
func (s ecdsaSigner) SignKey() any              { return s.key }
func (s ecdsaSigner) VerifyKey() any            { return &s.key.PublicKey }

type rsaSigner struct{ key *rsa.PrivateKey }

func (s rsaSigner) Alg() string               { return jwt.SigningMethodRS256.Alg() }
func (s rsaSigner) Method() jwt.SigningMethod { return jwt.SigningMethodRS256 }
func (s rsaSigner) SignKey() any              { return s.key }
func (s rsaSigner) VerifyKey() any            { return &s.key.PublicKey }

type ed25519Signer struct{ key ed25519.PrivateKey }

func (s ed25519Signer) Alg() string               { return jwt.SigningMethodEdDSA.Alg() }
func (s ed25519Signer) Method() jwt.SigningMethod { return jwt.SigningMethodEdDSA }
func (s ed25519Signer) SignKey() any              { return s.key }
func (s ed25519Signer) VerifyKey() any            { return s.key.Public() }
