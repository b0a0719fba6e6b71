// Package keystore provides the injected Ed25519 signing collaborator
// spec.md §9 calls for: "the sign_message path returns an all-zero 64-byte
// signature in some code paths. Implementations must integrate real
// Ed25519 signing via an injected key-store interface; a zero signature
// must never verify successfully." Grounded on the key generation / sign /
// verify / base64 pattern of decub-crypto/signatures.go, in the same pack
// directory as the teacher.
package keystore

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Signer signs and exposes the public key of a single validator identity.
// The consensus engine is handed a Signer at construction; it never
// generates or stores key material itself.
type Signer interface {
	PublicKey() ed25519.PublicKey
	Sign(message []byte) ([]byte, error)
}

// Verify checks a signature against a public key. Verification needs no
// key custody, so it is a free function rather than part of Signer.
func Verify(pub ed25519.PublicKey, message, signature []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	// A correctly-sized all-zero signature must never verify; ed25519.Verify
	// already rejects it (the zero scalar fails the curve check), but the
	// guard documents the invariant spec.md §9 calls out explicitly.
	if isAllZero(signature) {
		return false
	}
	return ed25519.Verify(pub, message, signature)
}

func isAllZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// InMemorySigner holds an Ed25519 private key in process memory. It is the
// default Signer for single-process nodes and for tests; production
// deployments may swap in an HSM-backed Signer (see security.HSMSigner)
// behind the same interface.
type InMemorySigner struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// GenerateInMemorySigner creates a fresh random Ed25519 identity.
func GenerateInMemorySigner() (*InMemorySigner, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keystore: failed to generate ed25519 key: %w", err)
	}
	return &InMemorySigner{pub: pub, priv: priv}, nil
}

// NewInMemorySigner wraps an already-loaded private key (e.g. read from a
// config-referenced keyfile).
func NewInMemorySigner(priv ed25519.PrivateKey) *InMemorySigner {
	return &InMemorySigner{pub: priv.Public().(ed25519.PublicKey), priv: priv}
}

func (s *InMemorySigner) PublicKey() ed25519.PublicKey { return s.pub }

func (s *InMemorySigner) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, message), nil
}

// EncodePublicKey / DecodePublicKey mirror decub-crypto's base64 public-key
// marshalling, used by config and the wire envelope.
func EncodePublicKey(pub ed25519.PublicKey) string {
	return base64.StdEncoding.EncodeToString(pub)
}

func DecodePublicKey(encoded string) (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("keystore: invalid base64 public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("keystore: invalid public key size: expected %d, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}
