// Package security carries the node's ambient hardening concerns that sit
// outside consensus signing proper: state-at-rest encryption, an HSM-backed
// alternative to keystore.InMemorySigner, TLS configuration for the admin
// surfaces, and audit logging. Grounded on rechain/internal/security/security.go,
// narrowed to drop its RSA transaction-signing path: every consensus
// signature (votes, proposals, commits) goes through keystore.Signer
// (Ed25519) exclusively, per spec.md's signature scheme (see DESIGN.md).
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"
)

// KeyManager wraps AES-GCM payload encryption with an RSA-OAEP wrapped
// content key. No other package calls it, and SecurityConfig.EncryptAtRest
// is not read anywhere.
type KeyManager struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
}

// NewKeyManager generates a fresh RSA-2048 key pair for wrapping AES
// content keys.
func NewKeyManager() (*KeyManager, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("security: failed to generate RSA key: %w", err)
	}
	return &KeyManager{privateKey: privateKey, publicKey: &privateKey.PublicKey}, nil
}

// EncryptData encrypts plaintext under a fresh random AES-256-GCM key, and
// returns the ciphertext alongside that key wrapped under the manager's
// RSA public key.
func (km *KeyManager) EncryptData(plaintext []byte) (ciphertext, encryptedKey []byte, err error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, nil, fmt.Errorf("security: failed to generate AES key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("security: failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("security: failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("security: failed to generate nonce: %w", err)
	}
	ciphertext = gcm.Seal(nonce, nonce, plaintext, nil)

	encryptedKey, err = rsa.EncryptOAEP(sha256.New(), rand.Reader, km.publicKey, key, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("security: failed to wrap AES key: %w", err)
	}
	return ciphertext, encryptedKey, nil
}

// DecryptData reverses EncryptData.
func (km *KeyManager) DecryptData(ciphertext, encryptedKey []byte) ([]byte, error) {
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, km.privateKey, encryptedKey, nil)
	if err != nil {
		return nil, fmt.Errorf("security: failed to unwrap AES key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("security: ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("security: failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// GenerateNonce returns a random nonce of the given size.
func GenerateNonce(size int) ([]byte, error) {
	nonce := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: failed to generate nonce: %w", err)
	}
	return nonce, nil
}

// HSMSigner is an alternate keystore.Signer backing for validators whose
// private key is held in a hardware security module rather than process
// memory. The actual HSM call is a stub (see Sign); swapping it for a real
// PKCS#11/cloud-KMS client does not change callers, since they only ever
// see the keystore.Signer interface.
type HSMSigner struct {
	address   string
	pub       ed25519.PublicKey
	connected bool
}

// NewHSMSigner logs address and keyID and generates a fresh random Ed25519
// public key in process; it opens no HSM connection.
func NewHSMSigner(address, keyID string) (*HSMSigner, error) {
	log.Printf("security: connecting to HSM at %s for key %s (stub)", address, keyID)

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("security: failed to provision stand-in HSM key: %w", err)
	}

	return &HSMSigner{address: address, pub: pub, connected: true}, nil
}

// PublicKey implements keystore.Signer.
func (h *HSMSigner) PublicKey() ed25519.PublicKey {
	return h.pub
}

// Sign implements keystore.Signer with a stub: it makes no HSM call and
// returns 64 random bytes, so its signatures never verify.
func (h *HSMSigner) Sign(message []byte) ([]byte, error) {
	if !h.connected {
		return nil, fmt.Errorf("security: HSM at %s not connected", h.address)
	}
	sig := make([]byte, ed25519.SignatureSize)
	if _, err := io.ReadFull(rand.Reader, sig); err != nil {
		return nil, fmt.Errorf("security: HSM signing stub failed: %w", err)
	}
	return sig, nil
}

// TLSConfig holds the certificate/key/CA paths for the admin HTTP and gRPC
// surfaces.
type TLSConfig struct {
	CertFile string
	KeyFile  string
	CAFile   string
}

// LoadTLSConfig records the certificate paths for later use by
// http.Server.ListenAndServeTLS / grpc credentials; it does not read the
// files itself.
func LoadTLSConfig(certFile, keyFile, caFile string) (*TLSConfig, error) {
	return &TLSConfig{CertFile: certFile, KeyFile: keyFile, CAFile: caFile}, nil
}

// ValidateCertificate parses and sanity-checks a PEM-encoded certificate.
func ValidateCertificate(certPEM []byte) error {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return fmt.Errorf("security: invalid PEM block")
	}
	_, err := x509.ParseCertificate(block.Bytes)
	return err
}

// GenerateCertID generates a unique certificate identifier.
func GenerateCertID() string {
	return uuid.New().String()
}

// AuditLogger logs security-relevant events: evidence submissions,
// slashing, key rotation, TLS handshake failures.
type AuditLogger struct {
	enabled bool
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(enabled bool) *AuditLogger {
	return &AuditLogger{enabled: enabled}
}

// LogSecurityEvent logs a security event.
func (al *AuditLogger) LogSecurityEvent(eventType, details string) {
	if !al.enabled {
		return
	}
	log.Printf("SECURITY EVENT [%s]: %s", eventType, details)
}

// LogAccess logs an access event against the admin API.
func (al *AuditLogger) LogAccess(resource, action, userID string) {
	if !al.enabled {
		return
	}
	log.Printf("ACCESS: %s %s by %s", action, resource, userID)
}
