// Package signer produces the request signatures the bank expects in the
// sign-data header.
package signer

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

var (
	ErrKeyLoad      = errors.New("load signing key")
	ErrSigning      = errors.New("sign payload")
	ErrVerification = errors.New("verify signature")
)

// Signer signs an arbitrary byte payload. Remote signers honour ctx.
type Signer interface {
	Sign(ctx context.Context, payload []byte) ([]byte, error)
}

// RSASigner signs with RSASSA-PKCS1-v1_5 over a SHA-256 digest.
// The key is immutable after construction, so one RSASigner is safe to
// share between goroutines.
type RSASigner struct {
	key *rsa.PrivateKey
}

func NewRSASigner(key *rsa.PrivateKey) *RSASigner {
	return &RSASigner{key: key}
}

// LoadRSAFile reads a PKCS#8 PEM private key from disk.
func LoadRSAFile(path string) (*RSASigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrKeyLoad, path, err)
	}
	return ParseRSAPEM(data)
}

// ParseRSAPEM parses a PKCS#8 PEM block holding an RSA private key.
func ParseRSAPEM(data []byte) (*RSASigner, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrKeyLoad)
	}
	if block.Type != "PRIVATE KEY" {
		return nil, fmt.Errorf("%w: unexpected PEM type %q", ErrKeyLoad, block.Type)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parse pkcs8: %v", ErrKeyLoad, err)
	}

	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: key type %T is not RSA", ErrKeyLoad, parsed)
	}
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyLoad, err)
	}

	return NewRSASigner(key), nil
}

func (s *RSASigner) Sign(_ context.Context, payload []byte) ([]byte, error) {
	if s == nil || s.key == nil {
		return nil, fmt.Errorf("%w: signer has no key", ErrSigning)
	}

	digest := sha256.Sum256(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return sig, nil
}

// Verify accepts exactly the signatures Sign produces for payload.
func (s *RSASigner) Verify(signature, payload []byte) error {
	if s == nil || s.key == nil {
		return fmt.Errorf("%w: signer has no key", ErrVerification)
	}

	digest := sha256.Sum256(payload)
	if err := rsa.VerifyPKCS1v15(&s.key.PublicKey, crypto.SHA256, digest[:], signature); err != nil {
		return fmt.Errorf("%w: %v", ErrVerification, err)
	}
	return nil
}

func (s *RSASigner) PublicKey() *rsa.PublicKey {
	return &s.key.PublicKey
}

// PublicKeyPEM returns the PKIX encoded public half, the form the bank asks
// for during onboarding.
func (s *RSASigner) PublicKeyPEM() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(&s.key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// NoopSigner returns an empty signature. Test wiring only.
type NoopSigner struct{}

func (NoopSigner) Sign(context.Context, []byte) ([]byte, error) {
	return []byte{}, nil
}
