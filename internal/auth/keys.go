package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// KeyPair holds the Ed25519 signing key pair used for token minting and
// verification. Verification-only deployments may leave Private nil.
type KeyPair struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
}

// LoadKeyPair reads and parses PEM-encoded Ed25519 keys from the given paths.
// The private path may be empty for components that only verify tokens.
func LoadKeyPair(privatePath, publicPath string) (*KeyPair, error) {
	pubPEM, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	pub, err := jwt.ParseEdPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	edPub, ok := pub.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key at %s is not Ed25519", publicPath)
	}

	kp := &KeyPair{Public: edPub}

	if privatePath != "" {
		privPEM, err := os.ReadFile(privatePath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		priv, err := jwt.ParseEdPrivateKeyFromPEM(privPEM)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		edPriv, ok := priv.(ed25519.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key at %s is not Ed25519", privatePath)
		}
		kp.Private = edPriv
	}

	return kp, nil
}

// NewTestKeyPair generates an ephemeral key pair. Intended for tests and
// development bootstrapping only.
func NewTestKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key pair: %w", err)
	}
	return &KeyPair{Private: priv, Public: pub}, nil
}
