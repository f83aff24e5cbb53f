// Package keys handles the key material velo touches: ed25519 pairs
// for token signing seeds, private key files for SSH client auth, and
// host key fingerprints for pinning.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"os"

	"golang.org/x/crypto/ssh"
)

// KeyPair holds a PEM-encoded ed25519 private key plus the SHA256
// fingerprint of its public half.
type KeyPair struct {
	PrivateKey  string `json:"private_key"`
	FingerPrint string `json:"fingerprint"`
}

// NewEd25519KeyPair generates a fresh key pair
func NewEd25519KeyPair() (*KeyPair, error) {
	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("ed25519.GenerateKey: %v", err)
	}

	// MarshalPKCS8PrivateKey supports ed25519
	pvBytes, mErr := x509.MarshalPKCS8PrivateKey(privateKey)
	if mErr != nil {
		return nil, mErr
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: pvBytes,
	})

	signer, sErr := ssh.ParsePrivateKey(pemBytes)
	if sErr != nil {
		return nil, fmt.Errorf("ParsePrivateKey: %v", sErr)
	}

	fp, fErr := GenerateFingerprint(signer.PublicKey())
	if fErr != nil {
		return nil, fErr
	}

	return &KeyPair{
		PrivateKey:  string(pemBytes),
		FingerPrint: fp,
	}, nil
}

// SignerFromKey builds an ssh.Signer from PEM private key data
func SignerFromKey(privateKey string) (ssh.Signer, error) {
	signer, err := ssh.ParsePrivateKey([]byte(privateKey))
	if err != nil {
		return nil, fmt.Errorf("ParsePrivateKey: %v", err)
	}
	return signer, nil
}

// SignerFromFile loads a private key file (optionally passphrase
// protected) and returns its signer
func SignerFromFile(path string, passphrase string) (ssh.Signer, error) {
	keyBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file %s - %v", path, err)
	}
	if passphrase != "" {
		signer, pErr := ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(passphrase))
		if pErr != nil {
			return nil, fmt.Errorf("ParsePrivateKeyWithPassphrase: %v", pErr)
		}
		return signer, nil
	}
	signer, sErr := ssh.ParsePrivateKey(keyBytes)
	if sErr != nil {
		return nil, fmt.Errorf("ParsePrivateKey: %v", sErr)
	}
	return signer, nil
}

// GenerateFingerprint returns the SHA256 fingerprint of a public key
// in the OpenSSH notation (SHA256:...)
func GenerateFingerprint(key ssh.PublicKey) (string, error) {
	if key == nil {
		return "", fmt.Errorf("nil public key")
	}
	return ssh.FingerprintSHA256(key), nil
}

// FingerprintCallback returns a HostKeyCallback that accepts only a
// host key matching the expected fingerprint. An empty expectation
// accepts any key (first-connection convenience, the caller decides
// whether to allow it).
func FingerprintCallback(expected string) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		if expected == "" {
			return nil
		}
		fp, err := GenerateFingerprint(key)
		if err != nil {
			return err
		}
		if subtle.ConstantTimeCompare([]byte(fp), []byte(expected)) != 1 {
			return fmt.Errorf("host key mismatch for %s: got %s, pinned %s", hostname, fp, expected)
		}
		return nil
	}
}
