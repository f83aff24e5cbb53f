package keys

import (
	"testing"
)

func TestNewEd25519KeyPair(t *testing.T) {
	keyPair, err := NewEd25519KeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}

	if keyPair.PrivateKey == "" {
		t.Error("Private key is empty")
	}

	if keyPair.FingerPrint == "" {
		t.Error("Fingerprint is empty")
	}
}

func TestSignerFromKey(t *testing.T) {
	keyPair, err := NewEd25519KeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}

	signer, err := SignerFromKey(keyPair.PrivateKey)
	if err != nil {
		t.Fatalf("Failed to create signer from key: %v", err)
	}

	if signer == nil {
		t.Error("Signer is nil")
	}

	_, err = SignerFromKey("invalid-key-data")
	if err == nil {
		t.Error("Expected error with invalid key data, got nil")
	}
}

func TestFingerprintGeneration(t *testing.T) {
	keyPair, err := NewEd25519KeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}

	signer, err := SignerFromKey(keyPair.PrivateKey)
	if err != nil {
		t.Fatalf("Failed to create signer from key: %v", err)
	}

	fingerprint, err := GenerateFingerprint(signer.PublicKey())
	if err != nil {
		t.Fatalf("Failed to generate fingerprint: %v", err)
	}

	if fingerprint == "" {
		t.Error("Generated fingerprint is empty")
	}

	fingerprint2, err := GenerateFingerprint(signer.PublicKey())
	if err != nil {
		t.Fatalf("Failed to regenerate fingerprint: %v", err)
	}

	if fingerprint != fingerprint2 {
		t.Errorf("Fingerprints do not match: %s != %s", fingerprint, fingerprint2)
	}

	if fingerprint != keyPair.FingerPrint {
		t.Errorf("Generated fingerprint does not match key pair's fingerprint: %s != %s",
			fingerprint, keyPair.FingerPrint)
	}
}

func TestFingerprintCallback(t *testing.T) {
	keyPair, err := NewEd25519KeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}
	signer, err := SignerFromKey(keyPair.PrivateKey)
	if err != nil {
		t.Fatalf("Failed to create signer: %v", err)
	}

	cb := FingerprintCallback(keyPair.FingerPrint)
	if cbErr := cb("host:22", nil, signer.PublicKey()); cbErr != nil {
		t.Errorf("matching fingerprint rejected: %v", cbErr)
	}

	cb = FingerprintCallback("SHA256:doesnotmatch")
	if cbErr := cb("host:22", nil, signer.PublicKey()); cbErr == nil {
		t.Error("mismatched fingerprint accepted")
	}

	cb = FingerprintCallback("")
	if cbErr := cb("host:22", nil, signer.PublicKey()); cbErr != nil {
		t.Errorf("empty expectation must accept: %v", cbErr)
	}
}
