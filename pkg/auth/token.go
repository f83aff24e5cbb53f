package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrInvalidToken     = fmt.Errorf("invalid token format")
	ErrInvalidSignature = fmt.Errorf("invalid signature")
	ErrExpiredToken     = fmt.Errorf("token has expired")
	ErrInvalidClaims    = fmt.Errorf("invalid claims")
)

// Every issued token carries the same fixed header, encode it once
var encodedHeader = base64.RawURLEncoding.EncodeToString(
	[]byte(`{"alg":"HS256","typ":"JWT"}`))

type tokenHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

// Sign issues a compact HS256 token for the claims
func Sign(claims *Claims, secret []byte) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal claims - %v", err)
	}
	message := encodedHeader + "." + base64.RawURLEncoding.EncodeToString(payload)
	return message + "." + base64.RawURLEncoding.EncodeToString(seal(message, secret)), nil
}

// Verify checks a token's signature and claims, returning the claims
// on success. The signature check runs before anything is decoded.
func Verify(token string, secret []byte) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}

	message := parts[0] + "." + parts[1]
	want := base64.RawURLEncoding.EncodeToString(seal(message, secret))
	if !hmac.Equal([]byte(parts[2]), []byte(want)) {
		return nil, ErrInvalidSignature
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var h tokenHeader
	if err := json.Unmarshal(headerBytes, &h); err != nil {
		return nil, ErrInvalidToken
	}
	if h.Alg != "HS256" {
		return nil, fmt.Errorf("unsupported algorithm %q", h.Alg)
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrInvalidToken
	}

	if !claims.Valid() {
		if claims.Expired() {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidClaims
	}
	return &claims, nil
}

// seal computes the HMAC-SHA256 tag over the signing input
func seal(message string, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(message))
	return mac.Sum(nil)
}

// DeriveSecret expands a master key into a 32-byte signing secret.
// Distinct info strings yield unrelated secrets from the same key.
func DeriveSecret(masterKey []byte, info string) []byte {
	kdf := hkdf.New(sha256.New, masterKey, nil, []byte(info))
	secret := make([]byte, 32)
	_, _ = kdf.Read(secret)
	return secret
}
