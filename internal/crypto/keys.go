package crypto

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// KeyPairFromSeed derives an Ed25519 keypair from a 32-byte seed.
func KeyPairFromSeed(seed []byte) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, nil, ErrInvalidSeedSize
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return priv, priv.Public().(ed25519.PublicKey), nil
}

// LoadSigningKey reads a receipt signing key from a file holding a 32-byte seed or a 64-byte
// private key, raw or as hex / base64 (optionally prefixed "hex:" / "base64:").
func LoadSigningKey(path string) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	// #nosec G304 -- path is operator-configured.
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return ParseSigningKey(raw)
}

// ParseSigningKey decodes key material in any of the formats LoadSigningKey accepts.
// Printable input is always read as text, so a 64-character hex seed is a seed.
func ParseSigningKey(raw []byte) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	data, err := decodeKeyMaterial(raw)
	if err != nil {
		return nil, nil, err
	}
	switch len(data) {
	case ed25519.SeedSize:
		return KeyPairFromSeed(data)
	case ed25519.PrivateKeySize:
		priv := ed25519.PrivateKey(data)
		want := ed25519.NewKeyFromSeed(priv.Seed())
		if !bytes.Equal(priv, want) {
			return nil, nil, ErrKeyMismatch
		}
		return priv, priv.Public().(ed25519.PublicKey), nil
	default:
		return nil, nil, fmt.Errorf("unsupported key length: %d", len(data))
	}
}

func decodeKeyMaterial(raw []byte) ([]byte, error) {
	text := strings.TrimSpace(string(raw))
	if !isPrintable(text) {
		if len(raw) == ed25519.SeedSize || len(raw) == ed25519.PrivateKeySize {
			return raw, nil
		}
		return nil, fmt.Errorf("unrecognized key encoding")
	}
	switch {
	case text == "":
		return nil, fmt.Errorf("empty key material")
	case strings.HasPrefix(text, "hex:"):
		return hex.DecodeString(strings.TrimPrefix(text, "hex:"))
	case strings.HasPrefix(text, "base64:"):
		return base64.StdEncoding.DecodeString(strings.TrimPrefix(text, "base64:"))
	}
	if out, err := hex.DecodeString(text); err == nil && validKeyLen(out) {
		return out, nil
	}
	if out, err := base64.StdEncoding.DecodeString(text); err == nil && validKeyLen(out) {
		return out, nil
	}
	// A raw key whose bytes happen to be printable.
	if validKeyLen(raw) {
		return raw, nil
	}
	return nil, fmt.Errorf("unrecognized key encoding")
}

func validKeyLen(b []byte) bool {
	return len(b) == ed25519.SeedSize || len(b) == ed25519.PrivateKeySize
}

func isPrintable(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}
