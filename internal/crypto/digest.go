package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const digestPrefix = "sha256:"

// Digest is a SHA-256 sum. Receipts sign the raw sum and publish it as "sha256:<hex>".
type Digest [sha256.Size]byte

func Sum(data []byte) Digest {
	return Digest(sha256.Sum256(data))
}

func (d Digest) String() string {
	return digestPrefix + hex.EncodeToString(d[:])
}

// ParseDigest reverses Digest.String.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	rest, ok := strings.CutPrefix(s, digestPrefix)
	if !ok {
		return d, ErrInvalidDigestLen
	}
	raw, err := hex.DecodeString(rest)
	if err != nil {
		return d, err
	}
	if len(raw) != len(d) {
		return d, ErrInvalidDigestLen
	}
	copy(d[:], raw)
	return d, nil
}

// DigestWithPrefix is Sum(data).String(); plan digests and policy hashes use it.
func DigestWithPrefix(data []byte) string {
	return Sum(data).String()
}

func (d Digest) Sign(priv ed25519.PrivateKey) []byte {
	return ed25519.Sign(priv, d[:])
}

func (d Digest) Verify(pub ed25519.PublicKey, sig []byte) bool {
	return len(pub) == ed25519.PublicKeySize && ed25519.Verify(pub, d[:], sig)
}
