package ledger

import (
	"crypto/ed25519"
	"errors"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/crypto"
)

// KeySigner signs receipts with an in-memory ed25519 key.
type KeySigner struct {
	ID   string
	Priv ed25519.PrivateKey
}

func (s KeySigner) KeyID() string { return s.ID }

func (s KeySigner) Sign(digest crypto.Digest) ([]byte, error) {
	if len(s.Priv) != ed25519.PrivateKeySize {
		return nil, errors.New("receipt signer has no private key")
	}
	return digest.Sign(s.Priv), nil
}

func (s KeySigner) PublicKey() ed25519.PublicKey {
	return s.Priv.Public().(ed25519.PublicKey)
}
