package ledger

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/crypto"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/pkg/types"
)

var (
	ErrReceiptDigestMismatch = errors.New("receipt digest mismatch")
	ErrReceiptSignature      = errors.New("receipt signature invalid")
	ErrReceiptFieldMismatch  = errors.New("receipt index fields disagree with signed body")
)

// signedIndex is the part of a receipt body that StoredReceipt repeats outside the signature.
type signedIndex struct {
	Schema    string `json:"schema"`
	KeyID     string `json:"key_id"`
	PendingID string `json:"pending_id"`
	CreatedAt string `json:"created_at"`
	Outcome   struct {
		Status types.ReceiptOutcomeStatus `json:"status"`
	} `json:"outcome"`
}

// VerifyReceipt checks the body digest and signature, then that every stored index field
// (key, pending id, timestamp, outcome) is the value the signature covers.
func VerifyReceipt(receipt StoredReceipt, publicKey ed25519.PublicKey) error {
	digest := crypto.Sum(receipt.BodyJSON)
	if receipt.BodyDigest != digest.String() || receipt.ReceiptID != receipt.BodyDigest {
		return ErrReceiptDigestMismatch
	}
	if !digest.Verify(publicKey, receipt.Sig) {
		return ErrReceiptSignature
	}

	var idx signedIndex
	if err := json.Unmarshal(receipt.BodyJSON, &idx); err != nil {
		return fmt.Errorf("%w: %v", ErrReceiptFieldMismatch, err)
	}
	switch {
	case idx.Schema != ReceiptSchema:
		return fmt.Errorf("%w: schema %q", ErrReceiptFieldMismatch, idx.Schema)
	case idx.KeyID != receipt.KeyID:
		return fmt.Errorf("%w: key_id", ErrReceiptFieldMismatch)
	case idx.PendingID != receipt.PendingID:
		return fmt.Errorf("%w: pending_id", ErrReceiptFieldMismatch)
	case idx.CreatedAt != receipt.CreatedAt:
		return fmt.Errorf("%w: created_at", ErrReceiptFieldMismatch)
	case idx.Outcome.Status != receipt.OutcomeStatus:
		return fmt.Errorf("%w: outcome.status", ErrReceiptFieldMismatch)
	}
	return nil
}
