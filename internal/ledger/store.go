package ledger

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/kv"
)

const receiptPrefix = "receipt:"

var ErrReceiptNotFound = errors.New("receipt not found")

// Store keeps receipts in the shared kv store, keyed by receipt id.
type Store struct {
	kv kv.Store
}

func NewStore(s kv.Store) *Store {
	return &Store{kv: s}
}

func (s *Store) Put(ctx context.Context, r StoredReceipt) error {
	return kv.SetJSON(ctx, s.kv, receiptPrefix+r.ReceiptID, r)
}

func (s *Store) Get(ctx context.Context, receiptID string) (StoredReceipt, error) {
	var r StoredReceipt
	err := kv.GetJSON(ctx, s.kv, receiptPrefix+receiptID, &r)
	if errors.Is(err, kv.ErrNotFound) {
		return StoredReceipt{}, ErrReceiptNotFound
	}
	return r, err
}

// List returns every stored receipt in key order.
func (s *Store) List(ctx context.Context) ([]StoredReceipt, error) {
	entries, err := s.kv.ScanPrefix(ctx, receiptPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]StoredReceipt, 0, len(entries))
	for _, e := range entries {
		var r StoredReceipt
		if err := json.Unmarshal(e.Value, &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
