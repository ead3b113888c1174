package pending

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/apperr"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/kv"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/pkg/types"
)

// Store persists pending actions in the shared kv store under their id.
type Store struct {
	kv kv.Store
}

func NewStore(s kv.Store) *Store {
	return &Store{kv: s}
}

func (s *Store) Get(ctx context.Context, id string) (types.PendingAction, error) {
	if !strings.HasPrefix(id, IDPrefix) {
		return types.PendingAction{}, apperr.NotFound("pending.get", "pending action %s not found", id)
	}
	var p types.PendingAction
	err := kv.GetJSON(ctx, s.kv, id, &p)
	if errors.Is(err, kv.ErrNotFound) {
		return types.PendingAction{}, apperr.NotFound("pending.get", "pending action %s not found", id)
	}
	if err != nil {
		return types.PendingAction{}, apperr.Wrap(apperr.KindInternal, "pending.get", err)
	}
	return p, nil
}

func (s *Store) Put(ctx context.Context, p types.PendingAction) error {
	return kv.SetJSON(ctx, s.kv, p.ID, p)
}

// List returns every pending action in id (creation) order.
func (s *Store) List(ctx context.Context) ([]types.PendingAction, error) {
	entries, err := s.kv.ScanPrefix(ctx, IDPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]types.PendingAction, 0, len(entries))
	for _, e := range entries {
		var p types.PendingAction
		if err := json.Unmarshal(e.Value, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// FindWaitingByCode scans all records for a WAITING_HUMAN one carrying code. The scan is not
// atomic with any later write; concurrent replies on one code may both succeed.
func (s *Store) FindWaitingByCode(ctx context.Context, code string) (types.PendingAction, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return types.PendingAction{}, apperr.Validation("pending.find", "approval code is required")
	}
	all, err := s.List(ctx)
	if err != nil {
		return types.PendingAction{}, err
	}
	var matched *types.PendingAction
	for i := range all {
		if strings.ToUpper(all[i].ApprovalCode) != code {
			continue
		}
		if all[i].Status == types.StatusWaitingHuman {
			return all[i], nil
		}
		if matched == nil {
			matched = &all[i]
		}
	}
	if matched != nil {
		return types.PendingAction{}, apperr.State("pending.find", "%s is %s, not waiting for a reply", matched.ID, matched.Status)
	}
	return types.PendingAction{}, apperr.NotFound("pending.find", "no pending action with code %s", code)
}
