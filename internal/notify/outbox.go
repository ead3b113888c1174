package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/kv"
)

const (
	OutboxStatusPending = "pending"
	OutboxStatusSent    = "sent"
	OutboxStatusFailed  = "failed"

	outboxPrefix      = "notify:outbox:"
	sentRetention     = 24 * time.Hour
	defaultMaxAttempt = 10
)

type OutboxRecord struct {
	ID            string    `json:"id"`
	Channel       string    `json:"channel"`
	Text          string    `json:"text"`
	Status        string    `json:"status"`
	AttemptCount  int       `json:"attempt_count"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
	LastError     string    `json:"last_error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	SentAt        time.Time `json:"sent_at,omitzero"`
}

// Outbox is a retry queue for notifications whose first delivery failed.
type Outbox struct {
	kv          kv.Store
	channels    map[string]Channel
	MaxAttempts int
}

func NewOutbox(store kv.Store, channels ...Channel) *Outbox {
	o := &Outbox{kv: store, channels: map[string]Channel{}, MaxAttempts: defaultMaxAttempt}
	for _, ch := range channels {
		o.channels[ch.Name()] = ch
	}
	return o
}

func (o *Outbox) Enqueue(ctx context.Context, channel, text string, lastErr error, now time.Time) (OutboxRecord, error) {
	now = now.UTC()
	rec := OutboxRecord{
		ID:            uuid.NewString(),
		Channel:       channel,
		Text:          text,
		Status:        OutboxStatusPending,
		AttemptCount:  1,
		NextAttemptAt: now.Add(nextAttempt(0)),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if lastErr != nil {
		rec.LastError = lastErr.Error()
	}
	return rec, o.put(ctx, rec)
}

func (o *Outbox) put(ctx context.Context, rec OutboxRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if rec.Status == OutboxStatusPending {
		return o.kv.Set(ctx, outboxPrefix+rec.ID, raw)
	}
	return o.kv.SetWithTTL(ctx, outboxPrefix+rec.ID, raw, sentRetention)
}

// List returns all outbox records ordered by creation time.
func (o *Outbox) List(ctx context.Context) ([]OutboxRecord, error) {
	entries, err := o.kv.ScanPrefix(ctx, outboxPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]OutboxRecord, 0, len(entries))
	for _, e := range entries {
		var rec OutboxRecord
		if err := json.Unmarshal(e.Value, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ProcessDue retries pending records whose next attempt is due, with exponential backoff.
func (o *Outbox) ProcessDue(ctx context.Context, now time.Time, limit int) (int, error) {
	if o == nil || o.kv == nil {
		return 0, fmt.Errorf("missing store")
	}
	if limit <= 0 {
		limit = 50
	}
	now = now.UTC()

	all, err := o.List(ctx)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, rec := range all {
		if processed >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if rec.Status != OutboxStatusPending || rec.NextAttemptAt.After(now) {
			continue
		}

		ch, ok := o.channels[rec.Channel]
		if !ok {
			rec.Status = OutboxStatusFailed
			rec.LastError = "unknown channel: " + rec.Channel
			rec.UpdatedAt = now
			if err := o.put(ctx, rec); err != nil {
				return processed, err
			}
			processed++
			continue
		}

		if err := ch.Send(ctx, rec.Text); err != nil {
			rec.AttemptCount++
			rec.LastError = err.Error()
			rec.UpdatedAt = now
			rec.NextAttemptAt = now.Add(nextAttempt(rec.AttemptCount - 1))
			if o.MaxAttempts > 0 && rec.AttemptCount >= o.MaxAttempts {
				rec.Status = OutboxStatusFailed
			}
			if err := o.put(ctx, rec); err != nil {
				return processed, err
			}
			processed++
			continue
		}

		rec.Status = OutboxStatusSent
		rec.SentAt = now
		rec.UpdatedAt = now
		if err := o.put(ctx, rec); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

func nextAttempt(attemptCount int) time.Duration {
	// 5s, 10s, 20s, 40s, 80s, 160s, ... capped at 5m.
	base := 5 * time.Second
	if attemptCount <= 0 {
		return base
	}
	max := 5 * time.Minute
	if attemptCount >= 7 {
		return max
	}
	d := base << attemptCount
	if d > max {
		return max
	}
	return d
}
