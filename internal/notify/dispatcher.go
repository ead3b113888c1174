package notify

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/kv"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/logging"
)

const muteKey = "notify:mute_until"

// Dispatcher sends each notification to every configured channel.
type Dispatcher struct {
	channels []Channel
	kv       kv.Store
	outbox   *Outbox
	log      logrus.FieldLogger
	now      func() time.Time
}

type DispatcherOptions struct {
	// Store holds the mute marker. Without it Mute is a no-op.
	Store  kv.Store
	Outbox *Outbox
	Log    logrus.FieldLogger
	Now    func() time.Time
}

func NewDispatcher(opts DispatcherOptions, channels ...Channel) *Dispatcher {
	d := &Dispatcher{channels: channels, kv: opts.Store, outbox: opts.Outbox, log: logging.OrDiscard(opts.Log), now: opts.Now}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Notify delivers text on every configured channel. Failures are logged and queued in the
// outbox when one is attached; they are never returned.
func (d *Dispatcher) Notify(ctx context.Context, text string) {
	for _, ch := range d.channels {
		if !ch.Configured() {
			continue
		}
		err := ch.Send(ctx, text)
		if err == nil {
			continue
		}
		log := d.log.WithField("channel", ch.Name()).WithError(err)
		if d.outbox == nil {
			log.Warn("notify: delivery failed")
			continue
		}
		if _, qerr := d.outbox.Enqueue(ctx, ch.Name(), text, err, d.now()); qerr != nil {
			log.WithField("outbox_error", qerr.Error()).Warn("notify: delivery failed and could not be queued")
			continue
		}
		log.Info("notify: delivery failed; queued for retry")
	}
}

// NotifyBackground is Notify for scheduled loops; it is suppressed while muted.
func (d *Dispatcher) NotifyBackground(ctx context.Context, text string) {
	if d.Muted(ctx) {
		d.log.Debug("notify: muted; dropping background notification")
		return
	}
	d.Notify(ctx, text)
}

// Mute suppresses background notifications for dur.
func (d *Dispatcher) Mute(ctx context.Context, dur time.Duration) (time.Time, error) {
	if d.kv == nil {
		return time.Time{}, errors.New("notify: no store for mute marker")
	}
	until := d.now().Add(dur).UTC()
	return until, d.kv.SetWithTTL(ctx, muteKey, []byte(until.Format(time.RFC3339)), dur)
}

func (d *Dispatcher) Unmute(ctx context.Context) error {
	if d.kv == nil {
		return nil
	}
	return d.kv.Delete(ctx, muteKey)
}

func (d *Dispatcher) Muted(ctx context.Context) bool {
	if d.kv == nil {
		return false
	}
	ok, err := kv.Exists(ctx, d.kv, muteKey)
	if err != nil {
		d.log.WithError(err).Warn("notify: mute lookup failed")
		return false
	}
	return ok
}
