// Package briefing sends a once-a-day digest of news feeds, summarised by an LLM, through the
// background notification path.
package briefing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/config"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/executor"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/kv"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/llm"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/logging"
)

const (
	LastRunKey = "briefing:last_run"
	dayLayout  = "2006-01-02"
)

const SystemPrompt = "You create a short daily briefing from news feed items and a short reflection.\n" +
	"- Be factual; do not invent headlines.\n" +
	"- Keep it concise.\n" +
	"- Finish with a short intention asking for wisdom, humility, and protection from harm.\n" +
	"Output plain text (not JSON)."

type FeedFetcher interface {
	Fetch(ctx context.Context, raw string) (executor.FetchResult, error)
}

type BackgroundNotifier interface {
	NotifyBackground(ctx context.Context, text string)
}

type Options struct {
	Config   config.BriefingConfig
	Fetcher  FeedFetcher
	Provider llm.Provider
	// Store persists the day of the last briefing so a restart does not send twice.
	Store    kv.Store
	Notifier BackgroundNotifier
	Log      logrus.FieldLogger
	Now      func() time.Time
}

// Report is what one briefing run produced.
type Report struct {
	Day    string    `json:"day"`
	SentAt time.Time `json:"sent_at"`
	Items  []Item    `json:"items"`
	Text   string    `json:"text"`
	Error  string    `json:"error,omitempty"`
}

type Service struct {
	cfg          config.BriefingConfig
	hour, minute int
	fetcher      FeedFetcher
	provider     llm.Provider
	store        kv.Store
	notifier     BackgroundNotifier
	log          logrus.FieldLogger
	now          func() time.Time

	mu sync.Mutex
	// lastDay is the day already handled; empty until the first Tick loads it.
	lastDay string
	loaded  bool
}

func New(opts Options) (*Service, error) {
	hour, minute, err := opts.Config.TimeOfDay()
	if err != nil {
		return nil, err
	}
	if opts.Fetcher == nil || opts.Provider == nil {
		return nil, errors.New("briefing: fetcher and provider are required")
	}
	s := &Service{
		cfg:      opts.Config,
		hour:     hour,
		minute:   minute,
		fetcher:  opts.Fetcher,
		provider: opts.Provider,
		store:    opts.Store,
		notifier: opts.Notifier,
		log:      logging.OrDiscard(opts.Log),
		now:      opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Tick sends today's briefing once the configured time has passed. A process that first
// checks more than one check interval after that time waits for tomorrow.
func (s *Service) Tick(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	today := now.Format(dayLayout)
	target := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, now.Location())

	if !s.loaded {
		s.loaded = true
		if last, ok := s.lastRun(ctx); ok {
			s.lastDay = last.Day
		} else if now.Sub(target) > s.grace() {
			s.lastDay = today
			s.log.WithField("day", today).Info("briefing: started after send time; next briefing tomorrow")
		}
	}
	if s.lastDay == today || now.Before(target) {
		return nil
	}

	s.lastDay = today
	report := s.RunOnce(ctx)
	if report.Error != "" {
		return errors.New(report.Error)
	}
	return nil
}

func (s *Service) grace() time.Duration {
	if s.cfg.CheckIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(s.cfg.CheckIntervalSeconds) * time.Second
}

// RunOnce fetches the sources, summarises them and sends the result, whatever the time.
func (s *Service) RunOnce(ctx context.Context) Report {
	now := s.now()
	report := Report{Day: now.Format(dayLayout), SentAt: now.UTC(), Items: s.collect(ctx)}
	log := s.log.WithFields(logrus.Fields{"day": report.Day, "items": len(report.Items)})

	switch {
	case len(report.Items) == 0:
		report.Text = "Daily briefing: no feed items fetched."
	default:
		lines := make([]string, 0, len(report.Items))
		for _, it := range report.Items {
			lines = append(lines, fmt.Sprintf("- %s (%s)", it.Title, it.Link))
		}
		prompt := "Today's items:\n" + strings.Join(lines, "\n") + "\n\nSummarize and reflect briefly."
		text, err := s.provider.Chat(ctx, SystemPrompt, prompt, s.cfg.Model)
		if err != nil {
			report.Error = err.Error()
			text = "Daily briefing error: " + err.Error()
			log.WithError(err).Warn("briefing: summary failed")
		}
		report.Text = strings.TrimSpace(text)
	}

	if s.notifier != nil {
		s.notifier.NotifyBackground(ctx, report.Text)
	}
	if s.store != nil {
		if err := kv.SetJSON(ctx, s.store, LastRunKey, report); err != nil {
			log.WithError(err).Warn("briefing: could not persist last run")
		}
	}
	log.Info("briefing: sent")
	return report
}

// LastRun returns the most recent briefing, if one was recorded.
func (s *Service) LastRun(ctx context.Context) (Report, bool) {
	return s.lastRun(ctx)
}

func (s *Service) lastRun(ctx context.Context) (Report, bool) {
	if s.store == nil {
		return Report{}, false
	}
	var r Report
	if err := kv.GetJSON(ctx, s.store, LastRunKey, &r); err != nil {
		return Report{}, false
	}
	return r, true
}

func (s *Service) collect(ctx context.Context) []Item {
	perSource := s.cfg.ItemsPerSource
	if perSource <= 0 {
		perSource = 3
	}
	maxItems := s.cfg.MaxItems
	if maxItems <= 0 {
		maxItems = 8
	}

	var items []Item
	for _, src := range s.cfg.Sources {
		if len(items) >= maxItems {
			break
		}
		log := s.log.WithField("source", src)
		res, err := s.fetcher.Fetch(ctx, src)
		if err != nil {
			log.WithError(err).Warn("briefing: fetch failed")
			continue
		}
		got, err := ParseFeed(src, res.Content, perSource)
		if err != nil {
			log.WithError(err).Warn("briefing: unreadable feed")
			continue
		}
		items = append(items, got...)
	}
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}
