// Package scheduler runs named background loops. Each loop ticks on its own interval; an error
// or panic in one tick is logged and the loop waits for the next tick.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/logging"
)

type Job func(ctx context.Context) error

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

type LoopStatus struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Runs      int           `json:"runs"`
	Failures  int           `json:"failures"`
	LastRun   time.Time     `json:"last_run,omitzero"`
	LastError string        `json:"last_error,omitempty"`
}

type loop struct {
	name      string
	interval  time.Duration
	job       Job
	immediate bool
}

type Options struct {
	Clock Clock
	Log   logrus.FieldLogger
}

type Scheduler struct {
	clock Clock
	log   logrus.FieldLogger

	mu      sync.Mutex
	loops   []loop
	status  map[string]*LoopStatus
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func New(opts Options) *Scheduler {
	s := &Scheduler{clock: opts.Clock, log: logging.OrDiscard(opts.Log), status: map[string]*LoopStatus{}}
	if s.clock == nil {
		s.clock = realClock{}
	}
	return s
}

// Every registers job to run each interval. With immediate it also runs once at Start.
func (s *Scheduler) Every(name string, interval time.Duration, immediate bool, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("scheduler: loop %q: interval must be positive", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler: loop %q registered after start", name)
	}
	if _, dup := s.status[name]; dup {
		return fmt.Errorf("scheduler: duplicate loop %q", name)
	}
	s.loops = append(s.loops, loop{name: name, interval: interval, job: job, immediate: immediate})
	s.status[name] = &LoopStatus{Name: name, Interval: interval}
	return nil
}

// Start launches every registered loop. Loops stop when ctx ends or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	for _, l := range s.loops {
		s.wg.Add(1)
		go s.run(ctx, l)
	}
	s.log.WithField("loops", len(s.loops)).Info("scheduler: started")
}

// Stop cancels all loops and waits for in-flight ticks to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) Status() []LoopStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LoopStatus, 0, len(s.status))
	for _, st := range s.status {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) run(ctx context.Context, l loop) {
	defer s.wg.Done()
	log := s.log.WithField("loop", l.name)

	ticker := s.clock.NewTicker(l.interval)
	defer ticker.Stop()

	if l.immediate {
		s.tick(ctx, l, log)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.tick(ctx, l, log)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, l loop, log logrus.FieldLogger) {
	if ctx.Err() != nil {
		return
	}
	stack, err := safeRun(ctx, l.job)
	if stack != nil {
		log.WithField("stack", string(stack)).Error("scheduler: tick panicked")
	}

	s.mu.Lock()
	st := s.status[l.name]
	st.Runs++
	st.LastRun = s.clock.Now()
	if err != nil {
		st.Failures++
		st.LastError = err.Error()
	} else {
		st.LastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		log.WithError(err).Warn("scheduler: tick failed")
	}
}

func safeRun(ctx context.Context, job Job) (panicStack []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			panicStack = debug.Stack()
		}
	}()
	return nil, job(ctx)
}
