// Package sequencer drives the chest opening animation as a timed state
// machine: idle, shaking, revealing, presenting, settled.
//
// A Sequencer belongs to exactly one player session. It is created by the
// session owner, started once, and discarded when the session ends; only the
// draw record it reads outlives it.
package sequencer

import (
	"context"
	"sync"
	"time"

	"chest/internal/metrics"
	"chest/internal/models"

	"github.com/google/logger"
)

// Draws is the draw and persistence service the sequencer consumes.
type Draws interface {
	HasExistingDraw(ctx context.Context) bool
	LoadExistingDraw(ctx context.Context) (models.PrizeDefinition, bool)
	DrawAndPersist(ctx context.Context) (models.PrizeDefinition, error)
}

// Event is a phase change notification. Prize is set from shaking onwards.
type Event struct {
	Phase models.Phase            `json:"phase"`
	Prize *models.PrizeDefinition `json:"prize,omitempty"`
	At    time.Time               `json:"at"`
}

// Subscription receives phase events. Delivery never blocks the sequencer;
// a subscriber that falls more than its buffer behind misses events.
type Subscription struct {
	ch chan Event
}

func (s *Subscription) Events() <-chan Event { return s.ch }

const subscriptionBuffer = 8

type Sequencer struct {
	mu      sync.Mutex
	draws   Draws
	clock   Clock
	timings Timings
	metrics *metrics.Metrics

	state   State
	entered time.Time
	started bool
	subs    map[*Subscription]struct{}
}

type Option func(*Sequencer)

func WithClock(c Clock) Option {
	return func(s *Sequencer) { s.clock = c }
}

func WithTimings(t Timings) Option {
	return func(s *Sequencer) { s.timings = t }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sequencer) { s.metrics = m }
}

// New returns an idle sequencer. Call Start before serving triggers.
func New(draws Draws, opts ...Option) *Sequencer {
	s := &Sequencer{
		draws:   draws,
		clock:   SystemClock{},
		timings: DefaultTimings(),
		state:   State{Phase: models.PhaseIdle},
		subs:    make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.entered = s.clock.Now()
	return s
}

// Start checks for a stored outcome. A returning player stays busy for the
// shortcut pause and then settles on the stored prize without animating.
func (s *Sequencer) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	prize, ok := s.draws.LoadExistingDraw(ctx)
	if !ok {
		return
	}
	s.state.Busy = true
	s.state.Prize = &prize

	if s.timings.ShortcutPause <= 0 {
		s.settle(prize)
		return
	}
	s.clock.AfterFunc(s.timings.ShortcutPause, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.settle(prize)
	})
}

// Trigger opens the chest. It returns false and does nothing while a sequence
// is running or once settled. A stored outcome settles immediately; otherwise
// the draw happens now and the phases follow on the clock.
func (s *Sequencer) Trigger(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Busy || s.state.Phase == models.PhaseSettled {
		s.metrics.TriggerIgnored()
		return false
	}

	if prize, ok := s.draws.LoadExistingDraw(ctx); ok {
		s.settle(prize)
		return true
	}

	s.state.Busy = true
	prize, err := s.draws.DrawAndPersist(ctx)
	if err != nil {
		// The sequence cannot be cancelled once begun; show what was drawn.
		logger.Errorf("Draw outcome %s was not persisted: %v", prize.ID, err)
	}
	s.state.Prize = &prize
	s.enter(models.PhaseShaking, s.clock.Now())
	s.schedule()
	return true
}

// Outcome returns the resolved prize once settled.
func (s *Sequencer) Outcome() (models.PrizeDefinition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Phase != models.PhaseSettled || s.state.Prize == nil {
		return models.PrizeDefinition{}, false
	}
	return *s.state.Prize, true
}

// HasExistingDraw reports whether the player already has a stored outcome.
func (s *Sequencer) HasExistingDraw(ctx context.Context) bool {
	return s.draws.HasExistingDraw(ctx)
}

// Snapshot returns a copy of the current state.
func (s *Sequencer) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Subscribe registers for phase events. The current phase is delivered first.
func (s *Sequencer) Subscribe() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := &Subscription{ch: make(chan Event, subscriptionBuffer)}
	s.subs[sub] = struct{}{}
	sub.ch <- s.event(s.clock.Now())
	return sub
}

func (s *Sequencer) Unsubscribe(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub]; ok {
		delete(s.subs, sub)
		close(sub.ch)
	}
}

// Close ends every subscription. Pending timers still complete the sequence.
func (s *Sequencer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		delete(s.subs, sub)
		close(sub.ch)
	}
}

// tick runs when the current phase's timer fires.
func (s *Sequencer) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	elapsed := now.Sub(s.entered)
	for {
		next, leftover, ok := Step(s.state, elapsed, s.timings)
		if !ok {
			break
		}
		s.state = next
		s.enter(next.Phase, now.Add(-leftover))
		elapsed = leftover
		if next.Phase == models.PhaseSettled {
			logger.Infof("Chest settled on %s", next.Prize.ID)
		}
	}
	s.schedule()
}

// schedule arms the timer for the rest of the current phase, if it is timed.
func (s *Sequencer) schedule() {
	d, _, ok := s.timings.timed(s.state.Phase)
	if !ok {
		return
	}
	wait := d - s.clock.Now().Sub(s.entered)
	if wait < 0 {
		wait = 0
	}
	s.clock.AfterFunc(wait, s.tick)
}

func (s *Sequencer) settle(prize models.PrizeDefinition) {
	s.state.Busy = false
	s.state.Prize = &prize
	s.enter(models.PhaseSettled, s.clock.Now())
	logger.Infof("Chest settled on %s", prize.ID)
}

func (s *Sequencer) enter(phase models.Phase, at time.Time) {
	s.state.Phase = phase
	s.entered = at
	s.metrics.PhaseEntered(string(phase))

	evt := s.event(at)
	for sub := range s.subs {
		select {
		case sub.ch <- evt:
		default:
		}
	}
}

func (s *Sequencer) event(at time.Time) Event {
	evt := Event{Phase: s.state.Phase, At: at}
	if s.state.Prize != nil {
		p := *s.state.Prize
		evt.Prize = &p
	}
	return evt
}

func (s *Sequencer) snapshot() State {
	st := s.state
	if st.Prize != nil {
		p := *st.Prize
		st.Prize = &p
	}
	return st
}
