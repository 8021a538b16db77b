package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chest/internal/catalog"
	"chest/internal/metrics"
	"chest/internal/sequencer"
	"chest/internal/storage"

	"github.com/google/logger"
	"github.com/robfig/cron/v3"
)

// Session holds the reveal state for a single player.
type Session struct {
	PlayerID     string
	Draws        *DrawService
	Sequencer    *sequencer.Sequencer
	LastActivity time.Time
}

// SessionConfig carries the collaborators every session is built from.
type SessionConfig struct {
	Catalog *catalog.Catalog
	Store   storage.Store
	Timings sequencer.Timings
	Clock   sequencer.Clock  // defaults to the system clock
	Random  RandomSource     // defaults to math/rand/v2
	Metrics *metrics.Metrics // optional
}

// SessionService manages one session per player.
type SessionService struct {
	mu       sync.RWMutex
	sessions map[string]*Session // Key: playerID
	cfg      SessionConfig
}

// NewSessionService creates and initializes a new SessionService.
func NewSessionService(cfg SessionConfig) *SessionService {
	if cfg.Clock == nil {
		cfg.Clock = sequencer.SystemClock{}
	}
	if cfg.Random == nil {
		cfg.Random = globalSource{}
	}
	return &SessionService{
		sessions: make(map[string]*Session),
		cfg:      cfg,
	}
}

// PlayerKey namespaces the fixed storage key by player.
func PlayerKey(playerID string) string {
	return StorageKey + ":" + playerID
}

func (s *SessionService) Catalog() *catalog.Catalog { return s.cfg.Catalog }

func (s *SessionService) newDrawService(playerID string) *DrawService {
	return NewDrawService(s.cfg.Catalog, s.cfg.Store, PlayerKey(playerID),
		WithRandomSource(s.cfg.Random),
		WithNow(s.cfg.Clock.Now),
		WithMetrics(s.cfg.Metrics))
}

// Get returns the session for a player, creating and starting one if it
// doesn't exist.
func (s *SessionService) Get(ctx context.Context, playerID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[playerID]
	if !exists {
		draws := s.newDrawService(playerID)
		session = &Session{
			PlayerID: playerID,
			Draws:    draws,
			Sequencer: sequencer.New(draws,
				sequencer.WithClock(s.cfg.Clock),
				sequencer.WithTimings(s.cfg.Timings),
				sequencer.WithMetrics(s.cfg.Metrics)),
		}
		session.Sequencer.Start(ctx)
		s.sessions[playerID] = session
		s.cfg.Metrics.SetActiveSessions(len(s.sessions))
	}
	session.LastActivity = s.cfg.Clock.Now()
	return session
}

// Reset deletes the player's draw record and drops their session, so the next
// Get constructs a fresh sequencer with no stored outcome.
func (s *SessionService) Reset(ctx context.Context, playerID string) error {
	if err := s.newDrawService(playerID).Reset(ctx); err != nil {
		return fmt.Errorf("reset player %s: %w", playerID, err)
	}
	s.ClearSession(playerID)
	return nil
}

// ClearSession removes the in-memory session of a player. The draw record is kept.
func (s *SessionService) ClearSession(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[playerID]; ok {
		session.Sequencer.Close()
		delete(s.sessions, playerID)
		s.cfg.Metrics.SetActiveSessions(len(s.sessions))
		logger.Infof("Cleared session for player: %s", playerID)
	}
}

// CleanUpInactiveSessions removes sessions idle for longer than maxIdle and
// returns how many were removed.
func (s *SessionService) CleanUpInactiveSessions(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.Clock.Now()
	removed := 0
	for playerID, session := range s.sessions {
		if now.Sub(session.LastActivity) > maxIdle {
			session.Sequencer.Close()
			delete(s.sessions, playerID)
			removed++
		}
	}
	s.cfg.Metrics.SetActiveSessions(len(s.sessions))
	return removed
}

// Len returns the number of sessions held in memory.
func (s *SessionService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// StartJanitor runs CleanUpInactiveSessions on a cron schedule such as
// "@every 10m". Stop the returned cron on shutdown.
func (s *SessionService) StartJanitor(schedule string, maxIdle time.Duration) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if n := s.CleanUpInactiveSessions(maxIdle); n > 0 {
			logger.Infof("Performed cleanup of %d inactive sessions.", n)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule session janitor %q: %w", schedule, err)
	}
	c.Start()
	return c, nil
}
