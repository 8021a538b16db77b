package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"chest/internal/catalog"
	"chest/internal/metrics"
	"chest/internal/models"
	"chest/internal/storage"

	"github.com/google/logger"
)

// StorageKey is the fixed logical key the draw record is stored under.
const StorageKey = "secreto_papanoel_v1"

// ErrNoDraw means there is no usable draw record: it is missing, unreadable,
// malformed, or names a prize the catalog no longer has.
var ErrNoDraw = errors.New("no existing draw")

// RandomSource yields uniform values in [0, 1).
type RandomSource interface {
	Float64() float64
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// storedRecord mirrors models.DrawRecord on the wire. Timestamp is decoded as
// a pointer to a float so an absent or null value can be told apart, and
// records written by clients with fractional millis still parse.
type storedRecord struct {
	PrizeID   string   `json:"prizeId"`
	Timestamp *float64 `json:"timestamp"`
}

// discardError is an unusable record. It matches ErrNoDraw and its cause.
type discardError struct {
	reason string
	cause  error
}

func (e *discardError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrNoDraw, e.reason, e.cause)
}

func (e *discardError) Unwrap() []error { return []error{ErrNoDraw, e.cause} }

// DrawService performs the single weighted draw for one player and is the
// only writer of that player's draw record.
type DrawService struct {
	catalog *catalog.Catalog
	store   storage.Store
	key     string
	rng     RandomSource
	now     func() time.Time
	metrics *metrics.Metrics
}

// DrawOption customises a DrawService.
type DrawOption func(*DrawService)

func WithRandomSource(src RandomSource) DrawOption {
	return func(s *DrawService) { s.rng = src }
}

func WithNow(now func() time.Time) DrawOption {
	return func(s *DrawService) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) DrawOption {
	return func(s *DrawService) { s.metrics = m }
}

// NewDrawService creates a DrawService persisting under key.
func NewDrawService(c *catalog.Catalog, store storage.Store, key string, opts ...DrawOption) *DrawService {
	s := &DrawService{
		catalog: c,
		store:   store,
		key:     key,
		rng:     globalSource{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the storage key this service reads and writes.
func (s *DrawService) Key() string { return s.key }

// Pick walks prizes in order subtracting each weight from r and returns the
// first entry at which the remainder reaches zero or below. If floating point
// drift leaves nothing selected, the first entry is returned. prizes must not
// be empty; a Catalog never is.
func Pick(prizes []models.PrizeDefinition, r float64) models.PrizeDefinition {
	remainder := r
	for _, p := range prizes {
		remainder -= p.Weight
		if remainder <= 0 {
			return p
		}
	}
	return prizes[0]
}

// HasExistingDraw reports whether a valid record for a known prize is stored.
// It is a pure query: an unusable record is neither logged nor counted here.
func (s *DrawService) HasExistingDraw(ctx context.Context) bool {
	_, _, err := s.lookupRecord(ctx)
	return err == nil
}

// LoadExistingDraw resolves the stored record against the catalog.
func (s *DrawService) LoadExistingDraw(ctx context.Context) (models.PrizeDefinition, bool) {
	rec, prize, err := s.readRecord(ctx)
	if err != nil {
		return models.PrizeDefinition{}, false
	}
	logger.Infof("Replaying prize %s drawn at %s for %s",
		prize.ID, time.UnixMilli(rec.Timestamp).UTC().Format(time.RFC3339), s.key)
	return prize, true
}

// DrawAndPersist draws one prize and overwrites the stored record with it.
// Callers must check HasExistingDraw first. When the write fails the drawn
// prize is still returned together with the error.
func (s *DrawService) DrawAndPersist(ctx context.Context) (models.PrizeDefinition, error) {
	r := s.rng.Float64() * s.catalog.TotalWeight()
	prize := Pick(s.catalog.All(), r)
	s.metrics.Draw(prize.ID)

	raw, err := json.Marshal(models.DrawRecord{PrizeID: prize.ID, Timestamp: s.now().UnixMilli()})
	if err != nil {
		return prize, fmt.Errorf("encode draw record: %w", err)
	}
	if err := s.store.Set(ctx, s.key, string(raw)); err != nil {
		s.metrics.PersistFailed()
		return prize, fmt.Errorf("persist draw record: %w", err)
	}

	logger.Infof("Drew prize %s for %s", prize.ID, s.key)
	return prize, nil
}

// Reset deletes the stored record so the next session draws again.
func (s *DrawService) Reset(ctx context.Context) error {
	if err := s.store.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("reset draw record: %w", err)
	}
	logger.Infof("Reset draw record for %s", s.key)
	return nil
}

// readRecord is lookupRecord plus a diagnostic and a metric for every record
// it has to discard.
func (s *DrawService) readRecord(ctx context.Context) (models.DrawRecord, models.PrizeDefinition, error) {
	rec, prize, err := s.lookupRecord(ctx)
	var d *discardError
	if errors.As(err, &d) {
		logger.Warningf("Ignoring draw record %s (%s): %v", s.key, d.reason, d.cause)
		s.metrics.RecordDiscarded(d.reason)
	}
	return rec, prize, err
}

// lookupRecord collapses every failure to read a usable record into ErrNoDraw.
func (s *DrawService) lookupRecord(ctx context.Context) (models.DrawRecord, models.PrizeDefinition, error) {
	raw, err := s.store.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return models.DrawRecord{}, models.PrizeDefinition{}, ErrNoDraw
	}
	if err != nil {
		return discard("unreadable", err)
	}

	var rec storedRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return discard("corrupt", err)
	}
	if rec.PrizeID == "" {
		return discard("corrupt", errors.New("record has no prizeId"))
	}
	if rec.Timestamp == nil {
		return discard("corrupt", errors.New("record has no timestamp"))
	}
	if ts := *rec.Timestamp; !(ts > 0) || ts >= math.MaxInt64 {
		return discard("corrupt", fmt.Errorf("timestamp %v is out of range", ts))
	}

	prize, ok := s.catalog.Lookup(rec.PrizeID)
	if !ok {
		return discard("unknown_prize", fmt.Errorf("prize %q is not in the catalog", rec.PrizeID))
	}
	return models.DrawRecord{PrizeID: rec.PrizeID, Timestamp: int64(*rec.Timestamp)}, prize, nil
}

func discard(reason string, cause error) (models.DrawRecord, models.PrizeDefinition, error) {
	return models.DrawRecord{}, models.PrizeDefinition{}, &discardError{reason: reason, cause: cause}
}
