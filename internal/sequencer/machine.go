package sequencer

import (
	"time"

	"chest/internal/models"
)

// State is the in-memory state of one reveal sequence.
type State struct {
	Phase models.Phase            `json:"phase"`
	Busy  bool                    `json:"busy"`
	Prize *models.PrizeDefinition `json:"prize,omitempty"`
}

// Timings are the fixed phase durations. ShortcutPause is the display pause
// before a returning player's stored outcome is shown.
type Timings struct {
	Shaking       time.Duration
	Revealing     time.Duration
	Presenting    time.Duration
	ShortcutPause time.Duration
}

// DefaultTimings match the chest opening animation: lid shake, light beam,
// then the prize card.
func DefaultTimings() Timings {
	return Timings{
		Shaking:       520 * time.Millisecond,
		Revealing:     460 * time.Millisecond,
		Presenting:    520 * time.Millisecond,
		ShortcutPause: 450 * time.Millisecond,
	}
}

// timed returns how long phase lasts and what follows it. Idle and Settled
// are not timed.
func (t Timings) timed(phase models.Phase) (time.Duration, models.Phase, bool) {
	switch phase {
	case models.PhaseShaking:
		return t.Shaking, models.PhaseRevealing, true
	case models.PhaseRevealing:
		return t.Revealing, models.PhasePresenting, true
	case models.PhasePresenting:
		return t.Presenting, models.PhaseSettled, true
	}
	return 0, phase, false
}

// Step is the pure transition function. Given elapsed time spent in st.Phase
// it returns the following state and the time left over once that phase's
// duration is consumed. ok is false while the phase has not finished, and
// always for Idle and Settled. Step advances at most one phase; callers loop
// on the leftover so a late timer still passes through every phase.
func Step(st State, elapsed time.Duration, t Timings) (next State, leftover time.Duration, ok bool) {
	d, following, timed := t.timed(st.Phase)
	if !timed || elapsed < d {
		return st, elapsed, false
	}
	st.Phase = following
	if following == models.PhaseSettled {
		st.Busy = false
	}
	return st, elapsed - d, true
}
