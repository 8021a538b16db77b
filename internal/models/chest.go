package models

// PrizeDefinition is a single outcome the chest can reveal.
// ID is stable across sessions and is what gets persisted; the display fields
// are opaque to the draw engine.
type PrizeDefinition struct {
	ID          string  `json:"id" yaml:"id"`
	Label       string  `json:"label" yaml:"label"`
	Rarity      string  `json:"rarity" yaml:"rarity"`
	Description string  `json:"description,omitempty" yaml:"description"`
	Icon        string  `json:"icon,omitempty" yaml:"icon"`
	Code        string  `json:"code,omitempty" yaml:"code"`
	Weight      float64 `json:"weight" yaml:"weight"`
}

// DrawRecord is the durable evidence that a player has already opened the chest.
type DrawRecord struct {
	PrizeID   string `json:"prizeId"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds, informational only
}

// Phase is a named stage of the opening sequence.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseShaking    Phase = "shaking"
	PhaseRevealing  Phase = "revealing"
	PhasePresenting Phase = "presenting"
	PhaseSettled    Phase = "settled"
)
