package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidFeedback indicates user feedback violates a documented invariant.
var ErrInvalidFeedback = errors.New("invalid feedback")

// UserFeedback captures an explicit or implicit user reaction to a processed
// event. Immutable after construction.
type UserFeedback struct {
	Approval   bool   `json:"approval"`
	Rating     int    `json:"rating,omitempty"`  // 1..5, 0 = not provided
	Comment    string `json:"comment,omitempty"`
	Correction string `json:"correction,omitempty"`

	// Implicit signals.
	ActionExecuted bool          `json:"action_executed"`
	TimeToAction   time.Duration `json:"time_to_action_ns"`
	Modification   string        `json:"modification,omitempty"` // alternative action type

	CreatedAt time.Time `json:"created_at"`
}

// NewFeedback builds validated feedback. Rating 0 means "no rating";
// otherwise it must be 1..5. TimeToAction must be non-negative.
func NewFeedback(f UserFeedback) (UserFeedback, error) {
	if f.Rating != 0 && (f.Rating < 1 || f.Rating > 5) {
		return UserFeedback{}, fmt.Errorf("%w: rating %d outside [1,5]", ErrInvalidFeedback, f.Rating)
	}
	if f.TimeToAction < 0 {
		return UserFeedback{}, fmt.Errorf("%w: negative time_to_action %s", ErrInvalidFeedback, f.TimeToAction)
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	} else {
		f.CreatedAt = f.CreatedAt.UTC()
	}
	return f, nil
}

// HasRating reports whether an explicit rating was provided.
func (f UserFeedback) HasRating() bool {
	return f.Rating >= 1 && f.Rating <= 5
}

// RatingToScore maps a 1..5 rating onto [0,1]: 1→0.0, 3→0.5, 5→1.0.
func RatingToScore(rating int) float64 {
	return Clamp01(float64(rating-1) / 4)
}

// ScoreToRating is the inverse of RatingToScore on {1..5}.
func ScoreToRating(score float64) int {
	r := int(Clamp01(score)*4 + 1.5)
	if r < 1 {
		r = 1
	}
	if r > 5 {
		r = 5
	}
	return r
}
