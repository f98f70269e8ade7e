package models

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestClamp01Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("result is always in [0,1]", prop.ForAll(
		func(x float64) bool {
			return InUnit(Clamp01(x))
		},
		gen.Float64Range(-1e6, 1e6),
	))

	properties.Property("idempotent", prop.ForAll(
		func(x float64) bool {
			return Clamp01(Clamp01(x)) == Clamp01(x)
		},
		gen.Float64Range(-1e6, 1e6),
	))

	properties.Property("monotonic", prop.ForAll(
		func(a, b float64) bool {
			if a > b {
				a, b = b, a
			}
			return Clamp01(a) <= Clamp01(b)
		},
		gen.Float64Range(-1e6, 1e6),
		gen.Float64Range(-1e6, 1e6),
	))

	properties.Property("identity inside the unit interval", prop.ForAll(
		func(x float64) bool {
			return Clamp01(x) == x
		},
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}

func TestRatingScoreIdentity(t *testing.T) {
	for rating := 1; rating <= 5; rating++ {
		assert.Equal(t, rating, ScoreToRating(RatingToScore(rating)), "rating %d", rating)
	}
}

func TestRatingToScoreRange(t *testing.T) {
	assert.Equal(t, 0.0, RatingToScore(1))
	assert.Equal(t, 0.5, RatingToScore(3))
	assert.Equal(t, 1.0, RatingToScore(5))
}
