// Package perception converts source-native records (mail, chat, calendar)
// into normalized events and triages them with a cheap rule-based pre-filter
// before any expensive reasoning runs.
package perception

import (
	"time"

	"github.com/google/uuid"

	"github.com/cortexhq/cortex/pkg/models"
)

// Perception confidence per source shape. Structured sources (calendar,
// chat) start higher than free-form mail text.
const (
	confidenceStructured = 0.9
	confidenceFreeForm   = 0.85
)

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// normalizeTimes applies the clock-skew contract: when the source timestamp
// is zero or in the future beyond the one-second tolerance, "now" is used for
// occurred_at and the source value is preserved under metadata[metaKey].
// The returned triple always satisfies occurred <= received <= perceived.
func normalizeTimes(now Clock, sourceOccurred, sourceReceived time.Time, metadata map[string]any, metaKey string) (occurred, received, perceived time.Time) {
	n := now().UTC()
	perceived = n

	occurred = sourceOccurred.UTC()
	if sourceOccurred.IsZero() || occurred.After(n.Add(models.FutureSkewTolerance)) {
		if !sourceOccurred.IsZero() {
			metadata[metaKey] = sourceOccurred.UTC().Format(time.RFC3339Nano)
		}
		occurred = n
	}

	received = sourceReceived.UTC()
	if sourceReceived.IsZero() || received.After(n) {
		received = n
	}
	if received.Before(occurred) {
		received = occurred
	}
	if perceived.Before(received) {
		perceived = received
	}
	return occurred, received, perceived
}

// newEventID produces a stable event id for a source record.
func newEventID() string {
	return uuid.New().String()
}

// mustEntity builds an entity, skipping it on invariant violation. Normalizer
// inputs are already trimmed so failures only occur for empty values.
func appendEntity(entities []models.Entity, entityType, value string, confidence float64, metadata map[string]any) []models.Entity {
	ent, err := models.NewEntity(entityType, value, confidence, metadata)
	if err != nil {
		return entities
	}
	return append(entities, ent)
}
