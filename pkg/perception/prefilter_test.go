package perception

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexhq/cortex/pkg/models"
)

func filterEvent(t *testing.T, from, subject string) models.PerceivedEvent {
	t.Helper()
	now := time.Now().UTC().Add(-time.Minute)
	e, err := models.NewEvent(models.PerceivedEvent{
		EventID:     "evt-filter",
		Source:      models.SourceMail,
		SourceID:    "m-1",
		OccurredAt:  now,
		ReceivedAt:  now,
		PerceivedAt: now,
		Title:       subject,
		Content:     "body",
		Type:        models.EventTypeInformation,
		Urgency:     models.UrgencyMedium,
		FromPerson:  from,
	})
	require.NoError(t, err)
	return e
}

func TestClassifyObviousNewsletter(t *testing.T) {
	f := NewPreFilter(PreFilterConfig{})
	event := filterEvent(t, "newsletter@mailchimp.com", "Weekly digest — unsubscribe")

	result := f.Classify(&event)
	assert.Equal(t, DecisionSkip, result.Decision)
	assert.GreaterOrEqual(t, result.Confidence, 0.95)
	assert.GreaterOrEqual(t, len(result.MatchedPatterns), 2)
}

func TestClassifyProtectedDomainOverride(t *testing.T) {
	f := NewPreFilter(PreFilterConfig{})
	// Bank invoice: transactional + protected domain. Override wins.
	event := filterEvent(t, "billing@ca-paris.fr", "Votre facture #12345")

	result := f.Classify(&event)
	assert.Equal(t, DecisionProcessLight, result.Decision)
	assert.Contains(t, result.MatchedPatterns, "protected_sender")
}

func TestProtectedSenderNeverSkipped(t *testing.T) {
	f := NewPreFilter(PreFilterConfig{})
	// Even drowning in marketing patterns, a protected domain is processed.
	event := filterEvent(t, "no-reply@stripe.com", "Newsletter promotion — unsubscribe for special offer")

	result := f.Classify(&event)
	assert.NotEqual(t, DecisionSkip, result.Decision)
}

func TestClassifySingleSkipPattern(t *testing.T) {
	f := NewPreFilter(PreFilterConfig{})
	event := filterEvent(t, "updates@example.com", "Our newsletter for March")

	result := f.Classify(&event)
	assert.Equal(t, DecisionSkip, result.Decision)
	assert.InDelta(t, 0.75, result.Confidence, 1e-9)
	assert.Len(t, result.MatchedPatterns, 1)
}

func TestClassifySkipPlusTransactional(t *testing.T) {
	f := NewPreFilter(PreFilterConfig{})
	event := filterEvent(t, "no-reply@shop.example.com", "Your order confirmation")

	result := f.Classify(&event)
	assert.Equal(t, DecisionProcessLight, result.Decision)
}

func TestClassifyTransactionalOnly(t *testing.T) {
	f := NewPreFilter(PreFilterConfig{})
	event := filterEvent(t, "billing@vendor.example.com", "Receipt for your payment")

	result := f.Classify(&event)
	assert.Equal(t, DecisionProcessLight, result.Decision)
	assert.InDelta(t, 0.80, result.Confidence, 1e-9)
}

func TestClassifyNoMatches(t *testing.T) {
	f := NewPreFilter(PreFilterConfig{})
	event := filterEvent(t, "alice@example.com", "Lunch tomorrow?")

	result := f.Classify(&event)
	assert.Equal(t, DecisionProcessFull, result.Decision)
	assert.Equal(t, 1.0, result.Confidence)
	assert.Empty(t, result.MatchedPatterns)
}

func TestClassifyCaseInsensitive(t *testing.T) {
	f := NewPreFilter(PreFilterConfig{})
	event := filterEvent(t, "NEWSLETTER@Example.COM", "UNSUBSCRIBE Now")

	result := f.Classify(&event)
	assert.Equal(t, DecisionSkip, result.Decision)
}

func TestStrictModeLowersThreshold(t *testing.T) {
	f := NewPreFilter(PreFilterConfig{StrictMode: true})
	event := filterEvent(t, "updates@example.com", "Our newsletter for March")

	result := f.Classify(&event)
	assert.Equal(t, DecisionSkip, result.Decision)
	assert.GreaterOrEqual(t, result.Confidence, 0.95)
}

func TestExtraPatternsMerged(t *testing.T) {
	f := NewPreFilter(PreFilterConfig{
		ExtraSkipPatterns:     []string{"lottery"},
		ExtraProtectedDomains: []string{"mybank.example"},
	})

	event := filterEvent(t, "win@spam.example.com", "Lottery results lottery winner")
	assert.Equal(t, DecisionSkip, f.Classify(&event).Decision)

	protected := filterEvent(t, "alerts@mybank.example", "Lottery newsletter")
	assert.NotEqual(t, DecisionSkip, f.Classify(&protected).Decision)
}
