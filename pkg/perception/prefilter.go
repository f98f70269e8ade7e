package perception

import (
	"strings"

	"github.com/cortexhq/cortex/pkg/models"
)

// FilterDecision is the pre-filter verdict for an event.
type FilterDecision string

// Pre-filter decisions.
const (
	DecisionSkip         FilterDecision = "skip"
	DecisionProcessLight FilterDecision = "process_light"
	DecisionProcessFull  FilterDecision = "process_full"
)

// Pre-filter confidence levels. The 0.75 single-match value is a heuristic;
// the matched pattern list in the result lets downstream components override
// the verdict.
const (
	confidenceMultiSkip  = 0.95
	confidenceSingleSkip = 0.75
	confidenceLight      = 0.80
	confidenceFull       = 1.0
)

// FilterResult explains a triage decision.
type FilterResult struct {
	Decision        FilterDecision `json:"decision"`
	Confidence      float64        `json:"confidence"`
	Reason          string         `json:"reason"`
	MatchedPatterns []string       `json:"matched_patterns"`
}

// defaultSkipPatterns match bulk and marketing mail. Compared against the
// lower-cased sender and subject.
var defaultSkipPatterns = []string{
	"unsubscribe",
	"newsletter",
	"no-reply",
	"noreply",
	"marketing",
	"promotion",
	"weekly digest",
	"daily digest",
	"mailing list",
	"special offer",
	"% off",
	"flash sale",
}

// defaultTransactionalPatterns match receipts and account notices that are
// low-value but must not be silently dropped.
var defaultTransactionalPatterns = []string{
	"invoice",
	"facture",
	"receipt",
	"payment",
	"order confirmation",
	"shipping",
	"statement",
	"password reset",
	"verification code",
	"security alert",
}

// defaultProtectedDomains can never be skipped: banks, payment processors,
// and regulatory senders.
var defaultProtectedDomains = []string{
	"ca-paris.fr",
	"bnpparibas.com",
	"stripe.com",
	"paypal.com",
	"gocardless.com",
	"impots.gouv.fr",
	"urssaf.fr",
	"irs.gov",
	"hmrc.gov.uk",
}

// PreFilterConfig tunes the pre-filter. All lists are merged with defaults.
type PreFilterConfig struct {
	ExtraSkipPatterns          []string `yaml:"extra_skip_patterns"`
	ExtraTransactionalPatterns []string `yaml:"extra_transactional_patterns"`
	ExtraProtectedDomains      []string `yaml:"extra_protected_domains"`

	// StrictMode lowers the skip thresholds, skipping more aggressively.
	StrictMode bool `yaml:"strict_mode"`
}

// PreFilter classifies events into skip / process_light / process_full
// before any expensive reasoning runs.
type PreFilter struct {
	skipPatterns          []string
	transactionalPatterns []string
	protectedDomains      []string
	strict                bool
}

// NewPreFilter builds a pre-filter from config merged with defaults.
func NewPreFilter(cfg PreFilterConfig) *PreFilter {
	return &PreFilter{
		skipPatterns:          append(append([]string{}, defaultSkipPatterns...), cfg.ExtraSkipPatterns...),
		transactionalPatterns: append(append([]string{}, defaultTransactionalPatterns...), cfg.ExtraTransactionalPatterns...),
		protectedDomains:      append(append([]string{}, defaultProtectedDomains...), cfg.ExtraProtectedDomains...),
		strict:                cfg.StrictMode,
	}
}

// Classify triages one event. Sender and subject are lower-cased before
// matching. The protected-sender check is override-wins: a protected domain
// can never be skipped, whatever else matched.
func (f *PreFilter) Classify(event *models.PerceivedEvent) FilterResult {
	sender := strings.ToLower(event.FromPerson)
	subject := strings.ToLower(event.Title)
	haystack := sender + "\n" + subject

	var matched []string
	skipHits := 0
	for _, p := range f.skipPatterns {
		if strings.Contains(haystack, p) {
			matched = append(matched, "skip:"+p)
			skipHits++
		}
	}
	transactionalHits := 0
	for _, p := range f.transactionalPatterns {
		if strings.Contains(haystack, p) {
			matched = append(matched, "transactional:"+p)
			transactionalHits++
		}
	}
	protected := f.isProtected(sender)
	if protected {
		matched = append(matched, "protected_sender")
	}
	if matched == nil {
		matched = []string{}
	}

	multiSkipThreshold := 2
	if f.strict {
		multiSkipThreshold = 1
	}

	switch {
	case protected && (skipHits > 0 || transactionalHits > 0):
		// Override wins: protected senders are processed, lightly.
		return FilterResult{
			Decision:        DecisionProcessLight,
			Confidence:      confidenceLight,
			Reason:          "protected sender domain overrides skip patterns",
			MatchedPatterns: matched,
		}

	case skipHits == 1 && transactionalHits > 0:
		return FilterResult{
			Decision:        DecisionProcessLight,
			Confidence:      confidenceLight,
			Reason:          "transactional pattern alongside skip pattern",
			MatchedPatterns: matched,
		}

	case skipHits >= multiSkipThreshold:
		return FilterResult{
			Decision:        DecisionSkip,
			Confidence:      confidenceMultiSkip,
			Reason:          "multiple skip patterns matched",
			MatchedPatterns: matched,
		}

	case skipHits == 1:
		return FilterResult{
			Decision:        DecisionSkip,
			Confidence:      confidenceSingleSkip,
			Reason:          "single skip pattern matched",
			MatchedPatterns: matched,
		}

	case transactionalHits > 0:
		return FilterResult{
			Decision:        DecisionProcessLight,
			Confidence:      confidenceLight,
			Reason:          "transactional patterns matched",
			MatchedPatterns: matched,
		}

	default:
		return FilterResult{
			Decision:        DecisionProcessFull,
			Confidence:      confidenceFull,
			Reason:          "no triage patterns matched",
			MatchedPatterns: matched,
		}
	}
}

// isProtected checks the sender against the protected domain list.
func (f *PreFilter) isProtected(sender string) bool {
	for _, d := range f.protectedDomains {
		if strings.Contains(sender, d) {
			return true
		}
	}
	return false
}
