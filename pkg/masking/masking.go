// Package masking scrubs credentials from user-visible text. Error strings
// and broadcast payloads pass through the masker before they leave the core,
// so an IMAP password or API key embedded in a wrapped error never reaches a
// client.
package masking

import (
	"errors"
	"log/slog"
	"regexp"
)

// Pattern is a configurable masking rule.
type Pattern struct {
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
	Description string `yaml:"description,omitempty"`
}

// CompiledPattern holds a pre-compiled regex with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// builtinPatterns cover the credential shapes the core handles: provider API
// keys, bearer tokens, basic-auth URLs, and password key/value pairs from
// account configs and connection errors.
var builtinPatterns = map[string]Pattern{
	"anthropic_api_key": {
		Pattern:     `sk-ant-[A-Za-z0-9_-]{10,}`,
		Replacement: "***MASKED_API_KEY***",
	},
	"openai_api_key": {
		Pattern:     `sk-[A-Za-z0-9_-]{20,}`,
		Replacement: "***MASKED_API_KEY***",
	},
	"bearer_token": {
		Pattern:     `(?i)bearer\s+[A-Za-z0-9._~+/=-]{8,}`,
		Replacement: "Bearer ***MASKED_TOKEN***",
	},
	"basic_auth_url": {
		Pattern:     `(?i)([a-z][a-z0-9+.-]*://[^:/\s]+):[^@/\s]+@`,
		Replacement: "$1:***MASKED***@",
	},
	"password_kv": {
		Pattern:     `(?i)(password|passwd|secret|token|api[_-]?key)(["']?\s*[:=]\s*["']?)[^\s"',;]+`,
		Replacement: "$1$2***MASKED***",
	},
}

// Masker applies the compiled rules to outbound text. Stateless after
// construction and safe for concurrent use.
type Masker struct {
	patterns []*CompiledPattern
}

// NewMasker compiles the built-in rules plus any custom patterns. Invalid
// custom patterns are logged and skipped, never fatal.
func NewMasker(custom map[string]Pattern, logger *slog.Logger) *Masker {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "masking")

	m := &Masker{}
	for name, p := range builtinPatterns {
		m.compile(name, p, logger)
	}
	for name, p := range custom {
		m.compile("custom:"+name, p, logger)
	}
	return m
}

func (m *Masker) compile(name string, p Pattern, logger *slog.Logger) {
	compiled, err := regexp.Compile(p.Pattern)
	if err != nil {
		logger.Error("failed to compile masking pattern, skipping", "pattern", name, "error", err)
		return
	}
	m.patterns = append(m.patterns, &CompiledPattern{
		Name:        name,
		Regex:       compiled,
		Replacement: p.Replacement,
	})
}

// MaskString applies every rule to the input.
func (m *Masker) MaskString(s string) string {
	if s == "" {
		return s
	}
	for _, p := range m.patterns {
		s = p.Regex.ReplaceAllString(s, p.Replacement)
	}
	return s
}

// MaskError returns an error whose message has been scrubbed. The original
// error is not retained; a masked error must not unwrap to the secret.
func (m *Masker) MaskError(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(m.MaskString(err.Error()))
}

// MaskPayload scrubs every string value in a broadcast payload, descending
// into nested maps and slices. The input is not modified.
func (m *Masker) MaskPayload(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	masked := make(map[string]any, len(payload))
	for k, v := range payload {
		masked[k] = m.maskValue(v)
	}
	return masked
}

func (m *Masker) maskValue(v any) any {
	switch val := v.(type) {
	case string:
		return m.MaskString(val)
	case map[string]any:
		return m.MaskPayload(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = m.maskValue(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = m.MaskString(item)
		}
		return out
	default:
		return v
	}
}
