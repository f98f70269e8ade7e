// Package llm implements the AI router: provider adapters for Anthropic and
// OpenAI plus tier selection informed by tracked provider quality.
package llm

import (
	"context"
	"errors"
)

// Sentinel errors for the router.
var (
	// ErrNoTiers indicates a router configured without any tier.
	ErrNoTiers = errors.New("no model tiers configured")

	// ErrAllTiersFailed indicates every configured tier returned an error.
	ErrAllTiersFailed = errors.New("all model tiers failed")
)

// CompletionRequest is one provider-agnostic completion call.
type CompletionRequest struct {
	System      string
	Prompt      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// CompletionResponse carries the text and token usage of one call.
type CompletionResponse struct {
	Text      string
	TokensIn  int
	TokensOut int
}

// Client is one provider backend.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
