package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cortexhq/cortex/pkg/agent"
	"github.com/cortexhq/cortex/pkg/learning"
)

// TierConfig binds a named tier to a provider backend and its pricing.
type TierConfig struct {
	// Name is the tier identifier callers may request (e.g. "haiku").
	Name string `yaml:"name"`

	// Provider selects the backend client ("anthropic" or "openai").
	Provider string `yaml:"provider"`

	// Model is the provider-specific model identifier.
	Model string `yaml:"model"`

	// CostPer1KIn and CostPer1KOut are USD per 1000 tokens.
	CostPer1KIn  float64 `yaml:"cost_per_1k_in"`
	CostPer1KOut float64 `yaml:"cost_per_1k_out"`

	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// RouterOptions configures tier selection.
type RouterOptions struct {
	// MinCalls gates tracker-informed selection: providers with fewer
	// samples are not preferred over the configured order.
	MinCalls int

	// Optimizer is the tracker ranking target.
	Optimizer string
}

// DefaultRouterOptions requires 10 samples and balances speed, cost, and
// quality.
func DefaultRouterOptions() RouterOptions {
	return RouterOptions{MinCalls: 10, Optimizer: learning.OptimizeBalanced}
}

// Router selects a tier per request and fails over across the remaining
// tiers in configured order. It implements agent.Router.
type Router struct {
	tiers   []TierConfig
	clients map[string]Client
	tracker *learning.ProviderTracker
	opts    RouterOptions
	logger  *slog.Logger
}

// NewRouter builds a router over the given tiers. Every tier's provider must
// have a client. The tracker is optional; without one the configured tier
// order decides.
func NewRouter(tiers []TierConfig, clients map[string]Client, tracker *learning.ProviderTracker, opts RouterOptions, logger *slog.Logger) (*Router, error) {
	if len(tiers) == 0 {
		return nil, ErrNoTiers
	}
	if opts.Optimizer == "" {
		opts.Optimizer = learning.OptimizeBalanced
	}
	seen := make(map[string]bool, len(tiers))
	for _, tier := range tiers {
		if tier.Name == "" || tier.Provider == "" || tier.Model == "" {
			return nil, fmt.Errorf("tier %q: name, provider, and model are required", tier.Name)
		}
		if seen[tier.Name] {
			return nil, fmt.Errorf("duplicate tier %q", tier.Name)
		}
		seen[tier.Name] = true
		if clients[tier.Provider] == nil {
			return nil, fmt.Errorf("tier %q: no client for provider %q", tier.Name, tier.Provider)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		tiers:   tiers,
		clients: clients,
		tracker: tracker,
		opts:    opts,
		logger:  logger.With("component", "llm_router"),
	}, nil
}

// Complete implements agent.Router: resolve the tier order, try each tier
// until one succeeds, and report the observed call economics.
func (r *Router) Complete(ctx context.Context, req agent.RouterRequest) (*agent.RouterResponse, error) {
	order := r.tierOrder(req.Tier)

	var lastErr error
	for _, tier := range order {
		client := r.clients[tier.Provider]
		start := time.Now()
		resp, err := client.Complete(ctx, CompletionRequest{
			System:      req.System,
			Prompt:      req.Prompt,
			Model:       tier.Model,
			MaxTokens:   tier.MaxTokens,
			Temperature: tier.Temperature,
		})
		latency := time.Since(start)
		if err != nil {
			lastErr = err
			r.logger.Warn("tier failed, trying next",
				"tier", tier.Name,
				"provider", tier.Provider,
				"pass_type", string(req.PassType),
				"error", err)
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrAllTiersFailed, ctx.Err())
			}
			continue
		}
		return &agent.RouterResponse{
			Text:      resp.Text,
			TokensIn:  resp.TokensIn,
			TokensOut: resp.TokensOut,
			Provider:  tier.Provider,
			Tier:      tier.Name,
			Latency:   latency,
			CostUSD:   tier.cost(resp.TokensIn, resp.TokensOut),
		}, nil
	}
	return nil, fmt.Errorf("%w: last error: %v", ErrAllTiersFailed, lastErr)
}

// tierOrder returns the tiers to try, preferred tier first. An explicit
// request wins; otherwise the tracker's best eligible provider is consulted.
func (r *Router) tierOrder(requested string) []TierConfig {
	if requested != "" {
		if idx := r.tierIndex(func(t TierConfig) bool { return t.Name == requested }); idx >= 0 {
			return r.promote(idx)
		}
		r.logger.Debug("requested tier not configured, using default order", "tier", requested)
	}
	if r.tracker != nil {
		best, err := r.tracker.BestProvider(r.opts.Optimizer, r.opts.MinCalls)
		if err == nil {
			idx := r.tierIndex(func(t TierConfig) bool {
				return t.Provider == best.ProviderName && t.Name == best.ModelTier
			})
			if idx >= 0 {
				return r.promote(idx)
			}
		}
	}
	return r.tiers
}

func (r *Router) tierIndex(match func(TierConfig) bool) int {
	for i, tier := range r.tiers {
		if match(tier) {
			return i
		}
	}
	return -1
}

// promote returns the tier list with tiers[idx] first and the rest in
// configured order.
func (r *Router) promote(idx int) []TierConfig {
	order := make([]TierConfig, 0, len(r.tiers))
	order = append(order, r.tiers[idx])
	for i, tier := range r.tiers {
		if i != idx {
			order = append(order, tier)
		}
	}
	return order
}

func (t TierConfig) cost(tokensIn, tokensOut int) float64 {
	return float64(tokensIn)/1000*t.CostPer1KIn + float64(tokensOut)/1000*t.CostPer1KOut
}
