// Package agent drives the multi-pass reasoning state machine over a working
// memory: up to MaxPasses passes, each dispatched by pass type, calling an
// opaque AI router and a context searcher until the analysis converges.
package agent

import (
	"context"
	"errors"
	"time"

	"github.com/cortexhq/cortex/pkg/models"
)

// ErrReasoning wraps failures raised inside a reasoning pass. The pass is
// completed with its pre-failure state and the memory transitions to complete
// with the best hypothesis preserved before this is returned.
var ErrReasoning = errors.New("reasoning failed")

// RouterRequest is one structured prompt sent to the AI router.
type RouterRequest struct {
	PassType models.PassType
	System   string
	Prompt   string

	// Tier is advisory; the router owns provider and tier selection.
	Tier string
}

// RouterResponse is the router's answer plus the observed call economics.
type RouterResponse struct {
	Text      string
	TokensIn  int
	TokensOut int

	Provider string
	Tier     string
	Latency  time.Duration
	CostUSD  float64
}

// Router is the opaque AI boundary. Implementations select the provider and
// tier; the reasoner never assumes a single backend.
type Router interface {
	Complete(ctx context.Context, req RouterRequest) (*RouterResponse, error)
}

// ContextQuery asks the context searcher for material related to the event.
type ContextQuery struct {
	Entities []models.Entity
	Keywords []string

	// Window bounds how far back retrieval reaches.
	Window time.Duration
}

// ContextSearcher retrieves notes, prior events, calendar occupancy, open
// tasks, and entity profiles, each with a relevance score.
type ContextSearcher interface {
	Search(ctx context.Context, q ContextQuery) ([]models.ContextItem, error)
}

// CallObservation is one observed router call, handed to the learning engine
// by the caller after processing finishes.
type CallObservation struct {
	PassType models.PassType
	Provider string
	Tier     string
	Latency  time.Duration
	CostUSD  float64
	Success  bool
}
