// Package api exposes the HTTP and WebSocket surface: health, the review
// queue, reply drafts, explicit feedback, and the realtime event stream.
// Handlers validate and map to stores; the processing pipeline never depends
// on this package.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/cortexhq/cortex/pkg/events"
	"github.com/cortexhq/cortex/pkg/history"
	"github.com/cortexhq/cortex/pkg/learning"
	"github.com/cortexhq/cortex/pkg/masking"
	"github.com/cortexhq/cortex/pkg/memory"
	"github.com/cortexhq/cortex/pkg/queue"
	"github.com/cortexhq/cortex/pkg/store"
)

// MemoryRecaller looks up the retained working memory of a recently processed
// event so explicit feedback can complete a learning cycle.
type MemoryRecaller interface {
	Recall(eventID string) (*memory.WorkingMemory, bool)
}

// Server wires the HTTP handlers to the stores and the channel manager.
type Server struct {
	queueStore *store.QueueStore
	draftStore *store.DraftStore
	learner    *learning.Engine
	recaller   MemoryRecaller
	workerPool *queue.Pool
	history    *history.Store
	manager    *events.ChannelManager
	masker     *masking.Masker
	logger     *slog.Logger

	// allowedOrigins restricts WebSocket upgrades. Empty means same-origin
	// only, per the websocket library default.
	allowedOrigins []string

	echo       *echo.Echo
	httpServer *http.Server
}

// ServerDeps carries the server's collaborators. QueueStore and DraftStore
// are required; the rest degrade gracefully when nil.
type ServerDeps struct {
	QueueStore     *store.QueueStore
	DraftStore     *store.DraftStore
	Learner        *learning.Engine
	Recaller       MemoryRecaller
	WorkerPool     *queue.Pool
	History        *history.Store
	Manager        *events.ChannelManager
	Masker         *masking.Masker
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewServer builds the server and registers all routes.
func NewServer(deps ServerDeps) (*Server, error) {
	if deps.QueueStore == nil || deps.DraftStore == nil {
		return nil, errMissingStores
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		queueStore:     deps.QueueStore,
		draftStore:     deps.DraftStore,
		learner:        deps.Learner,
		recaller:       deps.Recaller,
		workerPool:     deps.WorkerPool,
		history:        deps.History,
		manager:        deps.Manager,
		masker:         deps.Masker,
		allowedOrigins: deps.AllowedOrigins,
		logger:         logger.With("component", "api"),
		echo:           echo.New(),
	}

	s.echo.Use(s.requestLogger())
	s.echo.Use(securityHeaders())
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.healthHandler)
	s.echo.GET("/ws", s.wsHandler)

	g := s.echo.Group("/api/v1")
	g.GET("/queue", s.listQueueHandler)
	g.GET("/queue/:id", s.getQueueItemHandler)
	g.POST("/queue/:id/approve", s.approveQueueItemHandler)
	g.POST("/queue/:id/reject", s.rejectQueueItemHandler)

	g.GET("/drafts", s.listDraftsHandler)
	g.GET("/drafts/:id", s.getDraftHandler)
	g.PUT("/drafts/:id", s.updateDraftHandler)
	g.POST("/drafts/:id/send", s.markDraftSentHandler)
	g.POST("/drafts/:id/discard", s.discardDraftHandler)

	g.POST("/feedback", s.submitFeedbackHandler)
	g.GET("/sessions", s.listSessionsHandler)
}

// Start begins serving on addr. Blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP allows the server to be used as a plain handler in tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
