// Package api provides the HTTP REST API server for MacroQuery.
//
// It exposes the natural-language query endpoint, a server-sent-events
// streaming variant, cache administration, provider listing, health,
// and WebSocket broadcasting of completed queries.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/seenimoa/macroquery/internal/config"
	"github.com/seenimoa/macroquery/internal/infra"
	"github.com/seenimoa/macroquery/internal/intent"
	"github.com/seenimoa/macroquery/internal/orchestrator"
	"github.com/seenimoa/macroquery/internal/provider"
)

// Deps carries the assembled pipeline the server fronts.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Registry     *provider.Registry
	Cache        *infra.Cache
	Breakers     *infra.Breakers
}

// Server is the HTTP API server.
type Server struct {
	router  chi.Router
	cfg     *config.Config
	orch    *orchestrator.Orchestrator
	reg     *provider.Registry
	cache   *infra.Cache
	breaker *infra.Breakers
	wsHub   *WSHub
	queries *rate.Limiter
	log     zerolog.Logger
}

// NewServer creates a configured API server with all routes and middleware.
func NewServer(cfg *config.Config, deps Deps, log zerolog.Logger) *Server {
	perMinute := cfg.API.QueryPerMinute
	if perMinute <= 0 {
		perMinute = 60
	}
	srv := &Server{
		cfg:     cfg,
		orch:    deps.Orchestrator,
		reg:     deps.Registry,
		cache:   deps.Cache,
		breaker: deps.Breakers,
		wsHub:   NewWSHub(log),
		queries: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute/4+1),
		log:     log.With().Str("component", "api").Logger(),
	}
	srv.router = srv.buildRouter()
	return srv
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe starts the HTTP server with graceful shutdown.
func (s *Server) ListenAndServe(addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go s.wsHub.Run()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	<-done
	s.log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(ctx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/query", s.handleQuery)
		r.Post("/query/stream", s.handleQueryStream)

		r.Get("/cache/stats", s.handleCacheStats)
		r.Post("/cache/clear", s.handleCacheClear)

		r.Get("/providers", s.handleProviders)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// ============================================================
// Request / Response types
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Kind    string      `json:"kind,omitempty"`
}

// QueryRequest is the body for POST /api/v1/query and /query/stream.
type QueryRequest struct {
	Query        string   `json:"query"`
	Conversation []string `json:"conversation,omitempty"`
}

// ============================================================
// Handlers
// ============================================================

// handleHealth reports service liveness. With ?ping=true it also pings
// every registered provider, which hits their upstreams.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var breakers map[string]string
	if s.breaker != nil {
		breakers = s.breaker.States()
	}
	data := map[string]interface{}{
		"status":     "ok",
		"providers":  len(s.reg.List()),
		"breakers":   breakers,
		"ws_clients": s.wsHub.ClientCount(),
	}
	if r.URL.Query().Get("ping") == "true" {
		data["upstreams"] = s.pingProviders(r.Context())
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

func (s *Server) pingProviders(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	infos := s.reg.List()
	statuses := make([]string, len(infos))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, info := range infos {
		i, name := i, info.Name
		g.Go(func() error {
			a, err := s.reg.Get(name)
			if err == nil {
				err = a.Ping(ctx)
			}
			if err != nil {
				statuses[i] = err.Error()
			} else {
				statuses[i] = "ok"
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]string, len(infos))
	for i, info := range infos {
		out[info.Name] = statuses[i]
	}
	return out
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	result, err := s.orch.Query(r.Context(), req.Query, req.Conversation)
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}

	s.wsHub.Broadcast(WSMessage{
		Type: "query_completed",
		Data: map[string]interface{}{
			"query":    req.Query,
			"series":   len(result.Data),
			"warnings": len(result.Warnings),
		},
	})
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: result})
}

// handleQueryStream runs the pipeline while relaying progress as
// server-sent events. Each frame is a named event with one JSON data
// line; a done event terminates the stream.
func (s *Server) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", "internal")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := make(chan orchestrator.Event, 16)
	go func() {
		defer close(events)
		if _, err := s.orch.Stream(r.Context(), req.Query, req.Conversation, events); err != nil {
			s.log.Debug().Err(err).Msg("streamed query failed")
		}
	}()

	enc := json.NewEncoder(w)
	for ev := range events {
		if _, err := w.Write([]byte("event: " + string(ev.Type) + "\ndata: ")); err != nil {
			return
		}
		if err := enc.Encode(ev); err != nil {
			return
		}
		if _, err := w.Write([]byte("\n")); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats := s.cache.Stats()
	hitRate := 0.0
	if total := stats.Hits + stats.Misses; total > 0 {
		hitRate = float64(stats.Hits) / float64(total)
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"entries":   stats.Entries,
			"hits":      stats.Hits,
			"misses":    stats.Misses,
			"evictions": stats.Evictions,
			"hit_rate":  hitRate,
		},
	})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.cache.Clear()
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: map[string]bool{"ok": true}})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.reg.List()})
}

// decodeQuery validates the shared query body and applies the inbound
// rate limit.
func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (QueryRequest, bool) {
	if !s.queries.Allow() {
		writeError(w, http.StatusTooManyRequests, "query rate limit exceeded", "rate_limited")
		return QueryRequest{}, false
	}
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "bad_request")
		return QueryRequest{}, false
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required", "bad_request")
		return QueryRequest{}, false
	}
	return req, true
}

// writeTaxonomyError maps pipeline errors onto HTTP statuses: client
// mistakes 400, unresolvable data 404, rate limits 429, upstream
// failures 502, intent/LLM and tripped circuits 503, deadlines 504.
func (s *Server) writeTaxonomyError(w http.ResponseWriter, err error) {
	kind := orchestrator.ErrorKind(err)

	var unparseable *intent.UnparseableError
	var unknownGeo *intent.UnknownGeographyError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &unknownGeo):
		status, kind = http.StatusBadRequest, "unknown_geography"
	case errors.As(err, &unparseable):
		status, kind = http.StatusServiceUnavailable, "unparseable_query"
	default:
		switch kind {
		case "data_not_available", "indicator_unknown":
			status = http.StatusNotFound
		case "rate_limited":
			status = http.StatusTooManyRequests
		case "upstream", "network":
			status = http.StatusBadGateway
		case "circuit_open":
			status = http.StatusServiceUnavailable
		case "timeout":
			status = http.StatusGatewayTimeout
		}
	}

	s.log.Warn().Err(err).Str("kind", kind).Int("status", status).Msg("query failed")
	writeError(w, status, err.Error(), kind)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, kind string) {
	writeJSON(w, status, APIResponse{Success: false, Error: msg, Kind: kind})
}
