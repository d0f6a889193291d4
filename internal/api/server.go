// Package api is the HTTP JSON surface: the kairos_* routes, health, and the
// RFC 9728 protected-resource document.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/debian777/kairos-mcp/internal/chains"
	"github.com/debian777/kairos-mcp/internal/embeddings"
	"github.com/debian777/kairos-mcp/internal/faults"
	"github.com/debian777/kairos-mcp/internal/metrics"
	"github.com/debian777/kairos-mcp/internal/protocol"
	"github.com/debian777/kairos-mcp/internal/proofstore"
	"github.com/debian777/kairos-mcp/internal/search"
	"github.com/debian777/kairos-mcp/internal/vectorstore"
)

const (
	requestTimeout = 30 * time.Second
	slowThreshold  = 25 * time.Second
)

// Server wires the core subsystems behind the HTTP routes.
type Server struct {
	chains  *chains.Store
	engine  *search.Engine
	machine *protocol.Machine
	pow     *proofstore.Store
	vs      vectorstore.Store
	emb     embeddings.Client
	metrics *metrics.Metrics
	log     zerolog.Logger

	version string
	started time.Time
}

func NewServer(
	chainStore *chains.Store,
	engine *search.Engine,
	machine *protocol.Machine,
	pow *proofstore.Store,
	vs vectorstore.Store,
	emb embeddings.Client,
	m *metrics.Metrics,
	version string,
	log zerolog.Logger,
) *Server {
	return &Server{
		chains:  chainStore,
		engine:  engine,
		machine: machine,
		pow:     pow,
		vs:      vs,
		emb:     emb,
		metrics: m,
		log:     log.With().Str("component", "api").Logger(),
		version: version,
		started: time.Now(),
	}
}

// Router builds the chi handler. extra mounts (the MCP endpoint) are attached
// by the caller.
func (s *Server) Router(extra map[string]http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(s.requestLogger)

	r.Post("/api/kairos_mint/raw", s.handleMintRaw)
	r.Post("/api/kairos_search", s.handleSearch)
	r.Post("/api/kairos_begin", s.handleBegin)
	r.Post("/api/kairos_next", s.handleNext)
	r.Post("/api/kairos_attest", s.handleAttest)
	r.Post("/api/kairos_update", s.handleUpdate)
	r.Post("/api/kairos_delete", s.handleDelete)
	r.Post("/api/kairos_dump", s.handleDump)

	r.Get("/health", s.handleHealth)
	r.Get("/.well-known/oauth-protected-resource", s.handleProtectedResource)
	r.Get("/.well-known/oauth-protected-resource/mcp", s.handleProtectedResource)

	for pattern, h := range extra {
		r.Mount(pattern, h)
	}
	return r
}

// requestLogger logs every request and flags the ones approaching the
// inbound deadline or abandoned by the client.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		evt := s.log.Info()
		if r.Context().Err() != nil {
			evt = s.log.Warn().Str("cancelled", r.Context().Err().Error())
		} else if elapsed > slowThreshold {
			evt = s.log.Warn().Bool("slow", true)
		}
		evt.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", elapsed).
			Msg("request")
	})
}

// observe records the per-tool counter and latency.
func (s *Server) observe(tool string, start time.Time, err error) {
	code := "ok"
	if err != nil {
		code = faults.CodeOf(err)
	}
	if s.metrics != nil {
		s.metrics.Requests.WithLabelValues(tool, code).Inc()
		s.metrics.RequestDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders a coded error envelope. Structured details are merged
// into the top level so conflict payloads (chain_id, items, next_action)
// arrive where callers expect them.
func writeError(w http.ResponseWriter, err error) {
	body := map[string]any{
		"error_code": faults.CodeOf(err),
		"message":    faults.MessageOf(err),
	}
	for k, v := range faults.DetailsOf(err) {
		body[k] = v
	}
	writeJSON(w, faults.HTTPStatus(err), body)
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return faults.Wrap(err, faults.CodeInvalidInput, "malformed request body")
	}
	return nil
}
