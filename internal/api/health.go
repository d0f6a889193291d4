package api

import (
	"context"
	"net/http"
	"time"
)

const probeTimeout = 2 * time.Second

// handleHealth reports per-dependency status. Only the vector store is
// critical: with it down the service is unhealthy (503). A down KV or
// embedder degrades the service but leaves it serving (200).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	deps := map[string]string{
		"vectorStore": probe(func() error { return s.vs.Healthy(ctx) }),
		"kv":          probe(func() error { return s.pow.Healthy(ctx) }),
		"embedding": probe(func() error {
			_, err := s.emb.Embed(ctx, []string{"ping"})
			return err
		}),
	}

	status := "ok"
	code := http.StatusOK
	if deps["vectorStore"] != "ok" {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	} else if deps["kv"] != "ok" || deps["embedding"] != "ok" {
		status = "degraded"
	}

	writeJSON(w, code, map[string]any{
		"status":       status,
		"service":      "kairos",
		"version":      s.version,
		"dependencies": deps,
		"uptime":       time.Since(s.started).Round(time.Second).String(),
	})
}

func probe(f func() error) string {
	if err := f(); err != nil {
		return "down"
	}
	return "ok"
}
