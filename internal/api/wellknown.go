package api

import (
	"net/http"
)

// handleProtectedResource serves the static RFC 9728 protected-resource
// metadata. It is reachable without credentials by design: clients read it
// to discover how to authenticate elsewhere.
func (s *Server) handleProtectedResource(w http.ResponseWriter, r *http.Request) {
	host := r.Host
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	base := scheme + "://" + host
	writeJSON(w, http.StatusOK, map[string]any{
		"resource":                 base + "/mcp",
		"bearer_methods_supported": []string{"header"},
		"resource_name":            "KAIROS knowledge-protocol server",
		"resource_documentation":   base + "/health",
	})
}
