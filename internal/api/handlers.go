package api

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/debian777/kairos-mcp/internal/faults"
	"github.com/debian777/kairos-mcp/internal/proof"
)

// handleMintRaw stores a markdown document posted as the request body.
// Headers x-llm-model-id and x-force-update (or ?force=true) parameterize
// the mint.
func (s *Server) handleMintRaw(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		err = faults.Wrap(err, faults.CodeInvalidInput, "read request body")
		s.observe("kairos_mint", start, err)
		writeError(w, err)
		return
	}
	blob := strings.TrimSpace(string(body))
	if blob == "" {
		err = faults.New(faults.CodeInvalidInput, "request body must contain markdown")
		s.observe("kairos_mint", start, err)
		writeError(w, err)
		return
	}

	modelID := r.Header.Get("x-llm-model-id")
	force := strings.EqualFold(r.Header.Get("x-force-update"), "true") ||
		strings.EqualFold(r.URL.Query().Get("force"), "true")

	res, err := s.chains.Mint(r.Context(), blob, modelID, force)
	s.observe("kairos_mint", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	if res.ZeroVectorUsed && s.metrics != nil {
		s.metrics.EmbeddingFallback.Inc()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "stored",
		"items":  res.Items,
		"metadata": map[string]any{
			"count":        len(res.Items),
			"duration_ms":  res.DurationMS,
			"llm_model_id": res.LLMModelID,
		},
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		Query string `json:"query"`
	}
	if err := decode(r, &req); err != nil {
		s.observe("kairos_search", start, err)
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		err := faults.New(faults.CodeInvalidInput, "query must not be empty")
		s.observe("kairos_search", start, err)
		writeError(w, err)
		return
	}
	resp, err := s.engine.Search(r.Context(), req.Query)
	s.observe("kairos_search", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBegin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		URI string `json:"uri"`
	}
	if err := decode(r, &req); err != nil {
		s.observe("kairos_begin", start, err)
		writeError(w, err)
		return
	}
	resp, err := s.machine.Begin(r.Context(), req.URI)
	s.observe("kairos_begin", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleNext runs the proof validation and advance. The plain HTTP transport
// has no elicitation round-trip, so a nil elicitor is passed: user_input
// steps validate only a literal approved confirmation here.
func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		URI      string          `json:"uri"`
		Solution *proof.Solution `json:"solution"`
	}
	if err := decode(r, &req); err != nil {
		s.observe("kairos_next", start, err)
		writeError(w, err)
		return
	}
	resp, err := s.machine.Next(r.Context(), req.URI, req.Solution, nil)
	s.observe("kairos_next", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	if resp.ErrorCode != "" && s.metrics != nil {
		s.metrics.ProofFailures.WithLabelValues(resp.ErrorCode).Inc()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAttest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		URI          string  `json:"uri"`
		Outcome      string  `json:"outcome"`
		Message      string  `json:"message"`
		QualityBonus float64 `json:"quality_bonus"`
		LLMModelID   string  `json:"llm_model_id"`
	}
	if err := decode(r, &req); err != nil {
		s.observe("kairos_attest", start, err)
		writeError(w, err)
		return
	}
	resp, err := s.machine.Attest(r.Context(), req.URI, req.Outcome, req.Message, req.QualityBonus)
	s.observe("kairos_attest", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		URIs        []string `json:"uris"`
		MarkdownDoc []string `json:"markdown_doc"`
	}
	if err := decode(r, &req); err != nil {
		s.observe("kairos_update", start, err)
		writeError(w, err)
		return
	}
	resp, err := s.chains.Update(r.Context(), req.URIs, req.MarkdownDoc)
	s.observe("kairos_update", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		URIs  []string `json:"uris"`
		Chain bool     `json:"chain"`
	}
	if err := decode(r, &req); err != nil {
		s.observe("kairos_delete", start, err)
		writeError(w, err)
		return
	}
	resp, err := s.chains.Delete(r.Context(), req.URIs, req.Chain)
	s.observe("kairos_delete", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDump(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		URI      string `json:"uri"`
		Protocol bool   `json:"protocol"`
	}
	if err := decode(r, &req); err != nil {
		s.observe("kairos_dump", start, err)
		writeError(w, err)
		return
	}
	resp, err := s.chains.Dump(r.Context(), req.URI, req.Protocol)
	s.observe("kairos_dump", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
