package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/linkscrub/linkscrub/extract"
	"github.com/linkscrub/linkscrub/refresh"
	"github.com/linkscrub/linkscrub/ruleset"
	"github.com/linkscrub/linkscrub/scrub"
	urlpkg "github.com/linkscrub/linkscrub/url"
)

// CleanRequest represents a request to clean a single URL.
type CleanRequest struct {
	URL string `json:"url"`
}

// CleanResponse represents the result of cleaning a single URL.
type CleanResponse struct {
	URL        string `json:"url"`
	Result     string `json:"result"`
	CleanedURL string `json:"cleaned_url,omitempty"`
}

// ScanRequest represents a request to clean every link found in a text.
type ScanRequest struct {
	Text string `json:"text"`
}

// LinkResult is the per-link outcome of a scan.
type LinkResult struct {
	URL        string `json:"url"`
	Result     string `json:"result"`
	CleanedURL string `json:"cleaned_url,omitempty"`
	Changed    bool   `json:"changed"`
}

// ScanResponse represents the response from a scan request.
type ScanResponse struct {
	Links []LinkResult `json:"links"`
}

// RefreshRequest represents a request to refresh the rules, optionally from a
// different source URL.
type RefreshRequest struct {
	URL string `json:"url,omitempty"`
}

// RefreshResponse represents a successful refresh.
type RefreshResponse struct {
	Providers int `json:"providers"`
}

// InvalidPattern describes a provider excluded from the active ruleset.
type InvalidPattern struct {
	Provider string `json:"provider"`
	Pattern  string `json:"pattern"`
	Error    string `json:"error"`
}

// RulesResponse describes the active ruleset.
type RulesResponse struct {
	SourceURL string           `json:"source_url"`
	FetchedAt string           `json:"fetched_at"`
	Providers int              `json:"providers"`
	Invalid   []InvalidPattern `json:"invalid"`
}

// ErrorResponse represents an error.
type ErrorResponse struct {
	Error      string `json:"error"`
	StatusCode int    `json:"status_code"`
}

// handleClean handles POST /v1/clean requests.
func (s *Server) handleClean(w http.ResponseWriter, r *http.Request) {
	var req CleanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Error("failed to decode request", "error", err)
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if _, err := urlpkg.ParseAndValidate(req.URL); err != nil {
		s.logger.Error("invalid request", "error", err)
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	rs := s.rules.Load()
	if rs == nil {
		s.sendError(w, "no ruleset loaded yet", http.StatusServiceUnavailable)
		return
	}

	verdict := s.scrubber.Evaluate(req.URL, rs)

	resp := CleanResponse{
		URL:    req.URL,
		Result: verdict.Kind.String(),
	}
	if verdict.Kind == scrub.KindCleaned {
		resp.CleanedURL = verdict.URL
	}

	s.logger.Info("clean request", "url", req.URL, "result", resp.Result)
	s.sendJSON(w, resp, http.StatusOK)
}

// handleScan handles POST /v1/scan requests.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Error("failed to decode request", "error", err)
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	rs := s.rules.Load()
	if rs == nil {
		s.sendError(w, "no ruleset loaded yet", http.StatusServiceUnavailable)
		return
	}

	links := make([]LinkResult, 0)
	for _, candidate := range extract.URLs(req.Text) {
		verdict := s.scrubber.Evaluate(candidate, rs)

		result := LinkResult{
			URL:    candidate,
			Result: verdict.Kind.String(),
		}
		switch verdict.Kind {
		case scrub.KindCleaned:
			result.CleanedURL = verdict.URL
			result.Changed = scrub.Changed(candidate, verdict.URL)
		case scrub.KindBlocked:
			result.Changed = true
		}

		links = append(links, result)
	}

	s.logger.Info("scan request", "candidates", len(links))
	s.sendJSON(w, ScanResponse{Links: links}, http.StatusOK)
}

// handleRefresh handles POST /v1/rules/refresh requests.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.logger.Error("failed to decode request", "error", err)
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.URL != "" {
		if _, err := urlpkg.ParseAndValidate(req.URL); err != nil {
			s.logger.Error("invalid request", "error", err)
			s.sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	rs, err := s.refresher.Trigger(r.Context(), req.URL)
	if err != nil {
		s.logger.Error("refresh failed", "url", req.URL, "error", err)
		switch {
		case errors.Is(err, refresh.ErrThrottled):
			s.sendError(w, "refresh throttled, try again later", http.StatusTooManyRequests)
		case errors.Is(err, ruleset.ErrMalformedDocument):
			s.sendError(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			s.sendError(w, err.Error(), http.StatusBadGateway)
		}
		return
	}

	s.logger.Info("refresh completed", "providers", rs.Len())
	s.sendJSON(w, RefreshResponse{Providers: rs.Len()}, http.StatusOK)
}

// handleRules handles GET /v1/rules requests.
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	rs := s.rules.Load()
	if rs == nil {
		s.sendError(w, "no ruleset loaded yet", http.StatusServiceUnavailable)
		return
	}

	invalid := make([]InvalidPattern, 0, len(rs.Diagnostics()))
	for _, d := range rs.Diagnostics() {
		invalid = append(invalid, InvalidPattern{
			Provider: d.Provider,
			Pattern:  d.Pattern,
			Error:    d.Err.Error(),
		})
	}

	s.sendJSON(w, RulesResponse{
		SourceURL: rs.SourceURL,
		FetchedAt: rs.FetchedAt.Format(time.RFC3339),
		Providers: rs.Len(),
		Invalid:   invalid,
	}, http.StatusOK)
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	s.sendJSON(w, health, http.StatusOK)
}

func (s *Server) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	s.sendJSON(w, ErrorResponse{
		Error:      message,
		StatusCode: statusCode,
	}, statusCode)
}
