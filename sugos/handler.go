package sugos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/sugos/kit"
	"github.com/hazyhaar/sugos/shield"
)

// Response headers of POST /api/exports.
const (
	HeaderRunID     = "X-Sugos-Run-ID"
	HeaderStatus    = "X-Sugos-Status"
	HeaderProcessed = "X-Sugos-Processed"
	HeaderErrors    = "X-Sugos-Errors"
)

var errEmptyBody = errors.New("empty request body")

// Handler returns the HTTP API:
//
//	GET  /health
//	GET  /metrics
//	GET  /api/tenants
//	POST /api/exports    zip stream, or JSON when no archive or ?format=json
//	POST /api/links
//	GET  /api/runs       ?limit=N
//	GET  /api/runs/{id}
//
// /api routes require Basic authentication when Server.Username and
// Server.PasswordHash are configured.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.APIStack(s.logger, s.config.Server.MaxBodyBytes) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(shield.BasicAuth(s.config.Server.Username, s.config.Server.PasswordHash))

		r.Get("/tenants", serveJSON(s.tenantsEndpoint(), func(*http.Request) (any, error) {
			return nil, nil
		}))
		r.Post("/links", serveJSON(s.linksEndpoint(), decodeRequest))
		r.Post("/exports", s.handleExport(s.exportEndpoint()))
		r.Get("/runs", serveJSON(s.historyEndpoint(), func(r *http.Request) (any, error) {
			req := &HistoryRequest{}
			if v := r.URL.Query().Get("limit"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n < 0 {
					return nil, fmt.Errorf("invalid limit %q", v)
				}
				req.Limit = n
			}
			return req, nil
		}))
		r.Get("/runs/{id}", serveJSON(s.historyEndpoint(), func(r *http.Request) (any, error) {
			return &HistoryRequest{RunID: chi.URLParam(r, "id")}, nil
		}))
	})
	return r
}

func (s *Service) handleExport(ep kit.Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeRequest(r)
		if err != nil {
			writeError(w, requestStatus(err), err)
			return
		}
		resp, err := ep(r.Context(), req)
		if err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		res := resp.(*RunResult)
		w.Header().Set(HeaderRunID, res.RunID)
		w.Header().Set(HeaderStatus, string(res.Status))
		w.Header().Set(HeaderProcessed, strconv.Itoa(res.Processed))
		w.Header().Set(HeaderErrors, strconv.Itoa(res.Errors))

		if !res.HasArchive() || r.URL.Query().Get("format") == "json" {
			writeJSON(w, http.StatusOK, res)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.ArchiveName}))
		w.Header().Set("Content-Length", strconv.Itoa(len(res.Archive)))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(res.Archive); err != nil {
			shield.GetLogger(r.Context()).Warn("sugos: archive stream interrupted", "run_id", res.RunID, "error", err)
		}
	}
}

func serveJSON(ep kit.Endpoint, decode func(*http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decode(r)
		if err != nil {
			writeError(w, requestStatus(err), err)
			return
		}
		resp, err := ep(r.Context(), req)
		if err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func decodeRequest(r *http.Request) (any, error) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errEmptyBody
		}
		return nil, err
	}
	return &req, nil
}

func requestStatus(err error) int {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// errorStatus maps service errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnknownTenant), errors.Is(err, ErrRunNotFound), errors.Is(err, ErrNoHistory):
		return http.StatusNotFound
	case errors.Is(err, ErrNoCredentials), errors.Is(err, ErrNoIdentifiers):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuthFailed):
		return http.StatusBadGateway
	case errors.Is(err, ErrArchiveExists):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
