package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ethpandaops/stressoor/pkg/render"
	"github.com/ethpandaops/stressoor/pkg/summary"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// queryBool reads a boolean query parameter, falling back to def.
func queryBool(r *http.Request, name string, def bool) bool {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}

	return b
}

// handleReport scans the root and renders it in the given format. The
// devices and issues query parameters override the server defaults.
func (s *server) handleReport(format render.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parse := s.opts.Parse
		parse.Devices = queryBool(r, "devices", parse.Devices)
		parse.Issues = queryBool(r, "issues", parse.Issues)

		c, err := s.scan(r.Context(), parse)
		if err != nil {
			s.log.WithError(err).Error("Scan failed")
			writeJSON(w, http.StatusInternalServerError, errorResponse{err.Error()})

			return
		}

		opts := s.opts.Render
		opts.Devices = parse.Devices
		opts.Issues = parse.Issues

		body, err := render.Render(format, c, opts)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{err.Error()})

			return
		}

		ct := format.ContentType()
		if strings.HasPrefix(ct, "text/") {
			ct += "; charset=utf-8"
		}

		w.Header().Set("Content-Type", ct)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

// handleFile serves a file from below the root folder.
func (s *server) handleFile(w http.ResponseWriter, r *http.Request) {
	rel := chi.URLParam(r, "*")

	full := filepath.Join(s.opts.Root, filepath.FromSlash(rel))

	inside, err := filepath.Rel(s.opts.Root, full)
	if err != nil || inside == ".." ||
		strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		writeJSON(w, http.StatusForbidden, errorResponse{"path is not allowed"})

		return
	}

	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeJSON(w, http.StatusNotFound, errorResponse{"not found"})

			return
		}

		writeJSON(w, http.StatusInternalServerError, errorResponse{err.Error()})

		return
	}

	if info.IsDir() {
		writeJSON(w, http.StatusNotFound, errorResponse{"not found"})

		return
	}

	http.ServeFile(w, r, full)
}

// handleIndexRuns lists indexed runs, optionally for one kernel.
func (s *server) handleIndexRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.opts.Index.ListRuns(r.Context(), r.URL.Query().Get("kernel"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{err.Error()})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// handleIndexDevices lists the indexed devices of the root for a phase.
func (s *server) handleIndexDevices(w http.ResponseWriter, r *http.Request) {
	phase := summary.PhaseSuspend

	if v := r.URL.Query().Get("phase"); v != "" {
		p, ok := summary.ParsePhase(v)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorResponse{"unknown phase"})

			return
		}

		phase = p
	}

	devices, err := s.opts.Index.ListDevices(r.Context(), s.opts.Root, phase)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{err.Error()})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}
