// Package dashboard serves the weekly report artifact: raw JSON for the
// single-page view, and a liquid-rendered digest for email or Slack pasting.
package dashboard

import (
	"embed"
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/marketing-pulse/internal/pkg/logger"
	"github.com/ignite/marketing-pulse/internal/report"
)

//go:embed static
var staticFS embed.FS

// Server reads the artifact from disk on every request. The batch run
// replaces the file atomically, so a read never sees a partial report.
type Server struct {
	reportPath string
	digest     *DigestRenderer
}

// NewServer creates the dashboard server for an artifact path.
func NewServer(reportPath string) *Server {
	return &Server{reportPath: reportPath, digest: NewDigestRenderer()}
}

// Routes builds the router.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/report", s.handleReport)
	r.Get("/digest", s.handleDigest)
	r.Get("/", s.handleIndex)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReport serves the artifact verbatim. Before the first batch run
// there is nothing to serve and the API says so rather than faking a shape.
func (s *Server) handleReport(w http.ResponseWriter, _ *http.Request) {
	data, err := os.ReadFile(s.reportPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no report generated yet"})
			return
		}
		logger.Error("reading report artifact", "path", s.reportPath, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read report"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleDigest renders the artifact through the digest template.
func (s *Server) handleDigest(w http.ResponseWriter, _ *http.Request) {
	artifact, err := report.Read(s.reportPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no report generated yet"})
			return
		}
		logger.Error("reading report artifact", "path", s.reportPath, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read report"})
		return
	}

	html, err := s.digest.Render(artifact)
	if err != nil {
		logger.Error("rendering digest", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to render digest"})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(html))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "dashboard assets missing", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
