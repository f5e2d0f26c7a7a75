// Package server exposes the pipeline and the review tables over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/zakupki-realty/internal/model"
	"github.com/sells-group/zakupki-realty/internal/pipeline"
	"github.com/sells-group/zakupki-realty/internal/store"
	"github.com/sells-group/zakupki-realty/internal/view"
)

// UserHeader carries the acting user's id.
const UserHeader = "X-User-ID"

// Config holds the HTTP-facing settings.
type Config struct {
	DefaultUserID int64
	CORSOrigins   []string
	ListingsTopN  int
}

// Server binds handlers to one shared pipeline.
type Server struct {
	pipe  *pipeline.Pipeline
	store store.Store
	views *view.Assembler
	cfg   Config
}

// New creates a Server.
func New(p *pipeline.Pipeline, cfg Config) *Server {
	if cfg.DefaultUserID <= 0 {
		cfg.DefaultUserID = 1
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	return &Server{
		pipe:  p,
		store: p.Store(),
		views: view.New(p.Store()),
		cfg:   cfg,
	}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", UserHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/stage/{stage}", s.handleStageView)

		r.Route("/actions", func(r chi.Router) {
			r.Post("/ingest", s.handleIngest)
			r.Post("/extract", s.handleExtract)
			r.Post("/add_to_stage2", s.handleAddToStage2)
			r.Post("/links", s.handleLinks)
			r.Post("/listings", s.handleListings)
		})

		r.Post("/decisions", s.handleSaveDecision)
		r.Post("/overrides", s.handleSaveOverride)
		r.Get("/overrides/{reg_number}", s.handleGetOverrides)
		r.Get("/records/{reg_number}/listings", s.handleRecordListings)

		r.Route("/user", func(r chi.Router) {
			r.Get("/available", s.handleAvailable)
			r.Post("/select", s.handleSelect)
			r.Post("/unselect", s.handleUnselect)
			r.Get("/selections", s.handleSelections)
			r.Post("/run_listings", s.handleRunListings)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/status", s.handleAdminStatus)
			r.Post("/batch_extract", s.handleBatchExtract)
			r.Post("/batch_links", s.handleBatchLinks)
			r.Get("/runs", s.handleRuns)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// userID resolves the acting user: body field, then header, then query,
// then the configured default.
func (s *Server) userID(r *http.Request, fromBody *int64) (int64, error) {
	if fromBody != nil {
		if *fromBody <= 0 {
			return 0, eris.New("user_id must be positive")
		}
		return *fromBody, nil
	}
	raw := strings.TrimSpace(r.Header.Get(UserHeader))
	if raw == "" {
		raw = strings.TrimSpace(r.URL.Query().Get("user_id"))
	}
	if raw == "" {
		return s.cfg.DefaultUserID, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, eris.Errorf("invalid user id %q", raw)
	}
	return id, nil
}

// queryInt parses an optional integer query parameter.
// stageContext keeps request values but drops cancellation: a stage run
// finishes and persists its results even if the client goes away.
func stageContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, eris.Errorf("invalid %s %q", name, raw)
	}
	return n, nil
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// batchResponse is the envelope of every stage-running endpoint.
type batchResponse struct {
	Status  string         `json:"status"`
	RunID   string         `json:"run_id,omitempty"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
	Errors  []string       `json:"errors"`
}

// resultStatus maps a stage result to ok, warning (nothing to do) or error.
func resultStatus(res *model.StageResult) string {
	switch {
	case res.Success:
		return "ok"
	case len(res.Errors) == 0:
		return "warning"
	default:
		return "error"
	}
}

func writeResult(w http.ResponseWriter, res *model.StageResult) {
	writeJSON(w, http.StatusOK, batchResponse{
		Status:  resultStatus(res),
		RunID:   res.RunID,
		Message: res.Message,
		Data:    res.Data,
		Errors:  res.Errors,
	})
}
