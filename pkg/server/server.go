// Package server exposes template composition and artifact review over HTTP.
// Handlers are stateless; the only shared state is the read-mostly template
// and checklist stores, so concurrent requests need no coordination beyond
// the stores' own locking.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/jingkaihe/promptpipe/pkg/checklist"
	"github.com/jingkaihe/promptpipe/pkg/compose"
	"github.com/jingkaihe/promptpipe/pkg/logger"
	"github.com/jingkaihe/promptpipe/pkg/review"
	"github.com/jingkaihe/promptpipe/pkg/templates"
)

// Config holds the configuration for the HTTP server
type Config struct {
	Host string
	Port int
}

// Validate validates the server configuration
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("host cannot be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return errors.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	return nil
}

// Server serves the compose and review API
type Server struct {
	router     *mux.Router
	templates  *templates.Store
	checklists *checklist.Store
	config     *Config
	server     *http.Server
}

// NewServer creates an API server backed by the given stores
func NewServer(config *Config, templateStore *templates.Store, checklistStore *checklist.Store) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid server configuration")
	}

	s := &Server{
		router:     mux.NewRouter(),
		templates:  templateStore,
		checklists: checklistStore,
		config:     config,
	}
	s.setupRoutes()
	return s, nil
}

// setupRoutes configures all the HTTP routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/templates", s.handleListTemplates).Methods("GET")
	api.HandleFunc("/templates/{id:.+}", s.handleGetTemplate).Methods("GET")
	api.HandleFunc("/checklists", s.handleListChecklists).Methods("GET")
	api.HandleFunc("/compose", s.handleCompose).Methods("POST")
	api.HandleFunc("/review", s.handleReview).Methods("POST")

	s.router.HandleFunc("/healthz", s.handleHealthz).Methods("GET")

	s.router.Use(s.loggingMiddleware)
}

// Handler returns the server's HTTP handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		logger.G(r.Context()).WithFields(map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rw.statusCode,
			"duration":    time.Since(start),
			"remote_addr": r.RemoteAddr,
		}).Info("HTTP request")
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSONResponse(w, map[string]string{"status": "ok"})
}

type templateSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Path        string `json:"path"`
}

// handleListTemplates handles GET /api/templates
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	all, err := s.templates.List(r.Context())
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to list templates", err)
		return
	}

	summaries := make([]templateSummary, 0, len(all))
	for _, tmpl := range all {
		summaries = append(summaries, templateSummary{
			ID:          tmpl.ID,
			Name:        tmpl.Metadata.Name,
			Description: tmpl.Metadata.Description,
			Path:        tmpl.Path,
		})
	}

	s.writeJSONResponse(w, map[string]interface{}{"templates": summaries})
}

// handleGetTemplate handles GET /api/templates/{id}
func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	tmpl, err := s.templates.Load(r.Context(), id)
	if err != nil {
		if errors.Is(err, templates.ErrTemplateNotFound) {
			s.writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("template %q not found", id), nil)
			return
		}
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to load template", err)
		return
	}

	points, err := compose.InsertionPoints(tmpl.Raw)
	if err != nil {
		points = nil
	}

	s.writeJSONResponse(w, map[string]interface{}{
		"id":              tmpl.ID,
		"name":            tmpl.Metadata.Name,
		"description":     tmpl.Metadata.Description,
		"raw":             tmpl.Raw,
		"includes":        tmpl.Includes(),
		"insertionPoints": points,
	})
}

// handleListChecklists handles GET /api/checklists
func (s *Server) handleListChecklists(w http.ResponseWriter, r *http.Request) {
	all, err := s.checklists.List(r.Context())
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to list checklists", err)
		return
	}

	type checklistSummary struct {
		ID          string `json:"id"`
		Name        string `json:"name,omitempty"`
		Description string `json:"description,omitempty"`
		Items       int    `json:"items"`
	}

	summaries := make([]checklistSummary, 0, len(all))
	for _, cl := range all {
		summaries = append(summaries, checklistSummary{
			ID:          cl.ID,
			Name:        cl.Name,
			Description: cl.Description,
			Items:       cl.Len(),
		})
	}

	s.writeJSONResponse(w, map[string]interface{}{"checklists": summaries})
}

type composeRequest struct {
	Template string            `json:"template"`
	Context  map[string]string `json:"context"`
}

type composeResponse struct {
	Template string   `json:"template"`
	Output   string   `json:"output"`
	Warnings []string `json:"warnings,omitempty"`
}

// handleCompose handles POST /api/compose
func (s *Server) handleCompose(w http.ResponseWriter, r *http.Request) {
	var req composeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Template == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "template is required", nil)
		return
	}

	resolved, err := s.templates.Resolve(r.Context(), req.Template)
	if err != nil {
		switch {
		case errors.Is(err, templates.ErrTemplateNotFound):
			s.writeErrorResponse(w, http.StatusNotFound, err.Error(), nil)
		case errors.Is(err, templates.ErrCyclicReference):
			s.writeErrorResponse(w, http.StatusUnprocessableEntity, err.Error(), nil)
		default:
			s.writeErrorResponse(w, http.StatusInternalServerError, "failed to resolve template", err)
		}
		return
	}

	// JSON objects are unordered; sort keys so warning order is stable
	values := compose.NewContext()
	keys := make([]string, 0, len(req.Context))
	for k := range req.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		values.Set(k, req.Context[k])
	}

	result, err := compose.Compose(r.Context(), resolved, values)
	if err != nil {
		if errors.Is(err, compose.ErrUnboundInsertionPoint) {
			s.writeErrorResponse(w, http.StatusUnprocessableEntity, err.Error(), nil)
			return
		}
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to compose template", err)
		return
	}

	resp := composeResponse{Template: req.Template, Output: result.Output}
	for _, warning := range result.Warnings {
		resp.Warnings = append(resp.Warnings, warning.String())
	}
	s.writeJSONResponse(w, resp)
}

type reviewRequest struct {
	Checklist string `json:"checklist"`
	Artifact  string `json:"artifact"`
	Name      string `json:"name"`
}

// handleReview handles POST /api/review
func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Checklist == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "checklist is required", nil)
		return
	}

	cl, err := s.checklists.Load(r.Context(), req.Checklist)
	if err != nil {
		if errors.Is(err, checklist.ErrChecklistNotFound) {
			s.writeErrorResponse(w, http.StatusNotFound, err.Error(), nil)
			return
		}
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to load checklist", err)
		return
	}

	report := review.NewReviewer().Review(r.Context(), cl, review.Artifact{
		Name:    req.Name,
		Content: req.Artifact,
	})
	s.writeJSONResponse(w, report)
}

// writeJSONResponse writes a JSON response
func (s *Server) writeJSONResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.G(context.TODO()).WithError(err).Error("failed to encode JSON response")
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// writeErrorResponse writes an error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string, err error) {
	if err != nil {
		logger.G(context.TODO()).WithError(err).Error(message)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := map[string]interface{}{
		"error":  message,
		"status": statusCode,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.G(context.TODO()).WithError(err).Error("failed to encode error response")
	}
}

// Start starts the server and blocks until the context is cancelled
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:    address,
		Handler: s.router,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.G(ctx).WithError(err).Error("API server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// Stop stops the server immediately
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}
