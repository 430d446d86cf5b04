// Package httpapi exposes the engine over HTTP: POST /v1/query plus
// health and readiness probes.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/rumbo-ai/rumbo/internal/config"
	"github.com/rumbo-ai/rumbo/internal/i18n"
	"github.com/rumbo-ai/rumbo/internal/pipeline"
	"github.com/rumbo-ai/rumbo/internal/validate"
)

// QueryHandler adapts the orchestrator to HTTP.
type QueryHandler struct {
	orch       *pipeline.Orchestrator
	translator *i18n.Translator
	defaultLng string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

func NewQueryHandler(orch *pipeline.Orchestrator, translator *i18n.Translator, cfg *config.Config, logger *slog.Logger) *QueryHandler {
	var limiter *rate.Limiter
	if rpm := cfg.Server.RateLimitRPM; rpm > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm)
	}
	return &QueryHandler{
		orch:       orch,
		translator: translator,
		defaultLng: cfg.Languages.Default,
		limiter:    limiter,
		logger:     logger,
	}
}

// RegisterRoutes registers the public endpoints on the given mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/query", h.handleQuery)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

func (h *QueryHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow() {
		h.writeError(w, h.defaultLng, pipeline.KindOverloaded)
		return
	}

	var req validate.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "BAD_REQUEST",
			"message": "invalid JSON: " + err.Error(),
		})
		return
	}

	lang := req.Language
	if lang == "" {
		lang = h.defaultLng
	}

	resp, perr := h.orch.Handle(r.Context(), req)
	if perr != nil {
		h.logger.Warn("query rejected", "kind", perr.Kind, "error", perr.Err)
		h.writeError(w, lang, perr.Kind)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *QueryHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeError renders the localized error envelope for a taxonomy kind.
func (h *QueryHandler) writeError(w http.ResponseWriter, lang string, kind pipeline.Kind) {
	writeJSON(w, statusFor(kind), map[string]string{
		"error":   string(kind),
		"message": h.translator.Translate(kind.MessageKey(), lang),
	})
}

// statusFor maps taxonomy kinds to HTTP status codes.
func statusFor(kind pipeline.Kind) int {
	switch kind {
	case pipeline.KindInvalidSession, pipeline.KindInvalidQuery, pipeline.KindUnsupportedLanguage, pipeline.KindInvalidLocation:
		return http.StatusBadRequest
	case pipeline.KindTimeout:
		return http.StatusGatewayTimeout
	case pipeline.KindCancelled:
		// client went away; 499 in nginx parlance
		return 499
	case pipeline.KindOverloaded:
		return http.StatusTooManyRequests
	case pipeline.KindMemoryUnavailable, pipeline.KindModelError, pipeline.KindPersistenceFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Server wraps http.Server with sane timeouts and graceful shutdown.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

func NewServer(cfg config.ServerConfig, handler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
