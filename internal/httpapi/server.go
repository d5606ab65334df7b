// Package httpapi exposes the delivery service over HTTP: the webhook
// endpoint, token redemption, link regeneration, and the admin surfaces
// (dashboard, events feed, metrics, health).
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mattjoyce/bindery/internal/audit"
	"github.com/mattjoyce/bindery/internal/config"
	"github.com/mattjoyce/bindery/internal/fulfill"
	"github.com/mattjoyce/bindery/internal/log"
	"github.com/mattjoyce/bindery/internal/metrics"
	"github.com/mattjoyce/bindery/internal/store"
)

// maxWebhookBody caps the raw webhook payload size.
const maxWebhookBody = 1 << 20

// Server is the delivery HTTP server.
type Server struct {
	cfg    *config.Config
	orch   *fulfill.Orchestrator
	audit  *audit.Log
	logger *slog.Logger
	server *http.Server
}

// New creates a server instance. Call Start to listen.
func New(cfg *config.Config, orch *fulfill.Orchestrator, auditLog *audit.Log) *Server {
	return &Server{
		cfg:    cfg,
		orch:   orch,
		audit:  auditLog,
		logger: log.WithComponent("http"),
	}
}

// Start runs the HTTP server until ctx is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.cfg.Service.Listen,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("http server starting", "listen", s.cfg.Service.Listen, "base_url", s.cfg.Service.BaseURL)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	}
}

// Routes configures the router. Exported for handler tests.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/", s.requireAccessKey(s.handleDashboard))
	r.Get("/admin/events", s.requireAccessKey(s.handleEvents))
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/webhooks/orders_paid", s.handleOrdersPaid)
	r.Get("/download/{token}", s.handleDownload)
	r.Get("/proxy/regenerate", s.handleRegenerate)

	return r
}

// loggingMiddleware logs requests and feeds the duration histogram. The
// histogram is labelled with the route pattern, not the raw path, so token
// ids do not explode the label space.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.RequestDuration.WithLabelValues(pattern).Observe(elapsed.Seconds())

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", elapsed.Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondText(w, http.StatusOK, "ok")
}

// handleOrdersPaid verifies and fulfills one paid-order notification. The
// body is read raw; signature verification must see the exact bytes from
// the wire.
func (s *Server) handleOrdersPaid(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		respondText(w, http.StatusInternalServerError, "failed to read request body")
		return
	}
	if len(body) > maxWebhookBody {
		respondText(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	res, err := s.orch.HandlePaidOrder(r.Context(), body, r.Header.Get("X-Shopify-Hmac-Sha256"))
	switch {
	case errors.Is(err, fulfill.ErrInvalidSignature):
		respondText(w, http.StatusUnauthorized, "Invalid webhook signature")
	case err != nil:
		s.logger.Error("webhook processing failed", "error", err)
		respondText(w, http.StatusInternalServerError, "internal error")
	default:
		respondText(w, http.StatusOK, res.Reason)
	}
}

// handleDownload redeems a token and streams the file. Denial responses
// deliberately stay terse; the audit log carries the detail.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	tokenID := chi.URLParam(r, "token")

	dl, err := s.orch.Redeem(r.Context(), tokenID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondText(w, http.StatusNotFound, "Link not found.")
	case errors.Is(err, store.ErrExpired):
		respondText(w, http.StatusGone, "Link expired.")
	case errors.Is(err, store.ErrAlreadyUsed):
		respondText(w, http.StatusGone, "Link already used.")
	case errors.Is(err, fulfill.ErrFileMissing):
		respondText(w, http.StatusNotFound, "File missing.")
	case err != nil:
		s.logger.Error("download failed", "error", err)
		respondText(w, http.StatusInternalServerError, "internal error")
	default:
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.FileName))
		http.ServeFile(w, r, dl.Path)
	}
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	err := s.orch.Regenerate(r.Context(), r.URL.Query())
	switch {
	case errors.Is(err, fulfill.ErrInvalidSignature):
		respondText(w, http.StatusUnauthorized, "Invalid proxy signature.")
	case errors.Is(err, fulfill.ErrBadRequest):
		respondText(w, http.StatusBadRequest, "Missing order_id or customer id.")
	case errors.Is(err, fulfill.ErrForbidden):
		respondText(w, http.StatusForbidden, "Order not found for this customer.")
	case errors.Is(err, store.ErrNotFound):
		respondText(w, http.StatusNotFound, "No ebook records found.")
	case err != nil:
		s.logger.Error("regenerate failed", "error", err)
		respondText(w, http.StatusInternalServerError, "internal error")
	default:
		respondText(w, http.StatusOK, "A new download link has been emailed to you.")
	}
}

// eventJSON is the wire shape of one audit event on the admin feed.
type eventJSON struct {
	ID        int64  `json:"id"`
	Kind      string `json:"kind"`
	OrderID   *int64 `json:"order_id"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// handleEvents serves recent audit events, newest first. Consumed by the
// watch TUI.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.audit.Recent(r.Context(), 100)
	if err != nil {
		s.logger.Error("events feed failed", "error", err)
		respondText(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]eventJSON, len(events))
	for i, ev := range events {
		out[i] = eventJSON{
			ID:        ev.ID,
			Kind:      string(ev.Kind),
			OrderID:   ev.OrderID,
			Message:   ev.Message,
			CreatedAt: ev.CreatedAt.Format(time.RFC3339Nano),
		}
	}
	respondJSON(w, http.StatusOK, out)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, body)
}
