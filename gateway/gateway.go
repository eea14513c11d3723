// Package gateway is the inbound HTTP surface: it captures federation
// requests into durable queue jobs and answers 202 immediately. All
// verification and processing happens in the inbox workers; the gateway
// only enforces transport-level limits.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/versia-works/federation/config"
	"github.com/versia-works/federation/errors"
	"github.com/versia-works/federation/queue"
)

const defaultBodyLimit = 1 << 20 // 1 MiB

// Enqueuer accepts captured inbox jobs. *queue.Producer satisfies it.
type Enqueuer interface {
	EnqueueInbox(ctx context.Context, job queue.InboxJob) error
}

// HealthFunc reports component health for /healthz.
type HealthFunc func() bool

// Gateway terminates inbound federation HTTP.
type Gateway struct {
	enqueuer Enqueuer
	cfg      config.HTTPConfig
	logger   *slog.Logger
	limiter  *ipLimiter
	healthy  HealthFunc

	server *http.Server
}

// New builds a gateway. healthy may be nil (always healthy).
func New(enqueuer Enqueuer, cfg config.HTTPConfig, logger *slog.Logger, healthy HealthFunc) (*Gateway, error) {
	if enqueuer == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "gateway", "New", "enqueuer required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = defaultBodyLimit
	}
	g := &Gateway{
		enqueuer: enqueuer,
		cfg:      cfg,
		logger:   logger.With("component", "gateway"),
		healthy:  healthy,
	}
	if cfg.RateLimit > 0 {
		g.limiter = newIPLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	return g, nil
}

// Register mounts the gateway routes. metricsHandler may be nil.
func (g *Gateway) Register(mux *http.ServeMux, metricsHandler http.Handler) {
	mux.HandleFunc("POST /inbox", g.handleInbox)
	mux.HandleFunc("POST /users/{id}/inbox", g.handleInbox)
	mux.HandleFunc("GET /healthz", g.handleHealth)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
}

// Start runs the HTTP server until ctx is cancelled, then drains it.
func (g *Gateway) Start(ctx context.Context, mux *http.ServeMux) error {
	g.server = &http.Server{
		Addr:              g.cfg.Bind,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("gateway listening", "bind", g.cfg.Bind)
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return errors.WrapFatal(err, "gateway", "Start", "listen failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := g.server.Shutdown(shutdownCtx); err != nil {
		return errors.WrapTransient(err, "gateway", "Start", "shutdown failed")
	}
	g.logger.Info("gateway stopped")
	return nil
}

func (g *Gateway) handleInbox(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	ip := g.clientIP(r)
	if g.limiter != nil && !g.limiter.allow(ip) {
		g.writeError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests")
		return
	}

	// Read one byte past the limit to tell "at limit" from "over it".
	body, err := io.ReadAll(io.LimitReader(r.Body, g.cfg.BodyLimit+1))
	if err != nil {
		g.writeError(w, http.StatusBadRequest, "body_read_failed", "Failed to read request body")
		return
	}
	if int64(len(body)) > g.cfg.BodyLimit {
		g.writeError(w, http.StatusRequestEntityTooLarge, "body_too_large",
			fmt.Sprintf("Request body exceeds %d bytes", g.cfg.BodyLimit))
		return
	}

	job := queue.NewInboxJob(r.Method, r.URL.Path, ip, r.Header, body)
	if err := g.enqueuer.EnqueueInbox(r.Context(), job); err != nil {
		g.logger.Error("inbox enqueue failed", "error", err, "source_ip", ip)
		g.writeError(w, http.StatusServiceUnavailable, "queue_unavailable", "Try again later")
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "accepted", "id": job.ID})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if g.healthy != nil && !g.healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "degraded"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (g *Gateway) writeError(w http.ResponseWriter, status int, errText, description string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":       errText,
		"description": description,
	})
}

// clientIP is the socket peer. With TrustForwardedFor it is the
// rightmost X-Forwarded-For entry instead: the hop the trusting proxy
// appended, which a remote client cannot choose.
func (g *Gateway) clientIP(r *http.Request) string {
	if g.cfg.TrustForwardedFor {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			parts := strings.Split(fwd, ",")
			if last := strings.TrimSpace(parts[len(parts)-1]); last != "" {
				return last
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
