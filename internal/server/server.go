// Package server provides the HTTP REST API of the freelance marketplace.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/freelance-market/internal/config"
	"github.com/jonathan/freelance-market/internal/lifecycle"
	"github.com/jonathan/freelance-market/internal/metrics"
	"github.com/jonathan/freelance-market/internal/server/middleware"
	"github.com/jonathan/freelance-market/internal/server/ratelimit"
	"github.com/jonathan/freelance-market/internal/store"
	"github.com/jonathan/freelance-market/internal/types"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	store       store.Store
	engine      *lifecycle.Engine
	rateLimiter *ratelimit.Limiter
	jwtService  *JWTService
	userService *UserService
	authHandler *AuthHandler
	validate    *validator.Validate
	log         *logrus.Logger
}

// Config holds server configuration and the collaborators the routes call.
type Config struct {
	Port      int
	Store     store.Store
	Engine    *lifecycle.Engine
	JWT       *config.JWTConfig
	Passwords *config.PasswordConfig
	// RateLimit is optional; nil uses the built-in endpoint defaults.
	RateLimit *ratelimit.Config
	Log       *logrus.Logger
}

// New creates a new server instance
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil || cfg.Engine == nil {
		return nil, fmt.Errorf("server requires a store and a lifecycle engine")
	}
	if cfg.JWT == nil || cfg.Passwords == nil {
		return nil, fmt.Errorf("server requires JWT and password configuration")
	}
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &Server{
		store:       cfg.Store,
		engine:      cfg.Engine,
		rateLimiter: ratelimit.NewLimiter(cfg.RateLimit),
		jwtService:  NewJWTService(cfg.JWT),
		userService: NewUserService(cfg.Store, cfg.Passwords),
		validate:    types.NewValidator(),
		log:         log,
	}
	s.authHandler = NewAuthHandler(s.userService, s.jwtService, s.validate, log)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	auth := middleware.AuthMiddleware(s.jwtService.AsTokenValidator())
	protected := func(h http.HandlerFunc) http.Handler { return auth(h) }

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	// Auth endpoints
	mux.HandleFunc("POST /auth/register", s.authHandler.Register)
	mux.HandleFunc("POST /auth/login", s.authHandler.Login)
	mux.Handle("GET /users/me", protected(s.handleMe))

	// Job endpoints
	mux.Handle("POST /jobs", protected(s.handleCreateJob))
	mux.Handle("GET /jobs", protected(s.handleListJobs))
	mux.Handle("GET /jobs/{id}", protected(s.handleGetJob))
	mux.Handle("PATCH /jobs/{id}", protected(s.handleUpdateJob))
	mux.Handle("DELETE /jobs/{id}", protected(s.handleDeleteJob))
	mux.Handle("POST /jobs/{id}/assign", protected(s.handleAssignFreelancer))
	mux.Handle("POST /jobs/{id}/complete", protected(s.handleCompleteJob))
	mux.Handle("POST /jobs/{id}/cancel", protected(s.handleCancelJob))
	mux.Handle("POST /jobs/{id}/close", protected(s.handleCloseJob))

	// Proposal endpoints
	mux.Handle("POST /jobs/{id}/proposals", protected(s.handleCreateProposal))
	mux.Handle("GET /jobs/{id}/proposals", protected(s.handleListJobProposals))
	mux.Handle("GET /jobs/{id}/proposals/check", protected(s.handleCheckProposal))
	mux.Handle("GET /proposals/mine", protected(s.handleListMyProposals))
	mux.Handle("GET /proposals/{id}", protected(s.handleGetProposal))
	mux.Handle("PATCH /proposals/{id}/status", protected(s.handleSetProposalStatus))
	mux.Handle("POST /proposals/{id}/withdraw", protected(s.handleWithdrawProposal))

	// Payment endpoints
	mux.Handle("POST /jobs/{id}/payments/order", protected(s.handleCreateOrder))
	mux.Handle("POST /jobs/{id}/payments", protected(s.handleFundEscrow))
	mux.Handle("GET /jobs/{id}/payments", protected(s.handleListJobPayments))
	mux.Handle("GET /payments/{id}", protected(s.handleGetPayment))
	mux.Handle("POST /payments/{id}/release", protected(s.handleReleasePayment))
	mux.Handle("POST /payments/{id}/refund", protected(s.handleRefundPayment))
	mux.Handle("POST /payments/{id}/dispute", protected(s.handleDisputePayment))

	// Notification endpoints
	mux.Handle("GET /notifications", protected(s.handleListNotifications))
	mux.Handle("GET /notifications/unread-count", protected(s.handleUnreadCount))
	mux.Handle("POST /notifications/read-all", protected(s.handleMarkAllRead))
	mux.Handle("POST /notifications/{id}/read", protected(s.handleMarkRead))
	mux.Handle("DELETE /notifications/{id}", protected(s.handleDeleteNotification))
	mux.Handle("DELETE /notifications", protected(s.handleClearNotifications))

	return metrics.InstrumentHandler(s.withLogging(s.withCORS(s.withRateLimit(mux))))
}

// Start serves requests until ctx is cancelled, then shuts down gracefully and
// drains in-flight notification deliveries.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.httpServer.Addr).Info("server starting")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}
	s.log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// Stop rate limiter cleanup goroutine
	s.rateLimiter.Stop()
	s.engine.Notifications.Wait()

	s.log.Info("server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)

		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, r, info)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &metrics.StatusRecorder{ResponseWriter: w, Status: http.StatusOK}
		next.ServeHTTP(rec, r)

		entry := s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.Status,
			"duration": time.Since(start).String(),
			"remote":   r.RemoteAddr,
		})
		if rec.Status >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request completed")
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.log.WithError(err).Warn("health check failed")
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Error("failed to encode JSON response")
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, code, message string) {
	s.jsonResponse(w, status, map[string]string{"error": code, "message": message})
}

// handleError maps err onto a status code and the standard error body.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).WithError(err).Error("request failed")
	}
	s.errorResponse(w, status, errorCode(err), errorMessage(err))
}

// decodeJSON reads the request body into dst and validates it.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &ErrValidation{Field: "(body)", Message: "invalid request body: " + err.Error()}
	}
	if err := s.validate.Struct(dst); err != nil {
		field, msg := types.FirstValidationError(err)
		return &ErrValidation{Field: field, Message: msg}
	}
	return nil
}

// extractClientID extracts the client identifier from the request.
// This uses the IP address from RemoteAddr.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, r *http.Request, info ratelimit.Info) {
	response := map[string]interface{}{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		seconds := int(info.RetryAfter.Seconds()) + 1
		response["retry_after"] = seconds
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	s.log.WithFields(logrus.Fields{
		"client": s.extractClientID(r),
		"path":   r.URL.Path,
		"limit":  info.Limit,
	}).Warn("rate limit exceeded")

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
