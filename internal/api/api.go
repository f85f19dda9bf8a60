// Package api provides the HTTP server for DigiLync: the WhatsApp webhook,
// the admin REST endpoints and the public metrics feed.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/DigiLync/digilync/internal/messaging"
	"github.com/DigiLync/digilync/internal/models"
	"github.com/DigiLync/digilync/internal/store"
	"github.com/DigiLync/digilync/internal/twiliowhatsapp"
	"github.com/rs/cors"
)

// Server defaults.
const (
	DefaultServerAddress     = ":8080"
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultShutdownTimeout   = 15 * time.Second
	// maxRequestBodyBytes caps JSON and form bodies.
	maxRequestBodyBytes = 1 << 20
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr      string // address to bind the HTTP server
	PublicURL string // externally visible base URL, used for webhook signatures
	AuthToken string // Twilio auth token; enables signature validation when set
	// CORSOrigins are the browser origins allowed to call the API. Empty or
	// "*" allows any origin.
	CORSOrigins []string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the HTTP server address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithPublicURL sets the externally visible base URL, e.g. "https://api.digilync.cm".
func WithPublicURL(url string) Option {
	return func(o *Opts) { o.PublicURL = strings.TrimRight(url, "/") }
}

// WithSignatureValidation rejects webhook requests whose X-Twilio-Signature
// does not verify against authToken.
func WithSignatureValidation(authToken string) Option {
	return func(o *Opts) { o.AuthToken = authToken }
}

// WithCORSOrigins restricts cross-origin browser access to origins.
func WithCORSOrigins(origins ...string) Option {
	return func(o *Opts) { o.CORSOrigins = origins }
}

// newCORS builds the CORS policy for the admin dashboard.
func newCORS(origins []string) *cors.Cors {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{RequestIDHeader},
	})
}

// Server serves the DigiLync HTTP API.
type Server struct {
	addr        string
	publicURL   string
	st          store.Store
	msgService  messaging.Service // nil when no WhatsApp transport is configured
	respHandler *messaging.ResponseHandler
	validator   *twiliowhatsapp.SignatureValidator
	metrics     *MetricsSnapshot
	cors        *cors.Cors
}

// NewServer wires the API server. msgService may be nil, in which case the
// WhatsApp webhook answers 503.
func NewServer(st store.Store, msgService messaging.Service, replier messaging.Replier, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultServerAddress}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{
		addr:       cfg.Addr,
		publicURL:  cfg.PublicURL,
		st:         st,
		msgService: msgService,
		metrics:    NewMetricsSnapshot(st),
		cors:       newCORS(cfg.CORSOrigins),
	}
	if msgService != nil {
		s.respHandler = messaging.NewResponseHandler(replier, msgService,
			messaging.WithDedup(st), messaging.WithReceiptStore(st))
	}
	if cfg.AuthToken != "" {
		s.validator = twiliowhatsapp.NewSignatureValidator(cfg.AuthToken)
	}
	slog.Debug("Server created", "addr", s.addr, "whatsapp_configured", msgService != nil, "signature_validation", s.validator != nil)
	return s
}

// Metrics returns the public metrics snapshot served by the API.
func (s *Server) Metrics() *MetricsSnapshot {
	return s.metrics
}

// ResponseHandler returns the inbound message handler, or nil when WhatsApp
// is not configured.
func (s *Server) ResponseHandler() *messaging.ResponseHandler {
	return s.respHandler
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.healthHandler)

	mux.HandleFunc("GET /api/farmers", s.listFarmersHandler)
	mux.HandleFunc("POST /api/farmers", s.createFarmerHandler)
	mux.HandleFunc("GET /api/farmers/{id}", s.getFarmerHandler)
	mux.HandleFunc("PUT /api/farmers/{id}", s.updateFarmerHandler)
	mux.HandleFunc("DELETE /api/farmers/{id}", s.deleteFarmerHandler)

	mux.HandleFunc("GET /api/providers", s.listProvidersHandler)
	mux.HandleFunc("POST /api/providers", s.createProviderHandler)
	mux.HandleFunc("GET /api/providers/{id}", s.getProviderHandler)
	mux.HandleFunc("PUT /api/providers/{id}", s.updateProviderHandler)
	mux.HandleFunc("DELETE /api/providers/{id}", s.deleteProviderHandler)

	mux.HandleFunc("GET /api/bookings", s.listBookingsHandler)
	mux.HandleFunc("POST /api/bookings", s.createBookingHandler)
	mux.HandleFunc("GET /api/bookings/{id}", s.getBookingHandler)
	mux.HandleFunc("PUT /api/bookings/{id}", s.updateBookingHandler)
	mux.HandleFunc("PATCH /api/bookings/{id}/status", s.updateBookingStatusHandler)
	mux.HandleFunc("DELETE /api/bookings/{id}", s.deleteBookingHandler)

	mux.HandleFunc("GET /api/admin-ratings", s.listAdminRatingsHandler)
	mux.HandleFunc("POST /api/admin-ratings", s.upsertAdminRatingHandler)

	mux.HandleFunc("GET /api/public/metrics", s.publicMetricsHandler)

	mux.HandleFunc("POST /api/whatsapp/webhook", s.whatsappWebhookHandler)
	mux.HandleFunc("POST /api/whatsapp/status", s.whatsappStatusHandler)

	return withRequestID(s.cors.Handler(mux))
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("API server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("DigiLync API", map[string]bool{
		"whatsapp": s.msgService != nil,
	}))
}
