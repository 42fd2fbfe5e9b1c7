package web

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/vadiminshakov/simpleswap/internal/api"
	"github.com/vadiminshakov/simpleswap/internal/domain"
	"github.com/vadiminshakov/simpleswap/internal/metrics"
	"github.com/vadiminshakov/simpleswap/internal/services/auth"
	"github.com/vadiminshakov/simpleswap/internal/services/ledger"
	"github.com/vadiminshakov/simpleswap/internal/storage/swapjournal"
)

const (
	defaultStreamPollInterval = 2 * time.Second
	maxRequestBody            = 64 << 10
)

type swapService interface {
	ID() domain.Identity
	Assets(ctx context.Context) (domain.AssetPair, error)
	Reserves(ctx context.Context) (domain.ReserveSnapshot, error)
	Swap(ctx context.Context, req domain.SwapRequest) (domain.SwapRecord, error)
	SwapRecord(id string) (domain.SwapRecord, error)
}

type swapRecordReader interface {
	RecordsAfter(index uint64) []domain.SwapRecordEntry
}

// Server exposes the swap contract over HTTP.
type Server struct {
	Addr    string
	Network string
	Swaps   swapService
	Ledger  ledger.Ledger
	Journal swapRecordReader
	// Faucet mints through POST /v1/fund; nil disables the endpoint.
	Faucet             ledger.Minter
	Metrics            *metrics.Metrics
	StreamPollInterval time.Duration

	l *zap.Logger
}

// NewServer creates a server; Faucet and Metrics may be set on the returned value.
func NewServer(addr, network string, swaps swapService, led ledger.Ledger, journal swapRecordReader, l *zap.Logger) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{
		Addr:               addr,
		Network:            network,
		Swaps:              swaps,
		Ledger:             led,
		Journal:            journal,
		StreamPollInterval: defaultStreamPollInterval,
		l:                  l,
	}
}

// Handler returns the router serving every endpoint.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.Metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/assets", s.handleAssets)
		r.Get("/reserves", s.handleReserves)
		r.Get("/balances/{asset}/{holder}", s.handleBalance)
		r.Post("/swap", s.handleSwap)
		r.Post("/fund", s.handleFund)
		r.Get("/swaps/stream", s.handleSwapStream)
		r.Get("/swaps/{id}", s.handleSwapRecord)
	})

	return r
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.l.Info("http server listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithAutoTLS runs an HTTPS server with automatic TLS certificates via ACME.
// It also starts an HTTP server on port 80 to handle ACME HTTP-01 challenges.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(domains) == 0 {
		return fmt.Errorf("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpsSrv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Warn("http (acme) server shutdown error", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Warn("https server shutdown error", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Error("http (acme) server error", zap.Error(err))
		}
	}()

	s.l.Info("https server listening", zap.String("addr", s.Addr), zap.Strings("domains", domains))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.Metrics.ObserveHTTP(route, strconv.Itoa(status))
		s.l.Debug("http request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("took", time.Since(started)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.Swaps.Assets(r.Context())
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, api.AssetsResponse{
		Contract: s.Swaps.ID(),
		Network:  s.Network,
		AssetA:   assets.A,
		AssetB:   assets.B,
	})
}

func (s *Server) handleReserves(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Swaps.Reserves(r.Context())
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	asset := domain.AssetID(chi.URLParam(r, "asset"))
	holder := domain.Identity(chi.URLParam(r, "holder"))

	balance, err := s.Ledger.BalanceOf(r.Context(), asset, holder)
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, api.BalanceResponse{Asset: asset, Holder: holder, Balance: balance})
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	var body api.SwapRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Account.IsZero() {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "account is required", Code: "bad_request"})
		return
	}

	ctx := auth.WithCredential(r.Context(), body.Credential)
	rec, err := s.Swaps.Swap(ctx, body.Domain())
	if err != nil {
		var journaled *domain.SwapRecord
		if rec.ID != "" {
			journaled = &rec
		}
		s.writeError(w, err, journaled)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// decodeBody reads a size-limited JSON body into dst and writes the error response on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, api.ErrorResponse{
			Error: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			Code:  "too_large",
		})
		return false
	}
	writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: err.Error(), Code: "bad_request"})
	return false
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	if s.Faucet == nil {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "faucet is disabled", Code: "faucet_disabled"})
		return
	}

	var body api.FundRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Asset == "" || body.Holder.IsZero() {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "asset and holder are required", Code: "bad_request"})
		return
	}

	if err := s.Faucet.Mint(r.Context(), body.Asset, body.Holder, body.Amount); err != nil {
		s.writeError(w, err, nil)
		return
	}

	balance, err := s.Ledger.BalanceOf(r.Context(), body.Asset, body.Holder)
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	s.l.Info("account funded",
		zap.String("asset", body.Asset.String()),
		zap.String("holder", body.Holder.String()),
		zap.String("amount", body.Amount.String()))
	writeJSON(w, http.StatusOK, api.BalanceResponse{Asset: body.Asset, Holder: body.Holder, Balance: balance})
}

func (s *Server) handleSwapRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Swaps.SwapRecord(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleSwapStream(w http.ResponseWriter, r *http.Request) {
	if s.Journal == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "swap journal not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// send a comment heartbeat every 30s so proxies keep connection
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	interval := s.StreamPollInterval
	if interval <= 0 {
		interval = defaultStreamPollInterval
	}
	pollTicker := time.NewTicker(interval)
	defer pollTicker.Stop()

	lastIndex := parseLastEventID(r.Header.Get("Last-Event-ID"), r.URL.Query().Get("after"))
	sendRecords := func() error {
		for _, entry := range s.Journal.RecordsAfter(lastIndex) {
			payload, err := json.Marshal(entry.Record)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "id: %d\n", entry.Index)
			fmt.Fprintf(w, "event: swap\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			lastIndex = entry.Index
		}
		flusher.Flush()
		return nil
	}

	if err := sendRecords(); err != nil {
		s.l.Error("swap stream initial load", zap.Error(err))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendRecords(); err != nil {
				s.l.Warn("swap stream poll", zap.Error(err))
			}
		}
	}
}

// writeError maps domain errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, err error, rec *domain.SwapRecord) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.l.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, api.ErrorResponse{Error: err.Error(), Code: code, Swap: rec})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrConfigurationMissing):
		return http.StatusServiceUnavailable, "not_constructed"
	case errors.Is(err, domain.ErrAuthorizationDenied):
		return http.StatusForbidden, "authorization_denied"
	case errors.Is(err, domain.ErrInsufficientReserve):
		return http.StatusConflict, "insufficient_reserve"
	case errors.Is(err, domain.ErrLedgerTransferFailed):
		return http.StatusUnprocessableEntity, "transfer_failed"
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, ledger.ErrNegativeAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, swapjournal.ErrUnknownSwap):
		return http.StatusNotFound, "unknown_swap"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// parseLastEventID extracts an SSE event ID from either the Last-Event-ID header or a query parameter.
func parseLastEventID(headerVal, queryVal string) uint64 {
	idStr := strings.TrimSpace(headerVal)
	if idStr == "" {
		idStr = strings.TrimSpace(queryVal)
	}
	if idStr == "" {
		return 0
	}

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
