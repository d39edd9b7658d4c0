// Package server is the reference chat server: a snapshot and send API
// plus the live channel endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/christopherjohns/groupchat/internal/message"
	"github.com/christopherjohns/groupchat/internal/ratelimit"
	"github.com/christopherjohns/groupchat/internal/user"
	"github.com/christopherjohns/groupchat/internal/ws"
)

const (
	// maxTextLength is the longest message text accepted, in runes.
	maxTextLength = 2000

	maxBodyBytes = 64 << 10

	shutdownTimeout = 5 * time.Second
)

// Server is the HTTP server for the group chat.
type Server struct {
	addr    string
	router  chi.Router
	store   message.Store
	hub     *ws.Hub
	limiter *ratelimit.Limiter
	window  time.Duration
	origins []string
	conns   []ws.ConnManagerOption
	now     func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithStore sets the message store. The default is an in-memory store
// holding 1000 messages.
func WithStore(s message.Store) Option {
	return func(srv *Server) {
		srv.store = s
	}
}

// WithRateLimit allows n sends per window per client IP. n <= 0 disables
// limiting.
func WithRateLimit(n int, window time.Duration) Option {
	return func(srv *Server) {
		if n <= 0 {
			srv.limiter = nil
			return
		}
		srv.limiter = ratelimit.New(n, window)
		srv.window = window
	}
}

// WithMaxConns caps concurrent live connections. Zero means unlimited.
func WithMaxConns(n int) Option {
	return func(srv *Server) {
		srv.conns = append(srv.conns, ws.WithMaxConns(n))
	}
}

// WithOrigins restricts the Origin hosts accepted on the live endpoint.
func WithOrigins(patterns ...string) Option {
	return func(srv *Server) {
		srv.origins = patterns
	}
}

// New creates a Server listening on addr.
func New(addr string, opts ...Option) *Server {
	s := &Server{
		addr:   addr,
		router: chi.NewRouter(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = message.NewMemoryStore(1000)
	}
	s.hub = ws.NewHub(s.conns...)
	s.routes()
	return s
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the live channel hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) routes() {
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ws", ws.NewHandler(s.hub, s.origins...).ServeHTTP)
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/messages", s.handleListMessages)
		if s.limiter != nil {
			r.With(s.limiter.Middleware).Post("/messages", s.handleSendMessage)
		} else {
			r.Post("/messages", s.handleSendMessage)
		}
		r.Get("/stats", s.handleStats)
	})
}

// Run serves until ctx is cancelled, then closes live connections and
// shuts the HTTP server down.
func (s *Server) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.addr).Msg("server: listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if s.limiter != nil {
		go s.sweepLimiter(ctx)
	}

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.hub.Shutdown()
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		return err
	}
	log.Info().Msg("server: shutdown complete")
	return nil
}

func (s *Server) sweepLimiter(ctx context.Context) {
	ticker := time.NewTicker(s.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.Sweep()
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.Count()
	if err != nil {
		log.Error().Err(err).Msg("server: count messages")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": count,
		"conns":    s.hub.ConnMgr().Stats(),
		"clients":  s.hub.ConnMgr().Clients(),
	})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.Recent(0)
	if err != nil {
		log.Error().Err(err).Msg("server: list messages")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, message.ListResponse{Messages: msgs, Count: len(msgs)})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var d message.Draft
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&d); err != nil {
		sendError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(d.Text) == "" {
		sendError(w, http.StatusBadRequest, "message text is required")
		return
	}
	if utf8.RuneCountInString(d.Text) > maxTextLength {
		sendError(w, http.StatusBadRequest, "message exceeds maximum length of 2000 characters")
		return
	}
	d.Username = user.Sanitize(d.Username)
	if d.Timestamp == "" {
		d.Timestamp = message.Timestamp(s.now())
	}

	m, err := s.store.Append(d)
	if err != nil {
		log.Error().Err(err).Msg("server: store message")
		sendError(w, http.StatusInternalServerError, "could not store message")
		return
	}
	delivered := s.hub.Broadcast(m)

	total, err := s.store.Count()
	if err != nil {
		log.Warn().Err(err).Msg("server: count messages")
		total = 0
	}
	log.Debug().Int64("id", m.ID).Str("username", m.Username).Int("delivered", delivered).Msg("server: message stored")
	writeJSON(w, http.StatusCreated, message.SendResponse{
		Success:       true,
		Message:       m,
		TotalMessages: total,
	})
}

func sendError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, message.SendResponse{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("server: write response")
	}
}
