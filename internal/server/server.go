// Package server exposes a limiter over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/SmitUplenchwar2687/throttle/internal/clock"
	"github.com/SmitUplenchwar2687/throttle/internal/limiter"
	"github.com/SmitUplenchwar2687/throttle/internal/recorder"
	"github.com/SmitUplenchwar2687/throttle/internal/stats"
)

// Options configures a Server. Limiter is required.
type Options struct {
	Addr     string
	Limiter  limiter.Limiter
	Clock    clock.Clock
	Stats    stats.Sink         // optional, served at /stats
	Recorder *recorder.Recorder // optional, captures rate limited traffic
	Hub      *Hub               // optional, created if nil
	// TrustForwardedFor keys clients on the first X-Forwarded-For hop.
	// Enable only behind a proxy that sets the header.
	TrustForwardedFor bool
	Logger            *log.Entry
}

// Server is the throttle HTTP server.
type Server struct {
	httpServer *http.Server
	opts       Options
	limiter    limiter.Limiter
	clock      clock.Clock
	hub        *Hub
	logger     *log.Entry
	keyFunc    KeyFunc
}

// New creates a server. It does not start listening.
func New(opts Options) (*Server, error) {
	if opts.Limiter == nil {
		return nil, errors.New("server: limiter is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewRealClock()
	}
	if opts.Hub == nil {
		opts.Hub = NewHub()
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "server")
	}

	s := &Server{
		opts:    opts,
		limiter: opts.Limiter,
		clock:   opts.Clock,
		hub:     opts.Hub,
		logger:  opts.Logger,
		keyFunc: ClientAddr(opts.TrustForwardedFor),
	}
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the routed handler with request id and access logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /api/data", RateLimit(s.limiter, s.keyFunc, s.clock, s.observe)(http.HandlerFunc(s.handleData)))
	mux.HandleFunc("GET /api/check/{$}", s.handleCheckMissingKey)
	mux.HandleFunc("GET /api/check/{key}", s.handleCheckKey)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /ws", s.hub.HandleWebSocket)

	return RequestID(AccessLog(s.logger, mux))
}

// Hub returns the server's websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "throttle",
		"status":  "running",
		"time":    s.clock.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleData(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Here is your data!"})
}

func (s *Server) handleCheckMissingKey(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "key is required"})
}

// handleCheckKey reports the decision for an explicit key. Denials answer
// 429 with the decision as the body.
func (s *Server) handleCheckKey(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	d := s.limiter.Allow(r.Context(), key)
	s.observe(r, key, d)

	setRateLimitHeaders(w.Header(), d, s.clock.Now())
	status := http.StatusOK
	if !d.Allowed {
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, d)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.opts.Stats == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "stats are disabled"})
		return
	}
	snap, err := s.opts.Stats.Snapshot(r.Context())
	if err != nil {
		s.logger.WithError(err).Warn("stats snapshot failed")
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "stats unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// observe records and broadcasts one decision.
func (s *Server) observe(r *http.Request, key string, d limiter.Decision) {
	rec := recorder.TrafficRecord{
		ID:        RequestIDFrom(r.Context()),
		Timestamp: s.clock.Now(),
		Key:       key,
		Endpoint:  r.Method + " " + r.URL.Path,
	}
	if ua := r.UserAgent(); ua != "" {
		rec.Metadata = map[string]string{"user_agent": ua}
	}
	if s.opts.Recorder != nil {
		stored, err := s.opts.Recorder.Record(rec)
		if err != nil {
			s.logger.WithError(err).Warn("record traffic failed")
		}
		rec = stored
	}
	s.hub.Broadcast(recorder.DecisionEvent{Record: rec, Decision: d, Time: rec.Timestamp})
}

// ListenAndServe listens on the configured address and blocks until
// Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.WithField("addr", ln.Addr().String()).Info("throttle server listening")
	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, waits for in-flight ones and closes
// websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.hub.Close()
	return err
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Debug("server: write response failed")
	}
}
