// Package relay is the realtime fan-out server. Clients hold a websocket
// on /ws; internal services push JSON payloads to a user via /publish.
package relay

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/powerboard/tui/internal/auth"
	"github.com/powerboard/tui/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

// CloseUnauthorized is sent when the channel credential is missing or
// unusable.
const CloseUnauthorized = 4401

const maxPublishBody = 64 << 10

// Config configures a Server.
type Config struct {
	// InternalSecret must match the X-Internal-Secret header on /publish.
	InternalSecret string
	// JWTSecret, when set, verifies HS256 channel tokens. Without it only
	// the subject claim is read.
	JWTSecret      string
	AllowedOrigins []string
	MaxConnections int
}

// Server serves /ws, /publish, /metrics and /healthz.
type Server struct {
	cfg            Config
	hub            *Hub
	metrics        *metrics.Relay
	gatherer       prometheus.Gatherer
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	upgrader       websocket.Upgrader
}

// NewServer creates a server. reg may be nil.
func NewServer(cfg Config, reg *prometheus.Registry) *Server {
	var m *metrics.Relay
	var g prometheus.Gatherer = prometheus.DefaultGatherer
	if reg != nil {
		m = metrics.NewRelay(reg)
		g = reg
	}
	s := &Server{
		cfg:            cfg,
		hub:            NewHub(cfg.MaxConnections, m),
		metrics:        m,
		gatherer:       g,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
	}
	for _, origin := range cfg.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

// Hub exposes the connection registry.
func (s *Server) Hub() *Hub { return s.hub }

// Router builds the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(securityHeaders)
	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	r.HandleFunc("/publish", s.handlePublish).Methods(http.MethodPost)
	r.Handle("/metrics", metrics.Handler(s.gatherer)).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "OK")
	}).Methods(http.MethodGet)
	return r
}

// ListenAndServe runs until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("relay listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.Close()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func extractToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return r.URL.Query().Get("token")
}

// subject resolves the user a channel token belongs to.
func (s *Server) subject(token string) (string, error) {
	if token == "" {
		return "", errors.New("missing token")
	}
	if s.cfg.JWTSecret == "" {
		if sub := auth.Subject(token); sub != "" {
			return sub, nil
		}
		return "", errors.New("token has no readable subject")
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	user, authErr := s.subject(extractToken(r))

	if authErr == nil && s.cfg.MaxConnections > 0 && s.hub.ClientCount() >= s.cfg.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("relay upgrade failed")
		return
	}

	// Auth failures are reported as a close code so browser clients can
	// tell them apart from network errors.
	if authErr != nil {
		s.metrics.Rejected()
		log.Warn().Err(authErr).Str("remote", r.RemoteAddr).Msg("relay rejected channel")
		reason := "Invalid token"
		if extractToken(r) == "" {
			reason = "Missing token"
		}
		msg := websocket.FormatCloseMessage(CloseUnauthorized, reason)
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		return
	}

	c := s.hub.Add(user, conn)
	if c == nil {
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many connections")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		return
	}
	go func() {
		defer s.hub.Remove(c)
		c.readPump()
	}()
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	secret := r.Header.Get("X-Internal-Secret")
	if s.cfg.InternalSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.InternalSecret)) != 1 {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "Bad secret"})
		return
	}
	uid := r.URL.Query().Get("uid")
	if uid == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "uid is required"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPublishBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "unreadable body"})
		return
	}
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "body must be a JSON object"})
		return
	}

	s.metrics.Published()
	go func() {
		n := s.hub.Publish(uid, body)
		log.Debug().Str("user", uid).Int("sockets", n).Msg("relay published")
	}()
	writeJSON(w, http.StatusOK, map[string]string{"detail": "queued"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if len(s.allowedOrigins) > 0 {
		return s.allowedOrigins[origin] || s.allowedHosts[parsed.Host]
	}

	host := parsed.Host
	if host == r.Host {
		return true
	}
	hostname := parsed.Hostname()
	return hostname == "localhost" || hostname == "127.0.0.1" || hostname == "::1"
}
