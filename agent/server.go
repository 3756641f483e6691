package agent

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"drumtrack/infrastructure/cache"
	"drumtrack/scanning"
	"drumtrack/store"
)

// CookieName carries the operator login token between the handheld UI
// and the agent.
const CookieName = "X-Operator-Token"

var ShutdownTimeout = 2 * time.Second

const loginTTL = 12 * time.Hour

// Server exposes the scanning controller to the handheld UI over
// localhost HTTP. It is transport for the UI layer, not a public
// protocol.
type Server struct {
	Addr   string
	ln     net.Listener
	server *http.Server
	router *chi.Mux

	Store      *store.SQL
	Controller *scanning.Controller
	Logins     *cache.LoginCache
	Log        zerolog.Logger
}

// NewServer creates the agent HTTP server.
func NewServer(addr string, st *store.SQL, ctrl *scanning.Controller, logins *cache.LoginCache, logger zerolog.Logger) *Server {
	s := &Server{
		Addr:       addr,
		router:     chi.NewRouter(),
		Store:      st,
		Controller: ctrl,
		Logins:     logins,
		Log:        logger,
		server: &http.Server{
			MaxHeaderBytes: 1 << 20,
		},
	}

	// Secure headers first.
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			next.ServeHTTP(w, r)
		})
	})

	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Compress(5))

	s.router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.router.Post("/login", s.LoginHandler)
	s.router.Post("/logout", s.LogoutHandler)

	s.router.Group(func(r chi.Router) {
		r.Route("/api", func(r chi.Router) {
			r.Use(s.AuthenticateMiddleware)
			s.RegisterAPIRoutes(r)
		})
	})

	s.server.Handler = s.router
	return s
}

// AuthenticateMiddleware resolves the operator login token.
func (s *Server) AuthenticateMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(CookieName)
		if token == "" {
			if c, err := r.Cookie(CookieName); err == nil {
				token = c.Value
			}
		}
		if token == "" {
			writeError(w, http.StatusUnauthorized, "login required")
			return
		}

		login, ok := s.Logins.Find(token)
		if !ok {
			writeError(w, http.StatusUnauthorized, "login required")
			return
		}
		if login.Expired() {
			s.Logins.Delete(token)
			writeError(w, http.StatusUnauthorized, "login expired")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler exposes the routed handler, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func newLoginToken() string {
	buf := make([]byte, 24)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	var err error
	if s.ln, err = net.Listen("tcp", s.Addr); err != nil {
		return err
	}
	go s.server.Serve(s.ln)
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	if s.ln == nil {
		return fmt.Errorf("HTTP server has not been started or is already stopped")
	}
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %v", err)
	}
	s.ln = nil
	return nil
}
