// Package api serves the HTTP surface: health, the WebSocket entry
// point, and the GitHub integration endpoints.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/teamkard/teamkard/pkg/config"
	"github.com/teamkard/teamkard/pkg/github"
	"github.com/teamkard/teamkard/pkg/identity"
	"github.com/teamkard/teamkard/pkg/logger"
	"github.com/teamkard/teamkard/pkg/realtime"
)

// Server is the HTTP API server.
type Server struct {
	config    *config.Config
	gateway   *realtime.Gateway
	github    *github.Client
	resolver  identity.Resolver
	startTime time.Time
	server    *http.Server
}

// NewServer creates a new API server instance.
func NewServer(cfg *config.Config, gateway *realtime.Gateway, gh *github.Client, resolver identity.Resolver) *Server {
	return &Server{
		config:    cfg,
		gateway:   gateway,
		github:    gh,
		resolver:  resolver,
		startTime: time.Now(),
	}
}

// Start begins listening on the configured host:port.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)

	// The realtime channel. The upgrade itself is unauthenticated; the
	// session authenticates in-band with an authorize intent.
	mux.HandleFunc("/api/ws", s.gateway.HandleWebSocket)

	// GitHub integration
	mux.HandleFunc("/api/github/oauth", s.handleGitHubOAuth)
	mux.HandleFunc("/api/github/repos", s.handleGitHubRepos)

	addr := s.config.Addr()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      corsMiddleware(authMiddleware(s.resolver, mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.InfoCF("api", "API server starting", map[string]interface{}{
		"addr": addr,
	})

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("api", "Server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// --- Middleware ---

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-GitHub-Token")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// handleGitHubOAuth finishes the OAuth code exchange. Part of the login
// flow, so it sits outside the bearer-token guard.
func (s *Server) handleGitHubOAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Code == "" {
		writeError(w, http.StatusBadRequest, "missing oauth code")
		return
	}

	token, err := s.github.ExchangeCode(r.Context(), body.Code)
	if err != nil {
		logger.WarnCF("api", "OAuth exchange failed", map[string]interface{}{
			"error": err.Error(),
		})
		writeError(w, http.StatusBadGateway, "oauth exchange failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"access_token": token})
}

// handleGitHubRepos lists repositories for project linking. The GitHub
// access token rides in its own header so it never mixes with the
// session bearer token.
func (s *Server) handleGitHubRepos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}

	ghToken := strings.TrimSpace(r.Header.Get("X-GitHub-Token"))
	if ghToken == "" {
		writeError(w, http.StatusBadRequest, "missing X-GitHub-Token header")
		return
	}

	repos, err := s.github.UserRepos(r.Context(), ghToken)
	if err != nil {
		logger.WarnCF("api", "Repo listing failed", map[string]interface{}{
			"error": err.Error(),
		})
		writeError(w, http.StatusBadGateway, "repo listing failed")
		return
	}

	writeJSON(w, http.StatusOK, repos)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.ErrorCF("api", "Response encode failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
