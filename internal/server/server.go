package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pagesplit/pagesplit/internal/config"
	"github.com/pagesplit/pagesplit/internal/experiment"
	"github.com/pagesplit/pagesplit/internal/store"
)

type Server struct {
	store     *store.SQLiteStore
	svc       *experiment.Service
	cfg       *config.Config
	token     string
	router    *http.ServeMux
	startTime time.Time
}

func New(s *store.SQLiteStore, svc *experiment.Service, cfg *config.Config) *Server {
	srv := &Server{
		store:     s,
		svc:       svc,
		cfg:       cfg,
		token:     generateToken(),
		router:    http.NewServeMux(),
		startTime: time.Now(),
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	// Public endpoints
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.HandleFunc("/b", s.handleBeacon)
	s.router.HandleFunc("/ps.js", s.handleClientJS)
	s.router.HandleFunc("/api/assign", s.handleAssign)
	s.router.HandleFunc("/api/experiments", s.handleExperiments)
	s.router.HandleFunc("/api/experiments/", s.handleExperimentSubresource)

	// Dashboard and operational endpoints (protected)
	s.router.Handle("/dashboard", s.authMiddleware(http.HandlerFunc(s.handleDashboard)))
	s.router.Handle("/dashboard/experiment/", s.authMiddleware(http.HandlerFunc(s.handleDashboardDetail)))
	s.router.Handle("/metrics", s.authMiddleware(promhttp.Handler()))
}

func (s *Server) Start() error {
	return s.StartWithOptions(true)
}

// StartQuiet starts the server without printing startup messages
func (s *Server) StartQuiet() error {
	return s.StartWithOptions(false)
}

func (s *Server) StartWithOptions(printMessages bool) error {
	// Write token to file for the token command
	if s.cfg.TokenFile != "" {
		if err := os.WriteFile(s.cfg.TokenFile, []byte(s.token), 0600); err != nil {
			fmt.Printf("Warning: failed to write token file: %v\n", err)
		}
	}

	if printMessages {
		fmt.Println()
		fmt.Printf("pagesplit running on http://localhost%s\n", s.cfg.ListenAddr)
		fmt.Printf("Dashboard: http://localhost%s/dashboard?token=%s\n", s.cfg.ListenAddr, s.token)
		fmt.Println()
		fmt.Println("Press Ctrl+C to stop")
	}

	return http.ListenAndServe(s.cfg.ListenAddr, s.router)
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) StartTime() time.Time {
	return s.startTime
}

func generateToken() string {
	bytes := make([]byte, 4)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a simple token if crypto/rand fails
		return "a1b2c3d4"
	}
	return hex.EncodeToString(bytes)
}
