// Package api serves a loopback control API for a running viewer: status,
// the image list and current image, commands and a websocket status stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/bryanchriswhite/refviewer/internal/collection"
	"github.com/bryanchriswhite/refviewer/internal/logger"
	"github.com/bryanchriswhite/refviewer/internal/session"
	"github.com/bryanchriswhite/refviewer/internal/timer"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Version is reported by the health endpoint
const Version = "0.1.0"

// Session is the part of session.Controller the API uses
type Session interface {
	Submit(ctx context.Context, cmd session.Command) error
	Status() session.Status
	Images() []string
	Subscribe() (<-chan session.Status, func())
}

// Server represents the HTTP API server
type Server struct {
	router   *mux.Router
	session  Session
	upgrader websocket.Upgrader
}

// CommandRequest is the body of POST /api/commands
type CommandRequest struct {
	Command string `json:"command"`
	Arg     string `json:"arg,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewServer creates a new API server
func NewServer(sess Session) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		session: sess,
		upgrader: websocket.Upgrader{
			CheckOrigin: localOrigin,
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/session", s.handleGetSession).Methods("GET")
	api.HandleFunc("/session/stream", s.handleSessionStream)
	api.HandleFunc("/images", s.handleGetImages).Methods("GET")
	api.HandleFunc("/images/current", s.handleCurrentImage).Methods("GET")
	api.HandleFunc("/commands", s.handleCommand).Methods("POST")
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on 127.0.0.1:port until ctx is done
func (s *Server) Start(ctx context.Context, port int) error {
	log := logger.WithComponent("api")

	addr := net.JoinHostPort("127.0.0.1", fmt.Sprint(port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Control API shutdown failed")
		}
	}()

	log.Info().Str("addr", addr).Msg("Control API listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("control API failed: %w", err)
	}
	return nil
}

// localOrigin accepts websocket upgrades from tools without an Origin and
// from pages served on the loopback interface
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "127.0.0.1", "localhost", "::1":
		return true
	}
	return false
}

// HTTP Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) handleGetImages(w http.ResponseWriter, r *http.Request) {
	st := s.session.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"images": s.session.Images(),
		"index":  st.Index,
	})
}

// handleCurrentImage serves the file of the image being shown
func (s *Server) handleCurrentImage(w http.ResponseWriter, r *http.Request) {
	st := s.session.Status()
	if !st.HasImage() {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no image"})
		return
	}
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	http.ServeFile(w, r, st.Current)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	cmd, err := session.ParseCommand(req.Command, req.Arg)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if err := s.session.Submit(r.Context(), cmd); err != nil {
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	updates, cancel := s.session.Subscribe()
	defer cancel()

	// Reads only detect the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case st, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(st); err != nil {
				log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// statusFor maps command errors to HTTP status codes
func statusFor(err error) int {
	var invalid *collection.InvalidPathError
	switch {
	case errors.As(err, &invalid), errors.Is(err, timer.ErrInvalidPattern):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrUnknownCommand), errors.Is(err, session.ErrMissingArgument):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("Failed to write response")
	}
}
