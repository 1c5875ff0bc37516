package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vjranagit/homeenergy/pkg/home"
	"github.com/vjranagit/homeenergy/pkg/state"
	"github.com/vjranagit/homeenergy/pkg/storage"
	"github.com/vjranagit/homeenergy/pkg/subscription"
	"github.com/vjranagit/homeenergy/pkg/types"
)

// Server implements the HTTP API server
type Server struct {
	store  *state.Store
	view   *home.View
	addr   string
	logger *slog.Logger
	router chi.Router
	server *http.Server

	// index is rebuilt lazily when the snapshot version moves
	indexMu      sync.Mutex
	index        *storage.Index
	indexVersion uint64
}

// NewServer creates a new API server
func NewServer(addr string, store *state.Store, view *home.View, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		store:  store,
		view:   view,
		addr:   addr,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/navigation", s.handleNavigation)
		r.Post("/navigation/view", s.handleNavigateView)
		r.Post("/navigation/back", s.handleNavigateBack)
		r.Post("/analytics", s.handlePostAnalytics)

		r.Get("/collections", s.handleGetCollections)
		r.Put("/collections", s.handlePutCollections)
		r.Get("/documents", s.handleDocuments)

		r.Get("/home", s.handleGetHome)
		r.Put("/home", s.handlePutHome)
		r.Post("/logout", s.handleLogout)
	})
	s.router = r
	s.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler returns the router serving the API
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves the API until Stop is called, then returns
// http.ErrServerClosed. Stop may run before or during Start.
func (s *Server) Start() error {
	s.logger.Info("api listening", slog.String("addr", s.addr))
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type navigateViewRequest struct {
	View string `json:"view"`
}

// handleNavigation returns the navigation history
func (s *Server) handleNavigation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.State().Navigation)
}

// handleNavigateView records a visited view
func (s *Server) handleNavigateView(w http.ResponseWriter, r *http.Request) {
	var req navigateViewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if req.View == "" {
		http.Error(w, "Missing view", http.StatusBadRequest)
		return
	}

	st := s.store.Dispatch(state.NavigateView{View: req.View})
	writeJSON(w, http.StatusOK, st.Navigation)
}

func (s *Server) handleNavigateBack(w http.ResponseWriter, r *http.Request) {
	st := s.store.Dispatch(state.NavigateBack{})
	writeJSON(w, http.StatusOK, st.Navigation)
}

// handlePostAnalytics resets the navigation history after it was reported
func (s *Server) handlePostAnalytics(w http.ResponseWriter, r *http.Request) {
	st := s.store.Dispatch(state.PostAnalytics{})
	writeJSON(w, http.StatusOK, st.Navigation)
}

type collectionsResponse struct {
	Version     uint64            `json:"version"`
	Collections types.Collections `json:"collections"`
}

func (s *Server) handleGetCollections(w http.ResponseWriter, r *http.Request) {
	st := s.store.State()
	writeJSON(w, http.StatusOK, collectionsResponse{Version: st.Version, Collections: st.Collections})
}

// handlePutCollections replaces the snapshot wholesale. The payload is
// trusted, only its JSON shape is checked.
func (s *Server) handlePutCollections(w http.ResponseWriter, r *http.Request) {
	var payload types.Collections
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	st := s.store.Dispatch(state.CollectionsChange{Payload: payload})
	writeJSON(w, http.StatusOK, collectionsResponse{Version: st.Version, Collections: st.Collections})
}

type documentResult struct {
	Collection string         `json:"collection"`
	Key        string         `json:"key"`
	Document   types.Document `json:"document"`
}

// handleDocuments finds documents whose indexed fields match every query
// parameter; "__collection__" restricts the collection.
func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	selectors := make(map[string]string)
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			selectors[name] = values[0]
		}
	}

	st := s.store.State()
	idx := s.indexFor(st)

	results := make([]documentResult, 0)
	for _, ref := range idx.FindDocuments(selectors) {
		doc, ok := st.Collections.Get(ref.Collection, ref.Key)
		if !ok {
			continue
		}
		results = append(results, documentResult{Collection: ref.Collection, Key: ref.Key, Document: doc})
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) indexFor(st state.State) *storage.Index {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	if s.index == nil || s.indexVersion != st.Version {
		s.index = storage.BuildIndex(st.Collections)
		s.indexVersion = st.Version
	}
	return s.index
}

type homeResponse struct {
	Props subscription.Props    `json:"props"`
	Chart home.ChartConsumption `json:"chart"`
}

func (s *Server) handleGetHome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, homeResponse{Props: s.view.Props(), Chart: s.view.ChartConsumption()})
}

// handlePutHome replaces the home props, re-subscribing when they changed
func (s *Server) handlePutHome(w http.ResponseWriter, r *http.Request) {
	var props subscription.Props
	if err := json.NewDecoder(r.Body).Decode(&props); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	if err := s.view.ReceiveProps(r.Context(), props); err != nil {
		http.Error(w, fmt.Sprintf("Invalid props: %v", err), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, homeResponse{Props: s.view.Props(), Chart: s.view.ChartConsumption()})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.view.OnLogout()
	w.WriteHeader(http.StatusAccepted)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
