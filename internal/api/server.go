package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/escape23/crypto-dashboard/internal/dashboard"
	"github.com/escape23/crypto-dashboard/internal/models"
	"github.com/escape23/crypto-dashboard/internal/realtime"
)

// Server is the HTTP surface over the dashboard composer. Failed upstream
// fetches are not surfaced as HTTP errors: handlers answer with the last
// good view, matching the rest of the app's keep-stale-data policy.
type Server struct {
	composer *dashboard.Composer
	hub      *realtime.Hub
	router   *mux.Router
	upgrader websocket.Upgrader
}

func NewServer(c *dashboard.Composer, hub *realtime.Hub) *Server {
	server := &Server{
		composer: c,
		hub:      hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.HandleFunc("/api/health", server.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/dashboard", server.handleDashboard).Methods(http.MethodGet)
	r.HandleFunc("/api/assets", server.handleListAssets).Methods(http.MethodGet)
	r.HandleFunc("/api/assets/refresh", server.handleRefreshAssets).Methods(http.MethodPost)
	r.HandleFunc("/api/assets/{id}/history", server.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/watchlist", server.handleListWatchlist).Methods(http.MethodGet)
	r.HandleFunc("/api/watchlist", server.handleAddWatchlist).Methods(http.MethodPost)
	r.HandleFunc("/api/watchlist/{id}", server.handleRemoveWatchlist).Methods(http.MethodDelete)
	r.HandleFunc("/api/session", server.handleGetSession).Methods(http.MethodGet)
	r.HandleFunc("/api/session", server.handleUpdateSession).Methods(http.MethodPut)
	r.HandleFunc("/ws", server.handleWebSocket).Methods(http.MethodGet)

	server.router = r
	return server
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.composer.Snapshot())
}

func (s *Server) handleListAssets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.composer.Snapshot().Assets)
}

func (s *Server) handleRefreshAssets(w http.ResponseWriter, r *http.Request) {
	// Errors are swallowed: the previous list stays on display.
	_ = s.composer.RefreshMarkets(r.Context())
	writeJSON(w, http.StatusOK, s.composer.Snapshot().Assets)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["id"]

	points, err := s.composer.ViewHistory(r.Context(), assetID)
	if err != nil {
		if errors.Is(err, dashboard.ErrUnknownAsset) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown asset"})
			return
		}
		// Fetch failed: answer with whatever series is still on display.
		writeJSON(w, http.StatusOK, s.composer.Snapshot().History)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) handleListWatchlist(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.composer.Snapshot().Watchlist)
}

func (s *Server) handleAddWatchlist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing asset id"})
		return
	}

	if err := s.composer.AddToWatchlist(r.Context(), req.ID); err != nil {
		if errors.Is(err, dashboard.ErrUnknownAsset) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown asset"})
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.composer.Snapshot().Watchlist)
}

func (s *Server) handleRemoveWatchlist(w http.ResponseWriter, r *http.Request) {
	s.composer.RemoveFromWatchlist(r.Context(), mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.composer.Snapshot().Session)
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Currency    *models.Currency `json:"currency"`
		Window      *string          `json:"window"`
		DarkMode    *bool            `json:"darkMode"`
		DisplayName *string          `json:"displayName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err := s.composer.UpdateSession(r.Context(), dashboard.SessionUpdate{
		Currency:    req.Currency,
		Window:      req.Window,
		DarkMode:    req.DarkMode,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.composer.Snapshot().Session)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.hub.Subscribe(conn)

	_ = conn.WriteJSON(s.composer.Snapshot())

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.hub.Unsubscribe(conn)
			return
		}
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
