package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/hacklab-agent/internal/identity"
	"github.com/ashureev/hacklab-agent/internal/store"
)

// SessionHandler handles session lifecycle endpoints.
type SessionHandler struct {
	*Handler
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(base *Handler) *SessionHandler {
	return &SessionHandler{Handler: base}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/recent", h.Recent)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Delete("/", h.Delete)
			r.Put("/status", h.UpdateStatus)
			r.Post("/archive", h.Archive)
			r.Get("/stats", h.Stats)
			r.Get("/report", h.Report)
		})
	})
}

type createSessionRequest struct {
	Name        string          `json:"session_name"`
	Environment string          `json:"lab_environment"`
	Target      string          `json:"lab_target"`
	Objective   string          `json:"lab_objective"`
	Metadata    json.RawMessage `json:"session_metadata"`
}

// Create starts a new session for the current user.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	sessionID, err := h.repo.CreateSession(r.Context(), store.CreateSessionParams{
		UserID:      userID,
		Name:        req.Name,
		Environment: req.Environment,
		Target:      req.Target,
		Objective:   req.Objective,
		Metadata:    req.Metadata,
	})
	if err != nil {
		StoreError(w, err)
		return
	}

	slog.Info("Session created", "session_id", sessionID, "user_id", userID)
	JSON(w, http.StatusCreated, map[string]string{"session_id": sessionID})
}

// List returns the current user's sessions, newest activity first.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := store.ListSessionsOptions{
		UserID: identity.UserIDFromContext(r.Context()),
		Status: r.URL.Query().Get("status"),
		Limit:  queryInt(r, "limit"),
	}
	if r.URL.Query().Get("include_archived") == "true" {
		opts.IncludeArchived = true
	}

	sessions, err := h.repo.ListSessions(r.Context(), opts)
	if err != nil {
		StoreError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// Recent returns the current user's recent sessions with message counts.
func (h *SessionHandler) Recent(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	summaries, err := h.repo.RecentSessions(r.Context(), userID, queryInt(r, "limit"))
	if err != nil {
		StoreError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessions": summaries})
}

// Get returns one session by id.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.repo.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		StoreError(w, err)
		return
	}
	if session == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, session)
}

// UpdateStatus changes a session's lifecycle status.
func (h *SessionHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if err := h.repo.UpdateSessionStatus(r.Context(), sessionID, req.Status); err != nil {
		StoreError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"session_id": sessionID, "status": req.Status})
}

// Archive soft-hides a session from listings while preserving its data.
func (h *SessionHandler) Archive(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.repo.ArchiveSession(r.Context(), sessionID); err != nil {
		StoreError(w, err)
		return
	}

	slog.Info("Session archived", "session_id", sessionID)
	JSON(w, http.StatusOK, map[string]string{"session_id": sessionID, "status": "archived"})
}

// Delete permanently removes a session and all of its dependent rows.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.repo.DeleteSession(r.Context(), sessionID); err != nil {
		StoreError(w, err)
		return
	}

	slog.Info("Session deleted", "session_id", sessionID)
	JSON(w, http.StatusOK, map[string]string{"session_id": sessionID, "status": "deleted"})
}

// Stats returns aggregate message and tool counts for one session.
func (h *SessionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.SessionStatistics(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		StoreError(w, err)
		return
	}
	JSON(w, http.StatusOK, stats)
}

// Report exports a session with its messages, lab context and statistics.
func (h *SessionHandler) Report(w http.ResponseWriter, r *http.Request) {
	report, err := h.repo.ExportReport(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		StoreError(w, err)
		return
	}
	JSON(w, http.StatusOK, report)
}

// queryInt parses an optional integer query parameter, returning 0 when
// absent or malformed so the store applies its default.
func queryInt(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 0 {
		return 0
	}
	return v
}
