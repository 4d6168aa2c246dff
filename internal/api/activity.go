package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/hacklab-agent/internal/domain"
	"github.com/ashureev/hacklab-agent/internal/identity"
)

// ActivityHandler handles tool execution, resource and progress endpoints.
type ActivityHandler struct {
	*Handler
}

// NewActivityHandler creates a new activity handler.
func NewActivityHandler(base *Handler) *ActivityHandler {
	return &ActivityHandler{Handler: base}
}

// RegisterRoutes registers activity routes.
func (h *ActivityHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/me/stats", h.UserStats)
	r.Post("/api/progress", h.RecordProgress)
	r.Route("/api/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/tools", h.ListToolExecutions)
		r.Get("/resources", h.ListResources)
		r.Post("/resources", h.AddResource)
	})
}

// ListToolExecutions returns a session's tool invocations, oldest first.
func (h *ActivityHandler) ListToolExecutions(w http.ResponseWriter, r *http.Request) {
	execs, err := h.repo.ListToolExecutions(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		StoreError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"executions": execs})
}

type addResourceRequest struct {
	Type    string   `json:"resource_type"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	URL     string   `json:"url"`
	Tags    []string `json:"tags"`
}

// AddResource attaches reference material to a session.
func (h *ActivityHandler) AddResource(w http.ResponseWriter, r *http.Request) {
	var req addResourceRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	resourceID, err := h.repo.AddResource(r.Context(), &domain.Resource{
		SessionID: chi.URLParam(r, "sessionID"),
		Type:      req.Type,
		Title:     req.Title,
		Content:   req.Content,
		URL:       req.URL,
		Tags:      req.Tags,
	})
	if err != nil {
		StoreError(w, err)
		return
	}
	JSON(w, http.StatusCreated, map[string]int64{"resource_id": resourceID})
}

// ListResources returns a session's resources, optionally filtered by type.
func (h *ActivityHandler) ListResources(w http.ResponseWriter, r *http.Request) {
	resources, err := h.repo.ListResources(r.Context(), chi.URLParam(r, "sessionID"), r.URL.Query().Get("type"))
	if err != nil {
		StoreError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"resources": resources})
}

type recordProgressRequest struct {
	SessionID       string          `json:"session_id"`
	SkillArea       string          `json:"skill_area"`
	ActivityType    string          `json:"activity_type"`
	ActivityDetails json.RawMessage `json:"activity_details"`
}

// RecordProgress appends a learning activity record for the current user.
func (h *ActivityHandler) RecordProgress(w http.ResponseWriter, r *http.Request) {
	var req recordProgressRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	progressID, err := h.repo.RecordProgress(r.Context(), &domain.UserProgress{
		UserID:          identity.UserIDFromContext(r.Context()),
		SessionID:       req.SessionID,
		SkillArea:       req.SkillArea,
		ActivityType:    req.ActivityType,
		ActivityDetails: req.ActivityDetails,
	})
	if err != nil {
		StoreError(w, err)
		return
	}
	JSON(w, http.StatusCreated, map[string]int64{"progress_id": progressID})
}

// UserStats returns aggregate statistics for the current user.
func (h *ActivityHandler) UserStats(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	stats, err := h.repo.UserStats(r.Context(), userID)
	if err != nil {
		StoreError(w, err)
		return
	}
	if stats == nil {
		stats = &domain.UserStats{UserID: userID}
	}
	JSON(w, http.StatusOK, stats)
}
