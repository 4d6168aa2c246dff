package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/hacklab-agent/internal/agent"
	"github.com/ashureev/hacklab-agent/internal/identity"
)

// ChatHandler handles the agent chat endpoint. The service is nil when no
// model server is configured; the endpoint then reports chat as disabled.
type ChatHandler struct {
	*Handler
	svc *agent.Service
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(base *Handler, svc *agent.Service) *ChatHandler {
	return &ChatHandler{Handler: base, svc: svc}
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/sessions/{sessionID}/chat", h.Chat)
	r.Get("/api/config", h.GetConfig)
}

// GetConfig returns the server configuration for the frontend.
func (h *ChatHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"chat_enabled": h.svc != nil,
	})
}

// Chat sends one user message through the agent and returns the reply.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		Error(w, http.StatusServiceUnavailable, "chat is not configured on this server")
		return
	}

	var req agent.ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	req.SessionID = chi.URLParam(r, "sessionID")
	req.UserID = identity.UserIDFromContext(r.Context())

	resp, err := h.svc.Chat(r.Context(), req)
	if err != nil {
		slog.Error("Chat turn failed", "error", err, "session_id", req.SessionID)
		StoreError(w, err)
		return
	}
	JSON(w, http.StatusOK, resp)
}
