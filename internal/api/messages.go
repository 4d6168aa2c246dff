package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/hacklab-agent/internal/identity"
	"github.com/ashureev/hacklab-agent/internal/store"
)

// MessageHandler handles conversation message endpoints.
type MessageHandler struct {
	*Handler
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(base *Handler) *MessageHandler {
	return &MessageHandler{Handler: base}
}

// RegisterRoutes registers message routes.
func (h *MessageHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/search", h.Search)
	r.Route("/api/sessions/{sessionID}/messages", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Append)
		r.Get("/history", h.History)
	})
}

type appendMessageRequest struct {
	Role        string          `json:"role"`
	Content     string          `json:"content"`
	ToolCalls   json.RawMessage `json:"tool_calls"`
	ToolResults json.RawMessage `json:"tool_results"`
	Metadata    json.RawMessage `json:"message_metadata"`
}

// Append records a conversation turn on a session.
func (h *MessageHandler) Append(w http.ResponseWriter, r *http.Request) {
	var req appendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	messageID, err := h.repo.AppendMessage(r.Context(), store.AppendMessageParams{
		SessionID:   chi.URLParam(r, "sessionID"),
		Role:        req.Role,
		Content:     req.Content,
		ToolCalls:   req.ToolCalls,
		ToolResults: req.ToolResults,
		Metadata:    req.Metadata,
	})
	if err != nil {
		StoreError(w, err)
		return
	}
	JSON(w, http.StatusCreated, map[string]int64{"message_id": messageID})
}

// List returns a session's messages in chronological order.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	messages, err := h.repo.GetMessages(r.Context(), chi.URLParam(r, "sessionID"), store.MessageFilter{
		Role:  r.URL.Query().Get("role"),
		Limit: queryInt(r, "limit"),
	})
	if err != nil {
		StoreError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

// History returns the recent conversation as role/content pairs.
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	history, err := h.repo.ConversationHistory(r.Context(), chi.URLParam(r, "sessionID"), queryInt(r, "limit"))
	if err != nil {
		StoreError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"history": history})
}

// Search finds the current user's messages containing a term.
func (h *MessageHandler) Search(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("q"))
	if term == "" {
		Error(w, http.StatusBadRequest, "the 'q' query parameter is required")
		return
	}

	results, err := h.repo.SearchMessages(r.Context(), store.SearchOptions{
		Term:   term,
		UserID: identity.UserIDFromContext(r.Context()),
		Limit:  queryInt(r, "limit"),
	})
	if err != nil {
		StoreError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"results": results})
}
