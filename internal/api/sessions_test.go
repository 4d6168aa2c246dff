//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/hacklab-agent/internal/identity"
	"github.com/ashureev/hacklab-agent/internal/store"
)

func newTestRouter(t *testing.T) (chi.Router, store.Repository) {
	t.Helper()

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Failed to close test store: %v", err)
		}
	})

	base := NewHandler(repo)
	r := chi.NewRouter()
	r.Use(identity.Middleware(true))
	NewSessionHandler(base).RegisterRoutes(r)
	NewMessageHandler(base).RegisterRoutes(r)
	NewContextHandler(base).RegisterRoutes(r)
	NewActivityHandler(base).RegisterRoutes(r)
	NewChatHandler(base, nil).RegisterRoutes(r)
	return r, repo
}

func doRequest(t *testing.T, r chi.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req.Header.Set(identity.UserHeaderName, "alice")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(out); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
}

func createSessionViaAPI(t *testing.T, r chi.Router) string {
	t.Helper()

	w := doRequest(t, r, http.MethodPost, "/api/sessions/",
		`{"session_name":"HTB - Lame","lab_environment":"HTB","lab_target":"10.10.10.3"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 creating session, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	decodeBody(t, w, &resp)
	if resp["session_id"] == "" {
		t.Fatal("Expected session_id in response")
	}
	return resp["session_id"]
}

func TestSessionLifecycle(t *testing.T) {
	r, _ := newTestRouter(t)
	sessionID := createSessionViaAPI(t, r)

	// Fetch it back.
	w := doRequest(t, r, http.MethodGet, "/api/sessions/"+sessionID+"/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var session map[string]interface{}
	decodeBody(t, w, &session)
	if session["status"] != "active" {
		t.Errorf("Expected active status, got %v", session["status"])
	}
	if session["user_id"] != "alice" {
		t.Errorf("Expected session owned by alice, got %v", session["user_id"])
	}

	// Pause it.
	w = doRequest(t, r, http.MethodPut, "/api/sessions/"+sessionID+"/status", `{"status":"paused"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 updating status, got %d: %s", w.Code, w.Body.String())
	}

	// Archive hides it from listings.
	w = doRequest(t, r, http.MethodPost, "/api/sessions/"+sessionID+"/archive", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 archiving, got %d", w.Code)
	}
	w = doRequest(t, r, http.MethodGet, "/api/sessions/", "")
	var listing struct {
		Sessions []map[string]interface{} `json:"sessions"`
	}
	decodeBody(t, w, &listing)
	if len(listing.Sessions) != 0 {
		t.Errorf("Expected archived session hidden from listing, got %d", len(listing.Sessions))
	}

	// Delete removes it entirely.
	w = doRequest(t, r, http.MethodDelete, "/api/sessions/"+sessionID+"/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 deleting, got %d", w.Code)
	}
	w = doRequest(t, r, http.MethodGet, "/api/sessions/"+sessionID+"/", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", w.Code)
	}
}

func TestSessionStatusValidation(t *testing.T) {
	r, _ := newTestRouter(t)
	sessionID := createSessionViaAPI(t, r)

	w := doRequest(t, r, http.MethodPut, "/api/sessions/"+sessionID+"/status", `{"status":"running"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown status, got %d", w.Code)
	}
}

func TestMessagesEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	sessionID := createSessionViaAPI(t, r)

	w := doRequest(t, r, http.MethodPost, "/api/sessions/"+sessionID+"/messages/",
		`{"role":"user","content":"scan the box"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 appending message, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(t, r, http.MethodPost, "/api/sessions/"+sessionID+"/messages/",
		`{"role":"operator","content":"nope"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid role, got %d", w.Code)
	}

	w = doRequest(t, r, http.MethodPost, "/api/sessions/no-such-session/messages/",
		`{"role":"user","content":"hello"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown session, got %d", w.Code)
	}

	w = doRequest(t, r, http.MethodGet, "/api/sessions/"+sessionID+"/messages/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 listing messages, got %d", w.Code)
	}
	var listing struct {
		Messages []map[string]interface{} `json:"messages"`
	}
	decodeBody(t, w, &listing)
	if len(listing.Messages) != 1 {
		t.Errorf("Expected 1 message, got %d", len(listing.Messages))
	}
}

func TestContextEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)
	sessionID := createSessionViaAPI(t, r)

	// Session creation seeds the reconnaissance snapshot.
	w := doRequest(t, r, http.MethodGet, "/api/sessions/"+sessionID+"/context/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 fetching context, got %d", w.Code)
	}
	var lc map[string]interface{}
	decodeBody(t, w, &lc)
	if lc["phase"] != "reconnaissance" {
		t.Errorf("Expected initial reconnaissance phase, got %v", lc["phase"])
	}

	// Incremental updates merge.
	w = doRequest(t, r, http.MethodPost, "/api/sessions/"+sessionID+"/context/ports", `{"ports":[22,445]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 adding ports, got %d: %s", w.Code, w.Body.String())
	}
	w = doRequest(t, r, http.MethodPost, "/api/sessions/"+sessionID+"/context/ports", `{"ports":[445,139]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 adding more ports, got %d", w.Code)
	}
	decodeBody(t, w, &lc)
	if ports, ok := lc["open_ports"].([]interface{}); !ok || len(ports) != 3 {
		t.Errorf("Expected 3 merged ports, got %v", lc["open_ports"])
	}

	// Partial update keeps the untouched fields.
	w = doRequest(t, r, http.MethodPatch, "/api/sessions/"+sessionID+"/context/", `{"phase":"enumeration"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 patching context, got %d: %s", w.Code, w.Body.String())
	}
	w = doRequest(t, r, http.MethodGet, "/api/sessions/"+sessionID+"/context/", "")
	decodeBody(t, w, &lc)
	if lc["phase"] != "enumeration" {
		t.Errorf("Expected enumeration phase, got %v", lc["phase"])
	}
	if ports, ok := lc["open_ports"].([]interface{}); !ok || len(ports) != 3 {
		t.Errorf("Expected ports carried forward, got %v", lc["open_ports"])
	}

	// The full snapshot history stays queryable.
	w = doRequest(t, r, http.MethodGet, "/api/sessions/"+sessionID+"/context/history", "")
	var history struct {
		Snapshots []map[string]interface{} `json:"snapshots"`
	}
	decodeBody(t, w, &history)
	if len(history.Snapshots) != 4 {
		t.Errorf("Expected 4 snapshots, got %d", len(history.Snapshots))
	}
}

func TestUserStatsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	sessionID := createSessionViaAPI(t, r)

	doRequest(t, r, http.MethodPost, "/api/sessions/"+sessionID+"/messages/",
		`{"role":"user","content":"hello"}`)

	w := doRequest(t, r, http.MethodGet, "/api/me/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var stats map[string]interface{}
	decodeBody(t, w, &stats)
	if stats["total_sessions"].(float64) != 1 {
		t.Errorf("Expected 1 total session, got %v", stats["total_sessions"])
	}
	if stats["total_messages"].(float64) != 1 {
		t.Errorf("Expected 1 total message, got %v", stats["total_messages"])
	}
}

func TestChatDisabled(t *testing.T) {
	r, _ := newTestRouter(t)
	sessionID := createSessionViaAPI(t, r)

	w := doRequest(t, r, http.MethodPost, "/api/sessions/"+sessionID+"/chat", `{"message":"hi"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 when chat is not configured, got %d", w.Code)
	}

	w = doRequest(t, r, http.MethodGet, "/api/config", "")
	var cfg map[string]interface{}
	decodeBody(t, w, &cfg)
	if cfg["chat_enabled"] != false {
		t.Errorf("Expected chat_enabled false, got %v", cfg["chat_enabled"])
	}
}
