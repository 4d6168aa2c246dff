package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/hacklab-agent/internal/agent"
	"github.com/ashureev/hacklab-agent/internal/domain"
	"github.com/ashureev/hacklab-agent/internal/store"
)

// ContextHandler handles lab context endpoints.
type ContextHandler struct {
	*Handler
}

// NewContextHandler creates a new lab context handler.
func NewContextHandler(base *Handler) *ContextHandler {
	return &ContextHandler{Handler: base}
}

// RegisterRoutes registers lab context routes.
func (h *ContextHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions/{sessionID}/context", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Patch("/", h.Update)
		r.Get("/history", h.History)
		r.Get("/summary", h.Summary)
		r.Post("/findings", h.AddFinding)
		r.Post("/ports", h.AddPorts)
		r.Post("/services", h.AddService)
		r.Post("/vulnerabilities", h.AddVulnerability)
		r.Post("/credentials", h.AddCredential)
		r.Post("/flags", h.SetFlag)
	})
}

// Get returns the latest lab context snapshot.
func (h *ContextHandler) Get(w http.ResponseWriter, r *http.Request) {
	lc, err := h.repo.GetLabContext(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		StoreError(w, err)
		return
	}
	if lc == nil {
		Error(w, http.StatusNotFound, "no lab context for this session")
		return
	}
	JSON(w, http.StatusOK, lc)
}

// History returns every snapshot for the session, oldest first.
func (h *ContextHandler) History(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.repo.ListLabContexts(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		StoreError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"snapshots": snapshots})
}

// Summary renders the session and its current context as display text.
func (h *ContextHandler) Summary(w http.ResponseWriter, r *http.Request) {
	tracker := agent.NewTracker(h.repo, chi.URLParam(r, "sessionID"))
	summary, err := tracker.ContextSummary(r.Context())
	if err != nil {
		StoreError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"summary": summary})
}

type contextUpdateRequest struct {
	Phase           *string                `json:"phase"`
	Findings        []domain.Finding       `json:"findings"`
	OpenPorts       []int                  `json:"open_ports"`
	Services        []domain.Service       `json:"services"`
	Vulnerabilities []domain.Vulnerability `json:"vulnerabilities"`
	Credentials     []domain.Credential    `json:"credentials"`
	Flags           map[string]string      `json:"flags"`
	Notes           *string                `json:"notes"`
}

// Update applies a partial context update. Omitted fields carry over from the
// previous snapshot; provided fields replace it wholesale.
func (h *ContextHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req contextUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	contextID, err := h.repo.UpdateLabContext(r.Context(), chi.URLParam(r, "sessionID"), store.LabContextUpdate{
		Phase:           req.Phase,
		Findings:        req.Findings,
		OpenPorts:       req.OpenPorts,
		Services:        req.Services,
		Vulnerabilities: req.Vulnerabilities,
		Credentials:     req.Credentials,
		Flags:           req.Flags,
		Notes:           req.Notes,
	})
	if err != nil {
		StoreError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]int64{"context_id": contextID})
}

// AddFinding appends one finding to the context.
func (h *ContextHandler) AddFinding(w http.ResponseWriter, r *http.Request) {
	var f domain.Finding
	if err := decodeJSON(r, &f); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if f.Description == "" {
		Error(w, http.StatusBadRequest, "finding description is required")
		return
	}
	h.track(w, r, func(t *agent.Tracker) error {
		return t.AddFinding(r.Context(), f)
	})
}

// AddPorts merges newly discovered open ports into the context.
func (h *ContextHandler) AddPorts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ports []int `json:"ports"`
	}
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Ports) == 0 {
		Error(w, http.StatusBadRequest, "at least one port is required")
		return
	}
	h.track(w, r, func(t *agent.Tracker) error {
		return t.AddPorts(r.Context(), req.Ports)
	})
}

// AddService records an identified service on a port.
func (h *ContextHandler) AddService(w http.ResponseWriter, r *http.Request) {
	var svc domain.Service
	if err := decodeJSON(r, &svc); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if svc.Port <= 0 || svc.Service == "" {
		Error(w, http.StatusBadRequest, "service port and name are required")
		return
	}
	h.track(w, r, func(t *agent.Tracker) error {
		return t.AddService(r.Context(), svc)
	})
}

// AddVulnerability records a discovered vulnerability.
func (h *ContextHandler) AddVulnerability(w http.ResponseWriter, r *http.Request) {
	var v domain.Vulnerability
	if err := decodeJSON(r, &v); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if v.Name == "" {
		Error(w, http.StatusBadRequest, "vulnerability name is required")
		return
	}
	h.track(w, r, func(t *agent.Tracker) error {
		return t.AddVulnerability(r.Context(), v)
	})
}

// AddCredential records captured credentials.
func (h *ContextHandler) AddCredential(w http.ResponseWriter, r *http.Request) {
	var cred domain.Credential
	if err := decodeJSON(r, &cred); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if cred.Username == "" {
		Error(w, http.StatusBadRequest, "credential username is required")
		return
	}
	h.track(w, r, func(t *agent.Tracker) error {
		return t.AddCredential(r.Context(), cred)
	})
}

// SetFlag stores a captured flag.
func (h *ContextHandler) SetFlag(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FlagType string `json:"flag_type"`
		Value    string `json:"value"`
	}
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.FlagType == "" || req.Value == "" {
		Error(w, http.StatusBadRequest, "flag_type and value are required")
		return
	}
	h.track(w, r, func(t *agent.Tracker) error {
		return t.SetFlag(r.Context(), req.FlagType, req.Value)
	})
}

func (h *ContextHandler) track(w http.ResponseWriter, r *http.Request, fn func(*agent.Tracker) error) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := fn(agent.NewTracker(h.repo, sessionID)); err != nil {
		StoreError(w, err)
		return
	}

	lc, err := h.repo.GetLabContext(r.Context(), sessionID)
	if err != nil {
		StoreError(w, err)
		return
	}
	JSON(w, http.StatusOK, lc)
}
