package domain

import (
	"sort"
	"strings"
	"time"
)

// Pentest phases tracked in lab context.
const (
	PhaseReconnaissance   = "reconnaissance"
	PhaseEnumeration      = "enumeration"
	PhaseExploitation     = "exploitation"
	PhasePostExploitation = "post-exploitation"
)

// ValidPhase reports whether p is one of the known pentest phases.
func ValidPhase(p string) bool {
	switch p {
	case PhaseReconnaissance, PhaseEnumeration, PhaseExploitation, PhasePostExploitation:
		return true
	}
	return false
}

// Finding is a single discovery recorded during a lab.
type Finding struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Severity    string `json:"severity,omitempty"`
}

// Service describes an identified network service.
type Service struct {
	Port    int    `json:"port"`
	Service string `json:"service"`
	Version string `json:"version,omitempty"`
}

// Vulnerability describes a discovered vulnerability.
type Vulnerability struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// Credential holds captured credentials for a service.
type Credential struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Service  string `json:"service,omitempty"`
}

// LabContext is one snapshot of accumulated pentest state for a session.
// Snapshots are append-only; the newest row is the current context.
type LabContext struct {
	ContextID       int64             `json:"context_id"`
	SessionID       string            `json:"session_id"`
	Phase           string            `json:"phase"`
	Findings        []Finding         `json:"findings,omitempty"`
	OpenPorts       []int             `json:"open_ports,omitempty"`
	Services        []Service         `json:"services,omitempty"`
	Vulnerabilities []Vulnerability   `json:"vulnerabilities,omitempty"`
	Credentials     []Credential      `json:"credentials,omitempty"`
	Flags           map[string]string `json:"flags,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// MergePorts adds ports to the open port set, keeping the list sorted and
// free of duplicates.
func (c *LabContext) MergePorts(ports []int) {
	seen := make(map[int]bool, len(c.OpenPorts)+len(ports))
	for _, p := range c.OpenPorts {
		seen[p] = true
	}
	for _, p := range ports {
		seen[p] = true
	}
	merged := make([]int, 0, len(seen))
	for p := range seen {
		merged = append(merged, p)
	}
	sort.Ints(merged)
	c.OpenPorts = merged
}

// UpsertService records a service, replacing any previous entry on the same port.
func (c *LabContext) UpsertService(svc Service) {
	for i, existing := range c.Services {
		if existing.Port == svc.Port {
			c.Services[i] = svc
			return
		}
	}
	c.Services = append(c.Services, svc)
}

// AddFinding appends a finding to the snapshot.
func (c *LabContext) AddFinding(f Finding) {
	c.Findings = append(c.Findings, f)
}

// AddVulnerability appends a vulnerability to the snapshot.
func (c *LabContext) AddVulnerability(v Vulnerability) {
	c.Vulnerabilities = append(c.Vulnerabilities, v)
}

// AddCredential appends captured credentials to the snapshot.
func (c *LabContext) AddCredential(cred Credential) {
	c.Credentials = append(c.Credentials, cred)
}

// SetFlag stores a captured flag (user_flag, root_flag, ...).
func (c *LabContext) SetFlag(flagType, value string) {
	if c.Flags == nil {
		c.Flags = make(map[string]string)
	}
	c.Flags[flagType] = value
}

// AppendNotes adds a note paragraph, separated from existing notes.
func (c *LabContext) AppendNotes(notes string) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return
	}
	if c.Notes == "" {
		c.Notes = notes
		return
	}
	c.Notes = c.Notes + "\n\n" + notes
}
