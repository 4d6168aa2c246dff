package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/hacklab-agent/internal/domain"
	"github.com/ashureev/hacklab-agent/internal/shared"
	"github.com/ashureev/hacklab-agent/internal/store"
)

// Tracker applies incremental pentest findings to one session's lab context.
// Each mutation reads the latest snapshot, merges the change in memory and
// writes the result back as a new snapshot.
type Tracker struct {
	repo      store.Repository
	sessionID string
}

// NewTracker wraps an existing session.
func NewTracker(repo store.Repository, sessionID string) *Tracker {
	return &Tracker{repo: repo, sessionID: sessionID}
}

// StartSession creates a new session and returns a tracker bound to it.
func StartSession(ctx context.Context, repo store.Repository, p store.CreateSessionParams) (*Tracker, error) {
	sessionID, err := repo.CreateSession(ctx, p)
	if err != nil {
		return nil, err
	}
	return &Tracker{repo: repo, sessionID: sessionID}, nil
}

// SessionID returns the tracked session's id.
func (t *Tracker) SessionID() string {
	return t.sessionID
}

// Resume marks a paused session active again.
func (t *Tracker) Resume(ctx context.Context) error {
	return t.repo.UpdateSessionStatus(ctx, t.sessionID, domain.StatusActive)
}

// End closes the session, marking it completed or paused.
func (t *Tracker) End(ctx context.Context, completed bool) error {
	status := domain.StatusPaused
	if completed {
		status = domain.StatusCompleted
	}
	return t.repo.UpdateSessionStatus(ctx, t.sessionID, status)
}

// UpdatePhase moves the session to a new pentest phase.
func (t *Tracker) UpdatePhase(ctx context.Context, phase string) error {
	if !domain.ValidPhase(phase) {
		return fmt.Errorf("%w: invalid phase %q", store.ErrValidation, phase)
	}
	_, err := t.repo.UpdateLabContext(ctx, t.sessionID, store.LabContextUpdate{Phase: &phase})
	return err
}

// AddFinding records a discovery.
func (t *Tracker) AddFinding(ctx context.Context, f domain.Finding) error {
	return t.mutate(ctx, func(lc *domain.LabContext) store.LabContextUpdate {
		lc.AddFinding(f)
		return store.LabContextUpdate{Findings: lc.Findings}
	})
}

// AddPorts merges newly discovered open ports into the context.
func (t *Tracker) AddPorts(ctx context.Context, ports []int) error {
	return t.mutate(ctx, func(lc *domain.LabContext) store.LabContextUpdate {
		lc.MergePorts(ports)
		return store.LabContextUpdate{OpenPorts: lc.OpenPorts}
	})
}

// AddService records an identified service, replacing any earlier entry on
// the same port.
func (t *Tracker) AddService(ctx context.Context, svc domain.Service) error {
	return t.mutate(ctx, func(lc *domain.LabContext) store.LabContextUpdate {
		lc.UpsertService(svc)
		return store.LabContextUpdate{Services: lc.Services}
	})
}

// AddVulnerability records a discovered vulnerability.
func (t *Tracker) AddVulnerability(ctx context.Context, v domain.Vulnerability) error {
	return t.mutate(ctx, func(lc *domain.LabContext) store.LabContextUpdate {
		lc.AddVulnerability(v)
		return store.LabContextUpdate{Vulnerabilities: lc.Vulnerabilities}
	})
}

// AddCredential records captured credentials.
func (t *Tracker) AddCredential(ctx context.Context, cred domain.Credential) error {
	return t.mutate(ctx, func(lc *domain.LabContext) store.LabContextUpdate {
		lc.AddCredential(cred)
		return store.LabContextUpdate{Credentials: lc.Credentials}
	})
}

// SetFlag stores a captured flag under its type (user_flag, root_flag, ...).
func (t *Tracker) SetFlag(ctx context.Context, flagType, value string) error {
	return t.mutate(ctx, func(lc *domain.LabContext) store.LabContextUpdate {
		lc.SetFlag(flagType, value)
		return store.LabContextUpdate{Flags: lc.Flags}
	})
}

// AppendNotes adds a note paragraph to the context.
func (t *Tracker) AppendNotes(ctx context.Context, notes string) error {
	return t.mutate(ctx, func(lc *domain.LabContext) store.LabContextUpdate {
		lc.AppendNotes(notes)
		return store.LabContextUpdate{Notes: &lc.Notes}
	})
}

// ContextSummary renders the session and its current context for display.
func (t *Tracker) ContextSummary(ctx context.Context) (string, error) {
	session, err := t.repo.GetSession(ctx, t.sessionID)
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", fmt.Errorf("%w: session %s", store.ErrNotFound, t.sessionID)
	}
	lc, err := t.repo.GetLabContext(ctx, t.sessionID)
	if err != nil {
		return "", err
	}
	return ContextSummary(session, lc), nil
}

// mutate loads the latest snapshot, applies fn and persists the returned
// partial update as a new snapshot. SQLITE_BUSY conflicts are retried with
// exponential backoff since context updates arrive in bursts during scans.
func (t *Tracker) mutate(ctx context.Context, fn func(*domain.LabContext) store.LabContextUpdate) error {
	const maxRetries = 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = t.mutateOnce(ctx, fn)
		if err == nil || !shared.IsSQLiteConflictError(err) {
			return err
		}
		if i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("Database locked during context update, retrying",
				"session_id", t.sessionID,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
		}
	}
	return err
}

func (t *Tracker) mutateOnce(ctx context.Context, fn func(*domain.LabContext) store.LabContextUpdate) error {
	lc, err := t.repo.GetLabContext(ctx, t.sessionID)
	if err != nil {
		return err
	}
	if lc == nil {
		lc = &domain.LabContext{SessionID: t.sessionID, Phase: domain.PhaseReconnaissance}
	}
	_, err = t.repo.UpdateLabContext(ctx, t.sessionID, fn(lc))
	return err
}
