package store

import (
	"context"
	"testing"

	"github.com/ashureev/hacklab-agent/internal/domain"
)

func TestCreateSessionDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := createTestSession(t, s, "alice")

	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session == nil {
		t.Fatal("Expected session, got nil")
	}
	if session.Status != domain.StatusActive {
		t.Errorf("Expected status active, got %q", session.Status)
	}
	if session.Archived {
		t.Error("Expected new session to not be archived")
	}
	if session.UserID != "alice" {
		t.Errorf("Expected user alice, got %q", session.UserID)
	}
	if session.LastActive.Before(session.CreatedAt) {
		t.Error("Expected last_active >= created_at")
	}

	// Creation seeds the first lab context snapshot.
	lc, err := s.GetLabContext(ctx, sessionID)
	if err != nil {
		t.Fatalf("GetLabContext failed: %v", err)
	}
	if lc == nil {
		t.Fatal("Expected initial lab context snapshot")
	}
	if lc.Phase != domain.PhaseReconnaissance {
		t.Errorf("Expected initial phase reconnaissance, got %q", lc.Phase)
	}
}

func TestCreateSessionRequiresUserID(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateSession(context.Background(), CreateSessionParams{UserID: "  "})
	if !IsValidation(err) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestGetSessionMissing(t *testing.T) {
	s := newTestStore(t)

	session, err := s.GetSession(context.Background(), "no-such-session")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session != nil {
		t.Errorf("Expected nil session, got %+v", session)
	}
}

func TestUpdateSessionStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := createTestSession(t, s, "alice")

	if err := s.UpdateSessionStatus(ctx, sessionID, domain.StatusCompleted); err != nil {
		t.Fatalf("UpdateSessionStatus failed: %v", err)
	}

	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session.Status != domain.StatusCompleted {
		t.Errorf("Expected status completed, got %q", session.Status)
	}
}

func TestUpdateSessionStatusInvalid(t *testing.T) {
	s := newTestStore(t)
	sessionID := createTestSession(t, s, "alice")

	err := s.UpdateSessionStatus(context.Background(), sessionID, "running")
	if !IsValidation(err) {
		t.Errorf("Expected validation error for unknown status, got %v", err)
	}
}

func TestUpdateSessionStatusMissing(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateSessionStatus(context.Background(), "no-such-session", domain.StatusPaused)
	if !IsNotFound(err) {
		t.Errorf("Expected not found error, got %v", err)
	}
}

func TestArchiveSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := createTestSession(t, s, "alice")

	if err := s.ArchiveSession(ctx, sessionID); err != nil {
		t.Fatalf("ArchiveSession failed: %v", err)
	}
	// Archiving twice is a no-op, not an error.
	if err := s.ArchiveSession(ctx, sessionID); err != nil {
		t.Fatalf("Second ArchiveSession failed: %v", err)
	}

	// Excluded from default listings.
	sessions, err := s.ListSessions(ctx, ListSessionsOptions{UserID: "alice"})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("Expected archived session to be excluded, got %d sessions", len(sessions))
	}

	// Included when asked for.
	sessions, err = s.ListSessions(ctx, ListSessionsOptions{UserID: "alice", IncludeArchived: true})
	if err != nil {
		t.Fatalf("ListSessions with archived failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("Expected 1 session with IncludeArchived, got %d", len(sessions))
	}
	if !sessions[0].Archived || sessions[0].Status != domain.StatusArchived {
		t.Errorf("Expected archived session, got status=%q archived=%v",
			sessions[0].Status, sessions[0].Archived)
	}

	// Data is preserved and the session stays addressable by id.
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session == nil {
		t.Fatal("Expected archived session to remain readable by id")
	}
}

func TestListSessionsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := createTestSession(t, s, "alice")
	second := createTestSession(t, s, "alice")
	createTestSession(t, s, "bob")

	if err := s.UpdateSessionStatus(ctx, first, domain.StatusCompleted); err != nil {
		t.Fatalf("UpdateSessionStatus failed: %v", err)
	}

	sessions, err := s.ListSessions(ctx, ListSessionsOptions{UserID: "alice"})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("Expected 2 sessions for alice, got %d", len(sessions))
	}

	sessions, err = s.ListSessions(ctx, ListSessionsOptions{UserID: "alice", Status: domain.StatusActive})
	if err != nil {
		t.Fatalf("ListSessions by status failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != second {
		t.Errorf("Expected only the active session %s, got %d sessions", second, len(sessions))
	}

	if _, err := s.ListSessions(ctx, ListSessionsOptions{Status: "bogus"}); !IsValidation(err) {
		t.Errorf("Expected validation error for unknown status filter, got %v", err)
	}
}

func TestListSessionsOrderedByActivity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := createTestSession(t, s, "alice")
	second := createTestSession(t, s, "alice")

	// Force distinct last_active values; the clock granularity is one second.
	if _, err := s.db.Exec(`UPDATE sessions SET last_active = last_active - 100 WHERE session_id = ?`, second); err != nil {
		t.Fatalf("Failed to age session: %v", err)
	}

	sessions, err := s.ListSessions(ctx, ListSessionsOptions{UserID: "alice"})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].SessionID != first {
		t.Errorf("Expected most recently active session first, got %s", sessions[0].SessionID)
	}
}

func TestDeleteSessionMissing(t *testing.T) {
	s := newTestStore(t)

	err := s.DeleteSession(context.Background(), "no-such-session")
	if !IsNotFound(err) {
		t.Errorf("Expected not found error, got %v", err)
	}
}
