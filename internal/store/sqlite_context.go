package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ashureev/hacklab-agent/internal/domain"
)

const labContextColumns = `context_id, session_id, phase, findings, open_ports,
	services, vulnerabilities, credentials, flags, notes, created_at, updated_at`

// UpdateLabContext merges the update onto the latest snapshot and inserts the
// result as a new snapshot row, so the full history of the lab stays
// queryable while reads always see the newest state.
func (s *SQLiteStore) UpdateLabContext(ctx context.Context, sessionID string, u LabContextUpdate) (int64, error) {
	if u.Phase != nil && !domain.ValidPhase(*u.Phase) {
		return 0, fmt.Errorf("%w: unknown phase %q", ErrValidation, *u.Phase)
	}

	now := time.Now()
	var contextID int64

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM sessions WHERE session_id = ?`, sessionID).Scan(&exists)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
		}
		if err != nil {
			return fmt.Errorf("check session: %w", err)
		}

		prev := &domain.LabContext{SessionID: sessionID, Phase: domain.PhaseReconnaissance, CreatedAt: now}
		row := tx.QueryRowContext(ctx, `
			SELECT `+labContextColumns+` FROM lab_context
			WHERE session_id = ?
			ORDER BY context_id DESC LIMIT 1`, sessionID)
		latest, err := scanLabContext(row)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("scan lab context row: %w", err)
		}
		if latest != nil {
			prev = latest
		}

		merged := mergeLabContext(prev, u)

		findings, err := marshalSlice(merged.Findings)
		if err != nil {
			return err
		}
		ports, err := marshalSlice(merged.OpenPorts)
		if err != nil {
			return err
		}
		services, err := marshalSlice(merged.Services)
		if err != nil {
			return err
		}
		vulns, err := marshalSlice(merged.Vulnerabilities)
		if err != nil {
			return err
		}
		creds, err := marshalSlice(merged.Credentials)
		if err != nil {
			return err
		}
		var flags interface{}
		if len(merged.Flags) > 0 {
			if flags, err = marshalField(merged.Flags); err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO lab_context (
				session_id, phase, findings, open_ports, services,
				vulnerabilities, credentials, flags, notes, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sessionID, merged.Phase, findings, ports, services,
			vulns, creds, flags, nullText(merged.Notes),
			prev.CreatedAt.Unix(), now.Unix(),
		)
		if err != nil {
			return fmt.Errorf("insert lab context snapshot: %w", err)
		}

		contextID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("get context id: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return contextID, nil
}

// GetLabContext returns the latest lab context snapshot for a session, or
// (nil, nil) if the session has none.
func (s *SQLiteStore) GetLabContext(ctx context.Context, sessionID string) (*domain.LabContext, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+labContextColumns+` FROM lab_context
		WHERE session_id = ?
		ORDER BY context_id DESC LIMIT 1`, sessionID)

	lc, err := scanLabContext(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan lab context row: %w", err)
	}
	return lc, nil
}

// ListLabContexts returns every snapshot for a session, oldest first.
func (s *SQLiteStore) ListLabContexts(ctx context.Context, sessionID string) ([]*domain.LabContext, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+labContextColumns+` FROM lab_context
		WHERE session_id = ?
		ORDER BY context_id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query lab contexts: %w", err)
	}
	defer closeRows(rows, "list lab contexts")

	var contexts []*domain.LabContext
	for rows.Next() {
		lc, err := scanLabContext(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lab context row: %w", err)
		}
		contexts = append(contexts, lc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lab contexts: %w", err)
	}
	return contexts, nil
}

// mergeLabContext applies non-nil fields of u over prev and returns the new
// snapshot value. Slices and maps replace wholesale; incremental merges
// (port dedup, service upsert) happen in the tracker before the update is
// issued.
func mergeLabContext(prev *domain.LabContext, u LabContextUpdate) *domain.LabContext {
	merged := *prev
	if u.Phase != nil {
		merged.Phase = *u.Phase
	}
	if u.Findings != nil {
		merged.Findings = u.Findings
	}
	if u.OpenPorts != nil {
		merged.OpenPorts = u.OpenPorts
	}
	if u.Services != nil {
		merged.Services = u.Services
	}
	if u.Vulnerabilities != nil {
		merged.Vulnerabilities = u.Vulnerabilities
	}
	if u.Credentials != nil {
		merged.Credentials = u.Credentials
	}
	if u.Flags != nil {
		merged.Flags = u.Flags
	}
	if u.Notes != nil {
		merged.Notes = *u.Notes
	}
	return &merged
}

// marshalSlice serializes a slice for a nullable JSON column; empty slices
// become SQL NULL.
func marshalSlice[T any](v []T) (interface{}, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return marshalField(v)
}

func scanLabContext(row rowScanner) (*domain.LabContext, error) {
	var lc domain.LabContext
	var findings, ports, services, vulns, creds, flags, notes sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&lc.ContextID, &lc.SessionID, &lc.Phase, &findings, &ports,
		&services, &vulns, &creds, &flags, &notes, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalField(findings, &lc.Findings); err != nil {
		return nil, err
	}
	if err := unmarshalField(ports, &lc.OpenPorts); err != nil {
		return nil, err
	}
	if err := unmarshalField(services, &lc.Services); err != nil {
		return nil, err
	}
	if err := unmarshalField(vulns, &lc.Vulnerabilities); err != nil {
		return nil, err
	}
	if err := unmarshalField(creds, &lc.Credentials); err != nil {
		return nil, err
	}
	if err := unmarshalField(flags, &lc.Flags); err != nil {
		return nil, err
	}
	lc.Notes = notes.String
	lc.CreatedAt = time.Unix(createdAt, 0)
	lc.UpdatedAt = time.Unix(updatedAt, 0)
	return &lc, nil
}
