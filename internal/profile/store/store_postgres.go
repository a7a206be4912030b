package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"regdesk/internal/platform/postgres"
	"regdesk/internal/profile/models"
	id "regdesk/pkg/domain"
	"regdesk/pkg/platform/sentinel"
	"regdesk/pkg/platform/tx"
)

const (
	eventKindRegistered = "registered"
	eventKindPaid       = "paid"
)

// PostgresStore persists participants and their event sets.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) execer(ctx context.Context) tx.Execer {
	return tx.Executor(ctx, s.db)
}

func (s *PostgresStore) Save(ctx context.Context, p *models.Participant) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO participants (id, external_id, name, email, institution, roles, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			institution = EXCLUDED.institution,
			updated_at = EXCLUDED.updated_at
	`, uuid.UUID(p.ID), p.ExternalID, p.Name, p.Email, p.Institution, pq.Array(nonNil(p.Roles)), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, "participants_external_id_key") {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save participant: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, participantID id.ParticipantID) (*models.Participant, error) {
	return s.findOne(ctx, `WHERE id = $1`, uuid.UUID(participantID))
}

func (s *PostgresStore) FindByExternalID(ctx context.Context, externalID string) (*models.Participant, error) {
	return s.findOne(ctx, `WHERE external_id = $1`, externalID)
}

func (s *PostgresStore) findOne(ctx context.Context, where string, arg any) (*models.Participant, error) {
	var (
		p     models.Participant
		rawID uuid.UUID
		roles pq.StringArray
	)
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT id, external_id, name, email, institution, roles::text, created_at, updated_at
		FROM participants `+where, arg).
		Scan(&rawID, &p.ExternalID, &p.Name, &p.Email, &p.Institution, &roles, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find participant: %w", err)
	}
	p.ID = id.ParticipantID(rawID)
	p.Roles = []string(roles)

	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT event_id, kind FROM participant_events WHERE participant_id = $1 ORDER BY event_id
	`, rawID)
	if err != nil {
		return nil, fmt.Errorf("load participant events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			eventID uuid.UUID
			kind    string
		)
		if err := rows.Scan(&eventID, &kind); err != nil {
			return nil, fmt.Errorf("scan participant event: %w", err)
		}
		switch kind {
		case eventKindRegistered:
			p.RegisteredEvents = append(p.RegisteredEvents, id.EventID(eventID))
		case eventKindPaid:
			p.PaidEvents = append(p.PaidEvents, id.EventID(eventID))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participant events: %w", err)
	}
	return &p, nil
}

// AddEvents inserts set members; the primary key makes replays no-ops.
func (s *PostgresStore) AddEvents(ctx context.Context, participantID id.ParticipantID, registered, paid []id.EventID) error {
	if len(registered) == 0 && len(paid) == 0 {
		return nil
	}
	var exists bool
	if err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM participants WHERE id = $1)`, uuid.UUID(participantID)).Scan(&exists); err != nil {
		return fmt.Errorf("check participant: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO participant_events (participant_id, event_id, kind)
		SELECT $1::uuid, e, $3::text FROM unnest($2::uuid[]) AS e
		UNION
		SELECT $1::uuid, e, $5::text FROM unnest($4::uuid[]) AS e
		ON CONFLICT DO NOTHING
	`, uuid.UUID(participantID), pq.Array(eventStrings(registered)), eventKindRegistered,
		pq.Array(eventStrings(paid)), eventKindPaid)
	if err != nil {
		return fmt.Errorf("add participant events: %w", err)
	}
	return nil
}

func (s *PostgresStore) GrantRole(ctx context.Context, participantID id.ParticipantID, role string) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE participants
		SET roles = CASE WHEN $2::text = ANY(roles) THEN roles ELSE array_append(roles, $2::text) END
		WHERE id = $1
	`, uuid.UUID(participantID), role)
	if err != nil {
		return fmt.Errorf("grant role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func eventStrings(ids []id.EventID) []string {
	out := make([]string, len(ids))
	for i, e := range ids {
		out[i] = e.String()
	}
	return out
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
