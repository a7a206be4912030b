package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"regdesk/internal/catalog/models"
	"regdesk/internal/platform/postgres"
	id "regdesk/pkg/domain"
	"regdesk/pkg/platform/sentinel"
	"regdesk/pkg/platform/tx"
)

// PostgresStore reads events and owns the live registration counter.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) execer(ctx context.Context) tx.Execer {
	return tx.Executor(ctx, s.db)
}

const eventColumns = `id, title, fee, currency, team_event, min_team_size, max_team_size, capacity, registered_count, open`

func (s *PostgresStore) Put(ctx context.Context, e *models.Event) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO events (id, title, fee, currency, team_event, min_team_size, max_team_size, capacity, open)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			fee = EXCLUDED.fee,
			currency = EXCLUDED.currency,
			team_event = EXCLUDED.team_event,
			min_team_size = EXCLUDED.min_team_size,
			max_team_size = EXCLUDED.max_team_size,
			capacity = EXCLUDED.capacity,
			open = EXCLUDED.open
	`, uuid.UUID(e.ID), e.Title, e.Fee, e.Currency, e.TeamEvent, e.MinTeamSize, e.MaxTeamSize, e.Capacity, e.Open)
	if err != nil {
		return fmt.Errorf("put event: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, eventID id.EventID) (*models.Event, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, uuid.UUID(eventID))
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Event, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	var out []*models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// IncrementRegistered inserts the claim row first; the counter update only runs
// when the insert created a new row, so replays never double count.
func (s *PostgresStore) IncrementRegistered(ctx context.Context, eventID id.EventID, submissionID id.SubmissionID) (bool, error) {
	var count int
	err := s.execer(ctx).QueryRowContext(ctx, `
		WITH claim AS (
			INSERT INTO event_counter_claims (event_id, submission_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
			RETURNING event_id
		)
		UPDATE events SET registered_count = registered_count + 1
		WHERE id IN (SELECT event_id FROM claim)
		RETURNING registered_count
	`, uuid.UUID(eventID), uuid.UUID(submissionID)).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, getErr := s.Get(ctx, eventID); getErr != nil {
				return false, getErr
			}
			return false, nil
		}
		if postgres.IsForeignKeyViolation(err) {
			return false, sentinel.ErrNotFound
		}
		return false, fmt.Errorf("increment registered: %w", err)
	}
	return true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*models.Event, error) {
	var (
		e     models.Event
		rawID uuid.UUID
	)
	if err := row.Scan(&rawID, &e.Title, &e.Fee, &e.Currency, &e.TeamEvent, &e.MinTeamSize,
		&e.MaxTeamSize, &e.Capacity, &e.RegisteredCount, &e.Open); err != nil {
		return nil, err
	}
	e.ID = id.EventID(rawID)
	return &e, nil
}
