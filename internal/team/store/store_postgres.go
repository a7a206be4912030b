package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"regdesk/internal/platform/postgres"
	"regdesk/internal/team/models"
	id "regdesk/pkg/domain"
	"regdesk/pkg/platform/sentinel"
	"regdesk/pkg/platform/tx"
)

const membershipConstraint = "team_members_pkey"

// PostgresStore persists teams with membership uniqueness enforced by the
// team_members primary key.
type PostgresStore struct {
	db     *sql.DB
	runner tx.Runner
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, runner: tx.NewPostgresRunner(db, 0)}
}

func (s *PostgresStore) execer(ctx context.Context) tx.Execer {
	return tx.Executor(ctx, s.db)
}

func (s *PostgresStore) Create(ctx context.Context, t *models.Team) error {
	return s.runner.RunInTx(ctx, func(ctx context.Context) error {
		_, err := s.execer(ctx).ExecContext(ctx, `
			INSERT INTO teams (id, name, slug, leader_id, track_type, locked, max_members, invitations, join_requests, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::uuid[], $9::uuid[], $10, $11)
		`, uuid.UUID(t.ID), t.Name, t.Slug, uuid.UUID(t.LeaderID), string(t.Track), t.Locked, t.MaxMembers,
			pq.Array(toUUIDs(t.Invitations)), pq.Array(toUUIDs(t.JoinRequests)), t.CreatedAt, t.UpdatedAt)
		if err != nil {
			if postgres.IsUniqueViolation(err, "") {
				return sentinel.ErrConflict
			}
			return fmt.Errorf("insert team: %w", err)
		}
		return s.insertMembers(ctx, t, t.Members, t.CreatedAt)
	})
}

func (s *PostgresStore) insertMembers(ctx context.Context, t *models.Team, members []id.ParticipantID, joinedAt time.Time) error {
	for i, p := range members {
		// Preserve roster order through joined_at.
		_, err := s.execer(ctx).ExecContext(ctx, `
			INSERT INTO team_members (participant_id, track_type, team_id, joined_at) VALUES ($1, $2, $3, $4)
		`, uuid.UUID(p), string(t.Track), uuid.UUID(t.ID), joinedAt.Add(time.Duration(i)*time.Microsecond))
		if err != nil {
			if postgres.IsUniqueViolation(err, membershipConstraint) {
				return sentinel.ErrConflict
			}
			return fmt.Errorf("insert team member: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, teamID id.TeamID) (*models.Team, error) {
	return s.load(ctx, teamID, false)
}

func (s *PostgresStore) FindByMember(ctx context.Context, participantID id.ParticipantID, track id.TrackType) (*models.Team, error) {
	var teamID uuid.UUID
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT team_id FROM team_members WHERE participant_id = $1 AND track_type = $2
	`, uuid.UUID(participantID), string(track)).Scan(&teamID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find team by member: %w", err)
	}
	return s.load(ctx, id.TeamID(teamID), false)
}

func (s *PostgresStore) MembershipsOf(ctx context.Context, participantID id.ParticipantID) (map[id.TrackType]id.TeamID, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT track_type, team_id FROM team_members WHERE participant_id = $1
	`, uuid.UUID(participantID))
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()
	out := make(map[id.TrackType]id.TeamID)
	for rows.Next() {
		var (
			track  string
			teamID uuid.UUID
		)
		if err := rows.Scan(&track, &teamID); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out[id.TrackType(track)] = id.TeamID(teamID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memberships: %w", err)
	}
	return out, nil
}

// Execute locks the team row with SELECT ... FOR UPDATE for the duration of
// validate and mutate, then writes the team and its membership delta.
func (s *PostgresStore) Execute(ctx context.Context, teamID id.TeamID, validate func(*models.Team) error, mutate func(*models.Team)) (*models.Team, error) {
	var result *models.Team
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.load(ctx, teamID, true)
		if err != nil {
			return err
		}
		next := current.Clone()
		if err := validate(next); err != nil {
			return err
		}
		mutate(next)

		_, err = s.execer(ctx).ExecContext(ctx, `
			UPDATE teams SET name = $2, slug = $3, locked = $4, invitations = $5::uuid[], join_requests = $6::uuid[], updated_at = $7
			WHERE id = $1
		`, uuid.UUID(teamID), next.Name, next.Slug, next.Locked,
			pq.Array(toUUIDs(next.Invitations)), pq.Array(toUUIDs(next.JoinRequests)), next.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update team: %w", err)
		}

		var removed, added []id.ParticipantID
		for _, p := range current.Members {
			if !next.HasMember(p) {
				removed = append(removed, p)
			}
		}
		for _, p := range next.Members {
			if !current.HasMember(p) {
				added = append(added, p)
			}
		}
		if len(removed) > 0 {
			_, err = s.execer(ctx).ExecContext(ctx, `
				DELETE FROM team_members WHERE team_id = $1 AND participant_id = ANY($2::uuid[])
			`, uuid.UUID(teamID), pq.Array(toUUIDs(removed)))
			if err != nil {
				return fmt.Errorf("remove team members: %w", err)
			}
		}
		if err := s.insertMembers(ctx, next, added, next.UpdatedAt); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes the team; team_members rows cascade.
func (s *PostgresStore) Delete(ctx context.Context, teamID id.TeamID, validate func(*models.Team) error) (*models.Team, error) {
	var removed *models.Team
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.load(ctx, teamID, true)
		if err != nil {
			return err
		}
		if err := validate(current.Clone()); err != nil {
			return err
		}
		if _, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM teams WHERE id = $1`, uuid.UUID(teamID)); err != nil {
			return fmt.Errorf("delete team: %w", err)
		}
		removed = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (s *PostgresStore) load(ctx context.Context, teamID id.TeamID, forUpdate bool) (*models.Team, error) {
	query := `
		SELECT id, name, slug, leader_id, track_type, locked, max_members, invitations::text, join_requests::text, created_at, updated_at
		FROM teams WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var (
		t            models.Team
		rawID        uuid.UUID
		leader       uuid.UUID
		track        string
		invitations  pq.StringArray
		joinRequests pq.StringArray
	)
	err := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(teamID)).Scan(
		&rawID, &t.Name, &t.Slug, &leader, &track, &t.Locked, &t.MaxMembers,
		&invitations, &joinRequests, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("load team: %w", err)
	}
	t.ID = id.TeamID(rawID)
	t.LeaderID = id.ParticipantID(leader)
	t.Track = id.TrackType(track)
	if t.Invitations, err = fromStrings(invitations); err != nil {
		return nil, err
	}
	if t.JoinRequests, err = fromStrings(joinRequests); err != nil {
		return nil, err
	}

	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT participant_id FROM team_members WHERE team_id = $1 ORDER BY joined_at
	`, rawID)
	if err != nil {
		return nil, fmt.Errorf("load team members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p uuid.UUID
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan team member: %w", err)
		}
		t.Members = append(t.Members, id.ParticipantID(p))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate team members: %w", err)
	}
	return &t, nil
}

func toUUIDs(ids []id.ParticipantID) []string {
	out := make([]string, len(ids))
	for i, p := range ids {
		out[i] = p.String()
	}
	return out
}

func fromStrings(raw []string) ([]id.ParticipantID, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]id.ParticipantID, 0, len(raw))
	for _, r := range raw {
		p, err := uuid.Parse(r)
		if err != nil {
			return nil, fmt.Errorf("decode participant id: %w", err)
		}
		out = append(out, id.ParticipantID(p))
	}
	return out, nil
}
