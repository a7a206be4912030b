package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"regdesk/internal/payment/models"
	"regdesk/internal/platform/postgres"
	id "regdesk/pkg/domain"
	"regdesk/pkg/platform/sentinel"
	"regdesk/pkg/platform/tx"
)

const transactionRefConstraint = "payment_submissions_transaction_ref_key"

// PostgresSubmissions stores submissions; transaction reference uniqueness is
// a partial unique index over non-free rows.
type PostgresSubmissions struct {
	db *sql.DB
}

func NewPostgresSubmissions(db *sql.DB) *PostgresSubmissions {
	return &PostgresSubmissions{db: db}
}

func (s *PostgresSubmissions) execer(ctx context.Context) tx.Execer {
	return tx.Executor(ctx, s.db)
}

const submissionColumns = `id, participant_id, team_id, transaction_ref, proof_ref, free, total_amount, currency, events,
	status, verifier_id, verified_at, rejection_reason, created_at, updated_at`

func (s *PostgresSubmissions) Create(ctx context.Context, sub *models.Submission) error {
	events, err := json.Marshal(sub.Events)
	if err != nil {
		return fmt.Errorf("encode submission events: %w", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO payment_submissions (`+submissionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, uuid.UUID(sub.ID), uuid.UUID(sub.ParticipantID), nullTeam(sub.TeamID), sub.TransactionRef, sub.ProofRef,
		sub.Free, sub.TotalAmount, sub.Currency, events, string(sub.Status), nullString(sub.VerifierID),
		sub.VerifiedAt, nullString(sub.RejectionReason), sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, transactionRefConstraint) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (s *PostgresSubmissions) FindByID(ctx context.Context, submissionID id.SubmissionID) (*models.Submission, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM payment_submissions WHERE id = $1`, uuid.UUID(submissionID))
	sub, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find submission: %w", err)
	}
	return sub, nil
}

// Transition is a conditional update on the current status.
func (s *PostgresSubmissions) Transition(ctx context.Context, submissionID id.SubmissionID, from models.SubmissionStatus, update func(*models.Submission)) (*models.Submission, error) {
	current, err := s.FindByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if current.Status != from {
		return nil, sentinel.ErrInvalidState
	}
	next := current.Clone()
	update(next)
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE payment_submissions
		SET status = $3, verifier_id = $4, verified_at = $5, rejection_reason = $6, updated_at = $7
		WHERE id = $1 AND status = $2
	`, uuid.UUID(submissionID), string(from), string(next.Status), nullString(next.VerifierID),
		next.VerifiedAt, nullString(next.RejectionReason), next.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update submission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update submission: %w", err)
	}
	if n == 0 {
		return nil, sentinel.ErrInvalidState
	}
	return next, nil
}

func (s *PostgresSubmissions) List(ctx context.Context, filter ListFilter) ([]*models.Submission, int, error) {
	var total int
	if err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT count(*) FROM payment_submissions WHERE ($1 = '' OR status = $1)
	`, string(filter.Status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}
	limit := sql.NullInt64{Int64: int64(filter.Limit), Valid: filter.Limit > 0}
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+submissionColumns+` FROM payment_submissions
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id
		OFFSET $2 LIMIT $3
	`, string(filter.Status), filter.Offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()
	var out []*models.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate submissions: %w", err)
	}
	return out, total, nil
}

func (s *PostgresSubmissions) CountByStatus(ctx context.Context) (map[models.SubmissionStatus]int, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `SELECT status, count(*) FROM payment_submissions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count submissions: %w", err)
	}
	defer rows.Close()
	counts := map[models.SubmissionStatus]int{
		models.SubmissionPending:  0,
		models.SubmissionVerified: 0,
		models.SubmissionRejected: 0,
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan submission count: %w", err)
		}
		counts[models.SubmissionStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submission counts: %w", err)
	}
	return counts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row scanner) (*models.Submission, error) {
	var (
		sub           models.Submission
		rawID         uuid.UUID
		participantID uuid.UUID
		teamID        uuid.NullUUID
		events        []byte
		status        string
		verifierID    sql.NullString
		verifiedAt    sql.NullTime
		reason        sql.NullString
	)
	err := row.Scan(&rawID, &participantID, &teamID, &sub.TransactionRef, &sub.ProofRef, &sub.Free,
		&sub.TotalAmount, &sub.Currency, &events, &status, &verifierID, &verifiedAt, &reason,
		&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(events, &sub.Events); err != nil {
		return nil, fmt.Errorf("decode submission events: %w", err)
	}
	sub.ID = id.SubmissionID(rawID)
	sub.ParticipantID = id.ParticipantID(participantID)
	if teamID.Valid {
		sub.TeamID = id.TeamID(teamID.UUID)
	}
	sub.Status = models.SubmissionStatus(status)
	sub.VerifierID = verifierID.String
	if verifiedAt.Valid {
		at := verifiedAt.Time
		sub.VerifiedAt = &at
	}
	sub.RejectionReason = reason.String
	return &sub, nil
}

// PostgresRegistrations stores registrations keyed by the
// (event_id, registrant_key) unique constraint.
type PostgresRegistrations struct {
	db *sql.DB
}

func NewPostgresRegistrations(db *sql.DB) *PostgresRegistrations {
	return &PostgresRegistrations{db: db}
}

func (s *PostgresRegistrations) execer(ctx context.Context) tx.Execer {
	return tx.Executor(ctx, s.db)
}

const registrationColumns = `id, event_id, registrant_key, team_id, roster_ids::text, payment_status, submission_id,
	amount_expected, amount_paid, created_at, updated_at`

// Upsert relies on ON CONFLICT with a WHERE guard; when the guard refuses the
// update no row comes back and the registration stays with its submission.
func (s *PostgresRegistrations) Upsert(ctx context.Context, r *models.Registration) (*models.Registration, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		INSERT INTO registrations (id, event_id, registrant_key, team_id, roster_ids, payment_status, submission_id,
			amount_expected, amount_paid, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::uuid[], $6, $7, $8, NULL, $9, $9)
		ON CONFLICT ON CONSTRAINT registrations_event_registrant_key DO UPDATE SET
			team_id = EXCLUDED.team_id,
			roster_ids = EXCLUDED.roster_ids,
			payment_status = EXCLUDED.payment_status,
			submission_id = EXCLUDED.submission_id,
			amount_paid = NULL,
			updated_at = EXCLUDED.updated_at
		WHERE NOT (
			registrations.payment_status = ANY($10::text[])
			AND registrations.submission_id IS NOT NULL
			AND registrations.submission_id <> EXCLUDED.submission_id
		)
		RETURNING `+registrationColumns,
		uuid.UUID(r.ID), uuid.UUID(r.EventID), r.RegistrantKey, nullTeam(r.TeamID), pq.Array(participantStrings(r.RosterIDs)),
		string(r.Status), nullSubmission(r.SubmissionID), r.AmountExpected, r.UpdatedAt, pq.Array(activeStatusStrings()))
	stored, err := scanRegistration(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrAlreadyUsed
		}
		return nil, fmt.Errorf("upsert registration: %w", err)
	}
	return stored, nil
}

func (s *PostgresRegistrations) FindActive(ctx context.Context, eventID id.EventID, registrantKey string) (*models.Registration, error) {
	return s.findOne(ctx, `WHERE event_id = $1 AND registrant_key = $2 AND payment_status = ANY($3::text[])`,
		uuid.UUID(eventID), registrantKey, pq.Array(activeStatusStrings()))
}

func (s *PostgresRegistrations) FindByEventAndSubmission(ctx context.Context, eventID id.EventID, submissionID id.SubmissionID) (*models.Registration, error) {
	return s.findOne(ctx, `WHERE event_id = $1 AND submission_id = $2`, uuid.UUID(eventID), uuid.UUID(submissionID))
}

func (s *PostgresRegistrations) FindActiveByEventAndTeam(ctx context.Context, eventID id.EventID, teamID id.TeamID) (*models.Registration, error) {
	return s.findOne(ctx, `WHERE event_id = $1 AND team_id = $2 AND payment_status = ANY($3::text[])`,
		uuid.UUID(eventID), uuid.UUID(teamID), pq.Array(activeStatusStrings()))
}

func (s *PostgresRegistrations) FindActiveByEventAndRosterMember(ctx context.Context, eventID id.EventID, participantID id.ParticipantID) (*models.Registration, error) {
	return s.findOne(ctx, `WHERE event_id = $1 AND $2::uuid = ANY(roster_ids) AND payment_status = ANY($3::text[]) ORDER BY updated_at DESC LIMIT 1`,
		uuid.UUID(eventID), uuid.UUID(participantID), pq.Array(activeStatusStrings()))
}

func (s *PostgresRegistrations) ListBySubmission(ctx context.Context, submissionID id.SubmissionID) ([]*models.Registration, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+registrationColumns+` FROM registrations WHERE submission_id = $1 ORDER BY created_at
	`, uuid.UUID(submissionID))
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()
	var out []*models.Registration
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrations: %w", err)
	}
	return out, nil
}

func (s *PostgresRegistrations) Update(ctx context.Context, r *models.Registration) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE registrations
		SET team_id = $2, roster_ids = $3::uuid[], payment_status = $4, submission_id = $5, amount_paid = $6, updated_at = $7
		WHERE id = $1
	`, uuid.UUID(r.ID), nullTeam(r.TeamID), pq.Array(participantStrings(r.RosterIDs)), string(r.Status),
		nullSubmission(r.SubmissionID), r.AmountPaid, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update registration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update registration: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresRegistrations) findOne(ctx context.Context, where string, args ...any) (*models.Registration, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT `+registrationColumns+` FROM registrations `+where, args...)
	r, err := scanRegistration(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return r, nil
}

func scanRegistration(row scanner) (*models.Registration, error) {
	var (
		r            models.Registration
		rawID        uuid.UUID
		eventID      uuid.UUID
		teamID       uuid.NullUUID
		roster       pq.StringArray
		status       string
		submissionID uuid.NullUUID
		amountPaid   sql.NullInt64
	)
	err := row.Scan(&rawID, &eventID, &r.RegistrantKey, &teamID, &roster, &status, &submissionID,
		&r.AmountExpected, &amountPaid, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.ID = id.RegistrationID(rawID)
	r.EventID = id.EventID(eventID)
	if teamID.Valid {
		r.TeamID = id.TeamID(teamID.UUID)
	}
	for _, raw := range roster {
		p, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("decode roster id: %w", err)
		}
		r.RosterIDs = append(r.RosterIDs, id.ParticipantID(p))
	}
	r.Status = models.RegistrationStatus(status)
	if submissionID.Valid {
		r.SubmissionID = id.SubmissionID(submissionID.UUID)
	}
	if amountPaid.Valid {
		paid := amountPaid.Int64
		r.AmountPaid = &paid
	}
	return &r, nil
}

func activeStatusStrings() []string {
	out := make([]string, len(models.ActiveStatuses))
	for i, s := range models.ActiveStatuses {
		out[i] = string(s)
	}
	return out
}

func participantStrings(ids []id.ParticipantID) []string {
	out := make([]string, len(ids))
	for i, p := range ids {
		out[i] = p.String()
	}
	return out
}

func nullTeam(teamID id.TeamID) uuid.NullUUID {
	return uuid.NullUUID{UUID: uuid.UUID(teamID), Valid: !teamID.IsNil()}
}

func nullSubmission(submissionID id.SubmissionID) uuid.NullUUID {
	return uuid.NullUUID{UUID: uuid.UUID(submissionID), Valid: !submissionID.IsNil()}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
