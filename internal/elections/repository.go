package elections

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-campus/internal/platform/db"
	"github.com/odyssey-erp/odyssey-campus/internal/shared"
)

const (
	constraintCandidateApplication = "candidates_applicant_position_key"
	constraintVoteOnce             = "votes_election_voter_key"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository is the PostgreSQL Store.
type Repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL-backed store.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

const electionColumns = `id, title, description, start_at, end_at, status, positions,
	is_public, created_by, vote_count, created_at, updated_at`

const candidateColumns = `id, election_id, applicant_id, applicant_name, position, manifesto,
	image_ref, vote_count, status, submitted_at, reviewed_by, reviewed_at, rejection_reason, updated_at`

func scanElection(row pgx.Row) (Election, error) {
	var e Election
	var status string
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.StartAt, &e.EndAt, &status, &e.Positions,
		&e.IsPublic, &e.CreatedBy, &e.VoteCount, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Election{}, shared.ErrNotFound
		}
		return Election{}, err
	}
	e.Status = Status(status)
	if err := e.check(); err != nil {
		return Election{}, err
	}
	return e, nil
}

func scanCandidate(row pgx.Row) (Candidate, error) {
	var c Candidate
	var status string
	var imageRef, reviewedBy, reason pgtype.Text
	var reviewedAt pgtype.Timestamptz
	err := row.Scan(&c.ID, &c.ElectionID, &c.ApplicantID, &c.ApplicantName, &c.Position, &c.Manifesto,
		&imageRef, &c.VoteCount, &status, &c.SubmittedAt, &reviewedBy, &reviewedAt, &reason, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Candidate{}, shared.ErrNotFound
		}
		return Candidate{}, err
	}
	c.Status = CandidateStatus(status)
	if imageRef.Valid {
		c.ImageRef = imageRef.String
	}
	if reviewedBy.Valid {
		c.ReviewedBy = reviewedBy.String
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		c.ReviewedAt = &t
	}
	if reason.Valid {
		c.RejectionReason = reason.String
	}
	if err := c.check(); err != nil {
		return Candidate{}, err
	}
	return c, nil
}

func nullText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func (r *Repository) ListElections(ctx context.Context, filter ElectionFilter) ([]Election, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, string(filter.Status))
		argPos++
	}
	if filter.PublicOnly {
		conditions = append(conditions, "is_public")
	}
	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM elections "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count elections: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM elections %s ORDER BY start_at DESC, id LIMIT $%d OFFSET $%d`,
		electionColumns, whereClause, argPos, argPos+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list elections: %w", err)
	}
	defer rows.Close()

	items := make([]Election, 0, limit)
	for rows.Next() {
		e, err := scanElection(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}

func (r *Repository) GetElection(ctx context.Context, id string) (Election, error) {
	return scanElection(r.db.QueryRow(ctx, `SELECT `+electionColumns+` FROM elections WHERE id = $1`, id))
}

func (r *Repository) CreateElection(ctx context.Context, e Election) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO elections (id, title, description, start_at, end_at, status, positions,
			is_public, created_by, vote_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, $11)`,
		e.ID, e.Title, e.Description, e.StartAt, e.EndAt, string(e.Status), e.Positions,
		e.IsPublic, e.CreatedBy, e.CreatedAt, e.UpdatedAt)
	if db.IsUniqueViolation(err, "") {
		return fmt.Errorf("%w: election %s exists", shared.ErrConflict, e.ID)
	}
	return err
}

func (r *Repository) UpdateElection(ctx context.Context, e Election, from Status) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE elections
		SET title = $2, description = $3, start_at = $4, end_at = $5, positions = $6,
			is_public = $7, status = $8, updated_at = $9
		WHERE id = $1 AND status = $10`,
		e.ID, e.Title, e.Description, e.StartAt, e.EndAt, e.Positions, e.IsPublic,
		string(e.Status), e.UpdatedAt, string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.statusMismatch(ctx, e.ID)
}

func (r *Repository) statusMismatch(ctx context.Context, id string) error {
	cur, err := r.GetElection(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: election is %s", shared.ErrInvalidState, cur.Status)
}

func (r *Repository) TransitionElection(ctx context.Context, id string, from, to Status, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE elections SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
		id, string(from), string(to), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.statusMismatch(ctx, id)
}

// DeleteElection relies on the candidates cascade and on votes referencing
// elections without one.
func (r *Repository) DeleteElection(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM elections WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: election has votes", shared.ErrConflict)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *Repository) ListCandidates(ctx context.Context, electionID string) ([]Candidate, error) {
	rows, err := r.db.Query(ctx, `SELECT `+candidateColumns+` FROM candidates
		WHERE election_id = $1 ORDER BY submitted_at, id`, electionID)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	out := make([]Candidate, 0)
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) GetCandidate(ctx context.Context, id string) (Candidate, error) {
	return scanCandidate(r.db.QueryRow(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = $1`, id))
}

func (r *Repository) CreateCandidate(ctx context.Context, c Candidate) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO candidates (id, election_id, applicant_id, applicant_name, position, position_key,
			manifesto, image_ref, vote_count, status, submitted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10, $11)`,
		c.ID, c.ElectionID, c.ApplicantID, c.ApplicantName, c.Position, positionKey(c.Position),
		c.Manifesto, nullText(c.ImageRef), string(c.Status), c.SubmittedAt, c.UpdatedAt)
	switch {
	case db.IsUniqueViolation(err, constraintCandidateApplication):
		return fmt.Errorf("%w: already applied for %s", shared.ErrConflict, c.Position)
	case db.IsForeignKeyViolation(err):
		return shared.ErrNotFound
	}
	return err
}

func (r *Repository) UpdatePendingCandidate(ctx context.Context, c Candidate) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE candidates SET manifesto = $2, image_ref = $3, updated_at = $4
		WHERE id = $1 AND status = 'pending'`,
		c.ID, c.Manifesto, nullText(c.ImageRef), c.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.notPending(ctx, c.ID, shared.ErrInvalidState)
}

func (r *Repository) DeletePendingCandidate(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM candidates WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.notPending(ctx, id, shared.ErrInvalidState)
}

func (r *Repository) ReviewCandidate(ctx context.Context, id string, review Review) (Candidate, error) {
	reason := pgtype.Text{}
	if review.Status == CandidateRejected {
		reason = nullText(review.Reason)
	}
	c, err := scanCandidate(r.db.QueryRow(ctx, `
		UPDATE candidates
		SET status = $2, reviewed_by = $3, reviewed_at = $4, rejection_reason = $5, updated_at = $4
		WHERE id = $1 AND status = 'pending'
		RETURNING `+candidateColumns,
		id, string(review.Status), review.ReviewerID, review.At, reason))
	if !errors.Is(err, shared.ErrNotFound) {
		return c, err
	}
	cur, err := r.GetCandidate(ctx, id)
	if err != nil {
		return Candidate{}, err
	}
	return cur, fmt.Errorf("%w: candidate already %s", shared.ErrConflict, cur.Status)
}

func (r *Repository) notPending(ctx context.Context, id string, sentinel error) error {
	cur, err := r.GetCandidate(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: candidate already %s", sentinel, cur.Status)
}

// RecordVote runs at ReadCommitted: the conditional updates re-check the
// latest committed row after waiting on its lock, and ON CONFLICT never
// raises a serialization failure. The election row is locked first so votes
// and RepairCounters take locks in the same order.
func (r *Repository) RecordVote(ctx context.Context, v Vote) error {
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if err := lockElection(ctx, tx, v.ElectionID, "FOR NO KEY UPDATE"); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
			INSERT INTO votes (id, election_id, candidate_id, voter_id, cast_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (election_id, voter_id) DO NOTHING`,
			v.ID, v.ElectionID, v.CandidateID, v.VoterID, v.CastAt)
		switch {
		case db.IsForeignKeyViolation(err):
			return shared.ErrNotFound
		case err != nil:
			return fmt.Errorf("insert vote: %w", err)
		case tag.RowsAffected() == 0:
			return fmt.Errorf("%w: already voted", shared.ErrConflict)
		}

		tag, err = tx.Exec(ctx, `
			UPDATE candidates SET vote_count = vote_count + 1, updated_at = $3
			WHERE id = $1 AND election_id = $2 AND status = 'approved'`,
			v.CandidateID, v.ElectionID, v.CastAt)
		if err != nil {
			return fmt.Errorf("count candidate vote: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return errCandidateNotApproved
		}

		tag, err = tx.Exec(ctx, `
			UPDATE elections SET vote_count = vote_count + 1
			WHERE id = $1 AND status = 'active'`, v.ElectionID)
		if err != nil {
			return fmt.Errorf("count election vote: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: voting closed", shared.ErrInvalidState)
		}
		return nil
	})
}

func (r *Repository) FindVote(ctx context.Context, electionID, voterID string) (Vote, error) {
	var v Vote
	err := r.db.QueryRow(ctx, `
		SELECT id, election_id, candidate_id, voter_id, cast_at
		FROM votes WHERE election_id = $1 AND voter_id = $2`,
		electionID, voterID).Scan(&v.ID, &v.ElectionID, &v.CandidateID, &v.VoterID, &v.CastAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Vote{}, shared.ErrNotFound
	}
	if err != nil {
		return Vote{}, err
	}
	if err := v.check(); err != nil {
		return Vote{}, err
	}
	return v, nil
}

// TallyVotes reads from a single RepeatableRead snapshot, so a vote committed
// halfway through cannot show up in the recount without its counters.
func (r *Repository) TallyVotes(ctx context.Context, electionID string) (Tally, error) {
	tally := Tally{CandidateStored: make(map[string]int64), Counted: make(map[string]int64)}
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	err := db.WithTxOptions(ctx, r.pool, opts, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status, vote_count FROM elections WHERE id = $1`, electionID).
			Scan(&status, &tally.ElectionStored)
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrNotFound
		}
		if err != nil {
			return err
		}
		tally.Status = Status(status)

		rows, err := tx.Query(ctx, `
			SELECT c.id, c.vote_count,
				(SELECT COUNT(*) FROM votes v WHERE v.election_id = c.election_id AND v.candidate_id = c.id)
			FROM candidates c WHERE c.election_id = $1`, electionID)
		if err != nil {
			return fmt.Errorf("tally votes: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			var stored, counted int64
			if err := rows.Scan(&id, &stored, &counted); err != nil {
				return err
			}
			tally.CandidateStored[id] = stored
			if counted > 0 {
				tally.Counted[id] = counted
			}
		}
		return rows.Err()
	})
	if err != nil {
		return Tally{}, err
	}
	return tally, nil
}

// RepairCounters holds the election row lock while recounting, so no vote
// can commit between the count and the write. ReadCommitted lets the recount
// see votes committed while the lock was awaited.
func (r *Repository) RepairCounters(ctx context.Context, electionID string) error {
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if err := lockElection(ctx, tx, electionID, "FOR UPDATE"); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE candidates c SET vote_count = (
				SELECT COUNT(*) FROM votes v WHERE v.election_id = c.election_id AND v.candidate_id = c.id
			) WHERE c.election_id = $1`, electionID); err != nil {
			return fmt.Errorf("repair candidates: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE elections SET vote_count = (
				SELECT COALESCE(SUM(vote_count), 0) FROM candidates WHERE election_id = $1
			) WHERE id = $1`, electionID); err != nil {
			return fmt.Errorf("repair election: %w", err)
		}
		return nil
	})
}

func lockElection(ctx context.Context, tx pgx.Tx, id, mode string) error {
	var locked string
	err := tx.QueryRow(ctx, `SELECT id FROM elections WHERE id = $1 `+mode, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock election: %w", err)
	}
	return nil
}

var _ Store = (*Repository)(nil)
var _ Store = (*MemoryStore)(nil)
