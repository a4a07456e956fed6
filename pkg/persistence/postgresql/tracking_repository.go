package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/talentflow/approvals/pkg/models"
	"github.com/talentflow/approvals/pkg/persistence"
)

// TrackingRepository is the PostgreSQL approval tracking ledger. Close and
// open of a transition run in one transaction, and the guarded UPDATE on
// status = 'PENDING' plus the partial unique index keep the single-pending
// invariant under retries and concurrent delivery.
type TrackingRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewTrackingRepository(db *sql.DB, logger *slog.Logger) *TrackingRepository {
	return &TrackingRepository{db: db, logger: logger}
}

const trackingColumns = `
	id
  , request_id
  , workflow_id
  , step_id
  , step_order
  , status
  , assigned_user_id
  , action_user_id
  , action_at
  , notes
  , created_at
  , updated_at
`

const uniqueViolation = "23505"

func isPendingUniqueViolation(err error) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

func (r *TrackingRepository) OpenPending(ctx context.Context, row *models.ApprovalTracking) error {
	err := r.insertPending(ctx, r.db, row)
	if err != nil {
		if isPendingUniqueViolation(err) {
			return persistence.NewRequestStoreError("OpenPending", row.RequestID, persistence.ErrPendingAlreadyExists)
		}

		return fmt.Errorf("failed to open pending tracking: %w", err)
	}

	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *TrackingRepository) insertPending(ctx context.Context, db execer, row *models.ApprovalTracking) error {
	now := time.Now().UTC()

	if row.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate tracking ID: %w", err)
		}

		row.ID = id.String()
	}

	row.Status = models.TrackingStatusPending
	row.CreatedAt = now
	row.UpdatedAt = now

	_, err := db.ExecContext(ctx, `
		INSERT INTO approval_trackings (id, request_id, workflow_id, step_id, step_order,
			status, assigned_user_id, action_user_id, action_at, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, '', NULL, '', $8, $9)
	`,
		row.ID,
		row.RequestID,
		row.WorkflowID,
		row.StepID,
		row.StepOrder,
		row.Status,
		row.AssignedUserID,
		row.CreatedAt,
		row.UpdatedAt,
	)

	return err
}

// closePending flips the matching PENDING row to a terminal status. Returns
// false when nothing matched, which callers treat as a duplicate delivery.
func (r *TrackingRepository) closePending(ctx context.Context, db execer, requestID, stepID string, status models.TrackingStatus, actionUserID, notes string) (bool, error) {
	now := time.Now().UTC()

	result, err := db.ExecContext(ctx, `
		UPDATE approval_trackings
		SET status = $1, action_user_id = $2, action_at = $3, notes = $4, updated_at = $3
		WHERE request_id = $5 AND step_id = $6 AND status = 'PENDING'
	`, status, actionUserID, now, notes, requestID, stepID)
	if err != nil {
		return false, fmt.Errorf("failed to close pending tracking: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected == 1, nil
}

func (r *TrackingRepository) ClosePending(ctx context.Context, requestID, stepID string, status models.TrackingStatus, actionUserID, notes string) (bool, error) {
	return r.closePending(ctx, r.db, requestID, stepID, status, actionUserID, notes)
}

func (r *TrackingRepository) Transition(ctx context.Context, requestID, stepID string, status models.TrackingStatus, actionUserID, notes string, next *models.ApprovalTracking) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	closed, err := r.closePending(ctx, tx, requestID, stepID, status, actionUserID, notes)
	if err != nil {
		return false, err
	}

	if !closed {
		// Stale or duplicate event; leave the ledger untouched.
		_ = tx.Rollback()

		return false, nil
	}

	if next != nil {
		err = r.insertPending(ctx, tx, next)
		if err != nil {
			if isPendingUniqueViolation(err) {
				err = persistence.NewRequestStoreError("Transition", requestID, persistence.ErrPendingAlreadyExists)
			}

			return false, err
		}
	}

	err = tx.Commit()
	if err != nil {
		return false, fmt.Errorf("failed to commit transition: %w", err)
	}

	return true, nil
}

func (r *TrackingRepository) CurrentPending(ctx context.Context, requestID string) (*models.ApprovalTracking, error) {
	query := `SELECT ` + trackingColumns + `
		FROM approval_trackings
		WHERE request_id = $1 AND status = 'PENDING'`

	row, err := r.scanTracking(r.db.QueryRowContext(ctx, query, requestID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan pending tracking: %w", err)
	}

	return row, nil
}

func (r *TrackingRepository) HistoryByRequest(ctx context.Context, requestID string) ([]*models.ApprovalTracking, error) {
	query := `SELECT ` + trackingColumns + `
		FROM approval_trackings
		WHERE request_id = $1
		ORDER BY created_at, id`

	return r.queryTrackings(ctx, query, requestID)
}

func (r *TrackingRepository) List(ctx context.Context, opts persistence.ListTrackingsOptions) ([]*models.ApprovalTracking, int64, error) {
	where := "WHERE 1=1"
	args := []any{}

	if opts.RequestID != "" {
		args = append(args, opts.RequestID)
		where += fmt.Sprintf(" AND request_id = $%d", len(args))
	}

	if opts.AssignedUserID != "" {
		args = append(args, opts.AssignedUserID)
		where += fmt.Sprintf(" AND assigned_user_id = $%d", len(args))
	}

	if opts.Status != nil {
		args = append(args, *opts.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int64

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM approval_trackings "+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count trackings: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	args = append(args, limit, opts.Offset)
	query := fmt.Sprintf(`SELECT %s FROM approval_trackings %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		trackingColumns, where, len(args)-1, len(args))

	rows, err := r.queryTrackings(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}

	return rows, total, nil
}

func (r *TrackingRepository) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*models.ApprovalTracking, error) {
	query := `SELECT ` + trackingColumns + `
		FROM approval_trackings
		WHERE status = 'PENDING' AND created_at < $1
		ORDER BY created_at`

	return r.queryTrackings(ctx, query, cutoff)
}

func (r *TrackingRepository) queryTrackings(ctx context.Context, query string, args ...any) ([]*models.ApprovalTracking, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trackings: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	trackings := make([]*models.ApprovalTracking, 0)

	for rows.Next() {
		tracking, err := r.scanTracking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tracking: %w", err)
		}

		trackings = append(trackings, tracking)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating trackings: %w", err)
	}

	return trackings, nil
}

func (r *TrackingRepository) scanTracking(scanner interface {
	Scan(dest ...any) error
}) (*models.ApprovalTracking, error) {
	var (
		tracking models.ApprovalTracking
		actionAt sql.NullTime
	)

	err := scanner.Scan(
		&tracking.ID,
		&tracking.RequestID,
		&tracking.WorkflowID,
		&tracking.StepID,
		&tracking.StepOrder,
		&tracking.Status,
		&tracking.AssignedUserID,
		&tracking.ActionUserID,
		&actionAt,
		&tracking.Notes,
		&tracking.CreatedAt,
		&tracking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if actionAt.Valid {
		tracking.ActionAt = &actionAt.Time
	}

	return &tracking, nil
}
