package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/talentflow/approvals/pkg/models"
	"github.com/talentflow/approvals/pkg/persistence"
)

// WorkflowRepository handles workflow template storage. Steps are stored in
// their own table and replaced as a set on save: superseded steps are
// deactivated, never deleted, so ledger rows keep resolvable step references.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
	id
  , name
  , description
  , type
  , predicate
  , active
  , created_by
  , updated_by
  , created_at
  , updated_at
`

// Save inserts or updates a template and atomically replaces its step set.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	predicateJSON, err := json.Marshal(workflow.Predicate)
	if err != nil {
		return fmt.Errorf("failed to marshal predicate: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	workflowQuery := `
		INSERT INTO workflows (id, name, description, type, predicate, active,
			created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			type = EXCLUDED.type,
			predicate = EXCLUDED.predicate,
			active = EXCLUDED.active,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at
	`

	_, err = tx.ExecContext(ctx, workflowQuery,
		workflow.ID,
		workflow.Name,
		workflow.Description,
		workflow.Type,
		predicateJSON,
		workflow.Active,
		workflow.CreatedBy,
		workflow.UpdatedBy,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow base: %w", err)
	}

	// Retire the previous step set instead of deleting it; historical
	// ledger rows still reference those step ids.
	_, err = tx.ExecContext(ctx,
		"UPDATE workflow_steps SET active = FALSE WHERE workflow_id = $1 AND active", workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to retire existing steps: %w", err)
	}

	for _, step := range workflow.Steps {
		if step.ID == "" {
			id, idErr := uuid.NewV7()
			if idErr != nil {
				err = fmt.Errorf("failed to generate step ID: %w", idErr)

				return err
			}

			step.ID = id.String()
		}

		step.WorkflowID = workflow.ID
		step.Active = true

		// Upsert: a step carried over unchanged from the previous set keeps
		// its id and is simply reactivated.
		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_steps (id, workflow_id, step_order, position_id, active)
			VALUES ($1, $2, $3, $4, TRUE)
			ON CONFLICT (id) DO UPDATE SET
				step_order = EXCLUDED.step_order,
				position_id = EXCLUDED.position_id,
				active = TRUE
		`, step.ID, step.WorkflowID, step.StepOrder, step.PositionID)
		if err != nil {
			return fmt.Errorf("failed to save step %d: %w", step.StepOrder, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1`

	workflow, err := r.scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	err = r.loadSteps(ctx, workflow)
	if err != nil {
		return nil, err
	}

	return workflow, nil
}

func (r *WorkflowRepository) List(ctx context.Context, opts persistence.ListWorkflowsOptions) ([]*models.Workflow, int64, error) {
	where := "WHERE 1=1"
	args := []any{}

	if opts.Type != nil {
		args = append(args, *opts.Type)
		where += fmt.Sprintf(" AND type = $%d", len(args))
	}

	if opts.Active != nil {
		args = append(args, *opts.Active)
		where += fmt.Sprintf(" AND active = $%d", len(args))
	}

	if opts.Keyword != "" {
		args = append(args, "%"+opts.Keyword+"%")
		where += fmt.Sprintf(" AND (name ILIKE $%d OR description ILIKE $%d)", len(args), len(args))
	}

	var total int64

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflows "+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count workflows: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	args = append(args, limit, opts.Offset)
	query := fmt.Sprintf(`SELECT %s FROM workflows %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		workflowColumns, where, len(args)-1, len(args))

	workflows, err := r.queryWorkflows(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}

	return workflows, total, nil
}

func (r *WorkflowRepository) ListActiveByType(ctx context.Context, workflowType models.WorkflowType) ([]*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + `
		FROM workflows
		WHERE type = $1 AND active
		ORDER BY created_at DESC`

	return r.queryWorkflows(ctx, query, workflowType)
}

func (r *WorkflowRepository) StepByID(ctx context.Context, stepID string) (*models.WorkflowStep, error) {
	query := `
		SELECT id, workflow_id, step_order, position_id, active
		FROM workflow_steps
		WHERE id = $1
	`

	var step models.WorkflowStep

	err := r.db.QueryRowContext(ctx, query, stepID).Scan(
		&step.ID,
		&step.WorkflowID,
		&step.StepOrder,
		&step.PositionID,
		&step.Active,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("StepByID", stepID, persistence.ErrStepNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow step: %w", err)
	}

	return &step, nil
}

func (r *WorkflowRepository) queryWorkflows(ctx context.Context, query string, args ...any) ([]*models.Workflow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	for _, workflow := range workflows {
		err = r.loadSteps(ctx, workflow)
		if err != nil {
			return nil, err
		}
	}

	return workflows, nil
}

func (r *WorkflowRepository) loadSteps(ctx context.Context, workflow *models.Workflow) error {
	query := `
		SELECT id, workflow_id, step_order, position_id, active
		FROM workflow_steps
		WHERE workflow_id = $1 AND active
		ORDER BY step_order
	`

	rows, err := r.db.QueryContext(ctx, query, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow steps: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	steps := make([]*models.WorkflowStep, 0)

	for rows.Next() {
		var step models.WorkflowStep

		err := rows.Scan(&step.ID, &step.WorkflowID, &step.StepOrder, &step.PositionID, &step.Active)
		if err != nil {
			return fmt.Errorf("failed to scan step: %w", err)
		}

		steps = append(steps, &step)
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("error iterating steps: %w", err)
	}

	workflow.Steps = steps

	return nil
}

func (r *WorkflowRepository) scanWorkflow(scanner interface {
	Scan(dest ...any) error
}) (*models.Workflow, error) {
	var (
		workflow      models.Workflow
		predicateJSON []byte
	)

	err := scanner.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.Description,
		&workflow.Type,
		&predicateJSON,
		&workflow.Active,
		&workflow.CreatedBy,
		&workflow.UpdatedBy,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if predicateJSON != nil {
		err = json.Unmarshal(predicateJSON, &workflow.Predicate)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal predicate: %w", err)
		}
	}

	return &workflow, nil
}
