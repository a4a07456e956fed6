package postgresql

// migrations returns the versioned schema for the workflow templates and the
// approval tracking ledger. The partial unique index on PENDING rows is the
// database-level guard for the one-pending-row-per-request invariant.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflows (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL UNIQUE,
				description TEXT NOT NULL DEFAULT '',
				type VARCHAR(32) NOT NULL,
				predicate JSONB NOT NULL DEFAULT '[]',
				active BOOLEAN NOT NULL DEFAULT TRUE,
				created_by VARCHAR(64) NOT NULL DEFAULT '',
				updated_by VARCHAR(64) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_workflows_type_active
				ON workflows (type, active, created_at DESC);

			CREATE TABLE IF NOT EXISTS workflow_steps (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL REFERENCES workflows(id),
				step_order INTEGER NOT NULL,
				position_id VARCHAR(64) NOT NULL,
				active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_workflow_steps_workflow
				ON workflow_steps (workflow_id, active, step_order);

			CREATE TABLE IF NOT EXISTS approval_trackings (
				id UUID PRIMARY KEY,
				request_id VARCHAR(64) NOT NULL,
				workflow_id UUID NOT NULL,
				step_id UUID NOT NULL REFERENCES workflow_steps(id),
				step_order INTEGER NOT NULL,
				status VARCHAR(16) NOT NULL,
				assigned_user_id VARCHAR(64) NOT NULL,
				action_user_id VARCHAR(64) NOT NULL DEFAULT '',
				action_at TIMESTAMP WITH TIME ZONE,
				notes TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE UNIQUE INDEX IF NOT EXISTS uniq_approval_trackings_pending
				ON approval_trackings (request_id) WHERE status = 'PENDING';

			CREATE INDEX IF NOT EXISTS idx_approval_trackings_request
				ON approval_trackings (request_id, created_at);

			CREATE INDEX IF NOT EXISTS idx_approval_trackings_assignee
				ON approval_trackings (assigned_user_id, status);
		`,
	}
}
