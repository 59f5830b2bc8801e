package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE definitions (
				id VARCHAR(255) PRIMARY KEY,
				group_id VARCHAR(255) NOT NULL,
				version INTEGER NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'published', 'unpublished')),
				nodes JSONB NOT NULL,
				edges JSONB NOT NULL,
				output_variable VARCHAR(255) NOT NULL DEFAULT '',
				owner VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				published_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_definitions_group_id ON definitions(group_id);
			CREATE INDEX idx_definitions_status ON definitions(status);
			CREATE UNIQUE INDEX idx_definitions_group_version ON definitions(group_id, version);

			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				definition_id VARCHAR(255) NOT NULL,
				definition_version INTEGER NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('running', 'suspended', 'completed', 'failed', 'cancelled')),
				active_nodes JSONB NOT NULL,
				suspended_nodes JSONB NOT NULL,
				join_waits JSONB NOT NULL,
				scope JSONB NOT NULL,
				pending_approvals JSONB NOT NULL,
				history JSONB NOT NULL,
				output JSONB,
				error JSONB,
				created_by VARCHAR(255) NOT NULL,
				parent_id VARCHAR(255),
				parent_node_id VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_executions_definition_id ON executions(definition_id);
			CREATE INDEX idx_executions_status ON executions(status);
			CREATE INDEX idx_executions_created_by ON executions(created_by);

			CREATE TABLE approvals (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				assignee_ids JSONB NOT NULL,
				decision VARCHAR(50) NOT NULL CHECK (decision IN ('pending', 'approved', 'rejected')),
				decided_by VARCHAR(255),
				decided_at TIMESTAMP WITH TIME ZONE,
				timeout_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_approvals_execution_id ON approvals(execution_id);
			CREATE INDEX idx_approvals_decision ON approvals(decision);

			CREATE TABLE timers (
				token VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				wake_at TIMESTAMP WITH TIME ZONE NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_timers_wake_at ON timers(wake_at);

			CREATE TABLE schedules (
				id VARCHAR(255) PRIMARY KEY,
				definition_id VARCHAR(255) NOT NULL,
				cron_expr VARCHAR(255) NOT NULL,
				trigger_input JSONB,
				owner_id VARCHAR(255) NOT NULL DEFAULT '',
				enabled BOOLEAN NOT NULL DEFAULT TRUE,
				next_fire_at TIMESTAMP WITH TIME ZONE NOT NULL,
				last_fired_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_schedules_enabled ON schedules(enabled);
			CREATE INDEX idx_schedules_next_fire_at ON schedules(next_fire_at);
		`,
	}
}
