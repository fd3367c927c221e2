package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create executions table
			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				conversation_id VARCHAR(255) NOT NULL,
				graph JSONB NOT NULL,
				status VARCHAR(50) NOT NULL,
				node_statuses JSONB NOT NULL DEFAULT '{}',
				current_node_id VARCHAR(255),
				paused_node_id VARCHAR(255),
				paused_phase VARCHAR(50),
				version BIGINT NOT NULL,
				snapshot JSONB,
				pending_request JSONB,
				error_message TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_executions_conversation_id ON executions(conversation_id, created_at DESC);
			CREATE INDEX idx_executions_status ON executions(status);

			-- Create node_executions table (audit log of individual node runs)
			CREATE TABLE node_executions (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
				node_id VARCHAR(255) NOT NULL,
				node_type VARCHAR(50) NOT NULL,
				status VARCHAR(50) NOT NULL,
				input_data JSONB DEFAULT '{}',
				output_data JSONB,
				error_message TEXT,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				duration_ms BIGINT NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_node_executions_execution_id ON node_executions(execution_id);
			CREATE INDEX idx_node_executions_node_id ON node_executions(node_id);
			CREATE INDEX idx_node_executions_started_at ON node_executions(started_at);
		`,
	}
}
