package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE events (
				id VARCHAR(255) PRIMARY KEY,
				source_event_id VARCHAR(255) NOT NULL,
				fingerprint VARCHAR(64) NOT NULL,
				project_id VARCHAR(255),
				correlation_id VARCHAR(255) NOT NULL,
				workflow_type VARCHAR(64) NOT NULL,
				data JSONB NOT NULL DEFAULT '{}',
				-- JSON keeps node insertion order, JSONB would reorder keys.
				task_context JSON,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_events_source_event_id ON events(source_event_id);
			CREATE INDEX idx_events_fingerprint ON events(fingerprint);
			CREATE INDEX idx_events_project_created ON events(project_id, created_at DESC);
		`,
		2: `
			-- Sweeper scans for events whose processing never wrote a task context.
			CREATE INDEX idx_events_unprocessed ON events(created_at) WHERE task_context IS NULL;
		`,
		3: `
			-- Concurrent deliveries of one event must not both be stored.
			DROP INDEX idx_events_source_event_id;
			CREATE UNIQUE INDEX idx_events_source_event_id ON events(source_event_id);
		`,
	}
}
